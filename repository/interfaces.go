package repository

import (
	"github.com/classlens/backend/models"
)

// SessionRepository defines persistence for analysis sessions and their
// per-face results.
type SessionRepository interface {
	Create(session *models.Session) error
	GetByID(id string) (*models.Session, error)
	// Finalize marks a processing session completed, attaching its face
	// results, statistics, and stored image paths in one transaction.
	Finalize(id string, faces []models.FaceResult, stats models.Statistics, annotatedImage, thumbnailImage *string) error
	MarkFailed(id string, errMsg string) error
	ListRecent(limit int) ([]models.Session, error)
	// ListCompletedSince returns completed sessions uploaded at or after the
	// given unix timestamp, oldest first.
	ListCompletedSince(since int64) ([]models.Session, error)
	Delete(id string) error
}

// UserRepository defines persistence for dashboard accounts.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
}
