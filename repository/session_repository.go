package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/classlens/backend/models"
)

type GormSessionRepository struct {
	db *gorm.DB
}

func NewGormSessionRepository(db *gorm.DB) SessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(session *models.Session) error {
	return r.db.Create(session).Error
}

func (r *GormSessionRepository) GetByID(id string) (*models.Session, error) {
	var session models.Session
	err := r.db.Preload("Faces", func(db *gorm.DB) *gorm.DB {
		return db.Order("face_index ASC")
	}).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Finalize transitions a processing session to completed. face rows, the
// computed statistics, and image paths land atomically so readers never see a
// completed session with partial results.
func (r *GormSessionRepository) Finalize(id string, faces []models.FaceResult, stats models.Statistics, annotatedImage, thumbnailImage *string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := range faces {
			faces[i].SessionID = id
		}
		if len(faces) > 0 {
			if err := tx.Create(&faces).Error; err != nil {
				return err
			}
		}

		var session models.Session
		if err := tx.Where("id = ? AND status = ?", id, models.SessionStatusProcessing).First(&session).Error; err != nil {
			return err
		}

		now := time.Now().Unix()
		session.Status = models.SessionStatusCompleted
		session.CompletedAt = &now
		session.Statistics = stats
		session.AnnotatedImage = annotatedImage
		session.ThumbnailImage = thumbnailImage

		// Save goes through the struct so the serializer:json field on the
		// emotion distribution is honored
		return tx.Omit("Faces").Save(&session).Error
	})
}

func (r *GormSessionRepository) MarkFailed(id string, errMsg string) error {
	now := time.Now().Unix()
	return r.db.Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.SessionStatusFailed,
			"completed_at": now,
			"error_msg":    errMsg,
		}).Error
}

func (r *GormSessionRepository) ListRecent(limit int) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.Order("uploaded_at DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

func (r *GormSessionRepository) ListCompletedSince(since int64) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.
		Where("status = ? AND uploaded_at >= ?", models.SessionStatusCompleted, since).
		Order("uploaded_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *GormSessionRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.FaceResult{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Session{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
