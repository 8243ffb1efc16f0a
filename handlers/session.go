package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/classlens/backend/analysis"
	"github.com/classlens/backend/media"
	"github.com/classlens/backend/models"
	"github.com/classlens/backend/repository"
)

// SessionAnalyzer runs the upload pipeline. Narrow interface so handler tests
// can substitute a fake.
type SessionAnalyzer interface {
	Analyze(ctx context.Context, imageData []byte, originalFilename, className string) (*models.Session, error)
}

type SessionHandler struct {
	Analyzer       SessionAnalyzer
	Repo           repository.SessionRepository
	Store          media.Store
	MaxUploadBytes int64
	RecentLimit    int
}

func NewSessionHandler(analyzer SessionAnalyzer, repo repository.SessionRepository, store media.Store, maxUploadBytes int64, recentLimit int) *SessionHandler {
	return &SessionHandler{
		Analyzer:       analyzer,
		Repo:           repo,
		Store:          store,
		MaxUploadBytes: maxUploadBytes,
		RecentLimit:    recentLimit,
	}
}

// UploadResponse is the wire shape returned after a successful analysis.
type UploadResponse struct {
	SessionID      string              `json:"session_id"`
	ClassName      string              `json:"class_name"`
	Status         string              `json:"status"`
	Faces          []models.FaceResult `json:"faces"`
	Statistics     models.Statistics   `json:"statistics"`
	OriginalImage  string              `json:"original_image"`
	AnnotatedImage *string             `json:"annotated_image"`
}

// Upload accepts a multipart classroom photo, runs the analysis pipeline, and
// returns the completed session's results.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteAPIError(w, http.StatusRequestEntityTooLarge, "file_too_large", "Uploaded file exceeds the maximum allowed size")
			return
		}
		WriteAPIError(w, http.StatusBadRequest, "invalid_form", "Could not parse multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "missing_image", "Form field 'image' is required")
		return
	}
	defer file.Close()

	if !media.IsRasterImage(header.Filename) {
		WriteAPIError(w, http.StatusBadRequest, "unsupported_type", "File must be a raster image (jpg, png, gif, bmp, tiff)")
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "read_failed", "Could not read uploaded file")
		return
	}

	className := r.FormValue("class_name")

	session, err := h.Analyzer.Analyze(r.Context(), imageData, header.Filename, className)
	if err != nil {
		var analysisErr *analysis.Error
		if errors.As(err, &analysisErr) {
			log.Printf("handlers: session %s failed: %v", analysisErr.SessionID, err)
			WriteAPIError(w, http.StatusUnprocessableEntity, "analysis_failed",
				"Analysis of session "+analysisErr.SessionID+" failed: "+analysisErr.Err.Error())
			return
		}
		log.Printf("handlers: upload failed before session creation: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to process upload")
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		SessionID:      session.ID,
		ClassName:      session.ClassName,
		Status:         session.Status,
		Faces:          session.Faces,
		Statistics:     session.Statistics,
		OriginalImage:  session.OriginalImage,
		AnnotatedImage: session.AnnotatedImage,
	})
}

// GetSession returns the full session record, faces in detection order.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	session, err := h.Repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "Session not found")
			return
		}
		log.Printf("handlers: error fetching session %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// RecentSessions lists the latest sessions of any status, newest first.
// ?limit=N shrinks the list; the configured cap is the ceiling.
func (h *SessionHandler) RecentSessions(w http.ResponseWriter, r *http.Request) {
	limit := h.RecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	sessions, err := h.Repo.ListRecent(limit)
	if err != nil {
		log.Printf("handlers: error listing recent sessions: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// DeleteSession removes the session row, its face rows, and its stored images.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	session, err := h.Repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "Session not found")
			return
		}
		log.Printf("handlers: error fetching session %s for delete: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch session")
		return
	}

	if err := h.Repo.Delete(id); err != nil {
		log.Printf("handlers: error deleting session %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to delete session")
		return
	}

	// stored images go after the row; a leftover file is recoverable, a
	// dangling row is not
	h.deleteAsset(media.AssetTypeOriginal, session.OriginalImage)
	if session.AnnotatedImage != nil {
		h.deleteAsset(media.AssetTypeAnnotated, *session.AnnotatedImage)
	}
	if session.ThumbnailImage != nil {
		h.deleteAsset(media.AssetTypeThumbnail, *session.ThumbnailImage)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted", "session_id": id})
}

func (h *SessionHandler) deleteAsset(assetType media.AssetType, filename string) {
	if filename == "" {
		return
	}
	if err := h.Store.Delete(assetType, filename); err != nil {
		log.Printf("handlers: failed to delete %s asset %s: %v", assetType, filename, err)
	}
}
