// Package analysis runs the classroom engagement pipeline: store the upload,
// detect faces, classify each expression, map expressions to engagement
// levels, and persist the finished session.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/classlens/backend/engagement"
	"github.com/classlens/backend/fer"
	"github.com/classlens/backend/media"
	"github.com/classlens/backend/models"
	"github.com/classlens/backend/repository"
	"github.com/classlens/backend/utils"
)

// Error wraps a pipeline failure together with the session it belongs to, so
// callers can report the failed session's ID to the client.
type Error struct {
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis of session %s failed: %v", e.SessionID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FaceDetector locates faces in an encoded image and renders annotated copies.
type FaceDetector interface {
	Detect(imageData []byte) ([]utils.DetectedFace, error)
	Annotate(imageData []byte, boxes []utils.AnnotationBox) ([]byte, error)
}

// ClassifyPool classifies a batch of face crops. Output slices are parallel
// to crops.
type ClassifyPool interface {
	ClassifyAll(ctx context.Context, crops [][]byte) ([]fer.Prediction, []error)
}

// Analyzer orchestrates the full pipeline for one uploaded image.
type Analyzer struct {
	Repo             repository.SessionRepository
	Store            media.Store
	Processor        *media.Processor
	Detector         FaceDetector
	Pool             ClassifyPool
	ThumbnailMaxSize int
}

func NewAnalyzer(repo repository.SessionRepository, store media.Store, processor *media.Processor, detector FaceDetector, pool ClassifyPool, thumbnailMaxSize int) *Analyzer {
	return &Analyzer{
		Repo:             repo,
		Store:            store,
		Processor:        processor,
		Detector:         detector,
		Pool:             pool,
		ThumbnailMaxSize: thumbnailMaxSize,
	}
}

// Analyze runs the pipeline on raw image bytes and returns the completed
// session with its face results. A zero-face image is a valid completed
// session. On pipeline failure the session is marked failed and the returned
// error carries its ID.
func (a *Analyzer) Analyze(ctx context.Context, imageData []byte, originalFilename, className string) (*models.Session, error) {
	if className == "" {
		className = models.DefaultClassName
	}
	imageName := utils.SanitizeFilename(originalFilename)

	id := uuid.New().String()
	storedName := id + strings.ToLower(filepath.Ext(imageName))

	meta := utils.GetImageMetadata(imageData, imageName)

	session := &models.Session{
		ID:            id,
		ClassName:     className,
		ImageName:     imageName,
		Status:        models.SessionStatusProcessing,
		UploadedAt:    time.Now().Unix(),
		OriginalImage: storedName,
		Width:         meta.Width,
		Height:        meta.Height,
		TakenAt:       meta.TakenAt,
		CameraMake:    meta.CameraMake,
		CameraModel:   meta.CameraModel,
	}
	if err := a.Repo.Create(session); err != nil {
		return nil, fmt.Errorf("failed to create session record: %w", err)
	}

	if _, err := a.Store.Save(media.AssetTypeOriginal, storedName, bytes.NewReader(imageData)); err != nil {
		a.markFailed(id, fmt.Sprintf("failed to store image: %v", err))
		return nil, &Error{SessionID: id, Err: fmt.Errorf("failed to store original image: %w", err)}
	}

	// thumbnail generation is best effort; a session without one still renders
	// on the dashboard from the original
	var thumbnailName *string
	if img, err := imaging.Decode(bytes.NewReader(imageData)); err == nil {
		if name, thumbErr := a.Processor.GenerateThumbnail(img, id, a.ThumbnailMaxSize); thumbErr == nil {
			thumbnailName = &name
		} else {
			log.Printf("analysis: Warning - thumbnail generation failed for session %s: %v", id, thumbErr)
		}
	} else {
		log.Printf("analysis: Warning - could not decode image for thumbnailing, session %s: %v", id, err)
	}

	detected, err := a.Detector.Detect(imageData)
	if err != nil {
		a.markFailed(id, fmt.Sprintf("face detection failed: %v", err))
		return nil, &Error{SessionID: id, Err: fmt.Errorf("face detection failed: %w", err)}
	}

	faces := a.classifyFaces(ctx, id, detected)
	stats := engagement.ComputeStatistics(faces)

	var annotatedName *string
	if name, annErr := a.saveAnnotated(id, imageData, faces); annErr == nil {
		annotatedName = &name
	} else {
		log.Printf("analysis: Warning - annotation failed for session %s: %v", id, annErr)
	}

	if err := a.Repo.Finalize(id, faces, stats, annotatedName, thumbnailName); err != nil {
		a.markFailed(id, fmt.Sprintf("failed to save results: %v", err))
		return nil, &Error{SessionID: id, Err: fmt.Errorf("failed to finalize session: %w", err)}
	}

	log.Printf("analysis: session %s completed: %d face(s), %.1f%% engaged", id, stats.TotalFaces, stats.EngagementPercentage)

	completed, err := a.Repo.GetByID(id)
	if err != nil {
		// the session itself finalized fine; only the re-read failed, so the
		// caller still gets the ID to fetch it later
		return nil, &Error{SessionID: id, Err: fmt.Errorf("failed to reload completed session: %w", err)}
	}
	return completed, nil
}

// classifyFaces ships every crop through the worker pool and maps predictions
// to engagement levels. A face whose classification fails is recorded with
// the error emotion rather than dropped, so the face count stays honest.
func (a *Analyzer) classifyFaces(ctx context.Context, sessionID string, detected []utils.DetectedFace) []models.FaceResult {
	crops := make([][]byte, len(detected))
	for i, face := range detected {
		crops[i] = face.CropJPEG
	}

	var predictions []fer.Prediction
	var errs []error
	if len(crops) > 0 {
		predictions, errs = a.Pool.ClassifyAll(ctx, crops)
	}

	faces := make([]models.FaceResult, len(detected))
	for i, face := range detected {
		emotion := engagement.EmotionError
		score := 0.0
		if errs[i] == nil {
			emotion = predictions[i].Emotion
			score = predictions[i].Score
		} else {
			log.Printf("analysis: face %d of session %s could not be classified: %v", i, sessionID, errs[i])
		}

		faces[i] = models.FaceResult{
			SessionID:           sessionID,
			FaceIndex:           i,
			X:                   face.Box.X,
			Y:                   face.Box.Y,
			W:                   face.Box.W,
			H:                   face.Box.H,
			DetectionConfidence: face.Box.Confidence,
			Emotion:             emotion,
			EmotionScore:        score,
			EngagementLevel:     engagement.MapEmotion(emotion),
		}
	}
	return faces
}

// saveAnnotated renders labeled bounding boxes onto a copy of the original
// and stores it. Called even with zero faces so every completed session has
// an annotated copy.
func (a *Analyzer) saveAnnotated(sessionID string, imageData []byte, faces []models.FaceResult) (string, error) {
	boxes := make([]utils.AnnotationBox, len(faces))
	for i, face := range faces {
		boxes[i] = utils.AnnotationBox{
			X: face.X, Y: face.Y, W: face.W, H: face.H,
			Label: fmt.Sprintf("%s (%s)", face.Emotion, face.EngagementLevel),
		}
	}

	annotated, err := a.Detector.Annotate(imageData, boxes)
	if err != nil {
		return "", err
	}

	name := media.AnnotatedFilePrefix + sessionID + ".jpg"
	if _, err := a.Store.Save(media.AssetTypeAnnotated, name, bytes.NewReader(annotated)); err != nil {
		return "", err
	}
	return name, nil
}

func (a *Analyzer) markFailed(id, msg string) {
	if err := a.Repo.MarkFailed(id, msg); err != nil {
		log.Printf("analysis: ERROR marking session %s failed: %v", id, err)
	}
}
