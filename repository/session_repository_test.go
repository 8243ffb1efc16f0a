package repository

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classlens/backend/database"
	"github.com/classlens/backend/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	return db
}

func newProcessingSession(id, className string, uploadedAt int64) *models.Session {
	return &models.Session{
		ID:            id,
		ClassName:     className,
		ImageName:     "class.jpg",
		Status:        models.SessionStatusProcessing,
		UploadedAt:    uploadedAt,
		OriginalImage: id + ".jpg",
	}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	repo := NewGormSessionRepository(setupTestDB(t))

	uploaded := time.Now().Unix()
	require.NoError(t, repo.Create(newProcessingSession("sess-1", "Biology 101", uploaded)))

	got, err := repo.GetByID("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)
	assert.Equal(t, "Biology 101", got.ClassName)
	assert.Equal(t, models.SessionStatusProcessing, got.Status)
	assert.Equal(t, uploaded, got.UploadedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.Faces)
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	repo := NewGormSessionRepository(setupTestDB(t))

	_, err := repo.GetByID("no-such-session")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSessionRepository_FinalizeRoundTrip(t *testing.T) {
	repo := NewGormSessionRepository(setupTestDB(t))
	require.NoError(t, repo.Create(newProcessingSession("sess-1", "Biology 101", time.Now().Unix())))

	faces := []models.FaceResult{
		{FaceIndex: 0, X: 10, Y: 20, W: 30, H: 40, DetectionConfidence: 0.98, Emotion: "happy", EmotionScore: 0.91, EngagementLevel: "engaged"},
		{FaceIndex: 1, X: 50, Y: 60, W: 30, H: 40, DetectionConfidence: 0.87, Emotion: "sad", EmotionScore: 0.75, EngagementLevel: "disengaged"},
		{FaceIndex: 2, X: 90, Y: 15, W: 25, H: 35, DetectionConfidence: 0.80, Emotion: "error", EmotionScore: 0, EngagementLevel: "unknown"},
	}
	stats := models.Statistics{
		TotalFaces:           3,
		EngagedCount:         1,
		DisengagedCount:      1,
		UnknownCount:         1,
		EngagementPercentage: 33.33333333333333,
		EmotionDistribution:  map[string]int{"happy": 1, "sad": 1, "error": 1, "surprise": 0, "neutral": 0, "angry": 0, "fear": 0, "disgust": 0},
	}
	annotated := "annotated_sess-1.jpg"
	thumb := "thumb_sess-1.jpg"

	require.NoError(t, repo.Finalize("sess-1", faces, stats, &annotated, &thumb))

	got, err := repo.GetByID("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.AnnotatedImage)
	assert.Equal(t, annotated, *got.AnnotatedImage)
	require.NotNil(t, got.ThumbnailImage)
	assert.Equal(t, thumb, *got.ThumbnailImage)

	assert.Equal(t, stats.TotalFaces, got.Statistics.TotalFaces)
	assert.Equal(t, stats.EngagedCount, got.Statistics.EngagedCount)
	assert.Equal(t, stats.DisengagedCount, got.Statistics.DisengagedCount)
	assert.Equal(t, stats.UnknownCount, got.Statistics.UnknownCount)
	assert.InDelta(t, stats.EngagementPercentage, got.Statistics.EngagementPercentage, 1e-9)
	assert.Equal(t, stats.EmotionDistribution, got.Statistics.EmotionDistribution)

	// faces come back in detection order
	require.Len(t, got.Faces, 3)
	for i, face := range got.Faces {
		assert.Equal(t, i, face.FaceIndex)
		assert.Equal(t, "sess-1", face.SessionID)
	}
	assert.Equal(t, "happy", got.Faces[0].Emotion)
	assert.Equal(t, "sad", got.Faces[1].Emotion)
	assert.Equal(t, "error", got.Faces[2].Emotion)
}

func TestSessionRepository_Finalize_StableOnRepeatedReads(t *testing.T) {
	repo := NewGormSessionRepository(setupTestDB(t))
	require.NoError(t, repo.Create(newProcessingSession("sess-1", "Chem", time.Now().Unix())))
	require.NoError(t, repo.Finalize("sess-1", nil, models.Statistics{
		EmotionDistribution: map[string]int{"happy": 0, "surprise": 0, "neutral": 0, "sad": 0, "angry": 0, "fear": 0, "disgust": 0},
	}, nil, nil))

	first, err := repo.GetByID("sess-1")
	require.NoError(t, err)
	second, err := repo.GetByID("sess-1")
	require.NoError(t, err)

	assert.Equal(t, first.Statistics, second.Statistics)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
}

func TestSessionRepository_Finalize_RejectsNonProcessing(t *testing.T) {
	repo := NewGormSessionRepository(setupTestDB(t))
	require.NoError(t, repo.Create(newProcessingSession("sess-1", "Chem", time.Now().Unix())))
	require.NoError(t, repo.MarkFailed("sess-1", "detector unavailable"))

	err := repo.Finalize("sess-1", nil, models.Statistics{}, nil, nil)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "failed sessions must not transition back to completed")
}

func TestSessionRepository_MarkFailed(t *testing.T) {
	repo := NewGormSessionRepository(setupTestDB(t))
	require.NoError(t, repo.Create(newProcessingSession("sess-1", "Chem", time.Now().Unix())))

	require.NoError(t, repo.MarkFailed("sess-1", "face detection failed: boom"))

	got, err := repo.GetByID("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMsg)
	assert.Contains(t, *got.ErrorMsg, "face detection failed")
	require.NotNil(t, got.CompletedAt)
}

func TestSessionRepository_ListRecent(t *testing.T) {
	repo := NewGormSessionRepository(setupTestDB(t))

	base := time.Now().Unix()
	for i := 0; i < 5; i++ {
		// sess-0 oldest, sess-4 newest
		require.NoError(t, repo.Create(newProcessingSession(fmt.Sprintf("sess-%d", i), "Class", base+int64(i))))
	}

	sessions, err := repo.ListRecent(3)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "sess-4", sessions[0].ID)
	assert.Equal(t, "sess-3", sessions[1].ID)
	assert.Equal(t, "sess-2", sessions[2].ID)
}

func TestSessionRepository_ListCompletedSince(t *testing.T) {
	repo := NewGormSessionRepository(setupTestDB(t))

	emptyStats := models.Statistics{EmotionDistribution: map[string]int{}}
	base := time.Now().Unix()

	require.NoError(t, repo.Create(newProcessingSession("old-completed", "Class", base-1000)))
	require.NoError(t, repo.Finalize("old-completed", nil, emptyStats, nil, nil))

	require.NoError(t, repo.Create(newProcessingSession("new-completed", "Class", base)))
	require.NoError(t, repo.Finalize("new-completed", nil, emptyStats, nil, nil))

	require.NoError(t, repo.Create(newProcessingSession("new-failed", "Class", base+1)))
	require.NoError(t, repo.MarkFailed("new-failed", "boom"))

	require.NoError(t, repo.Create(newProcessingSession("new-processing", "Class", base+2)))

	sessions, err := repo.ListCompletedSince(base - 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "new-completed", sessions[0].ID)
}

func TestSessionRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSessionRepository(db)
	require.NoError(t, repo.Create(newProcessingSession("sess-1", "Class", time.Now().Unix())))
	require.NoError(t, repo.Finalize("sess-1", []models.FaceResult{
		{FaceIndex: 0, Emotion: "happy", EngagementLevel: "engaged"},
	}, models.Statistics{TotalFaces: 1, EngagedCount: 1, EmotionDistribution: map[string]int{"happy": 1}}, nil, nil))

	require.NoError(t, repo.Delete("sess-1"))

	_, err := repo.GetByID("sess-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var faceCount int64
	require.NoError(t, db.Model(&models.FaceResult{}).Where("session_id = ?", "sess-1").Count(&faceCount).Error)
	assert.Zero(t, faceCount, "face rows must be removed with their session")
}

func TestSessionRepository_Delete_NotFound(t *testing.T) {
	repo := NewGormSessionRepository(setupTestDB(t))
	assert.ErrorIs(t, repo.Delete("no-such-session"), gorm.ErrRecordNotFound)
}
