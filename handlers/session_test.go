package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classlens/backend/analysis"
	"github.com/classlens/backend/database"
	"github.com/classlens/backend/media"
	"github.com/classlens/backend/models"
	"github.com/classlens/backend/repository"
)

type fakeAnalyzer struct {
	session *models.Session
	err     error

	gotFilename  string
	gotClassName string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, imageData []byte, originalFilename, className string) (*models.Session, error) {
	f.gotFilename = originalFilename
	f.gotClassName = className
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type sessionTestEnv struct {
	router      *chi.Mux
	repo        repository.SessionRepository
	store       media.Store
	storageRoot string
	analyzer    *fakeAnalyzer
}

func setupSessionEnv(t *testing.T) *sessionTestEnv {
	t.Helper()

	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	repo := repository.NewGormSessionRepository(db)

	storageRoot := t.TempDir()
	store, err := media.NewLocalStorage(storageRoot, map[media.AssetType]string{
		media.AssetTypeOriginal:  "originals",
		media.AssetTypeAnnotated: "annotated",
		media.AssetTypeThumbnail: "thumbnails",
	})
	require.NoError(t, err)

	analyzer := &fakeAnalyzer{}
	handler := NewSessionHandler(analyzer, repo, store, 16<<20, 10)

	r := chi.NewRouter()
	r.Post("/upload", handler.Upload)
	r.Get("/session/{sessionID}", handler.GetSession)
	r.Delete("/session/{sessionID}", handler.DeleteSession)
	r.Get("/sessions/recent", handler.RecentSessions)

	return &sessionTestEnv{router: r, repo: repo, store: store, storageRoot: storageRoot, analyzer: analyzer}
}

func multipartUpload(t *testing.T, filename, className string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if filename != "" {
		part, err := writer.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if className != "" {
		require.NoError(t, writer.WriteField("class_name", className))
	}
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func completedSession(id string) *models.Session {
	annotated := "annotated_" + id + ".jpg"
	completedAt := time.Now().Unix()
	return &models.Session{
		ID:            id,
		ClassName:     "Biology 101",
		ImageName:     "class.jpg",
		Status:        models.SessionStatusCompleted,
		UploadedAt:    time.Now().Unix(),
		CompletedAt:   &completedAt,
		OriginalImage: id + ".jpg",
		AnnotatedImage: &annotated,
		Statistics: models.Statistics{
			TotalFaces:           2,
			EngagedCount:         1,
			DisengagedCount:      1,
			EngagementPercentage: 50,
			EmotionDistribution:  map[string]int{"happy": 1, "sad": 1},
		},
		Faces: []models.FaceResult{
			{SessionID: id, FaceIndex: 0, X: 1, Y: 2, W: 3, H: 4, Emotion: "happy", EmotionScore: 0.9, EngagementLevel: "engaged"},
			{SessionID: id, FaceIndex: 1, X: 5, Y: 6, W: 7, H: 8, Emotion: "sad", EmotionScore: 0.8, EngagementLevel: "disengaged"},
		},
	}
}

func TestUpload_Success(t *testing.T) {
	env := setupSessionEnv(t)
	env.analyzer.session = completedSession("sess-1")

	body, contentType := multipartUpload(t, "class photo.jpg", "Biology 101", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "class photo.jpg", env.analyzer.gotFilename)
	assert.Equal(t, "Biology 101", env.analyzer.gotClassName)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp["session_id"])
	assert.Equal(t, models.SessionStatusCompleted, resp["status"])
	assert.Equal(t, "annotated_sess-1.jpg", resp["annotated_image"])

	faces, ok := resp["faces"].([]interface{})
	require.True(t, ok)
	require.Len(t, faces, 2)

	// face results go out with the bbox as an array
	first, ok := faces[0].(map[string]interface{})
	require.True(t, ok)
	bbox, ok := first["bbox"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0, 4.0}, bbox)

	stats, ok := resp["statistics"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 50.0, stats["engagement_percentage"], 1e-9)
}

func TestUpload_MissingImageField(t *testing.T) {
	env := setupSessionEnv(t)

	body, contentType := multipartUpload(t, "", "Biology 101", nil)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "missing_image", resp.Errors[0].Code)
}

func TestUpload_RejectsNonImageFilename(t *testing.T) {
	env := setupSessionEnv(t)

	body, contentType := multipartUpload(t, "notes.pdf", "", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unsupported_type", resp.Errors[0].Code)
}

func TestUpload_AnalysisFailure(t *testing.T) {
	env := setupSessionEnv(t)
	env.analyzer.err = &analysis.Error{SessionID: "sess-1", Err: errors.New("face detection failed: model not loaded")}

	body, contentType := multipartUpload(t, "class.jpg", "", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "analysis_failed", resp.Errors[0].Code)
	assert.Contains(t, resp.Errors[0].Detail, "model not loaded")
}

func TestGetSession_NotFound(t *testing.T) {
	env := setupSessionEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/session/no-such-id", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Errors[0].Code)
}

func TestGetSession_ReturnsPersistedRecord(t *testing.T) {
	env := setupSessionEnv(t)

	require.NoError(t, env.repo.Create(&models.Session{
		ID: "sess-1", ClassName: "Chem", ImageName: "img.jpg",
		Status: models.SessionStatusProcessing, UploadedAt: time.Now().Unix(), OriginalImage: "sess-1.jpg",
	}))
	require.NoError(t, env.repo.Finalize("sess-1", []models.FaceResult{
		{FaceIndex: 0, Emotion: "happy", EngagementLevel: "engaged"},
	}, models.Statistics{TotalFaces: 1, EngagedCount: 1, EngagementPercentage: 100,
		EmotionDistribution: map[string]int{"happy": 1}}, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/session/sess-1", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp["id"])
	assert.Equal(t, models.SessionStatusCompleted, resp["status"])
	faces, ok := resp["faces"].([]interface{})
	require.True(t, ok)
	assert.Len(t, faces, 1)
}

func TestRecentSessions_EmptyStore(t *testing.T) {
	env := setupSessionEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/recent", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Sessions []models.Session `json:"sessions"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Sessions)
	assert.Zero(t, resp.Count)
}

func TestRecentSessions_LimitParam(t *testing.T) {
	env := setupSessionEnv(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, env.repo.Create(&models.Session{
			ID: fmt.Sprintf("sess-%d", i), ClassName: "Chem", ImageName: "img.jpg",
			Status: models.SessionStatusProcessing, UploadedAt: time.Now().Unix() + int64(i),
			OriginalImage: fmt.Sprintf("sess-%d.jpg", i),
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions/recent?limit=2", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Sessions []models.Session `json:"sessions"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	// garbage and oversized values fall back to the configured cap
	req = httptest.NewRequest(http.MethodGet, "/sessions/recent?limit=9999", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Count)
}

func TestDeleteSession_RemovesRowAndImages(t *testing.T) {
	env := setupSessionEnv(t)

	annotated := "annotated_sess-1.jpg"
	thumb := "thumb_sess-1.jpg"
	require.NoError(t, env.repo.Create(&models.Session{
		ID: "sess-1", ClassName: "Chem", ImageName: "img.jpg",
		Status: models.SessionStatusProcessing, UploadedAt: time.Now().Unix(), OriginalImage: "sess-1.jpg",
	}))
	require.NoError(t, env.repo.Finalize("sess-1", nil,
		models.Statistics{EmotionDistribution: map[string]int{}}, &annotated, &thumb))

	// lay down the stored assets the session references
	_, err := env.store.Save(media.AssetTypeOriginal, "sess-1.jpg", bytes.NewReader([]byte("orig")))
	require.NoError(t, err)
	_, err = env.store.Save(media.AssetTypeAnnotated, annotated, bytes.NewReader([]byte("anno")))
	require.NoError(t, err)
	_, err = env.store.Save(media.AssetTypeThumbnail, thumb, bytes.NewReader([]byte("thumb")))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/session/sess-1", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err = env.repo.GetByID("sess-1")
	assert.Error(t, err)

	assert.NoFileExists(t, filepath.Join(env.storageRoot, "originals", "sess-1.jpg"))
	assert.NoFileExists(t, filepath.Join(env.storageRoot, "annotated", annotated))
	assert.NoFileExists(t, filepath.Join(env.storageRoot, "thumbnails", thumb))
}

func TestDeleteSession_NotFound(t *testing.T) {
	env := setupSessionEnv(t)

	req := httptest.NewRequest(http.MethodDelete, "/session/no-such-id", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeImage_ByPrefix(t *testing.T) {
	env := setupSessionEnv(t)
	imageHandler := NewImageHandler(env.store)

	r := chi.NewRouter()
	r.Get("/image/{filename}", imageHandler.ServeImage)

	_, err := env.store.Save(media.AssetTypeAnnotated, "annotated_sess-1.jpg", bytes.NewReader([]byte("annotated-bytes")))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/image/annotated_sess-1.jpg", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "annotated-bytes", rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestServeImage_NotFound(t *testing.T) {
	env := setupSessionEnv(t)
	imageHandler := NewImageHandler(env.store)

	r := chi.NewRouter()
	r.Get("/image/{filename}", imageHandler.ServeImage)

	req := httptest.NewRequest(http.MethodGet, "/image/missing.jpg", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	http.HandlerFunc(Health).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}
