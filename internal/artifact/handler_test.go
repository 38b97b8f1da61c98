package artifact

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"artflow-sync/internal/domain"
	"artflow-sync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memBackend struct {
	mu        sync.Mutex
	snapshots map[string]*domain.Snapshot
	failAll   bool
}

func newMemBackend() *memBackend {
	return &memBackend{snapshots: make(map[string]*domain.Snapshot)}
}

func (m *memBackend) write(id string, blob []byte, meta store.SaveMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("down")
	}
	m.snapshots[id] = &domain.Snapshot{ArtifactID: id, Blob: blob, LastModifiedBy: meta.LastModifiedBy, Timestamp: meta.Timestamp}
	return nil
}

func (m *memBackend) UpdateStructured(ctx context.Context, id string, blob []byte, meta store.SaveMeta) error {
	return m.write(id, blob, meta)
}

func (m *memBackend) UpdatePartial(ctx context.Context, id string, blob []byte) error {
	return m.write(id, blob, store.SaveMeta{})
}

func (m *memBackend) WriteRaw(ctx context.Context, id string, blob []byte, meta store.SaveMeta) error {
	return m.write(id, blob, meta)
}

func (m *memBackend) Read(ctx context.Context, id string) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[id], nil
}

func testRouter(backend *memBackend) *gin.Engine {
	adapter := store.NewAdapter(backend, nil, nil)
	handler := NewHandler(adapter)

	router := gin.New()
	router.POST("/projects/:projectId/files/:fileId/snapshot", func(c *gin.Context) {
		c.Set("user_id", "u1")
		handler.SaveSnapshot(c)
	})
	router.GET("/projects/:projectId/files/:fileId/snapshot", handler.LoadSnapshot)
	return router
}

func postSnapshot(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	assert.NoError(t, err)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/projects/p1/files/f1/snapshot", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestSaveSnapshotPersistsBlob(t *testing.T) {
	backend := newMemBackend()
	router := testRouter(backend)

	rec := postSnapshot(t, router, gin.H{
		"kind": "document",
		"blob": base64.StdEncoding.EncodeToString([]byte("content")),
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"saved":true}`, rec.Body.String())

	snap, err := backend.Read(context.Background(), "p1/f1")
	assert.NoError(t, err)
	if assert.NotNil(t, snap) {
		assert.Equal(t, []byte("content"), snap.Blob)
		assert.Equal(t, "u1", snap.LastModifiedBy)
	}
}

func TestSaveSnapshotFailureIsStatusNotError(t *testing.T) {
	backend := newMemBackend()
	backend.failAll = true
	router := testRouter(backend)

	rec := postSnapshot(t, router, gin.H{
		"kind": "document",
		"blob": base64.StdEncoding.EncodeToString([]byte("content")),
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"saved":false}`, rec.Body.String())
}

func TestSaveSnapshotValidation(t *testing.T) {
	router := testRouter(newMemBackend())

	rec := postSnapshot(t, router, gin.H{"kind": "spreadsheet", "blob": "aGk="})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postSnapshot(t, router, gin.H{"kind": "document", "blob": "not-base64!!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postSnapshot(t, router, gin.H{"kind": "document"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadSnapshotServesLatestState(t *testing.T) {
	backend := newMemBackend()
	router := testRouter(backend)

	rec := postSnapshot(t, router, gin.H{
		"kind": "document",
		"blob": base64.StdEncoding.EncodeToString([]byte("v1")),
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/projects/p1/files/f1/snapshot?kind=document", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp LoadSnapshotResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	blob, err := base64.StdEncoding.DecodeString(resp.Blob)
	assert.NoError(t, err)
	assert.Equal(t, []byte("v1"), blob)
}

func TestLoadSnapshotAbsentIsBlankStart(t *testing.T) {
	router := testRouter(newMemBackend())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/projects/p1/files/f1/snapshot?kind=canvas", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestLoadSnapshotRejectsUnknownKind(t *testing.T) {
	router := testRouter(newMemBackend())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/projects/p1/files/f1/snapshot?kind=spreadsheet", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
