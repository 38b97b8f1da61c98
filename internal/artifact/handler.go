package artifact

import (
	"encoding/base64"
	"net/http"

	"artflow-sync/internal/domain"
	"artflow-sync/internal/errors"
	"artflow-sync/internal/store"

	"github.com/gin-gonic/gin"
)

// Handler is the REST surface behind the bindings' explicit Save action
// and the initial-state fetch used by non-engine clients.
type Handler struct {
	store *store.Adapter
}

func NewHandler(adapter *store.Adapter) *Handler {
	return &Handler{store: adapter}
}

type SaveSnapshotRequest struct {
	Kind domain.ArtifactKind `json:"kind" binding:"required"`
	Blob string              `json:"blob" binding:"required"` // base64
}

type SaveSnapshotResponse struct {
	Saved bool `json:"saved"`
}

func artifactID(c *gin.Context) string {
	return c.Param("projectId") + "/" + c.Param("fileId")
}

func (h *Handler) SaveSnapshot(c *gin.Context) {
	var form SaveSnapshotRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		errors.HandleError(c, errors.BadRequest("Invalid snapshot payload", err))
		return
	}
	if !form.Kind.Valid() {
		errors.HandleError(c, errors.BadRequest("Unknown artifact kind", nil))
		return
	}

	blob, err := base64.StdEncoding.DecodeString(form.Blob)
	if err != nil {
		errors.HandleError(c, errors.BadRequest("Blob is not valid base64", err))
		return
	}

	userID := c.GetString("user_id")
	saved := h.store.Save(c.Request.Context(), artifactID(c), blob, store.SaveMeta{
		LastModifiedBy: userID,
		Timestamp:      domain.Now(),
	})

	// A failed save is a status for the caller's indicator, not an error
	// response; the editor stays usable either way.
	c.JSON(http.StatusOK, SaveSnapshotResponse{Saved: saved})
}

type LoadSnapshotResponse struct {
	Blob string             `json:"blob,omitempty"` // base64, empty means start blank
	Log  []domain.Operation `json:"log,omitempty"`
}

func (h *Handler) LoadSnapshot(c *gin.Context) {
	kind := domain.ArtifactKind(c.Query("kind"))
	if !kind.Valid() {
		errors.HandleError(c, errors.BadRequest("Unknown artifact kind", nil))
		return
	}

	// The memoizing Load is a client-session affair; the REST surface
	// always serves the latest persisted state.
	result := h.store.Fetch(c.Request.Context(), kind, artifactID(c))
	if result == nil {
		c.JSON(http.StatusOK, LoadSnapshotResponse{})
		return
	}

	c.JSON(http.StatusOK, LoadSnapshotResponse{
		Blob: base64.StdEncoding.EncodeToString(result.Blob),
		Log:  result.Log,
	})
}

// ShowLog exposes the raw canvas operation log on an internal route.
func (h *Handler) ShowLog(c *gin.Context) {
	entries := h.store.ReadLog(c.Request.Context(), artifactID(c))
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
