package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"artflow-sync/auth"
	"artflow-sync/internal/config"
	"artflow-sync/internal/hub"
	"artflow-sync/internal/wsserver"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
	config.AppConfig = config.Config{JWTSecret: "test-secret"}
}

func wsTestRouter() *gin.Engine {
	rooms := hub.New()
	frames := wsserver.NewHandler(rooms)
	router := gin.New()
	router.GET("/ws/:domain/:projectId/:fileId/:userId", auth.Middleware(), wsEndpoint(rooms, frames))
	return router
}

func TestWsRouteRequiresToken(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/canvas/p1/f1/u1", nil)
	wsTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWsRouteRejectsImpersonation(t *testing.T) {
	token, err := auth.GenerateToken("u1")
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/canvas/p1/f1/u2?token="+token, nil)
	wsTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWsRouteRejectsUnknownDomain(t *testing.T) {
	token, err := auth.GenerateToken("u1")
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/spreadsheet/p1/f1/u1?token="+token, nil)
	wsTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWsRouteAcceptsMatchingIdentity(t *testing.T) {
	token, err := auth.GenerateToken("u1")
	assert.NoError(t, err)

	// No websocket handshake headers, so the request passes auth and the
	// identity check but fails at the upgrade.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/canvas/p1/f1/u1?token="+token, nil)
	wsTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "websocket")
}
