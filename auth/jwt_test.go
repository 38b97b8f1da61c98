package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"artflow-sync/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
	config.AppConfig = config.Config{JWTSecret: "test-secret"}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("u1")
	assert.NoError(t, err)

	userID, err := VerifyToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	token, err := GenerateToken("u1")
	assert.NoError(t, err)

	_, err = VerifyToken(token + "x")
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSigningMethod(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "u1"})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	assert.NoError(t, err)

	_, err = VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyRejectsMissingIdentity(t *testing.T) {
	anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"scope": "none"})
	token, err := anonymous.SignedString([]byte(config.AppConfig.JWTSecret))
	assert.NoError(t, err)

	_, err = VerifyToken(token)
	assert.Error(t, err)
}

func protectedRouter() *gin.Engine {
	router := gin.New()
	router.GET("/me", Middleware(), func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"user_id": ctx.GetString("user_id")})
	})
	return router
}

func TestMiddlewareAcceptsBearerHeader(t *testing.T) {
	token, err := GenerateToken("u1")
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protectedRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "u1")
}

func TestMiddlewareAcceptsTokenQuery(t *testing.T) {
	token, err := GenerateToken("u1")
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	protectedRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	protectedRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInternalMiddlewareChecksSharedSecret(t *testing.T) {
	router := gin.New()
	router.GET("/internal", InternalMiddleware("s3cret"), func(ctx *gin.Context) {
		ctx.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/internal", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
