package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Middleware resolves the caller's identity from a bearer token or a
// token query parameter (websocket clients cannot set headers) and stores
// it on the request context.
func Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var token string
		if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else if tokenQuery := ctx.Query("token"); tokenQuery != "" {
			token = tokenQuery
		} else {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization is not found!"})
			return
		}

		userID, err := VerifyToken(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		ctx.Set("user_id", userID)
		ctx.Next()
	}
}

// InternalMiddleware protects server-to-server routes with a shared
// secret header.
func InternalMiddleware(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetHeader("X-Internal-Secret") != secret {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx.Next()
	}
}
