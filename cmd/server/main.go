package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artflow-sync/auth"
	"artflow-sync/internal/artifact"
	"artflow-sync/internal/config"
	"artflow-sync/internal/db"
	"artflow-sync/internal/domain"
	"artflow-sync/internal/hub"
	"artflow-sync/internal/store"
	"artflow-sync/internal/worker"
	"artflow-sync/internal/wsserver"
	"artflow-sync/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	// Load configuration
	config.LoadConfig()

	// Initialize Redis
	redis.InitRedis()

	// Pick the snapshot backend: postgres when configured, local bolt
	// file otherwise.
	var backend store.Backend
	var closeBackend func()
	if config.AppConfig.DBHost != "" {
		if err := db.ConnectDb(); err != nil {
			log.Fatalf("error connecting to db %v", err)
		}
		db.Migrate()
		backend = store.NewGormBackend(db.AppDb)
		closeBackend = db.CloseDb
	} else {
		bolt, err := store.OpenBolt(config.AppConfig.LocalStorePath)
		if err != nil {
			log.Fatalf("error opening local store %v", err)
		}
		log.Printf("No DB_HOST set, using local store at %s", config.AppConfig.LocalStorePath)
		backend = bolt
		closeBackend = func() { bolt.Close() }
	}
	defer closeBackend()

	// Background workers for persistence off the sync hot path
	pool := worker.NewPool(4)
	defer pool.Shutdown()

	var oplog store.OperationLog
	if redis.RedisClient != nil {
		oplog = store.NewRedisLog(redis.RedisClient)
	}
	adapter := store.NewAdapter(backend, oplog, pool)

	// Room fan-out, bridged across instances when redis is up
	rooms := hub.New()
	rooms.AttachBridge(redis.RedisClient)
	frames := wsserver.NewHandler(rooms)

	// Initialize handler
	artifactHandler := artifact.NewHandler(adapter)

	// Initialize Gin router
	router := gin.Default()

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	// One socket per (project, file, user), routed by artifact domain.
	// Browser clients pass the token as a query parameter.
	router.GET("/ws/:domain/:projectId/:fileId/:userId", auth.Middleware(), wsEndpoint(rooms, frames))

	// Snapshot routes backing the explicit Save action
	router.POST("/projects/:projectId/files/:fileId/snapshot", auth.Middleware(), artifactHandler.SaveSnapshot)
	router.GET("/projects/:projectId/files/:fileId/snapshot", auth.Middleware(), artifactHandler.LoadSnapshot)

	// internal use routes
	router.GET("/internal/artifacts/:projectId/:fileId/log", auth.InternalMiddleware(config.AppConfig.InternalSecret), artifactHandler.ShowLog)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/stats", func(c *gin.Context) {
		roomCount, clientCount := rooms.Stats()
		c.JSON(http.StatusOK, gin.H{"rooms": roomCount, "clients": clientCount})
	})

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Printf("Server listening on port %s", serverPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server shutdown error:", err)
	}

	log.Println("Server shutdown complete")
}

func wsEndpoint(rooms *hub.Hub, frames *wsserver.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := domain.ArtifactKind(c.Param("domain"))
		if !kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown artifact domain"})
			return
		}

		userID := c.Param("userId")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
			return
		}

		// The path segment must match the identity the token proved, or
		// any client could impersonate any user on the channel.
		if userID != c.GetString("user_id") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token does not match user"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		room := wsserver.RoomKey(kind, c.Param("projectId"), c.Param("fileId"))
		wsserver.NewConn(userID, room, conn, rooms, frames).Start()
	}
}
