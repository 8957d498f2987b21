package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"anoa.com/notifeed/internal/config"
	"anoa.com/notifeed/internal/feed"
	"anoa.com/notifeed/internal/handler"
	"anoa.com/notifeed/internal/middleware"
	"anoa.com/notifeed/internal/model"
	"anoa.com/notifeed/internal/repository"
	"anoa.com/notifeed/pkg/database"
)

type Server struct {
	engine      *gin.Engine
	redisClient *redis.Client
	db          *gorm.DB
}

// New builds the server and starts the background reconciler. The reconciler
// runs until ctx is cancelled.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(opts)

	// Optional activity archive
	var db *gorm.DB
	var archive repository.ActivityRepository
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(&model.ActivityRecord{}); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		archive = repository.NewActivityRepository(db)
	}

	store := feed.NewRedisSortedSetStore(redisClient)
	counter := feed.NewRedisCounterCell(redisClient, logger)
	locker := feed.NewRedisLock(redisClient, cfg.LockTimeout)
	var publisher feed.Publisher
	if cfg.PubSubEnabled {
		publisher = feed.NewRedisPublisher(redisClient)
	}

	notificationFeed := feed.NewNotificationFeed(
		store,
		counter,
		locker,
		feed.VerbDayAggregator{},
		feed.JSONSerializer{},
		publisher,
		logger,
	)

	reconciler := feed.NewReconciler(redisClient, notificationFeed, cfg.ReconcileInterval, logger)
	notificationFeed.SetPendingMarker(reconciler)
	go reconciler.Run(ctx)

	notificationHandler := handler.NewNotificationHandler(notificationFeed, archive, redisClient)

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	setupCORS(router, cfg.AllowedOrigins)
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notifeed"})
	})

	api := router.Group("/api")
	api.Use(middleware.Identity())
	{
		api.POST("/notifications/feed", notificationHandler.AddActivities)
		api.PUT("/notifications/read-all", notificationHandler.MarkAll)
		api.GET("/notifications/unread-count", notificationHandler.UnseenCount)
		api.GET("/notifications/history", notificationHandler.History)
		api.GET("/notifications/ws", notificationHandler.HandleWebSocket)
	}

	return &Server{
		engine:      router,
		redisClient: redisClient,
		db:          db,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
