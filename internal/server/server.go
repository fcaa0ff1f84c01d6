package server

import (
	"strings"
	"time"

	"anoa.com/evalhub/internal/cache"
	"anoa.com/evalhub/internal/config"

	mergeHttp "anoa.com/evalhub/internal/modules/merge/delivery/http"
	mergeService "anoa.com/evalhub/internal/modules/merge/service"

	notifHttp "anoa.com/evalhub/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/evalhub/internal/modules/notification/repository"
	notifService "anoa.com/evalhub/internal/modules/notification/service"

	searchService "anoa.com/evalhub/internal/modules/search/service"

	userHttp "anoa.com/evalhub/internal/modules/user/delivery/http"
	userRepo "anoa.com/evalhub/internal/modules/user/repository"
	userService "anoa.com/evalhub/internal/modules/user/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	engine *gin.Engine
	cfg    *config.Config
}

func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	var fragmentCache *cache.FragmentCache
	if redisClient != nil {
		fragmentCache = cache.NewFragmentCache(redisClient, cfg.FragmentCacheTTL)
	}

	var searchSvc searchService.Service
	if cfg.MeiliSearchHost != "" {
		meiliHost := cfg.MeiliSearchHost
		if !strings.HasPrefix(meiliHost, "http") {
			meiliHost = "http://" + meiliHost + ":7700"
		}
		meiliClient := meilisearch.New(meiliHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey))
		searchSvc = searchService.NewService(meiliClient)
	}

	notificationRepository := notifRepo.NewRepository(db)
	notificationSvc := notifService.NewService(notificationRepository, redisClient)
	notificationHandler := notifHttp.NewNotificationHandler(notificationSvc, redisClient)

	mergeSvc := mergeService.NewService(db, fragmentCache, searchSvc, notificationSvc, cfg.Locales)
	mergeHandler := mergeHttp.NewMergeHandler(mergeSvc)

	usersRepository := userRepo.NewRepository(db)
	userSvc := userService.NewService(db, usersRepository, mergeSvc, fragmentCache, searchSvc, notificationSvc, cfg.Locales)
	userHandler := userHttp.NewUserHandler(userSvc)

	engine := gin.Default()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.AllowedOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := engine.Group("/api")
	{
		staff := api.Group("/staff")
		{
			staff.GET("/users", userHandler.GetUsers)
			staff.GET("/users/:id", userHandler.GetUser)
			staff.DELETE("/users/:id", userHandler.DeleteUser)

			staff.POST("/users/merge", mergeHandler.MergeUsers)
			staff.POST("/users/:id/cleanup", mergeHandler.Cleanup)

			staff.GET("/notifications", notificationHandler.GetNotifications)
			staff.GET("/notifications/unread-count", notificationHandler.UnreadCount)
			staff.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
			staff.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
			staff.GET("/notifications/ws", notificationHandler.HandleWebSocket)
		}
	}

	return &Server{engine: engine, cfg: cfg}
}

func (s *Server) Run() error {
	return s.engine.Run(":" + s.cfg.Port)
}
