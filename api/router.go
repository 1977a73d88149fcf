package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"

	"backend_inventory/config"
	"backend_inventory/metrics"
	"backend_inventory/middleware"
)

// RouterDeps зависимости HTTP слоя
type RouterDeps struct {
	Config  *config.Config
	Auth    *middleware.AuthMiddleware
	Redis   *redis.Client // может быть nil
	Devices *DeviceAPI
	Relay   *RelayAPI
	Admin   *AdminAPI
}

// NewRouter собирает gin.Engine со всеми маршрутами
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(corsConfig(deps.Config)))

	// Базовые роуты
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "pong",
			"redis":   deps.Redis != nil,
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiGroup := r.Group("/api")
	requireActor := deps.Auth.RequireActor()

	deps.Devices.RegisterRoutes(apiGroup, requireActor)
	deps.Admin.RegisterRoutes(apiGroup, requireActor)

	var limiter gin.HandlerFunc
	if deps.Config != nil && deps.Config.Relay.RateLimitRequests > 0 {
		limiter = middleware.RateLimit(deps.Redis, middleware.RateLimitConfig{
			Requests:     deps.Config.Relay.RateLimitRequests,
			Window:       deps.Config.Relay.RateLimitWindow,
			KeyPrefix:    deps.Config.Cache.KeyPrefix + ":rate_limit:events",
			KeyGenerator: middleware.SourceKeyGenerator,
		})
	}
	deps.Relay.RegisterRoutes(apiGroup, limiter)

	return r
}

func corsConfig(cfg *config.Config) cors.Config {
	if cfg == nil {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowAllOrigins = true
		return corsCfg
	}

	corsCfg := cors.Config{
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 || (len(cfg.CORS.AllowedOrigins) == 1 && cfg.CORS.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		// С AllowAllOrigins cookies запрещены
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	return corsCfg
}
