package client

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openmined/studiosync/internal/client/handlers"
	"github.com/openmined/studiosync/internal/client/middleware"
	"github.com/openmined/studiosync/internal/version"
)

type RouteConfig struct {
	Auth            middleware.TokenAuthConfig
	RateLimit       int64
	RateLimitPeriod time.Duration
}

func SetupRoutes(backend handlers.SyncBackend, routeConfig *RouteConfig) http.Handler {
	r := gin.New()

	statusH := handlers.NewStatusHandler(backend)
	syncH := handlers.NewSyncHandler(backend)
	conflictH := handlers.NewConflictHandler(backend)

	r.Use(middleware.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(middleware.RateLimit(routeConfig.RateLimit, routeConfig.RateLimitPeriod))

	r.GET("/", IndexHandler)

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(routeConfig.Auth))
	{
		v1.GET("/status", statusH.Status)
		v1.GET("/items", syncH.Items)

		v1Conflicts := v1.Group("/conflicts")
		{
			v1Conflicts.GET("", conflictH.List)
			v1Conflicts.POST("/resolve", conflictH.Resolve)
		}

		v1Sync := v1.Group("/sync")
		{
			v1Sync.POST("/now", syncH.Now)
			v1Sync.GET("/events", syncH.Events)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Detailed())
}
