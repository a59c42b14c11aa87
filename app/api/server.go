package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/newsdeck/app/cfg"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"X-Feed-Items", "X-Feed-Version"},
		MaxAge:          12 * time.Hour,
	}))

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)
	r.GET("/feed.xml", handler.GetFeed)
	r.GET("/ws", handler.ServeWS)

	api := r.Group("/api")
	{
		api.GET("/categories", handler.ListCategories)
		api.GET("/tags", handler.ListTags)
		api.GET("/newsletters", handler.ListNewsletters)
		api.GET("/newsletters/:id", handler.GetNewsletter)
		api.POST("/newsletters/:id/share", handler.ShareNewsletter)
		api.POST("/newsletters/:id/prefetch", handler.PrefetchNewsletter)
		api.POST("/refresh", handler.Refresh)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "Newsdeck",
			"version":     cfg.GetVersion(),
			"description": "Newsletter browsing backend with progressive loading, search and prefetching",
			"endpoints": map[string]string{
				"categories":  "/api/categories",
				"tags":        "/api/tags",
				"newsletters": "/api/newsletters?q=&category=&tag=&sort=&page=&per_page=",
				"newsletter":  "/api/newsletters/<id>",
				"share":       "/api/newsletters/<id>/share (POST)",
				"prefetch":    "/api/newsletters/<id>/prefetch (POST)",
				"refresh":     "/api/refresh (POST)",
				"feed":        "/feed.xml",
				"live":        "/ws",
				"health":      "/health",
				"stats":       "/stats",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}
