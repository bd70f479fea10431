package controlplane

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const requestsPerSecond = 10

type RouteConfig struct {
	AuthToken string
}

func SetupRoutes(svc Service, cfg *RouteConfig) http.Handler {
	r := gin.New()
	h := &handler{svc: svc}

	r.Use(Logger())
	r.Use(gin.Recovery())
	r.Use(CORS())
	r.Use(SecurityHeaders())
	r.Use(Gzip())
	r.Use(RateLimit(requestsPerSecond))

	r.GET("/", h.Index)
	r.GET("/health", func(c *gin.Context) {
		c.PureJSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.Use(TokenAuth(cfg.AuthToken))
	{
		v1.GET("/status", h.Status)
		v1.GET("/history", h.History)
		v1.GET("/branches", h.Branches)
		v1.POST("/sync", h.Sync)
	}

	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, ErrCodeNotFound, errors.New("not found"))
	})
	r.NoMethod(func(c *gin.Context) {
		abortWithError(c, http.StatusMethodNotAllowed, ErrCodeMethodNotFound, errors.New("method not allowed"))
	})
	r.HandleMethodNotAllowed = true

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
