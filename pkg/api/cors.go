package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// corsMiddleware allows the listed origins with credentials. A "*" entry allows any origin;
// the request origin is echoed back since browsers refuse a literal "*" with credentials.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
		cfg.AllowMethods = append(cfg.AllowMethods, http.MethodPatch, http.MethodHead)
		cfg.AllowHeaders = append(cfg.AllowHeaders, "Origin", "Cache-Control", "X-Request-ID")
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
