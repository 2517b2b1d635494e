package middleware

import (
	"strings"

	"dealflow/internal/config"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware CORS 中间件，按 security.cors 配置放行
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	cors := cfg.Security.CORS
	if !cors.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	methods := strings.Join(cors.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, DELETE"
	}
	headers := strings.Join(cors.AllowedHeaders, ", ")
	if headers == "" || headers == "*" {
		headers = "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization"
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed := allowOrigin(cors.AllowedOrigins, origin); allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", methods+", OPTIONS")
			c.Header("Access-Control-Allow-Headers", headers)
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func allowOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}
