package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig lists the origins allowed to call the controller.
type CORSConfig struct {
	// Origins are exact origins such as http://127.0.0.1:7000.
	Origins []string
	// AllowLoopback also accepts any http origin on localhost or 127.0.0.1.
	AllowLoopback bool
	MaxAge        time.Duration
}

// DefaultCORSConfig accepts loopback origins only.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{AllowLoopback: true, MaxAge: 12 * time.Hour}
}

// CORS creates the CORS middleware. Pages are served by the controller itself,
// so only the asset origin and loopback pages may reach it.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(cfg.Origins))
	for _, o := range cfg.Origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if _, ok := allowed[origin]; ok {
				return true
			}
			return cfg.AllowLoopback && isLoopback(origin)
		},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        cfg.MaxAge,
	})
}

func isLoopback(origin string) bool {
	host, ok := strings.CutPrefix(origin, "http://")
	if !ok {
		return false
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	switch host {
	case "localhost", "127.0.0.1", "[::1]":
		return true
	}
	return false
}
