// Package api exposes the control and preview surface: stream lifecycle,
// MJPEG feeds, shared stats, watchlist maintenance, and the WebSocket hub.
package api

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facewatch/internal/api/ws"
	"github.com/your-org/facewatch/internal/auth"
	"github.com/your-org/facewatch/internal/stream"
	"github.com/your-org/facewatch/internal/tracker"
	"github.com/your-org/facewatch/internal/watchlist"
)

type RouterConfig struct {
	APIKey  string
	Tracker *tracker.Tracker
	Manager *stream.Manager
	Store   *watchlist.Store
	Hub     *ws.Hub
	// Ready reports per-dependency health for /readyz; keys name the
	// dependency, values probe it.
	Ready map[string]func(context.Context) error
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	h := &Handlers{
		trk:     cfg.Tracker,
		manager: cfg.Manager,
		store:   cfg.Store,
		ready:   cfg.Ready,
	}

	// System endpoints (no auth)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/", h.Root)

	// Preview feed (no auth, consumed by <img> tags)
	r.GET("/video_feed/:stream_id", h.VideoFeed)

	// WebSocket suspect feed
	r.GET("/ws", cfg.Hub.HandleWS)

	// Control API
	api := r.Group("/api")
	api.Use(auth.APIKeyMiddleware(cfg.APIKey))

	api.POST("/start_stream", h.StartStream)
	api.POST("/stop_stream", h.StopStream)
	api.GET("/list_streams", h.ListStreams)
	api.GET("/stream_status/:stream_id", h.StreamStatus)
	api.GET("/shared_stats", h.SharedStats)
	api.GET("/get-suspicious-data", h.SuspiciousData)
	api.POST("/reload_db", h.ReloadDB)
	api.POST("/cleanup_faces", h.CleanupFaces)
	api.POST("/consolidate_ids", h.ConsolidateIDs)

	return r
}
