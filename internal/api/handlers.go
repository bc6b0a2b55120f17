package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facewatch/internal/stream"
	"github.com/your-org/facewatch/internal/tracker"
	"github.com/your-org/facewatch/internal/watchlist"
	"github.com/your-org/facewatch/pkg/dto"
)

type Handlers struct {
	trk     *tracker.Tracker
	manager *stream.Manager
	store   *watchlist.Store
	ready   map[string]func(context.Context) error
}

func (h *Handlers) Root(c *gin.Context) {
	streams := h.manager.List()
	streaming := false
	for _, s := range streams {
		if s.Streaming {
			streaming = true
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "running",
		"streaming": streaming,
		"streams":   len(streams),
		"stats":     h.trk.Stats(),
	})
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	for name, probe := range h.ready {
		if err := probe(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}

func (h *Handlers) StartStream(c *gin.Context) {
	var req dto.StartStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	streamID, err := h.manager.Start(req.URL, req.StreamID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message":    "stream started from " + req.URL,
		"stream_id":  streamID,
		"stream_url": req.URL,
	})
}

func (h *Handlers) StopStream(c *gin.Context) {
	var req dto.StopStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stream_id is required"})
		return
	}

	h.manager.Stop(req.StreamID)
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "stream stopped",
	})
}

func (h *Handlers) ListStreams(c *gin.Context) {
	streams := h.manager.List()
	c.JSON(http.StatusOK, dto.StreamListResponse{Streams: streams, Total: len(streams)})
}

func (h *Handlers) StreamStatus(c *gin.Context) {
	status, ok := h.manager.Status(c.Param("stream_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handlers) SharedStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.trk.Stats())
}

func (h *Handlers) SuspiciousData(c *gin.Context) {
	records := h.trk.SuspiciousMatches()
	if records == nil {
		records = []tracker.SuspectRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handlers) ReloadDB(c *gin.Context) {
	entries, err := h.store.Reload(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"message":        "watchlist reloaded",
		"entries_loaded": entries,
	})
}

func (h *Handlers) CleanupFaces(c *gin.Context) {
	evicted := h.trk.Cleanup(time.Now())
	c.JSON(http.StatusOK, gin.H{"status": "success", "evicted": evicted})
}

func (h *Handlers) ConsolidateIDs(c *gin.Context) {
	merged := h.trk.Consolidate(time.Now())
	c.JSON(http.StatusOK, gin.H{"status": "success", "merged": merged})
}
