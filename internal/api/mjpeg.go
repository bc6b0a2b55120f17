package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const mjpegBoundary = "frame"

// VideoFeed serves the annotated preview of one stream as multipart MJPEG.
// The connection stays open until the client disconnects or the stream
// stops.
func (h *Handlers) VideoFeed(c *gin.Context) {
	w, ok := h.manager.Get(c.Param("stream_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active stream"})
		return
	}

	c.Writer.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame, open := <-w.Frames():
			if !open {
				return
			}
			if _, err := c.Writer.Write([]byte(
				"--" + mjpegBoundary + "\r\n" +
					"Content-Type: image/jpeg\r\n" +
					"Content-Length: " + strconv.Itoa(len(frame)) + "\r\n\r\n")); err != nil {
				return
			}
			if _, err := c.Writer.Write(frame); err != nil {
				return
			}
			if _, err := c.Writer.Write([]byte("\r\n")); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}
