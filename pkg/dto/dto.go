// Package dto defines the wire types of the control API, the WebSocket
// feed, and the sighting event stream.
package dto

import (
	"time"

	"github.com/your-org/facewatch/internal/watchlist"
)

type StartStreamRequest struct {
	URL      string `json:"url" binding:"required"`
	StreamID string `json:"stream_id"`
}

type StopStreamRequest struct {
	StreamID string `json:"stream_id" binding:"required"`
}

type StreamInfo struct {
	StreamID  string `json:"stream_id"`
	URL       string `json:"url"`
	Streaming bool   `json:"streaming"`
	StartedAt string `json:"started_at"`
}

type StreamListResponse struct {
	Streams []StreamInfo `json:"streams"`
	Total   int          `json:"total"`
}

type StreamStatus struct {
	Streaming bool   `json:"streaming"`
	StreamURL string `json:"stream_url"`
	HasError  bool   `json:"has_error"`
}

// SuspectSighting is emitted once per identity, when it first matches the
// watchlist.
type SuspectSighting struct {
	StreamID    string           `json:"stream_id"`
	IdentityID  uint64           `json:"identity_id"`
	Score       float32          `json:"score"`
	Record      watchlist.Record `json:"record"`
	Timestamp   time.Time        `json:"timestamp"`
	SnapshotKey string           `json:"snapshot_key,omitempty"`
}

// WSEvent wraps a payload broadcast to WebSocket clients.
type WSEvent struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
	Data     any    `json:"data"`
}
