package stream

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/tracker"
	"github.com/your-org/facewatch/pkg/dto"
)

// Manager owns the lifecycle of the per-stream workers, all feeding the one
// shared tracker.
type Manager struct {
	trk        *tracker.Tracker
	analyzer   Analyzer
	onSighting SightingFunc
	fps        int
	width      int

	mu      sync.RWMutex
	workers map[string]*Worker
}

func NewManager(trk *tracker.Tracker, analyzer Analyzer, onSighting SightingFunc, fps, width int) *Manager {
	return &Manager{
		trk:        trk,
		analyzer:   analyzer,
		onSighting: onSighting,
		fps:        fps,
		width:      width,
		workers:    make(map[string]*Worker),
	}
}

// Start launches a worker for the source URL. An empty streamID gets a
// generated UUID. Returns the effective stream ID.
func (m *Manager) Start(url, streamID string) (string, error) {
	if streamID == "" {
		streamID = uuid.NewString()
	}

	m.mu.Lock()
	if w, exists := m.workers[streamID]; exists && !w.Stopped() {
		m.mu.Unlock()
		return "", fmt.Errorf("stream %s already running", streamID)
	}
	w := newWorker(streamID, url, m.trk, m.analyzer, m.onSighting, m.fps, m.width)
	m.workers[streamID] = w
	m.mu.Unlock()

	w.start()
	observability.ActiveStreams.Inc()
	slog.Info("stream started", "stream_id", streamID, "url", url)
	return streamID, nil
}

// Stop shuts a worker down and drops it. Stopping an unknown stream is not
// an error.
func (m *Manager) Stop(streamID string) {
	m.mu.Lock()
	w, exists := m.workers[streamID]
	if exists {
		delete(m.workers, streamID)
	}
	m.mu.Unlock()

	if !exists {
		return
	}
	w.Stop()
	observability.ActiveStreams.Dec()
	slog.Info("stream stopped", "stream_id", streamID)
}

// Get returns the worker for a stream, if running.
func (m *Manager) Get(streamID string) (*Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[streamID]
	return w, ok
}

// List snapshots the active streams, ordered by stream ID.
func (m *Manager) List() []dto.StreamInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]dto.StreamInfo, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, dto.StreamInfo{
			StreamID:  w.ID,
			URL:       w.URL,
			Streaming: !w.Stopped(),
			StartedAt: w.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

// Status reports the spec'd stream status triple.
func (m *Manager) Status(streamID string) (dto.StreamStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[streamID]
	if !ok {
		return dto.StreamStatus{}, false
	}
	return dto.StreamStatus{
		Streaming: !w.Stopped(),
		StreamURL: w.URL,
		HasError:  w.HasError(),
	}, true
}

// StopAll stops every worker, used during shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = make(map[string]*Worker)
	m.mu.Unlock()

	for _, w := range workers {
		w.Stop()
		observability.ActiveStreams.Dec()
	}
}
