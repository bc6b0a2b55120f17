package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facewatch/internal/api"
	"github.com/your-org/facewatch/internal/api/ws"
	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/stream"
	"github.com/your-org/facewatch/internal/tracker"
	"github.com/your-org/facewatch/internal/vision"
	"github.com/your-org/facewatch/internal/watchlist"
	"github.com/your-org/facewatch/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting facewatch", "port", cfg.Server.Port)

	// Watchlist database. Unreachable is not fatal: the service runs with an
	// empty watchlist. A store without a connection at startup has no
	// database behind it, so reloads fail for the life of the process.
	store, err := watchlist.NewStore(cfg.Watchlist)
	if err != nil {
		slog.Error("watchlist database unavailable, running with empty watchlist", "error", err)
		store = watchlist.Empty(cfg.Watchlist)
	} else {
		defer store.Close()
		if _, err := store.Reload(context.Background()); err != nil {
			slog.Error("initial watchlist load failed", "error", err)
		}
	}

	// Shared tracker.
	trk := tracker.New(trackerConfig(cfg.Tracking), store)

	// ONNX models.
	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	analyzer, err := vision.NewAnalyzer(cfg.Vision)
	if err != nil {
		slog.Error("init vision analyzer", "error", err)
		os.Exit(1)
	}
	defer analyzer.Close()

	// Optional NATS sighting publication.
	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, sightings will not be published", "error", err)
		} else {
			defer producer.Close()
			if err := producer.EnsureStream(context.Background()); err != nil {
				slog.Warn("ensure nats stream", "error", err)
			}
		}
	}

	// Optional MinIO snapshot archive.
	var snapshots *storage.SnapshotStore
	if cfg.MinIO.Endpoint != "" {
		snapshots, err = storage.NewSnapshotStore(cfg.MinIO)
		if err != nil {
			slog.Warn("minio unavailable, snapshots disabled", "error", err)
			snapshots = nil
		} else if err := snapshots.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
	}

	hub := ws.NewHub()
	go hub.Run()

	onSighting := func(s dto.SuspectSighting, frameJPEG []byte) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if snapshots != nil {
			key := fmt.Sprintf("suspects/%s/%d_%s.jpg",
				s.StreamID, s.IdentityID, s.Timestamp.Format("20060102_150405"))
			if err := snapshots.PutSnapshot(ctx, key, frameJPEG); err != nil {
				slog.Warn("archive suspect snapshot", "error", err)
			} else {
				s.SnapshotKey = key
			}
		}

		hub.BroadcastEvent(&dto.WSEvent{Type: "suspect_sighting", StreamID: s.StreamID, Data: s})

		if producer != nil {
			if err := producer.PublishSighting(ctx, s.StreamID, s); err != nil {
				slog.Warn("publish sighting", "error", err)
			}
		}
	}

	manager := stream.NewManager(trk, analyzer, onSighting, cfg.Vision.TargetFPS, cfg.Vision.FrameWidth)

	ready := map[string]func(context.Context) error{
		"watchlist": store.Ping,
	}
	if producer != nil {
		ready["nats"] = func(context.Context) error { return producer.Ping() }
	}
	if snapshots != nil {
		ready["minio"] = snapshots.Ping
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:  cfg.Server.APIKey,
		Tracker: trk,
		Manager: manager,
		Store:   store,
		Hub:     hub,
		Ready:   ready,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")
	manager.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("stopped")
}

func trackerConfig(t config.TrackingConfig) tracker.Config {
	return tracker.Config{
		MinFaceSize:              t.MinFaceSize,
		TrackingThreshold:        float32(t.TrackingThreshold),
		SimilarityReuseThreshold: float32(t.SimilarityReuseThreshold),
		ConsolidationThreshold:   float32(t.ConsolidationThreshold),
		ReuseTimeWindow:          t.ReuseTimeWindowS,
		ReuseDistancePx:          float64(t.ReuseDistancePx),
		MinAppearancesForID:      t.MinAppearancesForID,
		PendingTimeout:           t.PendingTimeoutS,
		RelinkDuration:           t.RelinkDurationS,
		RelinkMinConfidence:      float32(t.RelinkMinConfidence),
		FaceTimeout:              t.FaceTimeoutS,
		MaxIdentities:            t.MaxIdentities,
	}
}

// onnxLibPath returns the ONNX Runtime shared library path for the host OS.
func onnxLibPath() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
