package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Vision    VisionConfig    `yaml:"vision"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// WatchlistConfig holds the criminal_records database connection. Host and
// credentials come from the PG_* environment; TLS is always required.
type WatchlistConfig struct {
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	Name      string  `yaml:"name"`
	User      string  `yaml:"user"`
	Password  string  `yaml:"password"`
	MaxConns  int     `yaml:"max_conns"`
	Threshold float64 `yaml:"threshold"`
	TopK      int     `yaml:"top_k"`
}

func (w WatchlistConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=require",
		w.User, w.Password, w.Host, w.Port, w.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	TargetFPS          int     `yaml:"target_fps"`
	FrameWidth         int     `yaml:"frame_width"`
	IntraOpThreads     int     `yaml:"intra_op_threads"`
	InterOpThreads     int     `yaml:"inter_op_threads"`
}

// TrackingConfig mirrors tracker.Config; zero fields fall back to the
// tracker defaults.
type TrackingConfig struct {
	MinFaceSize              int     `yaml:"min_face_size"`
	TrackingThreshold        float64 `yaml:"tracking_threshold"`
	SimilarityReuseThreshold float64 `yaml:"similarity_reuse_threshold"`
	ReuseTimeWindowS         float64 `yaml:"reuse_time_window_s"`
	ReuseDistancePx          int     `yaml:"reuse_distance_px"`
	MinAppearancesForID      int     `yaml:"min_appearances_for_id"`
	PendingTimeoutS          float64 `yaml:"pending_timeout_s"`
	RelinkDurationS          float64 `yaml:"relink_duration_s"`
	RelinkMinConfidence      float64 `yaml:"relink_min_confidence"`
	FaceTimeoutS             float64 `yaml:"face_timeout_s"`
	ConsolidationThreshold   float64 `yaml:"consolidation_threshold"`
	MaxIdentities            int     `yaml:"max_identities"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Watchlist.Port == 0 {
		cfg.Watchlist.Port = 5432
	}
	if cfg.Watchlist.MaxConns == 0 {
		cfg.Watchlist.MaxConns = 4
	}
	if cfg.Watchlist.Threshold == 0 {
		cfg.Watchlist.Threshold = 0.45
	}
	if cfg.Watchlist.TopK == 0 {
		cfg.Watchlist.TopK = 1
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.TargetFPS == 0 {
		cfg.Vision.TargetFPS = 2
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 1024
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FW_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PG_HOST"); v != "" {
		cfg.Watchlist.Host = v
	}
	if v := os.Getenv("PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Watchlist.Port = port
		}
	}
	if v := os.Getenv("PG_DB"); v != "" {
		cfg.Watchlist.Name = v
	}
	if v := os.Getenv("PG_USERNAME"); v != "" {
		cfg.Watchlist.User = v
	}
	if v := os.Getenv("PG_PASSWORD"); v != "" {
		cfg.Watchlist.Password = v
	}
	if v := os.Getenv("FW_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FW_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FW_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FW_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FW_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FW_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
}
