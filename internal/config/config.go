// Package config loads the daemon configuration from the environment,
// with an optional .env file for development setups.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sbslab/sbs-session/internal/geo"
)

// Snapshot backends selectable via SNAPSHOT_BACKEND.
const (
	SnapshotNone  = "none"
	SnapshotFile  = "file"
	SnapshotRedis = "redis"
)

// Config holds the application configuration
type Config struct {
	// Sources are SBS feeds as host:port, comma-separated in SBS_SOURCE.
	Sources []string

	NATSURL   string
	RedisAddr string
	DBConnStr string

	RecordFile     string
	RecordMaxBytes int64
	RecordBackups  int

	SnapshotBackend string
	SnapshotFile    string
	SnapshotKey     string

	// Origin is nil unless both ORIGIN_LAT and ORIGIN_LON are set.
	Origin *geo.Point

	HistorySize     int
	HistoryInterval time.Duration
	ExpiryThreshold time.Duration
	SweepInterval   time.Duration

	LogLevel  string
	OutputDir string
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		NATSURL:         os.Getenv("NATS_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		DBConnStr:       os.Getenv("DB_CONN_STR"),
		RecordFile:      os.Getenv("RECORD_FILE"),
		SnapshotBackend: os.Getenv("SNAPSHOT_BACKEND"),
		SnapshotFile:    os.Getenv("SNAPSHOT_FILE"),
		SnapshotKey:     os.Getenv("SNAPSHOT_KEY"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		OutputDir:       os.Getenv("OUTPUT_DIR"),
	}

	source := os.Getenv("SBS_SOURCE")
	if source == "" {
		source = "localhost:30003"
	}
	for _, s := range strings.Split(source, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			cfg.Sources = append(cfg.Sources, s)
		}
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("SBS_SOURCE contains no usable sources")
	}

	if cfg.SnapshotBackend == "" {
		cfg.SnapshotBackend = SnapshotNone
	}
	switch cfg.SnapshotBackend {
	case SnapshotNone, SnapshotFile, SnapshotRedis:
	default:
		return nil, fmt.Errorf("invalid SNAPSHOT_BACKEND %q: must be file, redis or none", cfg.SnapshotBackend)
	}
	if cfg.SnapshotBackend == SnapshotFile && cfg.SnapshotFile == "" {
		cfg.SnapshotFile = "./session-snapshot.json"
	}
	if cfg.SnapshotBackend == SnapshotRedis && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("SNAPSHOT_BACKEND=redis requires REDIS_ADDR")
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./logs"
	}

	var err error
	if cfg.RecordMaxBytes, err = envInt64("RECORD_MAX_BYTES"); err != nil {
		return nil, err
	}
	if cfg.RecordBackups, err = envInt("RECORD_BACKUPS"); err != nil {
		return nil, err
	}
	if cfg.HistorySize, err = envInt("HISTORY_SIZE"); err != nil {
		return nil, err
	}
	if cfg.HistoryInterval, err = envDuration("HISTORY_INTERVAL"); err != nil {
		return nil, err
	}
	if cfg.ExpiryThreshold, err = envDuration("EXPIRY_THRESHOLD"); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = envDuration("SWEEP_INTERVAL"); err != nil {
		return nil, err
	}

	if cfg.Origin, err = envOrigin(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envInt64 parses an optional integer variable; unset means zero.
func envInt64(name string) (int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

func envInt(name string) (int, error) {
	v, err := envInt64(name)
	return int(v), err
}

// envDuration parses an optional Go duration variable; unset means zero.
func envDuration(name string) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}

// envOrigin reads ORIGIN_LAT/ORIGIN_LON. Both must be set together.
func envOrigin() (*geo.Point, error) {
	rawLat := os.Getenv("ORIGIN_LAT")
	rawLon := os.Getenv("ORIGIN_LON")
	if rawLat == "" && rawLon == "" {
		return nil, nil
	}
	if rawLat == "" || rawLon == "" {
		return nil, fmt.Errorf("ORIGIN_LAT and ORIGIN_LON must be set together")
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ORIGIN_LAT %q: %w", rawLat, err)
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ORIGIN_LON %q: %w", rawLon, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("origin %s,%s is out of range", rawLat, rawLon)
	}
	return &geo.Point{Latitude: lat, Longitude: lon}, nil
}
