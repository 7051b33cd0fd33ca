// The tracker is the session daemon: it follows an SBS feed, keeps the
// live aircraft map, persists sightings when aircraft expire, and restores
// its state from a snapshot across restarts.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sbslab/sbs-session/internal/config"
	"github.com/sbslab/sbs-session/internal/db"
	"github.com/sbslab/sbs-session/internal/geo"
	"github.com/sbslab/sbs-session/internal/redisstore"
	"github.com/sbslab/sbs-session/internal/session"
	"github.com/sbslab/sbs-session/internal/stats"
	"github.com/sbslab/sbs-session/internal/types"
)

const (
	// reconnectDelay is the pause between attempts to re-reach the feed.
	reconnectDelay = 5 * time.Second

	// statusInterval paces the periodic status line.
	statusInterval = 30 * time.Second

	// statsPersistInterval paces counter snapshots into Postgres.
	statsPersistInterval = 5 * time.Minute
)

// SightingStore is the durable sink for evicted aircraft.
type SightingStore interface {
	StoreSighting(s *types.Sighting) error
}

// idHolder hands the session ID to the evict handler; the sweep starts
// inside session.New, before the ID is known to the caller.
type idHolder struct {
	mu sync.Mutex
	id string
}

func (h *idHolder) set(id string) {
	h.mu.Lock()
	h.id = id
	h.mu.Unlock()
}

func (h *idHolder) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	snapshots, err := buildSnapshotStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to build snapshot store")
	}

	var dbClient *db.Client
	if cfg.DBConnStr != "" {
		dbClient, err = db.New(cfg.DBConnStr)
		if err != nil {
			log.WithError(err).Fatal("Failed to create database client")
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				log.WithError(err).Error("Failed to close database client")
			}
		}()
	}

	counters := stats.New()
	sessionID := &idHolder{}

	s, err := session.New(session.Config{
		Record:          cfg.RecordFile != "",
		RecordFile:      cfg.RecordFile,
		RecordMaxBytes:  cfg.RecordMaxBytes,
		RecordBackups:   cfg.RecordBackups,
		Snapshots:       snapshots,
		ExpiryThreshold: cfg.ExpiryThreshold,
		SweepInterval:   cfg.SweepInterval,
		HistorySize:     cfg.HistorySize,
		HistoryInterval: cfg.HistoryInterval,
		Origin:          cfg.Origin,
		OnEvict:         makeEvictHandler(dbClient, sessionID.get, log),
		Stats:           counters,
		Logger:          log,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create session")
	}
	sessionID.set(s.ID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	source := cfg.Sources[0]
	wg.Add(1)
	go func() {
		defer wg.Done()
		maintainConnection(ctx, s, source, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logStatus(ctx, s, counters, cfg.Origin, log)
	}()

	if dbClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counters.StartPersistence(ctx, dbClient, statsPersistInterval, log)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down...")
	cancel()
	wg.Wait()
	if err := s.Close(); err != nil {
		log.WithError(err).Error("Failed to close session")
	}
}

// buildSnapshotStore maps the configured backend to a store; "none" yields
// nil, which disables persistence.
func buildSnapshotStore(cfg *config.Config) (session.SnapshotStore, error) {
	switch cfg.SnapshotBackend {
	case config.SnapshotNone:
		return nil, nil
	case config.SnapshotFile:
		return session.NewFileStore(cfg.SnapshotFile), nil
	case config.SnapshotRedis:
		return redisstore.New(cfg.RedisAddr, cfg.SnapshotKey)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}

// makeEvictHandler turns evicted aircraft into durable sightings. Without
// a database the handler only logs.
func makeEvictHandler(store SightingStore, sessionID func() string, log *logrus.Logger) func([]*session.Aircraft) {
	return func(evicted []*session.Aircraft) {
		for _, ac := range evicted {
			log.Infof("Sighting complete: %s (%d messages)", ac.HexIdent, ac.MsgCount)
			if store == nil {
				continue
			}
			if err := store.StoreSighting(ac.Sighting(sessionID())); err != nil {
				log.WithError(err).Errorf("Failed to store sighting for %s", ac.HexIdent)
			}
		}
	}
}

// splitSource parses a host:port source address.
func splitSource(source string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(source)
	if err != nil {
		return "", 0, fmt.Errorf("invalid source %q: %w", source, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in source %q: %w", source, err)
	}
	return host, port, nil
}

// maintainConnection keeps the session attached to the feed. The session's
// client never retries on its own; the policy lives here.
func maintainConnection(ctx context.Context, s *session.Session, source string, log *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !s.Connected() {
			if err := s.Disconnect(); err != nil {
				log.WithError(err).Warn("Failed to release stale connection")
			}
			host, port, err := splitSource(source)
			if err != nil {
				log.WithError(err).Error("Invalid SBS source")
				return
			}
			if err := s.Connect(host, port); err != nil {
				log.WithError(err).Warnf("Failed to connect to %s, retrying in %s", source, reconnectDelay)
			} else {
				log.Infof("Connected to %s", source)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// logStatus emits a periodic one-line summary of the session.
func logStatus(ctx context.Context, s *session.Session, counters *stats.Stats, origin *geo.Point, log *logrus.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info(statusLine(s, counters, origin))
		}
	}
}

// statusLine renders the aircraft count, counter summary and, when an
// origin is configured, the nearest and farthest tracked aircraft.
func statusLine(s *session.Session, counters *stats.Stats, origin *geo.Point) string {
	line := fmt.Sprintf("Tracking %d aircraft | %s", s.AircraftCount(), counters)

	if origin == nil {
		return line
	}

	type ranged struct {
		hexIdent string
		meters   float64
	}
	var ranges []ranged
	s.EachAircraft(func(ac *session.Aircraft) {
		if m, ok := ac.Distance(); ok {
			ranges = append(ranges, ranged{ac.HexIdent, m})
		}
	})
	if len(ranges) == 0 {
		return line
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].meters < ranges[j].meters })

	nearest := ranges[0]
	farthest := ranges[len(ranges)-1]
	return fmt.Sprintf("%s | nearest %s %.1fnm, farthest %s %.1fnm",
		line,
		nearest.hexIdent, geo.MetersToNM(nearest.meters),
		farthest.hexIdent, geo.MetersToNM(farthest.meters))
}
