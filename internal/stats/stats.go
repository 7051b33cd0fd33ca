// Package stats tracks ingest and session counters. Counters are updated
// atomically from the client reader goroutine and the session sweep, and can
// be persisted periodically through the Postgres sink.
package stats

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sbslab/sbs-session/internal/types"
)

// Store persists a stats snapshot. Implemented by db.Client.
type Store interface {
	StoreSystemStats(stats *types.SystemStats) error
}

// Stats holds the ingest and session counters.
type Stats struct {
	totalMessages   atomic.Int64
	parsedMessages  atomic.Int64
	parseErrors     atomic.Int64
	sentinelDrops   atomic.Int64
	appliedMessages atomic.Int64

	createdAircraft atomic.Int64
	expiredAircraft atomic.Int64
	activeAircraft  atomic.Int64

	// typeCounts[n] counts applied messages with transmission type n.
	typeCounts [9]atomic.Int64

	start time.Time
}

// New returns a zeroed Stats.
func New() *Stats {
	return &Stats{start: time.Now().UTC()}
}

// IncTotal counts one received line.
func (s *Stats) IncTotal() { s.totalMessages.Add(1) }

// IncParsed counts one successfully parsed message.
func (s *Stats) IncParsed() { s.parsedMessages.Add(1) }

// IncParseError counts one line the codec rejected.
func (s *Stats) IncParseError() { s.parseErrors.Add(1) }

// IncSentinelDrop counts one message dropped for the all-zeros ICAO.
func (s *Stats) IncSentinelDrop() { s.sentinelDrops.Add(1) }

// IncApplied counts one message applied to the session, by transmission type.
func (s *Stats) IncApplied(transmissionType int) {
	s.appliedMessages.Add(1)
	if transmissionType >= 1 && transmissionType < len(s.typeCounts) {
		s.typeCounts[transmissionType].Add(1)
	}
}

// IncCreated counts one aircraft added to the session.
func (s *Stats) IncCreated() { s.createdAircraft.Add(1) }

// AddExpired counts n aircraft evicted by the expiry sweep.
func (s *Stats) AddExpired(n int) { s.expiredAircraft.Add(int64(n)) }

// SetActive records the current aircraft map size.
func (s *Stats) SetActive(n int) { s.activeAircraft.Store(int64(n)) }

// Snapshot returns a point-in-time copy of all counters.
func (s *Stats) Snapshot() *types.SystemStats {
	out := &types.SystemStats{
		Time:            time.Now().UTC(),
		TotalMessages:   s.totalMessages.Load(),
		ParsedMessages:  s.parsedMessages.Load(),
		ParseErrors:     s.parseErrors.Load(),
		SentinelDrops:   s.sentinelDrops.Load(),
		AppliedMessages: s.appliedMessages.Load(),
		ActiveAircraft:  s.activeAircraft.Load(),
		CreatedAircraft: s.createdAircraft.Load(),
		ExpiredAircraft: s.expiredAircraft.Load(),
	}
	for i := range s.typeCounts {
		out.TypeCounts[i] = s.typeCounts[i].Load()
	}
	return out
}

// Uptime reports how long this Stats has been collecting.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.start)
}

func (s *Stats) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"messages=%d parsed=%d parse_errors=%d sentinel_drops=%d applied=%d "+
			"aircraft_active=%d aircraft_created=%d aircraft_expired=%d uptime=%s",
		snap.TotalMessages, snap.ParsedMessages, snap.ParseErrors,
		snap.SentinelDrops, snap.AppliedMessages,
		snap.ActiveAircraft, snap.CreatedAircraft, snap.ExpiredAircraft,
		s.Uptime().Round(time.Second))
}

// StartPersistence writes a snapshot to store every interval until ctx is
// cancelled, then writes one final snapshot. Persistence failures are
// logged and do not stop the loop.
func (s *Stats) StartPersistence(ctx context.Context, store Store, interval time.Duration, log *logrus.Logger) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := store.StoreSystemStats(s.Snapshot()); err != nil {
				log.WithError(err).Error("Failed to persist final statistics")
			}
			return
		case <-ticker.C:
			if err := store.StoreSystemStats(s.Snapshot()); err != nil {
				log.WithError(err).Error("Failed to persist statistics")
			}
		}
	}
}
