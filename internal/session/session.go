package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sbslab/sbs-session/internal/archive"
	"github.com/sbslab/sbs-session/internal/client"
	"github.com/sbslab/sbs-session/internal/geo"
	"github.com/sbslab/sbs-session/internal/sbs"
	"github.com/sbslab/sbs-session/internal/stats"
)

// Session timing defaults.
const (
	DefaultExpiryThreshold = 2 * time.Minute
	DefaultSweepInterval   = 5 * time.Second
)

// ErrInvalidConfig is returned by New for an unusable configuration.
var ErrInvalidConfig = errors.New("invalid session configuration")

// Config configures a Session. Zero values select the documented defaults;
// HistorySize < 0 makes history unbounded and HistoryInterval < 0 disables
// interval gating.
type Config struct {
	// Record enables archiving Transmission lines with a receipt
	// timestamp. RecordFile must be set when Record is true.
	Record         bool
	RecordFile     string
	RecordMaxBytes int64
	RecordBackups  int

	// Snapshots persists the aircraft map on Close (and SaveSnapshot)
	// and restores it at construction. Nil disables persistence.
	Snapshots SnapshotStore

	ExpiryThreshold time.Duration
	SweepInterval   time.Duration

	HistorySize     int
	HistoryInterval time.Duration

	// Origin is copied to every created aircraft for distance
	// calculations.
	Origin *geo.Point

	// OnEvict is invoked by the expiry sweep with the evicted records,
	// outside the session lock.
	OnEvict func(evicted []*Aircraft)

	Stats  *stats.Stats
	Logger *logrus.Logger
}

// Session aggregates parsed SBS messages into a map of aircraft records.
// The apply path and the expiry sweep are the only two mutators and
// serialize through one RWMutex, so no reader observes a half-updated
// record.
type Session struct {
	id  string
	cfg Config
	log *logrus.Logger

	mu       sync.RWMutex
	aircraft map[string]*Aircraft

	clientMu sync.Mutex
	client   *client.Client

	archive *archive.Writer

	stopCh  chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// New validates cfg, restores the previous snapshot when a store is
// configured, and starts the expiry sweep.
func New(cfg Config) (*Session, error) {
	if cfg.Record && cfg.RecordFile == "" {
		return nil, fmt.Errorf("%w: recording enabled but no record file specified", ErrInvalidConfig)
	}
	if cfg.ExpiryThreshold < 0 || cfg.SweepInterval < 0 {
		return nil, fmt.Errorf("%w: negative expiry threshold or sweep interval", ErrInvalidConfig)
	}
	if cfg.ExpiryThreshold == 0 {
		cfg.ExpiryThreshold = DefaultExpiryThreshold
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = DefaultHistorySize
	} else if cfg.HistorySize < 0 {
		cfg.HistorySize = 0 // unbounded
	}
	if cfg.HistoryInterval == 0 {
		cfg.HistoryInterval = DefaultHistoryInterval
	} else if cfg.HistoryInterval < 0 {
		cfg.HistoryInterval = 0 // gate disabled
	}
	if cfg.RecordMaxBytes == 0 {
		cfg.RecordMaxBytes = archive.DefaultMaxBytes
	}
	if cfg.RecordBackups == 0 {
		cfg.RecordBackups = archive.DefaultBackups
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Session{
		id:       uuid.New().String(),
		cfg:      cfg,
		log:      log,
		aircraft: make(map[string]*Aircraft),
		stopCh:   make(chan struct{}),
	}

	if cfg.Record {
		rec, err := archive.New(cfg.RecordFile, cfg.RecordMaxBytes, cfg.RecordBackups, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open record file: %w", err)
		}
		s.archive = rec
	}

	if cfg.Snapshots != nil {
		if err := s.restore(); err != nil {
			if s.archive != nil {
				s.archive.Close()
			}
			return nil, err
		}
	}

	s.wg.Add(1)
	go s.sweepLoop()

	return s, nil
}

// ID returns the UUID identifying this session run.
func (s *Session) ID() string {
	return s.id
}

// Stats returns the configured counter set, which may be nil.
func (s *Session) Stats() *stats.Stats {
	return s.cfg.Stats
}

// restore loads the previous snapshot and adopts every aircraft that has
// not already aged past the expiry threshold. Stale snapshot data never
// resurrects an expired aircraft.
func (s *Session) restore() error {
	snap, err := s.cfg.Snapshots.Load()
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil
		}
		return fmt.Errorf("failed to restore session snapshot: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for hexIdent, ac := range snap.Aircraft {
		if now.Sub(ac.LastSeen) > s.cfg.ExpiryThreshold {
			continue
		}
		s.aircraft[hexIdent] = ac
		recovered++
	}
	if recovered > 0 {
		s.log.Infof("Recovered %d aircraft from session snapshot", recovered)
	}
	if s.cfg.Stats != nil {
		s.cfg.Stats.SetActive(recovered)
	}
	return nil
}

// ProcessLine handles one raw SBS line: parse, drop the zero-ICAO
// sentinel, archive Transmission lines when recording, then apply. Parse
// failures are logged and counted, never propagated. This is the raw
// callback registered with the protocol client and is also fed by replays.
func (s *Session) ProcessLine(line string) {
	if s.cfg.Stats != nil {
		s.cfg.Stats.IncTotal()
	}

	msg, err := sbs.ParseLine(line)
	if err != nil {
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncParseError()
		}
		s.log.WithError(err).Warnf("Skipping unparseable line: %q", line)
		return
	}
	if s.cfg.Stats != nil {
		s.cfg.Stats.IncParsed()
	}

	if msg.HexIdent == sbs.ZeroICAO {
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncSentinelDrop()
		}
		s.log.Warnf("Invalid ICAO code detected: %s", msg.HexIdent)
		return
	}

	if msg.Type == sbs.Transmission && s.archive != nil {
		s.archive.Emit(line)
	}

	s.Apply(msg)
}

// Apply folds one parsed message into the aircraft map. Only Transmission
// messages carry aggregatable payload; the zero-ICAO sentinel is rejected;
// unknown transmission types are accepted without a field update.
func (s *Session) Apply(msg *sbs.Message) {
	if msg.Type != sbs.Transmission {
		return
	}
	if msg.HexIdent == sbs.ZeroICAO {
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncSentinelDrop()
		}
		s.log.Warnf("Invalid ICAO code detected: %s", msg.HexIdent)
		return
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.aircraft[msg.HexIdent]
	if !ok {
		ac = newAircraft(msg.HexIdent, s.cfg.HistorySize, s.cfg.HistoryInterval)
		ac.Origin = s.cfg.Origin
		ac.FirstSeen = now
		s.aircraft[msg.HexIdent] = ac
		s.log.Infof("New session aircraft: %s", msg.HexIdent)
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncCreated()
		}
	}

	ac.LastSeen = now
	ac.MsgCount++

	switch msg.TransmissionType {
	case sbs.ESIdentAndCategory:
		// Only a changed callsign is recorded, to avoid churn.
		if !equalCallsign(ac.Callsign, msg.Callsign) {
			ac.updateIdent(msg.Callsign, now)
		}
	case sbs.ESSurfacePosition, sbs.ESAirbornePosition:
		ac.updatePosition(msg.Altitude, msg.Latitude, msg.Longitude, now)
	case sbs.ESAirborneVelocity:
		ac.updateMotion(msg.GroundSpeed, msg.Track, msg.VerticalRate, now)
	case sbs.SurveillanceAltitude, sbs.AirToAir:
		ac.updateAltitude(msg.Altitude, now)
	default:
		// Surveillance ID, all-call and future types update nothing.
	}

	if s.cfg.Stats != nil {
		s.cfg.Stats.IncApplied(int(msg.TransmissionType))
		s.cfg.Stats.SetActive(len(s.aircraft))
	}
}

func equalCallsign(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Connect attaches the session to an SBS source, registering ProcessLine
// as the client's raw callback. At most one client is owned at a time.
func (s *Session) Connect(host string, port int) error {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	if s.client != nil {
		return client.ErrAlreadyRunning
	}
	c, err := client.New(client.Config{
		Host:   host,
		Port:   port,
		OnRaw:  s.ProcessLine,
		Logger: s.log,
	})
	if err != nil {
		return err
	}
	if err := c.Connect(); err != nil {
		return err
	}
	s.client = c
	return nil
}

// Disconnect closes and releases the client, if any.
func (s *Session) Disconnect() error {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Connected reports whether the session currently holds a live feed.
func (s *Session) Connected() bool {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	return s.client != nil && s.client.Connected()
}

// Aircraft returns the record for hexIdent. The reference is valid only
// until the next sweep removes it.
func (s *Session) Aircraft(hexIdent string) (*Aircraft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ac, ok := s.aircraft[hexIdent]
	return ac, ok
}

// AircraftCount returns the current aircraft map size.
func (s *Session) AircraftCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aircraft)
}

// EachAircraft calls fn for every record under the read lock. fn must not
// mutate the record or call back into the session.
func (s *Session) EachAircraft(fn func(ac *Aircraft)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ac := range s.aircraft {
		fn(ac)
	}
}

// sweepLoop evicts expired aircraft: an immediate first pass, then one per
// sweep interval until Close.
func (s *Session) sweepLoop() {
	defer s.wg.Done()

	s.log.Debug("Starting session sweep")
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.sweepOnce(time.Now().UTC())
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			// Age at time of check, not an extrapolated deadline.
			s.sweepOnce(time.Now().UTC())
		}
	}
}

// sweepOnce removes every aircraft whose last_seen age exceeds the expiry
// threshold. The OnEvict callback runs after the lock is released.
func (s *Session) sweepOnce(now time.Time) {
	var evicted []*Aircraft

	s.mu.Lock()
	for hexIdent, ac := range s.aircraft {
		if now.Sub(ac.LastSeen) > s.cfg.ExpiryThreshold {
			evicted = append(evicted, ac)
			delete(s.aircraft, hexIdent)
		}
	}
	remaining := len(s.aircraft)
	s.mu.Unlock()

	if len(evicted) == 0 {
		return
	}

	idents := make([]string, len(evicted))
	for i, ac := range evicted {
		idents[i] = ac.HexIdent
	}
	s.log.Infof("Dropping %d aircraft from session due to inactivity: %v", len(evicted), idents)

	if s.cfg.Stats != nil {
		s.cfg.Stats.AddExpired(len(evicted))
		s.cfg.Stats.SetActive(remaining)
	}
	if s.cfg.OnEvict != nil {
		s.cfg.OnEvict(evicted)
	}
}

// SaveSnapshot persists the entire aircraft map through the snapshot
// store. A session without a store returns nil. The records are copied
// under the read lock so the store can serialize them while the apply
// path keeps mutating the live map.
func (s *Session) SaveSnapshot() error {
	if s.cfg.Snapshots == nil {
		return nil
	}

	s.mu.RLock()
	aircraft := make(map[string]*Aircraft, len(s.aircraft))
	for hexIdent, ac := range s.aircraft {
		aircraft[hexIdent] = ac.clone()
	}
	s.mu.RUnlock()

	return s.cfg.Snapshots.Save(&Snapshot{
		SessionID: s.id,
		SavedAt:   time.Now().UTC(),
		Aircraft:  aircraft,
	})
}

// Close stops the sweep and the client, then persists the final snapshot
// and closes the archive. Sweep and client are fully stopped before the
// save so no eviction can race it. Closing twice is a no-op.
func (s *Session) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	close(s.stopCh)
	s.wg.Wait()

	var firstErr error
	if err := s.Disconnect(); err != nil {
		firstErr = err
	}

	if s.cfg.Snapshots != nil {
		s.log.Info("Saving aircraft to session snapshot")
		if err := s.SaveSnapshot(); err != nil {
			s.log.WithError(err).Error("Failed to save session snapshot")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if s.archive != nil {
		if err := s.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
