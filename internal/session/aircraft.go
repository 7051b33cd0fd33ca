// Package session implements the live in-memory aggregation of aircraft
// state derived from an SBS message stream: per-ICAO aircraft records with
// bounded position history, a periodic expiry sweep, and snapshot
// persistence.
package session

import (
	"fmt"
	"time"

	"github.com/sbslab/sbs-session/internal/geo"
	"github.com/sbslab/sbs-session/internal/types"
)

// Defaults for the aircraft position history.
const (
	DefaultHistorySize     = 50
	DefaultHistoryInterval = 5 * time.Second
)

// Position is one history sample. Lat/lon/altitude may be nil when the
// position report omitted them; such samples still record the live update
// but are filtered out of Path.
type Position struct {
	Time      time.Time `json:"time"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Altitude  *int      `json:"altitude"`
}

// Aircraft holds the state of one aircraft observed during a session, keyed
// by its ICAO24 hex identifier. It is owned and serialized by the Session's
// aircraft map; a reference obtained from the Session is only valid until
// the next expiry sweep.
type Aircraft struct {
	HexIdent  string    `json:"hex_ident"`
	Callsign  *string   `json:"callsign"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	Altitude     *int     `json:"altitude"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	GroundSpeed  *float64 `json:"ground_speed"`
	Track        *float64 `json:"track"`
	VerticalRate *int     `json:"vertical_rate"`

	MsgCount int64 `json:"msg_count"`

	// Details holds externally populated attributes such as model,
	// operator and registration.
	Details map[string]string `json:"details,omitempty"`

	// Origin is the reference position for distance calculations, set
	// once at creation from the session configuration.
	Origin *geo.Point `json:"origin,omitempty"`

	// HistorySize bounds History (0 = unbounded); HistoryInterval is the
	// minimum gap between samples (0 = every strictly newer update).
	HistorySize     int           `json:"history_size"`
	HistoryInterval time.Duration `json:"history_interval"`
	History         []Position    `json:"history"`
}

// newAircraft returns a record with the session's history configuration.
func newAircraft(hexIdent string, historySize int, historyInterval time.Duration) *Aircraft {
	return &Aircraft{
		HexIdent:        hexIdent,
		HistorySize:     historySize,
		HistoryInterval: historyInterval,
	}
}

// updateIdent records a new callsign.
func (a *Aircraft) updateIdent(callsign *string, ts time.Time) {
	a.LastSeen = ts
	a.Callsign = callsign
}

// updateMotion records ground speed, track and vertical rate.
func (a *Aircraft) updateMotion(groundSpeed, track *float64, verticalRate *int, ts time.Time) {
	a.LastSeen = ts
	a.GroundSpeed = groundSpeed
	a.Track = track
	a.VerticalRate = verticalRate
}

// updatePosition records the live position fields and attempts a gated
// history append. The live fields always take the update; history only
// grows when the sample is strictly newer than the last one and, when
// interval gating is on, newer by more than the interval. Out-of-order
// samples are never inserted.
func (a *Aircraft) updatePosition(altitude *int, lat, lon *float64, ts time.Time) {
	a.LastSeen = ts
	a.Altitude = altitude
	a.Latitude = lat
	a.Longitude = lon

	if n := len(a.History); n > 0 {
		last := a.History[n-1].Time
		if !ts.After(last) {
			return
		}
		if a.HistoryInterval > 0 && !ts.After(last.Add(a.HistoryInterval)) {
			return
		}
	}

	a.History = append(a.History, Position{Time: ts, Latitude: lat, Longitude: lon, Altitude: altitude})
	if a.HistorySize > 0 && len(a.History) > a.HistorySize {
		a.History = a.History[len(a.History)-a.HistorySize:]
	}
}

// updateAltitude records an altitude-only report.
func (a *Aircraft) updateAltitude(altitude *int, ts time.Time) {
	a.LastSeen = ts
	a.Altitude = altitude
}

// clone returns a copy that stays safe to read after the session lock is
// released. Pointer fields are shared: updates replace them and never write
// through, so only the history slice and the details map need copying.
func (a *Aircraft) clone() *Aircraft {
	cp := *a
	cp.History = append([]Position(nil), a.History...)
	if a.Details != nil {
		cp.Details = make(map[string]string, len(a.Details))
		for k, v := range a.Details {
			cp.Details[k] = v
		}
	}
	return &cp
}

// SetDetails replaces the free-form attribute map wholesale.
func (a *Aircraft) SetDetails(details map[string]string) {
	a.Details = details
}

// Position returns the current latitude and longitude; either may be nil.
func (a *Aircraft) Position() (lat, lon *float64) {
	return a.Latitude, a.Longitude
}

// Distance returns the great-circle distance in meters from the origin to
// the aircraft. ok is false when either endpoint is unset.
func (a *Aircraft) Distance() (meters float64, ok bool) {
	if a.Origin == nil || a.Latitude == nil || a.Longitude == nil {
		return 0, false
	}
	return geo.Haversine(*a.Origin, geo.Point{Latitude: *a.Latitude, Longitude: *a.Longitude}), true
}

// Path returns the history samples that carry a complete position, the
// form suitable for rendering a travel track.
func (a *Aircraft) Path() []Position {
	path := make([]Position, 0, len(a.History))
	for _, p := range a.History {
		if p.Latitude != nil && p.Longitude != nil && p.Altitude != nil {
			path = append(path, p)
		}
	}
	return path
}

// Sighting builds the durable record written when this aircraft leaves the
// session.
func (a *Aircraft) Sighting(sessionID string) *types.Sighting {
	s := &types.Sighting{
		SessionID: sessionID,
		HexIdent:  a.HexIdent,
		Callsign:  a.Callsign,
		FirstSeen: a.FirstSeen,
		LastSeen:  a.LastSeen,
		MsgCount:  a.MsgCount,
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
		Altitude:  a.Altitude,
	}
	if d, ok := a.Distance(); ok {
		s.DistanceM = &d
	}
	return s
}

func (a *Aircraft) String() string {
	return fmt.Sprintf("icao24=%s last_seen=%s msgs=%d history=%d",
		a.HexIdent, a.LastSeen.Format(time.RFC3339), a.MsgCount, len(a.History))
}
