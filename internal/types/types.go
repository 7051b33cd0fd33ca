package types

import (
	"time"
)

// RawMessage is the envelope for one SBS wire line as it moves between
// processes. Raw carries the line without its CRLF delimiter.
type RawMessage struct {
	Raw       string    `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Sighting is the durable record of one aircraft's presence in a session,
// written when the expiry sweep evicts it.
type Sighting struct {
	SessionID string    `json:"session_id"`
	HexIdent  string    `json:"hex_ident"`
	Callsign  *string   `json:"callsign,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	MsgCount  int64     `json:"msg_count"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Altitude  *int      `json:"altitude,omitempty"`
	DistanceM *float64  `json:"distance_m,omitempty"`
}

// SystemStats is a point-in-time dump of the ingest and session counters.
type SystemStats struct {
	Time            time.Time `json:"time"`
	TotalMessages   int64     `json:"total_messages"`
	ParsedMessages  int64     `json:"parsed_messages"`
	ParseErrors     int64     `json:"parse_errors"`
	SentinelDrops   int64     `json:"sentinel_drops"`
	AppliedMessages int64     `json:"applied_messages"`
	ActiveAircraft  int64     `json:"active_aircraft"`
	CreatedAircraft int64     `json:"created_aircraft"`
	ExpiredAircraft int64     `json:"expired_aircraft"`
	// TypeCounts[n] counts applied messages with transmission type n;
	// index 0 is unused.
	TypeCounts [9]int64 `json:"type_counts"`
}
