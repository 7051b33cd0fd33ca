// Package db persists sightings and system statistics to PostgreSQL.
package db

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/sbslab/sbs-session/internal/types"
)

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// StoreSighting records one evicted aircraft.
func (c *Client) StoreSighting(s *types.Sighting) error {
	query := `
		INSERT INTO sightings (
			session_id, hex_ident, callsign, first_seen, last_seen,
			msg_count, latitude, longitude, altitude, distance_m
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := c.db.Exec(query,
		s.SessionID, s.HexIdent, s.Callsign, s.FirstSeen, s.LastSeen,
		s.MsgCount, s.Latitude, s.Longitude, s.Altitude, s.DistanceM,
	)
	return err
}

// GetSightings retrieves sightings whose last_seen falls in [start, end],
// newest first.
func (c *Client) GetSightings(start, end time.Time) ([]*types.Sighting, error) {
	query := `
		SELECT session_id, hex_ident, callsign, first_seen, last_seen,
			msg_count, latitude, longitude, altitude, distance_m
		FROM sightings
		WHERE last_seen BETWEEN $1 AND $2
		ORDER BY last_seen DESC
	`
	rows, err := c.db.Query(query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sightings []*types.Sighting
	for rows.Next() {
		var s types.Sighting
		if err := rows.Scan(
			&s.SessionID, &s.HexIdent, &s.Callsign, &s.FirstSeen, &s.LastSeen,
			&s.MsgCount, &s.Latitude, &s.Longitude, &s.Altitude, &s.DistanceM,
		); err != nil {
			return nil, err
		}
		sightings = append(sightings, &s)
	}
	return sightings, rows.Err()
}

// GetSightingsByHexIdent retrieves every sighting of one airframe, newest
// first.
func (c *Client) GetSightingsByHexIdent(hexIdent string) ([]*types.Sighting, error) {
	query := `
		SELECT session_id, hex_ident, callsign, first_seen, last_seen,
			msg_count, latitude, longitude, altitude, distance_m
		FROM sightings
		WHERE hex_ident = $1
		ORDER BY last_seen DESC
	`
	rows, err := c.db.Query(query, hexIdent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sightings []*types.Sighting
	for rows.Next() {
		var s types.Sighting
		if err := rows.Scan(
			&s.SessionID, &s.HexIdent, &s.Callsign, &s.FirstSeen, &s.LastSeen,
			&s.MsgCount, &s.Latitude, &s.Longitude, &s.Altitude, &s.DistanceM,
		); err != nil {
			return nil, err
		}
		sightings = append(sightings, &s)
	}
	return sightings, rows.Err()
}

// StoreSystemStats stores one counter snapshot.
func (c *Client) StoreSystemStats(stats *types.SystemStats) error {
	query := `
		INSERT INTO system_stats (
			time, total_messages, parsed_messages, parse_errors,
			sentinel_drops, applied_messages, active_aircraft,
			created_aircraft, expired_aircraft, type_counts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := c.db.Exec(query,
		stats.Time, stats.TotalMessages, stats.ParsedMessages, stats.ParseErrors,
		stats.SentinelDrops, stats.AppliedMessages, stats.ActiveAircraft,
		stats.CreatedAircraft, stats.ExpiredAircraft, pq.Array(stats.TypeCounts[:]),
	)
	return err
}

// GetSystemStats retrieves counter snapshots for a time range, newest
// first.
func (c *Client) GetSystemStats(start, end time.Time) ([]*types.SystemStats, error) {
	query := `
		SELECT time, total_messages, parsed_messages, parse_errors,
			sentinel_drops, applied_messages, active_aircraft,
			created_aircraft, expired_aircraft, type_counts
		FROM system_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`
	rows, err := c.db.Query(query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.SystemStats
	for rows.Next() {
		var (
			s          types.SystemStats
			typeCounts []int64
		)
		if err := rows.Scan(
			&s.Time, &s.TotalMessages, &s.ParsedMessages, &s.ParseErrors,
			&s.SentinelDrops, &s.AppliedMessages, &s.ActiveAircraft,
			&s.CreatedAircraft, &s.ExpiredAircraft, pq.Array(&typeCounts),
		); err != nil {
			return nil, err
		}
		for i, v := range typeCounts {
			if i < len(s.TypeCounts) {
				s.TypeCounts[i] = v
			}
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
