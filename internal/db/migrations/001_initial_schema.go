package migrations

// InitialSchema creates the sightings and system_stats tables.
var InitialSchema = &Migration{
	ID:   "001_initial_schema",
	Name: "001_initial_schema",
	UpSQL: `
		-- One row per aircraft evicted from a session
		CREATE TABLE IF NOT EXISTS sightings (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			hex_ident TEXT NOT NULL,
			callsign TEXT,
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL,
			msg_count BIGINT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			altitude INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_sightings_hex_ident ON sightings (hex_ident);
		CREATE INDEX IF NOT EXISTS idx_sightings_last_seen ON sightings (last_seen);
		CREATE INDEX IF NOT EXISTS idx_sightings_session_id ON sightings (session_id);

		-- Periodic counter snapshots from the tracker
		CREATE TABLE IF NOT EXISTS system_stats (
			time TIMESTAMPTZ NOT NULL,
			total_messages BIGINT NOT NULL,
			parsed_messages BIGINT NOT NULL,
			parse_errors BIGINT NOT NULL,
			sentinel_drops BIGINT NOT NULL,
			applied_messages BIGINT NOT NULL,
			active_aircraft BIGINT NOT NULL,
			created_aircraft BIGINT NOT NULL,
			expired_aircraft BIGINT NOT NULL,
			type_counts BIGINT[] NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_system_stats_time ON system_stats (time);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS system_stats;
		DROP TABLE IF EXISTS sightings;
	`,
}
