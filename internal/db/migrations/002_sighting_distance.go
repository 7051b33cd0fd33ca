package migrations

// SightingDistance adds the great-circle distance from the receiver origin
// to each sighting, populated when the session has an origin configured.
var SightingDistance = &Migration{
	ID:   "002_sighting_distance",
	Name: "002_sighting_distance",
	UpSQL: `
		ALTER TABLE sightings ADD COLUMN IF NOT EXISTS distance_m DOUBLE PRECISION;

		CREATE INDEX IF NOT EXISTS idx_sightings_distance_m ON sightings (distance_m);
	`,
	DownSQL: `
		DROP INDEX IF EXISTS idx_sightings_distance_m;
		ALTER TABLE sightings DROP COLUMN IF EXISTS distance_m;
	`,
}
