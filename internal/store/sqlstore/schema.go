package sqlstore

import "fmt"

// Timestamps are stored as unix milliseconds so ordering and window
// comparisons behave the same on sqlite and postgres. The *_fold columns hold
// Unicode lower-cased copies for search; sqlite's LOWER only folds ASCII.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS location_samples (
    seq %s,
    id TEXT NOT NULL UNIQUE,
    owner_id TEXT NOT NULL,
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    accuracy DOUBLE PRECISION,
    captured_at BIGINT NOT NULL,
    source TEXT NOT NULL DEFAULT 'browser' CHECK (source IN ('browser', 'mobile', 'gps', 'unknown')),
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_location_samples_owner_captured ON location_samples(owner_id, captured_at);
CREATE INDEX IF NOT EXISTS idx_location_samples_captured ON location_samples(captured_at);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    phone_digits TEXT NOT NULL DEFAULT '',
    name_fold TEXT NOT NULL DEFAULT '',
    email_fold TEXT NOT NULL DEFAULT '',
    phone_fold TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT '',
    updated_at BIGINT NOT NULL
);
`

func schemaFor(driver string) string {
	seq := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == DriverPostgres {
		seq = "BIGSERIAL PRIMARY KEY"
	}
	return fmt.Sprintf(schemaTemplate, seq)
}
