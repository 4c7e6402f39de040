package telemetry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	device_id        TEXT NOT NULL,
	filename         TEXT NOT NULL,
	start_epoch      INTEGER NOT NULL,
	end_epoch        INTEGER NOT NULL,
	bytes_written    INTEGER NOT NULL,
	write_fail_count INTEGER NOT NULL,
	sync_fail_count  INTEGER NOT NULL,
	close_fail_count INTEGER NOT NULL,
	high_water       INTEGER NOT NULL,
	buffer_capacity  INTEGER NOT NULL,
	dropped          INTEGER NOT NULL,
	overflow_risk    INTEGER NOT NULL,
	sync_ok          INTEGER NOT NULL,
	drift_seconds    INTEGER NOT NULL,
	sats             INTEGER NOT NULL,
	free_bytes       INTEGER NOT NULL
);
`

// SQLiteSink appends session records to a local database next to the data
// files, surviving power loss between sessions.
type SQLiteSink struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("telemetry: empty sqlite path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("telemetry: create schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Report(r Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("telemetry: sqlite sink is closed")
	}
	_, err := s.db.Exec(`INSERT INTO sessions (
		id, device_id, filename, start_epoch, end_epoch,
		bytes_written, write_fail_count, sync_fail_count, close_fail_count,
		high_water, buffer_capacity, dropped, overflow_risk,
		sync_ok, drift_seconds, sats, free_bytes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DeviceID, r.Filename, r.StartEpoch, r.EndEpoch,
		r.BytesWritten, r.WriteFailCount, r.SyncFailCount, r.CloseFailCount,
		r.HighWater, r.BufferCapacity, r.Dropped, r.OverflowRisk,
		r.SyncOK, r.DriftSeconds, r.Sats, r.FreeBytes)
	if err != nil {
		return fmt.Errorf("telemetry: insert session %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
