// Package telemetry persists the per-session health summary. The summary is
// the only durable trace of an unattended deployment's behavior between
// retrievals, so it is written locally to SQLite and optionally mirrored as
// a UDP datagram for bench debugging.
package telemetry

import "github.com/google/uuid"

// Record summarizes one completed logging session.
type Record struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	Filename string `json:"filename"`

	StartEpoch int64 `json:"start_epoch"`
	EndEpoch   int64 `json:"end_epoch"`

	BytesWritten   uint64 `json:"bytes_written"`
	WriteFailCount uint64 `json:"write_fail_count"`
	SyncFailCount  uint64 `json:"sync_fail_count"`
	CloseFailCount uint64 `json:"close_fail_count"`

	HighWater      int    `json:"high_water"`
	BufferCapacity int    `json:"buffer_capacity"`
	Dropped        uint64 `json:"dropped"`
	OverflowRisk   bool   `json:"overflow_risk"`

	SyncOK       bool  `json:"sync_ok"`
	DriftSeconds int64 `json:"drift_seconds"`
	Sats         int   `json:"sats"`

	FreeBytes uint64 `json:"free_bytes"`
}

// NewRecord allocates a record with a fresh id; callers fill in the rest.
func NewRecord(deviceID, filename string) Record {
	return Record{ID: uuid.NewString(), DeviceID: deviceID, Filename: filename}
}
