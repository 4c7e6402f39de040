package logwriter

import (
	"fmt"

	"navlogger/internal/clock"
)

// Session is one logging interval bounded by two alarms, producing exactly
// one file. Counters only ever increase while the session is open; they are
// reported once at close and die with the session.
type Session struct {
	Filename   string
	StartEpoch int64

	BytesWritten   uint64
	WriteFailCount uint64
	SyncFailCount  uint64
	CloseFailCount uint64

	// HighWater is the largest receiver-buffer fill level sampled during
	// the session; OverflowRisk latches once it crosses the advisory line.
	HighWater    int
	OverflowRisk bool
}

func NewSession(filename string, startEpoch int64) *Session {
	return &Session{Filename: filename, StartEpoch: startEpoch}
}

// Filename derives the session file name from the clock at session start:
// <deviceId>_<unit>_20YYMMDD_HHMMSS.<ext>. The name is fixed once the file
// is created; only a pre-creation clock correction larger than the drift
// limit regenerates it.
func Filename(deviceID, unit, ext string, s clock.Snapshot) string {
	return fmt.Sprintf("%s_%s_%04d%02d%02d_%02d%02d%02d.%s",
		deviceID, unit, s.Year, s.Month, s.Day, s.Hour, s.Minute, s.Second, ext)
}
