// Package storage is the durable-media contract for session log files.
//
// Exactly one session file is open at a time; callers enforce that by
// sequencing, not locking. Every operation reports success explicitly so
// the pipeline can count failures without retrying.
package storage

// File is one open session log file.
type File interface {
	// Write commits the whole slice or reports failure; no partial-write
	// accounting is attempted.
	Write(p []byte) error
	// Sync forces the payload to durable media.
	Sync() error
	Close() error
}

// Store creates session files on the logging media.
type Store interface {
	// Open creates name for append-only writing.
	Open(name string) (File, error)
	// FreeBytes reports remaining capacity on the media.
	FreeBytes() (uint64, error)
}
