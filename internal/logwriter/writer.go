package logwriter

import (
	"fmt"
	"time"

	"navlogger/internal/logging"
	"navlogger/internal/storage"
)

// advisoryPct is the buffer fill level, in percent of capacity, above which
// the session latches OverflowRisk and logs a warning.
const advisoryPct = 80

// Buffer is the drain side of the receiver ring. AvailableBytes and Extract
// never block; Extract returns nil unless the full count is buffered.
type Buffer interface {
	AvailableBytes() int
	Extract(n int) []byte
	HighWaterMark() int
	BufferCapacity() int
}

// Petter is serviced once per drain iteration so a stalled loop trips the
// watchdog instead of silently losing a session.
type Petter interface {
	Service()
}

type Config struct {
	BlockBytes    int
	FlushInterval time.Duration
	PollInterval  time.Duration
}

// Writer drains the receiver buffer into a session file in whole blocks.
// One Writer serves one session at a time; Run does not return until the
// stop condition is observed and the file is closed.
type Writer struct {
	cfg Config
	buf Buffer
	wd  Petter

	// Injection points for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

func New(cfg Config, buf Buffer, wd Petter) *Writer {
	return &Writer{
		cfg:   cfg,
		buf:   buf,
		wd:    wd,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Run drains buffered bytes into f until stop reports true, then performs
// the final partial drain, a last sync, and closes the file. stop is
// consulted once per outer iteration only: a write already handed to the
// file always completes before cancellation takes effect.
//
// A failed block write is counted and never retried; the block's bytes are
// lost. BytesWritten reflects only bytes the file accepted.
func (w *Writer) Run(sess *Session, f storage.File, stop func() bool) error {
	if w == nil || sess == nil || f == nil || stop == nil {
		return fmt.Errorf("logwriter: nil writer, session, file or stop")
	}

	lastFlush := w.now()
	for !stop() {
		w.wd.Service()
		w.drainBlocks(sess, f)

		if w.now().Sub(lastFlush) >= w.cfg.FlushInterval {
			lastFlush = w.now()
			if err := f.Sync(); err != nil {
				sess.SyncFailCount++
				logging.Warnf("logwriter: sync %s: %v", sess.Filename, err)
			}
			w.sampleHighWater(sess)
		}
		w.sleep(w.cfg.PollInterval)
	}

	// Session end: commit whatever is left, whole blocks first, then one
	// variable-length tail write below a block.
	w.wd.Service()
	w.drainBlocks(sess, f)
	if n := w.buf.AvailableBytes(); n > 0 {
		if b := w.buf.Extract(n); b != nil {
			if err := f.Write(b); err != nil {
				sess.WriteFailCount++
				logging.Warnf("logwriter: final write %s: %v", sess.Filename, err)
			} else {
				sess.BytesWritten += uint64(len(b))
			}
		}
	}
	if err := f.Sync(); err != nil {
		sess.SyncFailCount++
		logging.Warnf("logwriter: final sync %s: %v", sess.Filename, err)
	}
	w.sampleHighWater(sess)
	if err := f.Close(); err != nil {
		sess.CloseFailCount++
		logging.Warnf("logwriter: close %s: %v", sess.Filename, err)
	}
	return nil
}

func (w *Writer) drainBlocks(sess *Session, f storage.File) {
	for w.buf.AvailableBytes() >= w.cfg.BlockBytes {
		b := w.buf.Extract(w.cfg.BlockBytes)
		if b == nil {
			return
		}
		if err := f.Write(b); err != nil {
			sess.WriteFailCount++
			logging.Warnf("logwriter: write %s: %v", sess.Filename, err)
			continue
		}
		sess.BytesWritten += uint64(len(b))
	}
}

func (w *Writer) sampleHighWater(sess *Session) {
	hw := w.buf.HighWaterMark()
	if hw > sess.HighWater {
		sess.HighWater = hw
	}
	capacity := w.buf.BufferCapacity()
	if capacity > 0 && hw*100 >= capacity*advisoryPct && !sess.OverflowRisk {
		sess.OverflowRisk = true
		logging.Warnf("logwriter: buffer high-water %d of %d bytes, overflow risk", hw, capacity)
	}
}
