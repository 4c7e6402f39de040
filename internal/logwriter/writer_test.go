package logwriter

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"navlogger/internal/clock"
)

type fakeBuf struct {
	data []byte
	hw   int
	capn int
}

func (b *fakeBuf) AvailableBytes() int { return len(b.data) }

func (b *fakeBuf) Extract(n int) []byte {
	if n <= 0 || n > len(b.data) {
		return nil
	}
	out := append([]byte(nil), b.data[:n]...)
	b.data = b.data[n:]
	return out
}

func (b *fakeBuf) HighWaterMark() int  { return b.hw }
func (b *fakeBuf) BufferCapacity() int { return b.capn }

type fakeFile struct {
	writes   [][]byte
	failAt   map[int]bool // 1-based write index
	syncErr  error
	closeErr error
	syncs    int
	closed   bool
}

func (f *fakeFile) Write(p []byte) error {
	f.writes = append(f.writes, append([]byte(nil), p...))
	if f.failAt[len(f.writes)] {
		return fmt.Errorf("card hiccup")
	}
	return nil
}

func (f *fakeFile) Sync() error {
	f.syncs++
	return f.syncErr
}

func (f *fakeFile) Close() error {
	f.closed = true
	return f.closeErr
}

type fakePetter struct {
	services int
}

func (p *fakePetter) Service() { p.services++ }

func block(fill byte, n int) []byte {
	return bytes.Repeat([]byte{fill}, n)
}

// stopAfter returns a stop func that reports true from the nth call on.
func stopAfter(n int) func() bool {
	calls := 0
	return func() bool {
		calls++
		return calls > n
	}
}

func newTestWriter(cfg Config, buf *fakeBuf, wd *fakePetter) *Writer {
	w := New(cfg, buf, wd)
	w.sleep = func(time.Duration) {}
	return w
}

func TestRun_WholeBlocksPlusFinalPartial(t *testing.T) {
	buf := &fakeBuf{capn: 4096}
	buf.data = append(buf.data, block('a', 512)...)
	buf.data = append(buf.data, block('b', 512)...)
	buf.data = append(buf.data, block('c', 512)...)
	buf.data = append(buf.data, block('d', 100)...)

	f := &fakeFile{}
	w := newTestWriter(Config{BlockBytes: 512, FlushInterval: time.Hour, PollInterval: time.Millisecond}, buf, &fakePetter{})
	sess := NewSession("s.ubx", 100)

	if err := w.Run(sess, f, stopAfter(1)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got, want := sess.BytesWritten, uint64(3*512+100); got != want {
		t.Fatalf("BytesWritten=%d want %d", got, want)
	}
	if len(f.writes) != 4 {
		t.Fatalf("writes=%d want 4", len(f.writes))
	}
	for i := 0; i < 3; i++ {
		if len(f.writes[i]) != 512 {
			t.Fatalf("write %d len=%d want 512", i, len(f.writes[i]))
		}
	}
	if len(f.writes[3]) != 100 {
		t.Fatalf("final write len=%d want 100", len(f.writes[3]))
	}
	if !f.closed {
		t.Fatalf("file not closed")
	}
	if buf.AvailableBytes() != 0 {
		t.Fatalf("buffer not drained, %d bytes left", buf.AvailableBytes())
	}
}

func TestRun_FailedBlockCountedNotRetried(t *testing.T) {
	buf := &fakeBuf{capn: 4096}
	buf.data = append(buf.data, block('a', 512)...)
	buf.data = append(buf.data, block('b', 512)...)
	buf.data = append(buf.data, block('c', 512)...)

	f := &fakeFile{failAt: map[int]bool{2: true}}
	w := newTestWriter(Config{BlockBytes: 512, FlushInterval: time.Hour, PollInterval: time.Millisecond}, buf, &fakePetter{})
	sess := NewSession("s.ubx", 100)

	if err := w.Run(sess, f, stopAfter(1)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sess.WriteFailCount != 1 {
		t.Fatalf("WriteFailCount=%d want 1", sess.WriteFailCount)
	}
	if got, want := sess.BytesWritten, uint64(2*512); got != want {
		t.Fatalf("BytesWritten=%d want %d", got, want)
	}
	// The failed block is gone, not reattempted: exactly three writes, and
	// the 'b' payload appears exactly once.
	if len(f.writes) != 3 {
		t.Fatalf("writes=%d want 3", len(f.writes))
	}
	seen := 0
	for _, p := range f.writes {
		if bytes.Equal(p, block('b', 512)) {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("failed block written %d times, want 1", seen)
	}
}

func TestRun_InFlightDrainCompletesBeforeStop(t *testing.T) {
	buf := &fakeBuf{capn: 4096}
	buf.data = append(buf.data, block('a', 512)...)
	buf.data = append(buf.data, block('b', 512)...)

	f := &fakeFile{}
	w := newTestWriter(Config{BlockBytes: 512, FlushInterval: time.Hour, PollInterval: time.Millisecond}, buf, &fakePetter{})

	// Stop fires while the first block is still in flight. The stop flag is
	// only consulted per outer iteration, so both buffered blocks commit.
	stopped := false
	stop := func() bool { return stopped }
	w.sleep = func(time.Duration) { stopped = true }

	sess := NewSession("s.ubx", 100)
	if err := w.Run(sess, f, stop); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got, want := sess.BytesWritten, uint64(2*512); got != want {
		t.Fatalf("BytesWritten=%d want %d", got, want)
	}
	if !f.closed {
		t.Fatalf("file not closed after stop")
	}
}

func TestRun_OverflowAdvisoryLatches(t *testing.T) {
	buf := &fakeBuf{capn: 1000, hw: 850}
	f := &fakeFile{}
	w := newTestWriter(Config{BlockBytes: 512, FlushInterval: time.Hour, PollInterval: time.Millisecond}, buf, &fakePetter{})

	sess := NewSession("s.ubx", 100)
	if err := w.Run(sess, f, stopAfter(1)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !sess.OverflowRisk {
		t.Fatalf("OverflowRisk not set at 85%% fill")
	}
	if sess.HighWater != 850 {
		t.Fatalf("HighWater=%d want 850", sess.HighWater)
	}

	buf2 := &fakeBuf{capn: 1000, hw: 500}
	sess2 := NewSession("s.ubx", 100)
	if err := w2(t, buf2).Run(sess2, &fakeFile{}, stopAfter(1)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sess2.OverflowRisk {
		t.Fatalf("OverflowRisk set at 50%% fill")
	}
}

func w2(t *testing.T, buf *fakeBuf) *Writer {
	t.Helper()
	return newTestWriter(Config{BlockBytes: 512, FlushInterval: time.Hour, PollInterval: time.Millisecond}, buf, &fakePetter{})
}

func TestRun_WatchdogServicedEachIteration(t *testing.T) {
	buf := &fakeBuf{capn: 4096}
	wd := &fakePetter{}
	w := newTestWriter(Config{BlockBytes: 512, FlushInterval: time.Hour, PollInterval: time.Millisecond}, buf, wd)

	if err := w.Run(NewSession("s.ubx", 100), &fakeFile{}, stopAfter(3)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	// Three loop iterations plus the session-end service.
	if wd.services != 4 {
		t.Fatalf("services=%d want 4", wd.services)
	}
}

func TestRun_PeriodicSyncAndSyncFailures(t *testing.T) {
	buf := &fakeBuf{capn: 4096}
	f := &fakeFile{syncErr: fmt.Errorf("sync refused")}
	w := newTestWriter(Config{BlockBytes: 512, FlushInterval: 5 * time.Second, PollInterval: time.Millisecond}, buf, &fakePetter{})

	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }
	w.sleep = func(time.Duration) { now = now.Add(6 * time.Second) }

	sess := NewSession("s.ubx", 100)
	if err := w.Run(sess, f, stopAfter(2)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	// Two interval syncs plus the final one.
	if f.syncs < 2 {
		t.Fatalf("syncs=%d want at least 2", f.syncs)
	}
	if sess.SyncFailCount != uint64(f.syncs) {
		t.Fatalf("SyncFailCount=%d want %d", sess.SyncFailCount, f.syncs)
	}
}

func TestRun_CloseFailureCounted(t *testing.T) {
	buf := &fakeBuf{capn: 4096}
	f := &fakeFile{closeErr: fmt.Errorf("close refused")}
	w := newTestWriter(Config{BlockBytes: 512, FlushInterval: time.Hour, PollInterval: time.Millisecond}, buf, &fakePetter{})

	sess := NewSession("s.ubx", 100)
	if err := w.Run(sess, f, stopAfter(1)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sess.CloseFailCount != 1 {
		t.Fatalf("CloseFailCount=%d want 1", sess.CloseFailCount)
	}
}

func TestFilename(t *testing.T) {
	s := clock.Snapshot{Year: 2026, Month: 8, Day: 25, Hour: 13, Minute: 45, Second: 7}
	got := Filename("WALRUS01", "GPS", "ubx", s)
	want := "WALRUS01_GPS_20260825_134507.ubx"
	if got != want {
		t.Fatalf("Filename()=%q want %q", got, want)
	}
}
