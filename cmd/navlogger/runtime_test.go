package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"navlogger/internal/clock"
	"navlogger/internal/config"
	"navlogger/internal/gnss"
	"navlogger/internal/irq"
	"navlogger/internal/storage"
	"navlogger/internal/telemetry"
	"navlogger/internal/timesync"
	"navlogger/internal/watchdog"
)

type fakeDev struct {
	mu     sync.Mutex
	now    time.Time
	alarms []clock.AlarmSpec
	modes  []clock.Granularity
	clears int
}

func newFakeDev(at time.Time) *fakeDev { return &fakeDev{now: at} }

func (d *fakeDev) set(at time.Time) {
	d.mu.Lock()
	d.now = at
	d.mu.Unlock()
}

func (d *fakeDev) Time() (clock.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return clock.At(d.now), nil
}

func (d *fakeDev) SetTime(s clock.Snapshot) error {
	d.set(s.Time())
	return nil
}

func (d *fakeDev) Epoch() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now.Unix(), nil
}

func (d *fakeDev) SetEpoch(e int64) error {
	d.set(time.Unix(e, 0).UTC())
	return nil
}

func (d *fakeDev) SetAlarm(a clock.AlarmSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alarms = append(d.alarms, a)
	return nil
}

func (d *fakeDev) SetAlarmMode(g clock.Granularity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modes = append(d.modes, g)
	return nil
}

func (d *fakeDev) ClearAlarmInterrupt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
	return nil
}

func (d *fakeDev) Close() error { return nil }

func (d *fakeDev) alarmCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.alarms)
}

func (d *fakeDev) alarmAt(i int) clock.AlarmSpec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alarms[i]
}

type fakeRcv struct {
	mu      sync.Mutex
	data    []byte
	fix     gnss.Fix
	fixOK   bool
	hw      int
	capn    int
	dropped uint64
}

func (r *fakeRcv) feed(p []byte) {
	r.mu.Lock()
	r.data = append(r.data, p...)
	if len(r.data) > r.hw {
		r.hw = len(r.data)
	}
	r.mu.Unlock()
}

func (r *fakeRcv) Fix() (gnss.Fix, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fix, r.fixOK
}

func (r *fakeRcv) AvailableBytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *fakeRcv) Extract(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.data) {
		return nil
	}
	out := append([]byte(nil), r.data[:n]...)
	r.data = r.data[n:]
	return out
}

func (r *fakeRcv) HighWaterMark() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hw
}

func (r *fakeRcv) BufferCapacity() int { return r.capn }
func (r *fakeRcv) Dropped() uint64     { return r.dropped }

func (r *fakeRcv) ClearBuffer() {
	r.mu.Lock()
	r.data = nil
	r.hw = 0
	r.mu.Unlock()
}

type captureSink struct {
	mu      sync.Mutex
	records []telemetry.Record
}

func (c *captureSink) Report(r telemetry.Record) error {
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) Close() error { return nil }

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *captureSink) at(i int) telemetry.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig(dir string) config.Config {
	return config.Config{
		Device: config.DeviceConfig{ID: "WALRUS01", Unit: "GPS", Ext: "ubx"},
		Mode: config.ModeConfig{
			Normal: "daily",
			Daily:  config.DailyConfig{StartHour: 13, StopHour: 14},
		},
		Sync:    config.SyncConfig{Timeout: time.Second, MaxFilenameDrift: 30 * time.Second},
		Logging: config.LoggingConfig{Dir: dir, BlockBytes: 8, FlushInterval: time.Hour, PollInterval: time.Millisecond},
		GNSS:    config.GNSSConfig{BufferBytes: 4096},
		Watchdog: config.WatchdogConfig{
			Backend: "off", Period: 10 * time.Millisecond, MaxMissed: 4,
		},
	}
}

func newScenario(t *testing.T, cfg config.Config, dev *fakeDev, rcv *fakeRcv) (*runtime, *captureSink, *irq.Latch) {
	t.Helper()
	store, err := storage.OpenDir(cfg.Logging.Dir)
	if err != nil {
		t.Fatalf("OpenDir() error: %v", err)
	}
	latch := irq.NewLatch()
	sink := &captureSink{}
	rt, err := newRuntime(cfg, dev, rcv, store, latch, watchdog.Noop{}, sink)
	if err != nil {
		t.Fatalf("newRuntime() error: %v", err)
	}
	rt.rolloverEvery = 0
	rt.syncNow = func() (timesync.DriftMeasurement, error) {
		return timesync.DriftMeasurement{}, nil
	}
	return rt, sink, latch
}

// Boot at 09:00 in daily 13:00-14:00 mode: the unit arms the 13:00 wake,
// logs between the two alarms, writes the stream to a timestamp-named file
// and programs the next wake at session end.
func TestRuntime_DailyWakeLogSleepCycle(t *testing.T) {
	dir := t.TempDir()
	dev := newFakeDev(time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC))
	rcv := &fakeRcv{capn: 4096}
	rt, sink, latch := newScenario(t, testConfig(dir), dev, rcv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rt.run(ctx) }()

	// Boot alarm: wake at 13:00, repeating daily.
	waitFor(t, "initial alarm", func() bool { return dev.alarmCount() == 1 })
	if a := dev.alarmAt(0); a.Hour != 13 || a.Minute != 0 || a.Granularity != clock.EveryDay {
		t.Fatalf("initial alarm=%+v want 13:00 daily", a)
	}

	// The 13:00 interrupt arrives.
	dev.set(time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC))
	latch.Trigger()

	// Wake programs the 14:00 stop alarm and opens the session file.
	waitFor(t, "stop alarm", func() bool { return dev.alarmCount() == 2 })
	if a := dev.alarmAt(1); a.Hour != 14 || a.Minute != 0 || a.Granularity != clock.EveryDay {
		t.Fatalf("stop alarm=%+v want 14:00 daily", a)
	}
	wantFile := filepath.Join(dir, "WALRUS01_GPS_20260825_130000.ubx")
	waitFor(t, "session file", func() bool {
		_, err := os.Stat(wantFile)
		return err == nil
	})

	// Stream data arrives; two whole blocks drain to the card.
	rcv.feed([]byte("0123456789abcdef"))
	waitFor(t, "drained blocks", func() bool {
		b, err := os.ReadFile(wantFile)
		return err == nil && len(b) == 16
	})

	// The 14:00 interrupt ends the session.
	dev.set(time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC))
	latch.Trigger()

	// Sleep programs tomorrow's 13:00 wake and reports the session.
	waitFor(t, "next wake alarm", func() bool { return dev.alarmCount() == 3 })
	if a := dev.alarmAt(2); a.Hour != 13 || a.Minute != 0 || a.Granularity != clock.EveryDay {
		t.Fatalf("next wake alarm=%+v want 13:00 daily", a)
	}
	waitFor(t, "telemetry record", func() bool { return sink.count() == 1 })
	rec := sink.at(0)
	if rec.Filename != "WALRUS01_GPS_20260825_130000.ubx" {
		t.Fatalf("record filename=%q", rec.Filename)
	}
	if rec.BytesWritten != 16 {
		t.Fatalf("record bytes=%d want 16", rec.BytesWritten)
	}
	if !rec.SyncOK {
		t.Fatalf("record sync_ok=false")
	}

	cancel()
	<-done
}

// A pre-creation clock correction beyond the drift limit regenerates the
// filename exactly once; only the corrected name reaches the card.
func TestRuntime_FilenameRegeneratedAfterLargeDrift(t *testing.T) {
	dir := t.TempDir()
	dev := newFakeDev(time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC))
	rcv := &fakeRcv{capn: 4096}
	rt, sink, latch := newScenario(t, testConfig(dir), dev, rcv)

	// The sync moves the clock forward 5 minutes, well past the 30s limit.
	rt.syncNow = func() (timesync.DriftMeasurement, error) {
		corrected := time.Date(2026, 8, 25, 13, 5, 0, 0, time.UTC)
		dev.set(corrected)
		return timesync.DriftMeasurement{
			FixEpoch:   corrected.Unix(),
			ClockEpoch: corrected.Add(-5 * time.Minute).Unix(),
			Drift:      5 * time.Minute,
		}, nil
	}

	// Latch pre-fired: the session ends immediately after the final drain.
	latch.Trigger()
	if err := rt.runSession(context.Background()); err != nil {
		t.Fatalf("runSession() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("files=%d want exactly 1", len(entries))
	}
	if got, want := entries[0].Name(), "WALRUS01_GPS_20260825_130500.ubx"; got != want {
		t.Fatalf("file=%q want %q", got, want)
	}
	if sink.count() != 1 || sink.at(0).Filename != "WALRUS01_GPS_20260825_130500.ubx" {
		t.Fatalf("record filename=%q", sink.at(0).Filename)
	}
}

// In continuous mode there are no alarms; files rotate at the day rollover.
func TestRuntime_ContinuousRotatesAtDayRollover(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Mode.Normal = "continuous"
	dev := newFakeDev(time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC))
	rcv := &fakeRcv{capn: 4096}
	rt, _, _ := newScenario(t, cfg, dev, rcv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rt.run(ctx) }()

	day1 := filepath.Join(dir, "WALRUS01_GPS_20260825_235900.ubx")
	waitFor(t, "first session file", func() bool {
		_, err := os.Stat(day1)
		return err == nil
	})
	if dev.alarmCount() != 0 {
		t.Fatalf("continuous mode programmed %d alarms", dev.alarmCount())
	}

	dev.set(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
	day2 := filepath.Join(dir, "WALRUS01_GPS_20260826_000000.ubx")
	waitFor(t, "rotated session file", func() bool {
		_, err := os.Stat(day2)
		return err == nil
	})

	cancel()
	<-done
}

// The clock correction runs once per calendar day: a second session on the
// same day skips it, and the next day attempts again even after a timeout.
func TestRuntime_SyncOncePerCalendarDay(t *testing.T) {
	dir := t.TempDir()
	dev := newFakeDev(time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC))
	rcv := &fakeRcv{capn: 4096}
	rt, sink, latch := newScenario(t, testConfig(dir), dev, rcv)

	attempts := 0
	rt.syncNow = func() (timesync.DriftMeasurement, error) {
		attempts++
		return timesync.DriftMeasurement{}, timesync.ErrSyncTimeout
	}

	latch.Trigger()
	if err := rt.runSession(context.Background()); err != nil {
		t.Fatalf("runSession() error: %v", err)
	}
	latch.Trigger()
	if err := rt.runSession(context.Background()); err != nil {
		t.Fatalf("runSession() error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("sync attempts=%d want 1 (same day, timeout included)", attempts)
	}

	dev.set(time.Date(2026, 8, 26, 13, 0, 0, 0, time.UTC))
	latch.Trigger()
	if err := rt.runSession(context.Background()); err != nil {
		t.Fatalf("runSession() error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("sync attempts=%d want 2 after day rollover", attempts)
	}
	if sink.count() != 3 || sink.at(0).SyncOK {
		t.Fatalf("records=%d syncOK=%v want 3 records, sync_ok=false", sink.count(), sink.at(0).SyncOK)
	}
}

// A full card skips the session but still programs the next wake.
func TestRuntime_NoSpaceSkipsSessionButSchedulesWake(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Logging.MinFreeBytes = 1 << 62
	dev := newFakeDev(time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC))
	rcv := &fakeRcv{capn: 4096}
	rt, sink, latch := newScenario(t, cfg, dev, rcv)

	latch.Trigger()
	if err := rt.runSession(context.Background()); err != nil {
		t.Fatalf("runSession() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("files=%d want none", len(entries))
	}
	if dev.alarmCount() != 1 {
		t.Fatalf("alarms=%d want the sleep alarm", dev.alarmCount())
	}
	if sink.count() != 1 || sink.at(0).BytesWritten != 0 {
		t.Fatalf("expected one empty-session record")
	}
}
