package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"navlogger/internal/clock"
	"navlogger/internal/config"
	"navlogger/internal/gnss"
	"navlogger/internal/irq"
	"navlogger/internal/logging"
	"navlogger/internal/logwriter"
	"navlogger/internal/sched"
	"navlogger/internal/storage"
	"navlogger/internal/telemetry"
	"navlogger/internal/timesync"
	"navlogger/internal/watchdog"
)

// runtime owns the wake/log/sleep cycle. Hardware is brought up in main;
// everything here works against the package interfaces so the scenario
// tests run on fakes.
type runtime struct {
	cfg   config.Config
	dev   clock.Device
	rcv   gnss.Receiver
	store storage.Store
	sch   *sched.Scheduler
	latch *irq.Latch
	wd    watchdog.Watchdog
	sink  telemetry.Sink

	// syncNow is the opportunistic clock correction; a seam for tests.
	syncNow func() (timesync.DriftMeasurement, error)

	// rolloverEvery throttles the continuous-mode day-rollover clock reads.
	rolloverEvery time.Duration

	// lastSyncDay gates the clock correction to one attempt per calendar
	// day, successful or not.
	lastSyncDay int
}

func newRuntime(cfg config.Config, dev clock.Device, rcv gnss.Receiver,
	store storage.Store, latch *irq.Latch, wd watchdog.Watchdog, sink telemetry.Sink) (*runtime, error) {

	normal, err := sched.ParseMode(cfg.Mode.Normal)
	if err != nil {
		return nil, err
	}
	schCfg := sched.Config{
		Normal:              normal,
		DailyStartHour:      cfg.Mode.Daily.StartHour,
		DailyStartMinute:    cfg.Mode.Daily.StartMinute,
		DailyStopHour:       cfg.Mode.Daily.StopHour,
		DailyStopMinute:     cfg.Mode.Daily.StopMinute,
		RollingAwakeHours:   cfg.Mode.Rolling.AwakeHours,
		RollingAwakeMinutes: cfg.Mode.Rolling.AwakeMinutes,
		RollingSleepHours:   cfg.Mode.Rolling.SleepHours,
		RollingSleepMinutes: cfg.Mode.Rolling.SleepMinutes,
		Seasonal: sched.SeasonalWindow{
			Enable:     cfg.Mode.Seasonal.Enable,
			StartMonth: cfg.Mode.Seasonal.StartMonth,
			StartDay:   cfg.Mode.Seasonal.StartDay,
			EndMonth:   cfg.Mode.Seasonal.EndMonth,
			EndDay:     cfg.Mode.Seasonal.EndDay,
		},
	}

	r := &runtime{
		cfg:           cfg,
		dev:           dev,
		rcv:           rcv,
		store:         store,
		sch:           sched.New(schCfg, dev),
		latch:         latch,
		wd:            wd,
		sink:          sink,
		rolloverEvery: 30 * time.Second,
	}
	tsc := timesync.New(timesync.Config{Timeout: cfg.Sync.Timeout}, rcv, dev, wd)
	r.syncNow = tsc.Sync
	return r, nil
}

// run is the supervisor loop: program the boot alarm, then alternate
// between waiting for a wake interrupt and running a logging session.
func (r *runtime) run(ctx context.Context) error {
	if err := r.sch.SetInitialAlarm(); err != nil {
		return fmt.Errorf("initial alarm: %w", err)
	}

	for ctx.Err() == nil {
		if !r.sch.LoggingActive() {
			if err := r.waitForAlarm(ctx); err != nil {
				return nil
			}
			r.latch.Consume()
			if err := r.sch.SetAwakeAlarm(); err != nil {
				return fmt.Errorf("awake alarm: %w", err)
			}
			if !r.sch.LoggingActive() {
				continue
			}
		}
		if err := r.runSession(ctx); err != nil {
			return err
		}
	}
	return nil
}

// waitForAlarm blocks until the interrupt latch fires, servicing the
// watchdog once per period so deep idle never looks like a hang.
func (r *runtime) waitForAlarm(ctx context.Context) error {
	for {
		r.wd.Service()
		wctx, cancel := context.WithTimeout(ctx, r.cfg.Watchdog.Period)
		err := r.latch.Wait(wctx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (r *runtime) runSession(ctx context.Context) error {
	start, err := r.dev.Time()
	if err != nil {
		return fmt.Errorf("session clock read: %w", err)
	}
	dc := r.cfg.Device
	name := logwriter.Filename(dc.ID, dc.Unit, dc.Ext, start)
	record := telemetry.NewRecord(dc.ID, name)
	record.StartEpoch = start.Epoch

	// The unit is awake anyway; correct the clock on the first session of
	// each calendar day. A correction larger than the drift limit
	// regenerates the not-yet-created filename, once.
	day := start.Year*10000 + start.Month*100 + start.Day
	if day == r.lastSyncDay {
		logging.Debugf("session: clock sync already attempted today, skipping")
	} else {
		// One attempt per day, successful or not.
		r.lastSyncDay = day
		if m, err := r.syncNow(); err == nil {
			record.SyncOK = true
			record.DriftSeconds = int64(m.Drift / time.Second)
			if m.Drift > r.cfg.Sync.MaxFilenameDrift || -m.Drift > r.cfg.Sync.MaxFilenameDrift {
				if snap, err := r.dev.Time(); err == nil {
					name = logwriter.Filename(dc.ID, dc.Unit, dc.Ext, snap)
					record.Filename = name
					record.StartEpoch = snap.Epoch
					start = snap
					logging.Infof("session: filename regenerated after %s drift: %s", m.Drift, name)
				}
			}
			if fx, ok := r.rcv.Fix(); ok {
				record.Sats = fx.Sats
			}
		} else if errors.Is(err, timesync.ErrSyncTimeout) {
			logging.Warnf("session: time sync timed out, logging on uncorrected clock")
		} else {
			logging.Warnf("session: time sync: %v", err)
		}
	}

	if free, err := r.store.FreeBytes(); err == nil {
		record.FreeBytes = free
		if r.cfg.Logging.MinFreeBytes > 0 && free < r.cfg.Logging.MinFreeBytes {
			logging.Errorf("session: %d bytes free, below minimum %d, skipping", free, r.cfg.Logging.MinFreeBytes)
			return r.finishWithoutLogging(ctx, record)
		}
	}

	// Drop bytes buffered while asleep; the session starts at the alarm.
	r.rcv.ClearBuffer()

	f, err := r.store.Open(name)
	if err != nil {
		logging.Errorf("session: open %s: %v", name, err)
		return r.finishWithoutLogging(ctx, record)
	}

	logging.Infof("session: start file=%s epoch=%d", name, record.StartEpoch)
	sess := logwriter.NewSession(name, record.StartEpoch)
	w := logwriter.New(logwriter.Config{
		BlockBytes:    r.cfg.Logging.BlockBytes,
		FlushInterval: r.cfg.Logging.FlushInterval,
		PollInterval:  r.cfg.Logging.PollInterval,
	}, r.rcv, r.wd)
	_ = w.Run(sess, f, r.sessionStop(ctx, start))

	if end, err := r.dev.Time(); err == nil {
		record.EndEpoch = end.Epoch
	}
	record.BytesWritten = sess.BytesWritten
	record.WriteFailCount = sess.WriteFailCount
	record.SyncFailCount = sess.SyncFailCount
	record.CloseFailCount = sess.CloseFailCount
	record.HighWater = sess.HighWater
	record.OverflowRisk = sess.OverflowRisk
	record.BufferCapacity = r.rcv.BufferCapacity()
	record.Dropped = r.rcv.Dropped()

	r.latch.Consume()
	if err := r.sch.SetSleepAlarm(); err != nil {
		return fmt.Errorf("sleep alarm: %w", err)
	}
	_ = r.sink.Report(record)
	logging.Infof("session: end file=%s bytes=%d writeFails=%d", name, record.BytesWritten, record.WriteFailCount)
	return nil
}

// sessionStop ends the drain loop on the sleep interrupt, on shutdown, or
// (continuous mode only) at the day rollover so files rotate daily.
func (r *runtime) sessionStop(ctx context.Context, start clock.Snapshot) func() bool {
	rotate := r.sch.EffectiveMode(start) == sched.ModeContinuous
	lastCheck := time.Now()
	return func() bool {
		if r.latch.Fired() || ctx.Err() != nil {
			return true
		}
		if !rotate {
			return false
		}
		if time.Since(lastCheck) < r.rolloverEvery {
			return false
		}
		lastCheck = time.Now()
		now, err := r.dev.Time()
		if err != nil {
			return false
		}
		return now.Day != start.Day || now.Month != start.Month || now.Year != start.Year
	}
}

// finishWithoutLogging closes out a session that never opened a file: the
// sleep alarm still gets programmed and the record still gets reported,
// after a short pause so continuous mode cannot spin on a dead card.
func (r *runtime) finishWithoutLogging(ctx context.Context, record telemetry.Record) error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) && ctx.Err() == nil && !r.latch.Fired() {
		r.wd.Service()
		wctx, cancel := context.WithTimeout(ctx, r.cfg.Watchdog.Period)
		_ = r.latch.Wait(wctx)
		cancel()
	}
	r.latch.Consume()
	if err := r.sch.SetSleepAlarm(); err != nil {
		return fmt.Errorf("sleep alarm: %w", err)
	}
	if end, err := r.dev.Time(); err == nil {
		record.EndEpoch = end.Epoch
	}
	_ = r.sink.Report(record)
	return nil
}
