// Package sched derives the effective operating mode each cycle and programs
// the next wake or sleep deadline on the clock hardware.
package sched

import (
	"fmt"

	"navlogger/internal/clock"
	"navlogger/internal/logging"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingWake
	StateAwaitingSleep
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingWake:
		return "awaiting-wake"
	case StateAwaitingSleep:
		return "awaiting-sleep"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type event int

const (
	eventBoot event = iota
	eventWake
	eventSleep
)

type Config struct {
	Normal Mode

	DailyStartHour   int
	DailyStartMinute int
	DailyStopHour    int
	DailyStopMinute  int

	RollingAwakeHours   int
	RollingAwakeMinutes int
	RollingSleepHours   int
	RollingSleepMinutes int

	Seasonal SeasonalWindow
}

type Scheduler struct {
	cfg Config
	dev clock.Device

	state   State
	logging bool
}

func New(cfg Config, dev clock.Device) *Scheduler {
	return &Scheduler{cfg: cfg, dev: dev, state: StateIdle}
}

func (s *Scheduler) State() State { return s.state }

// LoggingActive reports whether the current session should be running.
func (s *Scheduler) LoggingActive() bool { return s.logging }

// EffectiveMode re-derives the mode for the given instant. Never cached.
func (s *Scheduler) EffectiveMode(now clock.Snapshot) Mode {
	return DeriveMode(now.Month, now.Day, s.cfg.Normal, s.cfg.Seasonal)
}

// decision is the output of the single transition function all three alarm
// entry points share.
type decision struct {
	state   State
	logging bool
	spec    clock.AlarmSpec
	program bool
}

// SetInitialAlarm programs the boot-time alarm. Continuous mode starts
// logging immediately and programs nothing.
func (s *Scheduler) SetInitialAlarm() error {
	return s.apply(eventBoot, true)
}

// SetAwakeAlarm runs at wake: it computes and programs the next sleep
// deadline for the session that is starting.
func (s *Scheduler) SetAwakeAlarm() error {
	return s.apply(eventWake, false)
}

// SetSleepAlarm runs at session end: it computes and programs the next wake
// deadline.
func (s *Scheduler) SetSleepAlarm() error {
	return s.apply(eventSleep, false)
}

func (s *Scheduler) apply(ev event, clearAfter bool) error {
	if s == nil || s.dev == nil {
		return fmt.Errorf("sched: scheduler is nil")
	}
	now, err := s.dev.Time()
	if err != nil {
		return fmt.Errorf("sched: clock read: %w", err)
	}

	d := s.transition(now, ev)
	s.state = d.state
	s.logging = d.logging

	if !d.program {
		logging.Debugf("sched: no alarm programmed state=%s logging=%v", d.state, d.logging)
		return nil
	}

	// Drop any latched alarm before touching the registers so a stale flag
	// cannot refire the instant the new alarm is armed.
	if err := s.dev.ClearAlarmInterrupt(); err != nil {
		return fmt.Errorf("sched: clear alarm interrupt: %w", err)
	}
	// The spec may carry fields the granularity ignores (rolling computes an
	// hour the hourly match never consults); backends must not rely on them.
	spec := d.spec
	if err := s.dev.SetAlarm(spec); err != nil {
		return fmt.Errorf("sched: set alarm: %w", err)
	}
	if err := s.dev.SetAlarmMode(spec.Granularity); err != nil {
		return fmt.Errorf("sched: set alarm mode: %w", err)
	}
	if clearAfter {
		if err := s.dev.ClearAlarmInterrupt(); err != nil {
			return fmt.Errorf("sched: clear alarm interrupt: %w", err)
		}
	}
	logging.Infof("sched: alarm %02d:%02d:%02d gran=%s state=%s logging=%v",
		spec.Hour, spec.Minute, spec.Second, spec.Granularity, d.state, d.logging)
	return nil
}

// transition is the consolidated (state, mode, event) -> (state, alarm)
// function. The effective mode is re-derived here on every call.
func (s *Scheduler) transition(now clock.Snapshot, ev event) decision {
	mode := DeriveMode(now.Month, now.Day, s.cfg.Normal, s.cfg.Seasonal)

	if mode == ModeContinuous {
		// Continuous has no alarm state: logging is always active.
		return decision{state: StateIdle, logging: true}
	}

	switch ev {
	case eventBoot:
		switch mode {
		case ModeDaily:
			return decision{
				state:   StateAwaitingWake,
				spec:    s.dailyStartSpec(),
				program: true,
			}
		case ModeRolling:
			return decision{
				state:   StateAwaitingWake,
				spec:    s.rollingSpec(now, s.cfg.RollingSleepHours, s.cfg.RollingSleepMinutes),
				program: true,
			}
		}

	case eventWake:
		switch mode {
		case ModeDaily:
			return decision{
				state:   StateAwaitingSleep,
				logging: true,
				spec: clock.AlarmSpec{
					Hour:        s.cfg.DailyStopHour,
					Minute:      s.cfg.DailyStopMinute,
					Granularity: clock.EveryDay,
				},
				program: true,
			}
		case ModeRolling:
			return decision{
				state:   StateAwaitingSleep,
				logging: true,
				spec:    s.rollingSpec(now, s.cfg.RollingAwakeHours, s.cfg.RollingAwakeMinutes),
				program: true,
			}
		}

	case eventSleep:
		switch mode {
		case ModeDaily:
			if s.seasonalStartsTomorrow(now) && s.dailyStopPassed(now) {
				// The override engages at midnight: wake at 00:00 on the
				// window start date and schedule nothing else today.
				return decision{
					state:   StateAwaitingWake,
					spec:    clock.AlarmSpec{Granularity: clock.EveryDay},
					program: true,
				}
			}
			return decision{
				state:   StateAwaitingWake,
				spec:    s.dailyStartSpec(),
				program: true,
			}
		case ModeRolling:
			return decision{
				state:   StateAwaitingWake,
				spec:    s.rollingSpec(now, s.cfg.RollingSleepHours, s.cfg.RollingSleepMinutes),
				program: true,
			}
		}
	}

	return decision{state: s.state, logging: s.logging}
}

func (s *Scheduler) dailyStartSpec() clock.AlarmSpec {
	return clock.AlarmSpec{
		Hour:        s.cfg.DailyStartHour,
		Minute:      s.cfg.DailyStartMinute,
		Granularity: clock.EveryDay,
	}
}

// rollingSpec adds a duration to the current time with each field wrapped
// independently: minute overflow does not carry into the hour. Inherited
// arithmetic; tests pin it down.
func (s *Scheduler) rollingSpec(now clock.Snapshot, hours, minutes int) clock.AlarmSpec {
	return clock.AlarmSpec{
		Hour:        (now.Hour + hours) % 24,
		Minute:      (now.Minute + minutes) % 60,
		Granularity: clock.EveryHour,
	}
}

func (s *Scheduler) seasonalStartsTomorrow(now clock.Snapshot) bool {
	w := s.cfg.Seasonal
	if !w.Enable {
		return false
	}
	tomorrow := now.Time().AddDate(0, 0, 1)
	return int(tomorrow.Month()) == w.StartMonth && tomorrow.Day() == w.StartDay
}

func (s *Scheduler) dailyStopPassed(now clock.Snapshot) bool {
	return now.Hour*60+now.Minute >= s.cfg.DailyStopHour*60+s.cfg.DailyStopMinute
}
