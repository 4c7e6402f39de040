// Package clock models the battery-backed real-time clock: calendar
// read/write, epoch conversion, and the match-granularity alarm used to
// drive wake/sleep duty cycling.
package clock

import (
	"fmt"
	"time"
)

// Granularity selects which calendar/time fields an alarm must match to
// fire, from once per year down to once per second. Zero disables the alarm.
type Granularity uint8

const (
	AlarmOff    Granularity = iota
	EveryYear               // month, day and time-of-day must match
	EveryMonth              // day and time-of-day must match
	EveryWeek               // weekday and time-of-day must match
	EveryDay                // hour, minute, second must match
	EveryHour               // minute and second must match
	EveryMinute             // second must match
	EverySecond             // subsecond must match
)

func (g Granularity) String() string {
	switch g {
	case AlarmOff:
		return "off"
	case EveryYear:
		return "yearly"
	case EveryMonth:
		return "monthly"
	case EveryWeek:
		return "weekly"
	case EveryDay:
		return "daily"
	case EveryHour:
		return "hourly"
	case EveryMinute:
		return "minutely"
	case EverySecond:
		return "secondly"
	}
	return fmt.Sprintf("granularity(%d)", uint8(g))
}

// Snapshot is one atomic read of the clock calendar plus its epoch seconds.
type Snapshot struct {
	Year      int // full year, e.g. 2026
	Month     int // 1..12
	Day       int // 1..31
	Weekday   int // 0=Sunday
	Hour      int
	Minute    int
	Second    int
	Subsecond int // hundredths

	Epoch int64
}

// AlarmSpec carries the alarm match fields. Fields the granularity ignores
// must not be relied upon; Normalized zeroes them.
type AlarmSpec struct {
	Hour      int
	Minute    int
	Second    int
	Subsecond int
	Day       int
	Month     int

	Granularity Granularity
}

// Normalized returns a copy with every field the granularity ignores set to
// zero, so specs compare cleanly and backends never see stale fields.
func (a AlarmSpec) Normalized() AlarmSpec {
	n := AlarmSpec{Granularity: a.Granularity}
	switch a.Granularity {
	case EveryYear:
		n.Month = a.Month
		n.Day = a.Day
		n.Hour = a.Hour
		n.Minute = a.Minute
		n.Second = a.Second
	case EveryMonth:
		n.Day = a.Day
		n.Hour = a.Hour
		n.Minute = a.Minute
		n.Second = a.Second
	case EveryWeek, EveryDay:
		n.Hour = a.Hour
		n.Minute = a.Minute
		n.Second = a.Second
	case EveryHour:
		n.Minute = a.Minute
		n.Second = a.Second
	case EveryMinute:
		n.Second = a.Second
	case EverySecond:
		n.Subsecond = a.Subsecond
	}
	return n
}

// Device is the clock hardware contract. Alarm programming is assumed to
// succeed; a mis-programmed alarm manifests only as a missed or early wake.
type Device interface {
	Time() (Snapshot, error)
	SetTime(Snapshot) error
	Epoch() (int64, error)
	SetEpoch(epoch int64) error

	SetAlarm(AlarmSpec) error
	SetAlarmMode(Granularity) error
	// ClearAlarmInterrupt drops any pending alarm flag in the hardware so a
	// freshly programmed alarm cannot refire immediately.
	ClearAlarmInterrupt() error

	Close() error
}

// At converts a wall-clock time (taken as UTC) into a Snapshot.
func At(t time.Time) Snapshot {
	t = t.UTC()
	return Snapshot{
		Year:      t.Year(),
		Month:     int(t.Month()),
		Day:       t.Day(),
		Weekday:   int(t.Weekday()),
		Hour:      t.Hour(),
		Minute:    t.Minute(),
		Second:    t.Second(),
		Subsecond: t.Nanosecond() / 1e7,
		Epoch:     t.Unix(),
	}
}

// FromEpoch converts epoch seconds into a Snapshot.
func FromEpoch(epoch int64) Snapshot {
	return At(time.Unix(epoch, 0))
}

// Time converts a Snapshot back into a UTC time.Time.
func (s Snapshot) Time() time.Time {
	return time.Date(s.Year, time.Month(s.Month), s.Day, s.Hour, s.Minute, s.Second, s.Subsecond*1e7, time.UTC)
}

// NextFire computes the first instant strictly after now at which the alarm
// would fire. Backends without native repeat support (the Linux RTC wake
// alarm takes one absolute time) use this to emulate match granularity.
func NextFire(now time.Time, a AlarmSpec) (time.Time, error) {
	now = now.UTC().Truncate(time.Second)
	a = a.Normalized()
	switch a.Granularity {
	case AlarmOff:
		return time.Time{}, fmt.Errorf("clock: alarm is disabled")
	case EverySecond:
		return now.Add(time.Second), nil
	case EveryMinute:
		c := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), a.Second, 0, time.UTC)
		if !c.After(now) {
			c = c.Add(time.Minute)
		}
		return c, nil
	case EveryHour:
		c := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), a.Minute, a.Second, 0, time.UTC)
		if !c.After(now) {
			c = c.Add(time.Hour)
		}
		return c, nil
	case EveryDay:
		c := time.Date(now.Year(), now.Month(), now.Day(), a.Hour, a.Minute, a.Second, 0, time.UTC)
		if !c.After(now) {
			c = c.AddDate(0, 0, 1)
		}
		return c, nil
	case EveryWeek:
		c := time.Date(now.Year(), now.Month(), now.Day(), a.Hour, a.Minute, a.Second, 0, time.UTC)
		for i := 0; i < 8; i++ {
			if c.After(now) {
				return c, nil
			}
			c = c.AddDate(0, 0, 1)
		}
		return c, nil
	case EveryMonth:
		c := time.Date(now.Year(), now.Month(), a.Day, a.Hour, a.Minute, a.Second, 0, time.UTC)
		// Skip months where the day normalizes away (e.g. 31st in April).
		for i := 0; i < 24 && (!c.After(now) || c.Day() != a.Day); i++ {
			c = time.Date(c.Year(), c.Month()+1, a.Day, a.Hour, a.Minute, a.Second, 0, time.UTC)
		}
		return c, nil
	case EveryYear:
		c := time.Date(now.Year(), time.Month(a.Month), a.Day, a.Hour, a.Minute, a.Second, 0, time.UTC)
		for i := 0; i < 8 && (!c.After(now) || c.Day() != a.Day); i++ {
			c = time.Date(c.Year()+1, time.Month(a.Month), a.Day, a.Hour, a.Minute, a.Second, 0, time.UTC)
		}
		return c, nil
	}
	return time.Time{}, fmt.Errorf("clock: unknown granularity %d", a.Granularity)
}
