//go:build linux

package clock

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// LinuxRTC drives a kernel RTC (/dev/rtcN) through the rtc ioctl interface.
//
// The kernel wake alarm takes one absolute calendar time, so match
// granularity is emulated: every SetAlarm/SetAlarmMode programs the next
// concrete fire time computed by NextFire. The supervisor reprograms after
// every wake, which keeps the emulation equivalent to a repeating alarm.
type LinuxRTC struct {
	f *os.File

	mode Granularity
	spec AlarmSpec
}

func OpenLinuxRTC(path string) (*LinuxRTC, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("rtc: open %s: %w", path, err)
	}
	return &LinuxRTC{f: f}, nil
}

func (r *LinuxRTC) Close() error {
	if r == nil || r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

func (r *LinuxRTC) Time() (Snapshot, error) {
	if r == nil || r.f == nil {
		return Snapshot{}, fmt.Errorf("rtc: device not open")
	}
	rt, err := unix.IoctlGetRTCTime(int(r.f.Fd()))
	if err != nil {
		return Snapshot{}, fmt.Errorf("rtc: read time: %w", err)
	}
	s := Snapshot{
		Year:    int(rt.Year) + 1900,
		Month:   int(rt.Mon) + 1,
		Day:     int(rt.Mday),
		Weekday: int(rt.Wday),
		Hour:    int(rt.Hour),
		Minute:  int(rt.Min),
		Second:  int(rt.Sec),
	}
	s.Epoch = s.Time().Unix()
	return s, nil
}

func (r *LinuxRTC) SetTime(s Snapshot) error {
	if r == nil || r.f == nil {
		return fmt.Errorf("rtc: device not open")
	}
	rt := unix.RTCTime{
		Sec:  int32(s.Second),
		Min:  int32(s.Minute),
		Hour: int32(s.Hour),
		Mday: int32(s.Day),
		Mon:  int32(s.Month - 1),
		Year: int32(s.Year - 1900),
		Wday: int32(s.Weekday),
	}
	if err := unix.IoctlSetRTCTime(int(r.f.Fd()), &rt); err != nil {
		return fmt.Errorf("rtc: set time: %w", err)
	}
	return nil
}

func (r *LinuxRTC) Epoch() (int64, error) {
	s, err := r.Time()
	if err != nil {
		return 0, err
	}
	return s.Epoch, nil
}

func (r *LinuxRTC) SetEpoch(epoch int64) error {
	return r.SetTime(FromEpoch(epoch))
}

func (r *LinuxRTC) SetAlarm(a AlarmSpec) error {
	if r == nil || r.f == nil {
		return fmt.Errorf("rtc: device not open")
	}
	r.spec = a
	if r.mode == AlarmOff {
		return nil
	}
	return r.program()
}

func (r *LinuxRTC) SetAlarmMode(g Granularity) error {
	if r == nil || r.f == nil {
		return fmt.Errorf("rtc: device not open")
	}
	r.mode = g
	if g == AlarmOff {
		return r.alarmEnable(false)
	}
	return r.program()
}

func (r *LinuxRTC) ClearAlarmInterrupt() error {
	if r == nil || r.f == nil {
		return fmt.Errorf("rtc: device not open")
	}
	// Dropping AIE discards any latched alarm; program() re-enables it.
	return r.alarmEnable(false)
}

func (r *LinuxRTC) program() error {
	now, err := r.Time()
	if err != nil {
		return err
	}
	spec := r.spec
	spec.Granularity = r.mode
	fire, err := NextFire(now.Time(), spec)
	if err != nil {
		return err
	}
	wk := unix.RTCWkAlrm{
		Enabled: 1,
		Time: unix.RTCTime{
			Sec:  int32(fire.Second()),
			Min:  int32(fire.Minute()),
			Hour: int32(fire.Hour()),
			Mday: int32(fire.Day()),
			Mon:  int32(int(fire.Month()) - 1),
			Year: int32(fire.Year() - 1900),
			Wday: int32(fire.Weekday()),
		},
	}
	if err := unix.IoctlSetRTCWkAlrm(int(r.f.Fd()), &wk); err != nil {
		return fmt.Errorf("rtc: set wake alarm: %w", err)
	}
	return r.alarmEnable(true)
}

func (r *LinuxRTC) alarmEnable(on bool) error {
	req := uintptr(unix.RTC_AIE_OFF)
	if on {
		req = uintptr(unix.RTC_AIE_ON)
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, r.f.Fd(), req, 0)
	if errno != 0 {
		return fmt.Errorf("rtc: alarm irq enable=%v: %w", on, errno)
	}
	return nil
}

// NextAlarmIn reports how far away the programmed alarm is, for sleep-length
// logging at the start of each low-power wait.
func (r *LinuxRTC) NextAlarmIn() (time.Duration, error) {
	if r == nil || r.f == nil {
		return 0, fmt.Errorf("rtc: device not open")
	}
	wk, err := unix.IoctlGetRTCWkAlrm(int(r.f.Fd()))
	if err != nil {
		return 0, fmt.Errorf("rtc: read wake alarm: %w", err)
	}
	now, err := r.Time()
	if err != nil {
		return 0, err
	}
	fire := Snapshot{
		Year:   int(wk.Time.Year) + 1900,
		Month:  int(wk.Time.Mon) + 1,
		Day:    int(wk.Time.Mday),
		Hour:   int(wk.Time.Hour),
		Minute: int(wk.Time.Min),
		Second: int(wk.Time.Sec),
	}
	return fire.Time().Sub(now.Time()), nil
}
