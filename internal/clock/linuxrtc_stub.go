//go:build !linux

package clock

import (
	"fmt"
	"time"
)

type LinuxRTC struct{}

func OpenLinuxRTC(path string) (*LinuxRTC, error) {
	return nil, fmt.Errorf("clock: /dev/rtc unsupported on this platform")
}

func (r *LinuxRTC) Close() error                  { return nil }
func (r *LinuxRTC) Time() (Snapshot, error)       { return Snapshot{}, fmt.Errorf("clock: unsupported OS") }
func (r *LinuxRTC) SetTime(Snapshot) error        { return fmt.Errorf("clock: unsupported OS") }
func (r *LinuxRTC) Epoch() (int64, error)         { return 0, fmt.Errorf("clock: unsupported OS") }
func (r *LinuxRTC) SetEpoch(int64) error          { return fmt.Errorf("clock: unsupported OS") }
func (r *LinuxRTC) SetAlarm(AlarmSpec) error      { return fmt.Errorf("clock: unsupported OS") }
func (r *LinuxRTC) SetAlarmMode(Granularity) error {
	return fmt.Errorf("clock: unsupported OS")
}
func (r *LinuxRTC) ClearAlarmInterrupt() error         { return fmt.Errorf("clock: unsupported OS") }
func (r *LinuxRTC) NextAlarmIn() (time.Duration, error) { return 0, fmt.Errorf("clock: unsupported OS") }
