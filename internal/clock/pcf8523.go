package clock

import (
	"fmt"

	"navlogger/internal/i2c"
)

// PCF8523 register map (time and alarm registers are BCD).
const (
	pcfRegControl1 = 0x00
	pcfRegControl2 = 0x01
	pcfRegSeconds  = 0x03
	pcfRegMinutes  = 0x04
	pcfRegHours    = 0x05
	pcfRegDays     = 0x06
	pcfRegWeekdays = 0x07
	pcfRegMonths   = 0x08
	pcfRegYears    = 0x09
	pcfRegAlarmMin = 0x0A

	pcfCtrl1AIE  = 0x02 // alarm interrupt enable
	pcfCtrl2AF   = 0x08 // alarm flag, write 0 to clear
	pcfSecondsOS = 0x80 // oscillator stopped
	pcfAlarmDis  = 0x80 // per-field alarm disable bit
)

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
	Write(p []byte) error
}

// PCF8523 is an I2C RTC with minute/hour/day/weekday alarm match fields.
// Per-second and per-year granularities are not expressible on this part.
type PCF8523 struct {
	dev regIO

	mode Granularity
	spec AlarmSpec
}

func NewPCF8523(dev *i2c.Dev) (*PCF8523, error) {
	if dev == nil {
		return nil, fmt.Errorf("pcf8523: dev is nil")
	}
	return newPCF8523WithIO(dev)
}

func newPCF8523WithIO(dev regIO) (*PCF8523, error) {
	if dev == nil {
		return nil, fmt.Errorf("pcf8523: dev is nil")
	}
	d := &PCF8523{dev: dev}
	sec, err := dev.ReadRegU8(pcfRegSeconds)
	if err != nil {
		return nil, fmt.Errorf("pcf8523: probe failed: %w", err)
	}
	if sec&pcfSecondsOS != 0 {
		// Oscillator stop means the calendar is meaningless until the next
		// time sync writes it; still usable as a device.
		_ = d.dev.WriteReg(pcfRegSeconds, sec&^pcfSecondsOS)
	}
	return d, nil
}

func (d *PCF8523) Close() error { return nil }

func (d *PCF8523) Time() (Snapshot, error) {
	if d == nil || d.dev == nil {
		return Snapshot{}, fmt.Errorf("pcf8523: device is nil")
	}
	var raw [7]byte
	if err := d.dev.ReadReg(pcfRegSeconds, raw[:]); err != nil {
		return Snapshot{}, fmt.Errorf("pcf8523: read time: %w", err)
	}
	s := Snapshot{
		Second:  fromBCD(raw[0] &^ pcfSecondsOS),
		Minute:  fromBCD(raw[1] & 0x7F),
		Hour:    fromBCD(raw[2] & 0x3F),
		Day:     fromBCD(raw[3] & 0x3F),
		Weekday: int(raw[4] & 0x07),
		Month:   fromBCD(raw[5] & 0x1F),
		Year:    2000 + fromBCD(raw[6]),
	}
	s.Epoch = s.Time().Unix()
	return s, nil
}

func (d *PCF8523) SetTime(s Snapshot) error {
	if d == nil || d.dev == nil {
		return fmt.Errorf("pcf8523: device is nil")
	}
	if s.Year < 2000 || s.Year > 2099 {
		return fmt.Errorf("pcf8523: year %d out of range", s.Year)
	}
	buf := []byte{
		pcfRegSeconds,
		toBCD(s.Second),
		toBCD(s.Minute),
		toBCD(s.Hour),
		toBCD(s.Day),
		byte(s.Weekday & 0x07),
		toBCD(s.Month),
		toBCD(s.Year - 2000),
	}
	if err := d.dev.Write(buf); err != nil {
		return fmt.Errorf("pcf8523: set time: %w", err)
	}
	return nil
}

func (d *PCF8523) Epoch() (int64, error) {
	s, err := d.Time()
	if err != nil {
		return 0, err
	}
	return s.Epoch, nil
}

func (d *PCF8523) SetEpoch(epoch int64) error {
	return d.SetTime(FromEpoch(epoch))
}

func (d *PCF8523) SetAlarm(a AlarmSpec) error {
	if d == nil || d.dev == nil {
		return fmt.Errorf("pcf8523: device is nil")
	}
	d.spec = a
	if d.mode == AlarmOff {
		return nil
	}
	return d.program()
}

func (d *PCF8523) SetAlarmMode(g Granularity) error {
	if d == nil || d.dev == nil {
		return fmt.Errorf("pcf8523: device is nil")
	}
	switch g {
	case EverySecond, EveryYear:
		return fmt.Errorf("pcf8523: granularity %s not supported", g)
	}
	d.mode = g
	if g == AlarmOff {
		return d.setAIE(false)
	}
	return d.program()
}

func (d *PCF8523) ClearAlarmInterrupt() error {
	if d == nil || d.dev == nil {
		return fmt.Errorf("pcf8523: device is nil")
	}
	c2, err := d.dev.ReadRegU8(pcfRegControl2)
	if err != nil {
		return fmt.Errorf("pcf8523: read control2: %w", err)
	}
	if err := d.dev.WriteReg(pcfRegControl2, c2&^pcfCtrl2AF); err != nil {
		return fmt.Errorf("pcf8523: clear alarm flag: %w", err)
	}
	return nil
}

// program writes the four alarm match registers. A set disable bit (0x80)
// excludes that field from the match, which is how granularity maps onto
// this part: coarser repeats enable more fields.
func (d *PCF8523) program() error {
	min := byte(pcfAlarmDis)
	hour := byte(pcfAlarmDis)
	day := byte(pcfAlarmDis)
	weekday := byte(pcfAlarmDis)

	switch d.mode {
	case EveryMinute:
		// All fields excluded: fires at every minute rollover.
	case EveryHour:
		min = toBCD(d.spec.Minute)
	case EveryDay:
		min = toBCD(d.spec.Minute)
		hour = toBCD(d.spec.Hour)
	case EveryWeek:
		// Weekly alarms reuse Day as a 0..6 weekday.
		min = toBCD(d.spec.Minute)
		hour = toBCD(d.spec.Hour)
		weekday = byte(d.spec.Day & 0x07)
	case EveryMonth:
		min = toBCD(d.spec.Minute)
		hour = toBCD(d.spec.Hour)
		day = toBCD(d.spec.Day)
	default:
		return fmt.Errorf("pcf8523: granularity %s not supported", d.mode)
	}

	buf := []byte{pcfRegAlarmMin, min, hour, day, weekday}
	if err := d.dev.Write(buf); err != nil {
		return fmt.Errorf("pcf8523: set alarm: %w", err)
	}
	return d.setAIE(true)
}

func (d *PCF8523) setAIE(on bool) error {
	c1, err := d.dev.ReadRegU8(pcfRegControl1)
	if err != nil {
		return fmt.Errorf("pcf8523: read control1: %w", err)
	}
	if on {
		c1 |= pcfCtrl1AIE
	} else {
		c1 &^= pcfCtrl1AIE
	}
	if err := d.dev.WriteReg(pcfRegControl1, c1); err != nil {
		return fmt.Errorf("pcf8523: write control1: %w", err)
	}
	return nil
}

func toBCD(v int) byte {
	return byte((v/10)<<4 | v%10)
}

func fromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}
