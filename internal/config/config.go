package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Mode      ModeConfig      `yaml:"mode"`
	Sync      SyncConfig      `yaml:"sync"`
	Logging   LoggingConfig   `yaml:"logging"`
	GNSS      GNSSConfig      `yaml:"gnss"`
	RTC       RTCConfig       `yaml:"rtc"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type DeviceConfig struct {
	// ID and Unit form the log filename prefix: <id>_<unit>_20YYMMDD_HHMMSS.<ext>
	ID   string `yaml:"id"`
	Unit string `yaml:"unit"`
	Ext  string `yaml:"ext"`
}

type ModeConfig struct {
	// Normal is the persistent user intent: "daily", "rolling" or "continuous".
	// The effective mode is re-derived every scheduling decision and may be
	// forced to continuous by the seasonal window.
	Normal string `yaml:"normal"`

	Daily    DailyConfig    `yaml:"daily"`
	Rolling  RollingConfig  `yaml:"rolling"`
	Seasonal SeasonalConfig `yaml:"seasonal"`
}

type DailyConfig struct {
	StartHour   int `yaml:"start_hour"`
	StartMinute int `yaml:"start_minute"`
	StopHour    int `yaml:"stop_hour"`
	StopMinute  int `yaml:"stop_minute"`
}

type RollingConfig struct {
	AwakeHours   int `yaml:"awake_hours"`
	AwakeMinutes int `yaml:"awake_minutes"`
	SleepHours   int `yaml:"sleep_hours"`
	SleepMinutes int `yaml:"sleep_minutes"`
}

type SeasonalConfig struct {
	Enable     bool `yaml:"enable"`
	StartMonth int  `yaml:"start_month"`
	StartDay   int  `yaml:"start_day"`
	EndMonth   int  `yaml:"end_month"`
	EndDay     int  `yaml:"end_day"`
}

type SyncConfig struct {
	// Timeout bounds how long a resynchronization waits for an acceptable fix.
	Timeout time.Duration `yaml:"timeout"`
	// MaxFilenameDrift is the drift beyond which a not-yet-created session
	// filename is regenerated from the corrected clock.
	MaxFilenameDrift time.Duration `yaml:"max_filename_drift"`
}

type LoggingConfig struct {
	Dir           string        `yaml:"dir"`
	BlockBytes    int           `yaml:"block_bytes"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	// MinFreeBytes refuses to open a new session below this much free space.
	MinFreeBytes uint64 `yaml:"min_free_bytes"`
}

type GNSSConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// BufferBytes is the raw-stream ring capacity. The receiver keeps
	// producing regardless of drain speed; overflow drops are counted.
	BufferBytes int `yaml:"buffer_bytes"`
}

type RTCConfig struct {
	// Source selects the clock backend: "linux" (/dev/rtcN) or "i2c" (PCF8523).
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
	I2CBus string `yaml:"i2c_bus"`
	Addr   uint16 `yaml:"addr"`
	// IntPin is the BCM GPIO wired to the RTC interrupt output.
	IntPin int `yaml:"int_pin"`
	// FaultPin drives the boot-failure signaling LED.
	FaultPin int `yaml:"fault_pin"`
}

type WatchdogConfig struct {
	// Backend is "linux" (/dev/watchdog), "gpio" (external pet line) or "off".
	Backend   string        `yaml:"backend"`
	Path      string        `yaml:"path"`
	PetPin    int           `yaml:"pet_pin"`
	Period    time.Duration `yaml:"period"`
	MaxMissed int           `yaml:"max_missed"`
}

type TelemetryConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	UDPDest    string `yaml:"udp_dest"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(cfg.Device.ID) == "" {
		return fmt.Errorf("device.id is required")
	}
	if cfg.Device.Unit == "" {
		cfg.Device.Unit = "GPS"
	}
	if cfg.Device.Ext == "" {
		cfg.Device.Ext = "ubx"
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Mode.Normal)) {
	case "":
		cfg.Mode.Normal = "daily"
	case "daily", "rolling", "continuous":
		cfg.Mode.Normal = strings.ToLower(strings.TrimSpace(cfg.Mode.Normal))
	default:
		return fmt.Errorf("mode.normal must be daily, rolling or continuous")
	}

	if err := validHourMinute("mode.daily.start", cfg.Mode.Daily.StartHour, cfg.Mode.Daily.StartMinute); err != nil {
		return err
	}
	if err := validHourMinute("mode.daily.stop", cfg.Mode.Daily.StopHour, cfg.Mode.Daily.StopMinute); err != nil {
		return err
	}

	if cfg.Mode.Rolling.AwakeHours == 0 && cfg.Mode.Rolling.AwakeMinutes == 0 {
		cfg.Mode.Rolling.AwakeMinutes = 30
	}
	if cfg.Mode.Rolling.SleepHours == 0 && cfg.Mode.Rolling.SleepMinutes == 0 {
		cfg.Mode.Rolling.SleepMinutes = 30
	}
	if cfg.Mode.Rolling.AwakeHours < 0 || cfg.Mode.Rolling.AwakeMinutes < 0 ||
		cfg.Mode.Rolling.SleepHours < 0 || cfg.Mode.Rolling.SleepMinutes < 0 {
		return fmt.Errorf("mode.rolling durations must not be negative")
	}

	if cfg.Mode.Seasonal.Enable {
		if err := validMonthDay("mode.seasonal.start", cfg.Mode.Seasonal.StartMonth, cfg.Mode.Seasonal.StartDay); err != nil {
			return err
		}
		if err := validMonthDay("mode.seasonal.end", cfg.Mode.Seasonal.EndMonth, cfg.Mode.Seasonal.EndDay); err != nil {
			return err
		}
	}

	if cfg.Sync.Timeout <= 0 {
		cfg.Sync.Timeout = 300 * time.Second
	}
	if cfg.Sync.MaxFilenameDrift <= 0 {
		cfg.Sync.MaxFilenameDrift = 30 * time.Second
	}

	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "/media/card"
	}
	if cfg.Logging.BlockBytes <= 0 {
		cfg.Logging.BlockBytes = 512
	}
	if cfg.Logging.FlushInterval <= 0 {
		cfg.Logging.FlushInterval = 5000 * time.Millisecond
	}
	if cfg.Logging.PollInterval <= 0 {
		cfg.Logging.PollInterval = 10 * time.Millisecond
	}

	if cfg.GNSS.Baud == 0 {
		cfg.GNSS.Baud = 9600
	}
	if cfg.GNSS.BufferBytes <= 0 {
		cfg.GNSS.BufferBytes = 16 * 1024
	}
	if cfg.GNSS.BufferBytes < cfg.Logging.BlockBytes {
		return fmt.Errorf("gnss.buffer_bytes must be at least logging.block_bytes")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.RTC.Source)) {
	case "":
		cfg.RTC.Source = "linux"
	case "linux", "i2c":
		cfg.RTC.Source = strings.ToLower(strings.TrimSpace(cfg.RTC.Source))
	default:
		return fmt.Errorf("rtc.source must be linux or i2c")
	}
	if cfg.RTC.Path == "" {
		cfg.RTC.Path = "/dev/rtc0"
	}
	if cfg.RTC.I2CBus == "" {
		cfg.RTC.I2CBus = "/dev/i2c-1"
	}
	if cfg.RTC.Addr == 0 {
		cfg.RTC.Addr = 0x68
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Watchdog.Backend)) {
	case "":
		cfg.Watchdog.Backend = "off"
	case "linux", "gpio", "off":
		cfg.Watchdog.Backend = strings.ToLower(strings.TrimSpace(cfg.Watchdog.Backend))
	default:
		return fmt.Errorf("watchdog.backend must be linux, gpio or off")
	}
	if cfg.Watchdog.Path == "" {
		cfg.Watchdog.Path = "/dev/watchdog"
	}
	if cfg.Watchdog.Period <= 0 {
		cfg.Watchdog.Period = 1 * time.Second
	}
	if cfg.Watchdog.MaxMissed <= 0 {
		cfg.Watchdog.MaxMissed = 4
	}

	return nil
}

func validHourMinute(field string, h, m int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("%s_hour must be 0..23", field)
	}
	if m < 0 || m > 59 {
		return fmt.Errorf("%s_minute must be 0..59", field)
	}
	return nil
}

func validMonthDay(field string, month, day int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%s_month must be 1..12", field)
	}
	if day < 1 || day > 31 {
		return fmt.Errorf("%s_day must be 1..31", field)
	}
	return nil
}
