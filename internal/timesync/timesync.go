// Package timesync corrects the hardware clock from the receiver's
// time solution when the unit is awake anyway. The clock is the single
// source of truth for alarms and filenames; a sync failure leaves it
// untouched and logging proceeds on the uncorrected clock.
package timesync

import (
	"errors"
	"fmt"
	"time"

	"navlogger/internal/clock"
	"navlogger/internal/gnss"
	"navlogger/internal/logging"
)

// ErrSyncTimeout reports that no usable fix arrived inside the window.
var ErrSyncTimeout = errors.New("timesync: no usable fix before deadline")

// FixSource is the slice of the receiver the controller consumes.
type FixSource interface {
	Fix() (gnss.Fix, bool)
}

// Petter is serviced once per poll so a hung receiver cannot outlast the
// watchdog budget.
type Petter interface {
	Service()
}

// DriftMeasurement is the observed clock error at the moment of sync.
// Drift is fix minus local: positive means the hardware clock ran slow.
type DriftMeasurement struct {
	FixEpoch   int64
	ClockEpoch int64
	Drift      time.Duration
}

type Config struct {
	// Timeout bounds the whole attempt; 0 means 300s.
	Timeout time.Duration
	// PollInterval between fix samples; 0 means 1s.
	PollInterval time.Duration
}

type Controller struct {
	cfg Config
	src FixSource
	dev clock.Device
	wd  Petter

	now   func() time.Time
	sleep func(time.Duration)
}

func New(cfg Config, src FixSource, dev clock.Device, wd Petter) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Controller{
		cfg:   cfg,
		src:   src,
		dev:   dev,
		wd:    wd,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Sync polls the receiver until the first 3D fix whose time and date are
// both valid, then writes the fix epoch to the hardware clock. There is
// no averaging and no second sample: one good fix wins.
func (c *Controller) Sync() (DriftMeasurement, error) {
	if c == nil || c.src == nil || c.dev == nil {
		return DriftMeasurement{}, fmt.Errorf("timesync: controller not initialized")
	}

	deadline := c.now().Add(c.cfg.Timeout)
	for {
		c.wd.Service()

		fx, ok := c.src.Fix()
		if ok && usable(fx) {
			local, err := c.dev.Epoch()
			if err != nil {
				return DriftMeasurement{}, fmt.Errorf("timesync: read clock: %w", err)
			}
			if err := c.dev.SetEpoch(fx.Epoch); err != nil {
				return DriftMeasurement{}, fmt.Errorf("timesync: set clock: %w", err)
			}
			m := DriftMeasurement{
				FixEpoch:   fx.Epoch,
				ClockEpoch: local,
				Drift:      time.Duration(fx.Epoch-local) * time.Second,
			}
			logging.Infof("timesync: clock set from fix epoch=%d drift=%s sats=%d", fx.Epoch, m.Drift, fx.Sats)
			return m, nil
		}

		if !c.now().Before(deadline) {
			return DriftMeasurement{}, ErrSyncTimeout
		}
		c.sleep(c.cfg.PollInterval)
	}
}

func usable(fx gnss.Fix) bool {
	return fx.Quality == gnss.Quality3D && fx.TimeValid && fx.DateValid && fx.Epoch > 0
}
