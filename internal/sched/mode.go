package sched

import "fmt"

// Mode is the duty-cycling strategy. The configured mode is persistent user
// intent; the effective mode is re-derived at every scheduling decision and
// may differ while the seasonal window is active.
type Mode int

const (
	ModeDaily Mode = iota
	ModeRolling
	ModeContinuous
)

func (m Mode) String() string {
	switch m {
	case ModeDaily:
		return "daily"
	case ModeRolling:
		return "rolling"
	case ModeContinuous:
		return "continuous"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "daily":
		return ModeDaily, nil
	case "rolling":
		return ModeRolling, nil
	case "continuous":
		return ModeContinuous, nil
	}
	return 0, fmt.Errorf("sched: unknown mode %q", s)
}

// SeasonalWindow forces continuous operation between two month/day dates,
// inclusive on both ends. Dates compare as linear month*100+day values, so a
// window whose start is after its end (spanning the year boundary) never
// matches; that behavior is inherited and deliberately left alone.
type SeasonalWindow struct {
	Enable     bool
	StartMonth int
	StartDay   int
	EndMonth   int
	EndDay     int
}

func (w SeasonalWindow) startMD() int { return w.StartMonth*100 + w.StartDay }
func (w SeasonalWindow) endMD() int   { return w.EndMonth*100 + w.EndDay }

// Contains reports whether the given month/day falls inside the window.
// Always false when the window is disabled.
func (w SeasonalWindow) Contains(month, day int) bool {
	if !w.Enable {
		return false
	}
	md := month*100 + day
	return w.startMD() <= md && md <= w.endMD()
}

// DeriveMode computes the effective mode for a calendar date. Pure; callers
// must invoke it at the top of every scheduling decision rather than caching
// a previous result.
func DeriveMode(month, day int, normal Mode, w SeasonalWindow) Mode {
	if w.Contains(month, day) {
		return ModeContinuous
	}
	return normal
}
