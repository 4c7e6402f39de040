// Package watchdog keeps the reset supervisor fed. Every long-running loop
// services the watchdog once per iteration; if the firmware wedges, the
// timer expires and the board power-cycles into a clean boot.
package watchdog

// Watchdog is the feeding contract. Service must be cheap enough to call
// from tight loops. Restart deliberately lets the timer expire so the
// supervisor reboots the unit.
type Watchdog interface {
	Service()
	Restart()
	Close() error
}

// Noop satisfies Watchdog for units configured without one, and for tests.
type Noop struct{}

func (Noop) Service()     {}
func (Noop) Restart()     {}
func (Noop) Close() error { return nil }
