//go:build !linux

package fault

import "time"

// SignalLoop blocks forever; there is no LED to blink off-target.
func SignalLoop(pin int) {
	for {
		time.Sleep(time.Hour)
	}
}
