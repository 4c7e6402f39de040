//go:build !linux

package watchdog

import "fmt"

type Dev struct{}

func OpenDev(path string) (*Dev, error) {
	return nil, fmt.Errorf("watchdog: kernel device unsupported on this platform")
}

func (d *Dev) Service()     {}
func (d *Dev) Restart()     {}
func (d *Dev) Close() error { return nil }
