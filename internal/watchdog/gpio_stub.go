//go:build !linux

package watchdog

import "fmt"

type GPIOPet struct{}

func OpenGPIOPet(pin int) (*GPIOPet, error) {
	return nil, fmt.Errorf("watchdog: gpio pet unsupported on this platform")
}

func (g *GPIOPet) Service()     {}
func (g *GPIOPet) Restart()     {}
func (g *GPIOPet) Close() error { return nil }
