//go:build !linux

package irq

import "fmt"

type GPIOLatch struct {
	*Latch
}

func OpenGPIOLatch(pin int) (*GPIOLatch, error) {
	return nil, fmt.Errorf("irq: gpio interrupt unsupported on this platform")
}

func (g *GPIOLatch) Close() error { return nil }
