//go:build linux

package irq

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"

	"navlogger/internal/logging"
)

// GPIOLatch latches falling edges on the RTC INT line. The PCF8523 pulls
// the open-drain line low when the alarm flag sets and holds it there until
// the flag is cleared over I2C.
type GPIOLatch struct {
	*Latch
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func OpenGPIOLatch(pin int) (*GPIOLatch, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("irq: invalid interrupt pin %d", pin)
	}
	g := &GPIOLatch{Latch: NewLatch()}
	lineName := fmt.Sprintf("GPIO%d", pin)

	candidates := []string{"/dev/gpiochip0"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			candidates = append(candidates, filepath.Join("/dev", e.Name()))
		}
	}

	for _, chipPath := range candidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithConsumer("navlogger-rtc-int"),
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				logging.Debugf("irq: alarm edge seq=%d", evt.Seqno)
				g.Trigger()
			}),
		)
		if err != nil {
			_ = chip.Close()
			continue
		}
		g.chip = chip
		g.line = line
		logging.Infof("irq: alarm interrupt on %s line %s", chipPath, lineName)
		return g, nil
	}
	return nil, fmt.Errorf("irq: gpio line %q not found (or busy)", lineName)
}

func (g *GPIOLatch) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
