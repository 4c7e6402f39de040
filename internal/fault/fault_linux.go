//go:build linux

// Package fault drives the fault LED. A unit that cannot initialize blinks
// the LED and stops feeding the watchdog; the reset that follows is the
// recovery strategy.
package fault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"navlogger/internal/logging"
)

// SignalLoop blinks the fault LED at 2 Hz and never returns. With the
// watchdog unserviced the board resets out of this loop on its own.
func SignalLoop(pin int) {
	line := openLED(pin)
	level := 0
	for {
		if line != nil {
			level ^= 1
			_ = line.SetValue(level)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func openLED(pin int) *gpiocdev.Line {
	if pin <= 0 {
		return nil
	}
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
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("navlogger-fault"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return line
	}
	logging.Errorf("fault: led line %q not found, blinking skipped", lineName)
	return nil
}
