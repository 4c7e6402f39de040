//go:build linux

package watchdog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"navlogger/internal/logging"
)

// GPIOPet toggles a pet line wired to an external watchdog timer (TPL5010
// style). Those parts trigger on edges, so every Service flips the level.
type GPIOPet struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	line  *gpiocdev.Line
	level int
	armed bool
}

func OpenGPIOPet(pin int) (*GPIOPet, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("watchdog: invalid pet pin %d", pin)
	}
	chip, line, err := requestOutput(pin, "navlogger-watchdog")
	if err != nil {
		return nil, err
	}
	logging.Infof("watchdog: gpio pet line GPIO%d armed", pin)
	return &GPIOPet{chip: chip, line: line, armed: true}, nil
}

func (g *GPIOPet) Service() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed || g.line == nil {
		return
	}
	g.level ^= 1
	if err := g.line.SetValue(g.level); err != nil {
		logging.Warnf("watchdog: pet line: %v", err)
	}
}

// Restart stops petting; the external timer fires at the end of its window.
func (g *GPIOPet) Restart() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed {
		logging.Warnf("watchdog: restart requested, pet line released")
		g.armed = false
	}
}

func (g *GPIOPet) Close() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.line == nil {
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

// requestOutput finds the named GPIO line across the available chips and
// claims it as an output driven low.
func requestOutput(pin int, consumer string) (*gpiocdev.Chip, *gpiocdev.Line, error) {
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
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return chip, line, nil
	}
	return nil, nil, fmt.Errorf("watchdog: gpio line %q not found (or busy)", lineName)
}
