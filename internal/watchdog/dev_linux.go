//go:build linux

package watchdog

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"navlogger/internal/logging"
)

// Dev feeds the kernel watchdog character device. Closing the fd after a
// magic-close write disarms the timer; Restart skips the magic close so the
// timer keeps running and resets the board.
type Dev struct {
	mu   sync.Mutex
	fd   int
	path string
}

func OpenDev(path string) (*Dev, error) {
	if path == "" {
		path = "/dev/watchdog"
	}
	fd, err := unix.Open(path, unix.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("watchdog: open %s: %w", path, err)
	}
	logging.Infof("watchdog: kernel device %s armed", path)
	return &Dev{fd: fd, path: path}, nil
}

func (d *Dev) Service() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return
	}
	if err := unix.IoctlWatchdogKeepalive(d.fd); err != nil {
		logging.Warnf("watchdog: keepalive %s: %v", d.path, err)
	}
}

// Restart stops feeding and drops the fd without the magic close. The
// kernel timer expires on its own schedule and resets the unit.
func (d *Dev) Restart() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return
	}
	logging.Warnf("watchdog: restart requested, letting %s expire", d.path)
	_ = unix.Close(d.fd)
	d.fd = -1
}

// Close disarms the timer with a magic close so a clean shutdown does not
// reboot the unit.
func (d *Dev) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	if _, err := unix.Write(d.fd, []byte("V")); err != nil {
		logging.Warnf("watchdog: magic close %s: %v", d.path, err)
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
