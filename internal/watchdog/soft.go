package watchdog

import (
	"sync"
	"time"

	"navlogger/internal/logging"
)

// Soft is a process-internal fallback for units without a hardware timer.
// It cannot survive a kernel hang, but it does catch a wedged drain loop:
// after maxMissed silent periods it invokes onExpire (typically os.Exit so
// the init system restarts the daemon).
type Soft struct {
	period    time.Duration
	maxMissed int
	onExpire  func()

	mu       sync.Mutex
	serviced bool
	missed   int
	expired  bool

	done chan struct{}
	wg   sync.WaitGroup
}

func NewSoft(period time.Duration, maxMissed int, onExpire func()) *Soft {
	if period <= 0 {
		period = time.Second
	}
	if maxMissed <= 0 {
		maxMissed = 4
	}
	if onExpire == nil {
		onExpire = func() { logging.Errorf("watchdog: soft timer expired") }
	}
	return &Soft{period: period, maxMissed: maxMissed, onExpire: onExpire, done: make(chan struct{})}
}

// Start begins the periodic check. Tests drive tick directly instead.
func (s *Soft) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.period)
		defer t.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-t.C:
				s.tick()
			}
		}
	}()
}

func (s *Soft) tick() {
	s.mu.Lock()
	if s.serviced {
		s.serviced = false
		s.missed = 0
		s.mu.Unlock()
		return
	}
	s.missed++
	fire := s.missed >= s.maxMissed && !s.expired
	if fire {
		s.expired = true
	}
	s.mu.Unlock()
	if fire {
		s.onExpire()
	}
}

func (s *Soft) Service() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.serviced = true
	s.missed = 0
	s.mu.Unlock()
}

func (s *Soft) Restart() {
	if s == nil {
		return
	}
	s.mu.Lock()
	fire := !s.expired
	s.expired = true
	s.mu.Unlock()
	if fire {
		s.onExpire()
	}
}

func (s *Soft) Close() error {
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.wg.Wait()
	return nil
}
