package gnss

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.bug.st/serial"

	"navlogger/internal/logging"
)

// Quality is the receiver's fix classification tier.
type Quality int

const (
	QualityNone Quality = iota
	Quality2D
	Quality3D
)

func (q Quality) String() string {
	switch q {
	case Quality2D:
		return "2D"
	case Quality3D:
		return "3D"
	}
	return "none"
}

// Fix is one position/time solution. DateValid and TimeValid are
// independent: Epoch is only populated when both are true.
type Fix struct {
	Epoch     int64
	Quality   Quality
	DateValid bool
	TimeValid bool
	Sats      int
	HDOP      float64
}

// Receiver is the contract the time-sync and logging pipelines consume.
type Receiver interface {
	// Fix returns the latest solution; ok is false before the first sentence.
	Fix() (Fix, bool)

	AvailableBytes() int
	// Extract removes exactly n bytes from the buffer head, nil if fewer.
	Extract(n int) []byte
	HighWaterMark() int
	BufferCapacity() int
	Dropped() uint64
	ClearBuffer()
}

type Config struct {
	// Device may be empty to auto-detect /dev/ttyACM* then /dev/ttyUSB*.
	Device string
	Baud   int
	// BufferBytes is the raw ring capacity.
	BufferBytes int
}

// Service reads the serial stream, buffers raw bytes and tracks the fix.
type Service struct {
	cfg Config

	ring *ring

	mu    sync.Mutex
	st    fixState
	fix   Fix
	fixOK bool

	port   serial.Port
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Receiver = (*Service)(nil)

func New(cfg Config) *Service {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	return &Service{cfg: cfg, ring: newRing(cfg.BufferBytes)}
}

// Start opens the port and begins filling the ring. An open failure is the
// fatal initialization path; the caller decides what fatal means.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gnss: service is nil")
	}
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			return fmt.Errorf("gnss: auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}

	port, err := serial.Open(device, &serial.Mode{BaudRate: s.cfg.Baud})
	if err != nil {
		return fmt.Errorf("gnss: open %s baud=%d: %w", device, s.cfg.Baud, err)
	}
	s.port = port

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	logging.Infof("gnss: receiver up device=%s baud=%d buffer=%d", device, s.cfg.Baud, s.ring.Capacity())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(childCtx, port)
	}()
	return nil
}

func (s *Service) readLoop(ctx context.Context, port serial.Port) {
	chunk := make([]byte, 512)
	// NMEA sentences are < 82 chars; allow headroom for vendor chatter.
	line := make([]byte, 0, 256)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := port.Read(chunk)
		if err != nil {
			if ctx.Err() == nil {
				logging.Warnf("gnss: read stopped: %v", err)
			}
			return
		}
		if n == 0 {
			continue
		}
		s.ring.Write(chunk[:n])

		for _, b := range chunk[:n] {
			switch b {
			case '\n':
				s.applyLine(string(line))
				line = line[:0]
			case '\r':
			default:
				if len(line) < cap(line) {
					line = append(line, b)
				} else {
					// Binary protocol data between sentences; discard.
					line = line[:0]
				}
			}
		}
	}
}

func (s *Service) applyLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return
	}
	sent, err := parseNMEASentence(line)
	if err != nil {
		// Noise between binary frames is routine; don't log per sentence.
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.apply(sent) || sent.Type == "GSA" {
		if fx, ok := s.st.fix(); ok {
			s.fix = fx
			s.fixOK = true
		}
	}
}

func (s *Service) Fix() (Fix, bool) {
	if s == nil {
		return Fix{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fix, s.fixOK
}

func (s *Service) AvailableBytes() int {
	if s == nil {
		return 0
	}
	return s.ring.Len()
}

func (s *Service) Extract(n int) []byte {
	if s == nil {
		return nil
	}
	return s.ring.Extract(n)
}

func (s *Service) HighWaterMark() int {
	if s == nil {
		return 0
	}
	return s.ring.HighWaterMark()
}

func (s *Service) BufferCapacity() int {
	if s == nil {
		return 0
	}
	return s.ring.Capacity()
}

func (s *Service) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.ring.Dropped()
}

func (s *Service) ClearBuffer() {
	if s == nil {
		return
	}
	s.ring.Clear()
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
	}
	s.wg.Wait()
}

func autoDetectDevice() string {
	// Keep it intentionally tiny and predictable.
	for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
		for i := 0; i < 10; i++ {
			p := fmt.Sprintf("%s%d", prefix, i)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}
