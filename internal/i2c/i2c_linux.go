//go:build linux

package i2c

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Register-oriented I2C access over /dev/i2c-*. Transfers go through
// I2C_RDWR so a register read is one combined write+read with a repeated
// start; the PCF8523 (and most register-mapped parts) requires that.

const (
	i2cMsgRead = 0x0001
	i2cRdwr    = 0x0707
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2cRdwrReq struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is one opened I2C adapter. Multiple Dev handles may share a Bus, but
// transfers are not serialized here; the single-owner clock driver is the
// only client in this firmware.
type Bus struct {
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &Bus{f: f, path: path}, nil
}

func (b *Bus) Close() error {
	if b == nil || b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

// Dev binds a 7-bit device address on the bus.
func (b *Bus) Dev(addr uint16) *Dev {
	if b == nil {
		return nil
	}
	return &Dev{bus: b, addr: addr}
}

type Dev struct {
	bus  *Bus
	addr uint16
}

// Write sends a raw payload; the first byte is conventionally the register
// pointer, so multi-byte register bursts go through here.
func (d *Dev) Write(p []byte) error {
	return d.transfer(p, nil)
}

// WriteRead performs write-then-read in one transaction (repeated start).
func (d *Dev) WriteRead(w, r []byte) error {
	return d.transfer(w, r)
}

// ReadReg reads len(dst) bytes starting at reg.
func (d *Dev) ReadReg(reg byte, dst []byte) error {
	return d.WriteRead([]byte{reg}, dst)
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	return d.Write([]byte{reg, value})
}

func (d *Dev) transfer(w, r []byte) error {
	if d == nil || d.bus == nil || d.bus.f == nil {
		return fmt.Errorf("i2c: device is nil")
	}
	if d.addr == 0 || d.addr > 0x7F {
		return fmt.Errorf("i2c: invalid addr 0x%X", d.addr)
	}

	msgs := make([]i2cMsg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, i2cMsg{addr: d.addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, i2cMsg{addr: d.addr, flags: i2cMsgRead, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}

	req := i2cRdwrReq{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), uintptr(i2cRdwr), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return fmt.Errorf("i2c: transfer addr=0x%X: %w", d.addr, errno)
	}
	return nil
}
