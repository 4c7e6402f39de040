package telemetry

import (
	"encoding/json"
	"fmt"
	"net"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

// UDPSink mirrors each record as one JSON datagram, for watching a bench
// unit without pulling the card.
type UDPSink struct {
	dest string
	conn udpConn
}

func NewUDPSink(dest string) (*UDPSink, error) {
	return newUDPSink(dest, net.ResolveUDPAddr,
		func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
			return net.DialUDP(network, laddr, raddr)
		})
}

func newUDPSink(dest string,
	resolve func(network, address string) (*net.UDPAddr, error),
	dial func(network string, laddr, raddr *net.UDPAddr) (udpConn, error),
) (*UDPSink, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resolve %s: %w", dest, err)
	}
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("telemetry: dial %s: %w", dest, err)
	}
	return &UDPSink{dest: dest, conn: conn}, nil
}

func (u *UDPSink) Report(r Record) error {
	if u == nil || u.conn == nil {
		return fmt.Errorf("telemetry: udp sink is closed")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("telemetry: marshal record: %w", err)
	}
	if _, err := u.conn.Write(payload); err != nil {
		return fmt.Errorf("telemetry: send to %s: %w", u.dest, err)
	}
	return nil
}

func (u *UDPSink) Close() error {
	if u == nil || u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}
