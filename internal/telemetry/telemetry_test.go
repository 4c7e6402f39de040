package telemetry

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
)

func sampleRecord() Record {
	r := NewRecord("WALRUS01", "WALRUS01_GPS_20260825_130000.ubx")
	r.StartEpoch = 1771938000
	r.EndEpoch = 1771941600
	r.BytesWritten = 1843200
	r.WriteFailCount = 1
	r.HighWater = 9000
	r.BufferCapacity = 16384
	r.SyncOK = true
	r.DriftSeconds = -3
	r.Sats = 9
	r.FreeBytes = 12 << 30
	return r
}

func TestSQLiteSink_RoundTrip(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer s.Close()

	r := sampleRecord()
	if err := s.Report(r); err != nil {
		t.Fatalf("Report() error: %v", err)
	}

	var (
		filename string
		bytes    uint64
		syncOK   bool
		drift    int64
	)
	row := s.db.QueryRow(`SELECT filename, bytes_written, sync_ok, drift_seconds FROM sessions WHERE id = ?`, r.ID)
	if err := row.Scan(&filename, &bytes, &syncOK, &drift); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if filename != r.Filename || bytes != r.BytesWritten || !syncOK || drift != -3 {
		t.Fatalf("row=(%q,%d,%v,%d) want (%q,%d,true,-3)", filename, bytes, syncOK, drift, r.Filename, r.BytesWritten)
	}
}

func TestSQLiteSink_ReportAfterClose(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := s.Report(sampleRecord()); err == nil {
		t.Fatalf("expected error reporting to closed sink")
	}
}

type fakeConn struct {
	writes   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestUDPSink_SendsOneDatagramPerRecord(t *testing.T) {
	fc := &fakeConn{}
	u, err := newUDPSink("127.0.0.1:9200",
		net.ResolveUDPAddr,
		func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) { return fc, nil })
	if err != nil {
		t.Fatalf("newUDPSink() error: %v", err)
	}

	r := sampleRecord()
	if err := u.Report(r); err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if len(fc.writes) != 1 {
		t.Fatalf("datagrams=%d want 1", len(fc.writes))
	}

	var got Record
	if err := json.Unmarshal(fc.writes[0], &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.ID != r.ID || got.BytesWritten != r.BytesWritten || got.DriftSeconds != r.DriftSeconds {
		t.Fatalf("got=%+v want %+v", got, r)
	}

	if err := u.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !fc.closed {
		t.Fatalf("conn not closed")
	}
}

func TestUDPSink_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	_, err := newUDPSink("bad:addr",
		func(network, address string) (*net.UDPAddr, error) { return nil, resolveErr },
		func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) { return &fakeConn{}, nil })
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
}

type failSink struct {
	reports int
}

func (f *failSink) Report(Record) error { f.reports++; return errors.New("down") }
func (f *failSink) Close() error        { return nil }

type okSink struct {
	reports int
}

func (o *okSink) Report(Record) error { o.reports++; return nil }
func (o *okSink) Close() error        { return nil }

func TestMultiSink_FailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := &failSink{}
	good := &okSink{}
	m := MultiSink{bad, good}

	if err := m.Report(sampleRecord()); err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if bad.reports != 1 || good.reports != 1 {
		t.Fatalf("reports bad=%d good=%d want 1/1", bad.reports, good.reports)
	}
}
