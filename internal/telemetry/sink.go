package telemetry

import "navlogger/internal/logging"

// Sink accepts completed session records. Report failures are logged, never
// fatal: telemetry must not take down logging.
type Sink interface {
	Report(Record) error
	Close() error
}

// MultiSink fans a record out to every configured sink. A failing sink does
// not block the others.
type MultiSink []Sink

func (m MultiSink) Report(r Record) error {
	for _, s := range m {
		if err := s.Report(r); err != nil {
			logging.Warnf("telemetry: report: %v", err)
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Discard is the sink for units with telemetry disabled.
type Discard struct{}

func (Discard) Report(Record) error { return nil }
func (Discard) Close() error        { return nil }
