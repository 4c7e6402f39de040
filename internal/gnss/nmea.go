package gnss

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type nmeaSentence struct {
	Type string
	// Fields is the comma-split NMEA payload (excluding $ and checksum).
	Fields []string
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return nmeaSentence{}, fmt.Errorf("nmea: short checksum")
	}
	ck = ck[:2]
	want, err := hex.DecodeString(ck)
	if err != nil || len(want) != 1 {
		return nmeaSentence{}, fmt.Errorf("nmea: bad checksum")
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return nmeaSentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	if len(parts) == 0 {
		return nmeaSentence{}, fmt.Errorf("nmea: empty")
	}
	typeField := parts[0]
	if len(typeField) < 3 {
		return nmeaSentence{}, fmt.Errorf("nmea: short type")
	}
	// Accept GNxxx/GPxxx, etc; normalize to last 3 chars.
	t := typeField
	if len(t) > 3 {
		t = t[len(t)-3:]
	}
	return nmeaSentence{Type: strings.ToUpper(t), Fields: parts}, nil
}

// fixState accumulates RMC (date/time + validity) and GSA (fix tier) into
// the current Fix.
type fixState struct {
	quality   Quality
	qualityOK bool

	hh, mm, ss int
	timeValid  bool

	day, month, year int
	dateValid        bool

	sats   int
	satsOK bool
	hdop   float64
	hdopOK bool
}

func (s *fixState) apply(sent nmeaSentence) bool {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(sent.Fields)
	case "GSA":
		return s.applyGSA(sent.Fields)
	case "GGA":
		return s.applyGGA(sent.Fields)
	default:
		return false
	}
}

// RMC carries UTC time (field 1, hhmmss.sss), status (field 2) and date
// (field 9, ddmmyy). Time and date validity are tracked independently: a
// receiver can emit a valid time long before it has decoded the date.
func (s *fixState) applyRMC(f []string) bool {
	if len(f) < 10 {
		return false
	}

	updated := false
	if hh, mm, ss, ok := parseNMEATime(f[1]); ok {
		s.hh, s.mm, s.ss = hh, mm, ss
		s.timeValid = true
		updated = true
	} else {
		s.timeValid = false
	}

	if d, mo, y, ok := parseNMEADate(f[9]); ok && strings.TrimSpace(f[2]) == "A" {
		s.day, s.month, s.year = d, mo, y
		s.dateValid = true
		updated = true
	} else {
		s.dateValid = false
	}
	return updated
}

// GSA field 2 is the fix tier: 1 = none, 2 = 2D, 3 = 3D.
func (s *fixState) applyGSA(f []string) bool {
	if len(f) < 3 {
		return false
	}
	switch strings.TrimSpace(f[2]) {
	case "3":
		s.quality = Quality3D
	case "2":
		s.quality = Quality2D
	default:
		s.quality = QualityNone
	}
	s.qualityOK = true
	return true
}

// GGA contributes satellite count and HDOP only; the fix tier comes from GSA.
func (s *fixState) applyGGA(f []string) bool {
	if len(f) < 9 {
		return false
	}
	updated := false
	if sats, err := strconv.Atoi(strings.TrimSpace(f[7])); err == nil {
		s.sats = sats
		s.satsOK = true
		updated = true
	}
	if hdop, err := strconv.ParseFloat(strings.TrimSpace(f[8]), 64); err == nil {
		s.hdop = hdop
		s.hdopOK = true
		updated = true
	}
	return updated
}

func (s *fixState) fix() (Fix, bool) {
	if !s.qualityOK && !s.timeValid && !s.dateValid {
		return Fix{}, false
	}
	fx := Fix{
		Quality:   s.quality,
		TimeValid: s.timeValid,
		DateValid: s.dateValid,
		Sats:      s.sats,
		HDOP:      s.hdop,
	}
	if s.timeValid && s.dateValid {
		fx.Epoch = time.Date(s.year, time.Month(s.month), s.day, s.hh, s.mm, s.ss, 0, time.UTC).Unix()
	}
	return fx, true
}

func parseNMEATime(v string) (hh, mm, ss int, ok bool) {
	v = strings.TrimSpace(v)
	if dot := strings.IndexByte(v, '.'); dot != -1 {
		v = v[:dot]
	}
	if len(v) != 6 {
		return 0, 0, 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, 0, 0, false
	}
	hh, mm, ss = n/10000, (n/100)%100, n%100
	if hh > 23 || mm > 59 || ss > 60 {
		return 0, 0, 0, false
	}
	return hh, mm, ss, true
}

func parseNMEADate(v string) (day, month, year int, ok bool) {
	v = strings.TrimSpace(v)
	if len(v) != 6 {
		return 0, 0, 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, 0, 0, false
	}
	day, month, year = n/10000, (n/100)%100, 2000+n%100
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return 0, 0, 0, false
	}
	return day, month, year, true
}
