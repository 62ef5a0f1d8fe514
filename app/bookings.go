package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilianp07/fleetsim/core/model"
)

// LoadBookings reads bookings from a JSON array file or a JSON lines file
// (.jsonl / .ndjson). Missing ids are generated.
func LoadBookings(path string) ([]*model.Booking, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return DecodeBookingLines(f)
	case ".json":
		var out []*model.Booking
		if err := json.NewDecoder(f).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode bookings: %w", err)
		}
		for _, b := range out {
			b.EnsureID()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported bookings format: %s", filepath.Ext(path))
	}
}

// DecodeBookingLines reads one booking per non-empty line.
func DecodeBookingLines(r io.Reader) ([]*model.Booking, error) {
	var out []*model.Booking
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		b := &model.Booking{}
		if err := json.Unmarshal([]byte(text), b); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b.EnsureID()
		out = append(out, b)
	}
	return out, sc.Err()
}
