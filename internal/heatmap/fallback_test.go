package heatmap

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSynthesizeNamingConvention(t *testing.T) {
	s := NewSynthesizer(true)
	at := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)

	got, err := s.Synthesize("sol", Period24h, at, errors.New("network outage"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if want := "/tmp/sol_liquidation_heatmap_20240309_070501_24_hour.png"; got.ImagePath != want {
		t.Fatalf("image path = %q; want %q", got.ImagePath, want)
	}
	if got.Symbol != "SOL" || got.TimePeriod != Period24h {
		t.Fatalf("payload = %+v", got)
	}
	if !got.Simulated {
		t.Fatal("simulated = false")
	}
	if !strings.Contains(got.Note, "Simulated") || !strings.Contains(got.Note, "network outage") {
		t.Fatalf("note = %q", got.Note)
	}
	if !got.GeneratedAt.Equal(at) {
		t.Fatalf("generated_at = %v; want %v", got.GeneratedAt, at)
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	s := NewSynthesizer(false)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a, _ := s.Synthesize("ETH", Period3mo, at, nil)
	b, _ := s.Synthesize("ETH", Period3mo, at, nil)
	if a != b {
		t.Fatalf("payloads differ: %+v vs %+v", a, b)
	}
}

func TestSynthesizeRejectsMalformedState(t *testing.T) {
	s := NewSynthesizer(false)
	at := time.Now()
	for _, tc := range []struct {
		symbol string
		period TimePeriod
	}{
		{"", Period24h},
		{"BTC", "6 hour"},
	} {
		_, err := s.Synthesize(tc.symbol, tc.period, at, nil)
		var coded *CodedError
		if !errors.As(err, &coded) || coded.Code != CodeSynthesis {
			t.Fatalf("Synthesize(%q, %q) error = %v; want %s", tc.symbol, tc.period, err, CodeSynthesis)
		}
	}
}

func TestSynthesizeZeroTimestamp(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &Synthesizer{now: func() time.Time { return fixed }}

	got, err := s.Synthesize("BTC", Period12h, time.Time{}, nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !got.GeneratedAt.Equal(fixed) {
		t.Fatalf("generated_at = %v; want clock default %v", got.GeneratedAt, fixed)
	}

	debug := NewSynthesizer(true)
	defer func() {
		if recover() == nil {
			t.Fatal("debug synthesizer did not panic on zero timestamp")
		}
	}()
	_, _ = debug.Synthesize("BTC", Period12h, time.Time{}, nil)
}
