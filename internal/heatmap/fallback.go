package heatmap

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const fallbackDir = "/tmp"

// Synthesizer builds simulated placeholder payloads. It never touches the
// network or the filesystem.
type Synthesizer struct {
	// Debug turns malformed input into a panic instead of a logged default.
	Debug bool
	now   func() time.Time
}

// NewSynthesizer returns a Synthesizer using the wall clock.
func NewSynthesizer(debug bool) *Synthesizer {
	return &Synthesizer{Debug: debug, now: time.Now}
}

// Synthesize returns a placeholder for symbol and period stamped with at. The
// note echoes cause so callers can see why the real capture was replaced.
//
// A zero timestamp is a programming error: it panics in debug mode and is
// replaced by the current time otherwise.
func (s *Synthesizer) Synthesize(symbol string, period TimePeriod, at time.Time, cause error) (FallbackPayload, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return FallbackPayload{}, newError(CodeSynthesis, "fallback requires a symbol", nil)
	}
	if !knownPeriod(period) {
		return FallbackPayload{}, newError(CodeSynthesis, fmt.Sprintf("fallback requires a valid time period, got %q", period), nil)
	}
	if at.IsZero() {
		if s.Debug {
			panic("heatmap: fallback synthesized with zero timestamp")
		}
		slog.Warn("fallback synthesized with zero timestamp; using current time", "symbol", symbol, "time_period", period)
		at = s.clock()
	}

	filename := fmt.Sprintf("%s_liquidation_heatmap_%s_%s.png",
		strings.ToLower(symbol), at.Format("20060102_150405"), period.Slug())

	note := "Simulated heatmap placeholder generated without BrowserCat."
	if cause != nil {
		note += " Real capture failed: " + cause.Error()
	}

	return FallbackPayload{
		ImagePath:   fallbackDir + "/" + filename,
		Symbol:      symbol,
		TimePeriod:  period,
		Note:        note,
		Simulated:   true,
		GeneratedAt: at,
	}, nil
}

func (s *Synthesizer) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func knownPeriod(p TimePeriod) bool {
	for _, known := range Periods {
		if p == known {
			return true
		}
	}
	return false
}
