package heatmap

import (
	"strings"
)

// SymbolSet reports whether a symbol is recognised.
type SymbolSet interface {
	Known(symbol string) bool
}

// Request is a validated capture request. Fields are unexported so a Request
// cannot change after NewRequest accepts it.
type Request struct {
	symbol   string
	period   TimePeriod
	override SimulateOverride
}

// NewRequest validates symbol and period against known and returns an
// immutable request. Symbols are matched case-insensitively and stored
// upper-cased.
func NewRequest(known SymbolSet, symbol, period string, override SimulateOverride) (Request, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return Request{}, newError(CodeValidation, "Symbol parameter is required", nil)
	}
	if known == nil || !known.Known(sym) {
		return Request{}, newError(CodeValidation, "Unsupported symbol: "+sym, nil)
	}
	p, err := ParseTimePeriod(period)
	if err != nil {
		return Request{}, err
	}
	return Request{symbol: sym, period: p, override: override}, nil
}

func (r Request) Symbol() string             { return r.symbol }
func (r Request) Period() TimePeriod         { return r.period }
func (r Request) Override() SimulateOverride { return r.override }

// valid reports whether the request came from NewRequest.
func (r Request) valid() bool {
	return r.symbol != "" && r.period != ""
}
