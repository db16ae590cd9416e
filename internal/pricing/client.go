// Package pricing looks up USD spot prices from a CoinGecko-compatible API.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL       = "https://api.coingecko.com"
	DefaultRatePerMinute = 30
	defaultTimeout       = 10 * time.Second
)

const (
	CodeValidation = "VALIDATION"
	CodeNotFound   = "PRICE_NOT_FOUND"
	CodeUpstream   = "UPSTREAM_STATUS"
	CodeTransport  = "UPSTREAM_TRANSPORT"
)

// Error is returned by Lookup. StatusCode is the upstream HTTP status when one
// was received.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// CodeOf returns the pricing error code of err, or "" if it is not one.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// CoinResolver maps a ticker to the price API's coin identifier.
type CoinResolver interface {
	Normalize(symbol string) string
	CoinID(symbol string) string
}

type Config struct {
	BaseURL string
	// RatePerMinute caps outbound lookups; zero or less uses the default.
	RatePerMinute int
	HTTPClient    *http.Client
}

// Quote is a formatted spot price.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  string          `json:"price"`
	USD    decimal.Decimal `json:"-"`
}

type Client struct {
	baseURL string
	coins   CoinResolver
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config, coins CoinResolver) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = DefaultRatePerMinute
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: base,
		coins:   coins,
		http:    hc,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Lookup fetches the USD price for symbol.
func (c *Client) Lookup(ctx context.Context, symbol string) (Quote, error) {
	symbol = c.coins.Normalize(symbol)
	if symbol == "" {
		return Quote{}, &Error{Code: CodeValidation, Message: "Symbol parameter is required"}
	}
	coinID := c.coins.CoinID(symbol)

	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, &Error{Code: CodeTransport, Message: "Upstream service error while fetching price.", Cause: err}
	}

	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/api/v3/simple/price?" + q.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, &Error{Code: CodeTransport, Message: "Upstream service error while fetching price.", Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("price request failed", "symbol", symbol, "error", err)
		return Quote{}, &Error{Code: CodeTransport, Message: "Upstream service error while fetching price.", Cause: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("price response close failed", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("price lookup rejected", "symbol", symbol, "status", resp.StatusCode)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Quote{}, &Error{Code: CodeUpstream, Message: "Failed to fetch price for " + symbol, StatusCode: resp.StatusCode}
	}

	var body map[string]map[string]json.Number
	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return Quote{}, &Error{Code: CodeTransport, Message: "Upstream service error while fetching price.", Cause: fmt.Errorf("decode price response: %w", err)}
	}

	raw, ok := body[coinID]["usd"]
	if !ok {
		return Quote{}, &Error{Code: CodeNotFound, Message: "Price not found for " + symbol}
	}
	usd, err := decimal.NewFromString(raw.String())
	if err != nil {
		return Quote{}, &Error{Code: CodeNotFound, Message: "Price not found for " + symbol, Cause: err}
	}

	return Quote{Symbol: symbol, Price: FormatUSD(usd), USD: usd}, nil
}

// FormatUSD renders d as "$1,234.56".
func FormatUSD(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() && !d.Round(2).IsZero() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
