package symbols

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry maps a ticker symbol to its price-API coin identifier.
type Entry struct {
	Symbol string `yaml:"symbol"`
	CoinID string `yaml:"coin_id"`
}

// File is the top-level YAML layout of a symbol catalog file.
type File struct {
	Symbols []Entry `yaml:"symbols"`
}

// Catalog is the read-only set of symbols the bridge recognises.
type Catalog struct {
	coins map[string]string
}

var defaultEntries = []Entry{
	{Symbol: "BTC", CoinID: "bitcoin"},
	{Symbol: "ETH", CoinID: "ethereum"},
	{Symbol: "BNB", CoinID: "binancecoin"},
	{Symbol: "ADA", CoinID: "cardano"},
	{Symbol: "SOL", CoinID: "solana"},
	{Symbol: "XRP", CoinID: "ripple"},
	{Symbol: "DOT", CoinID: "polkadot"},
	{Symbol: "DOGE", CoinID: "dogecoin"},
	{Symbol: "AVAX", CoinID: "avalanche-2"},
	{Symbol: "MATIC", CoinID: "matic-network"},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, _ := New(defaultEntries)
	return c
}

// New builds a catalog, rejecting blank or duplicate symbols.
func New(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("symbol catalog: at least one symbol is required")
	}
	coins := make(map[string]string, len(entries))
	for i, e := range entries {
		sym := Normalize(e.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("symbol catalog: symbols[%d] missing symbol", i)
		}
		if _, dup := coins[sym]; dup {
			return nil, fmt.Errorf("symbol catalog: duplicate symbol %q", sym)
		}
		id := strings.TrimSpace(e.CoinID)
		if id == "" {
			id = strings.ToLower(sym)
		}
		coins[sym] = id
	}
	return &Catalog{coins: coins}, nil
}

// LoadFile reads a YAML catalog. Returns an os.ErrNotExist-wrapped error if
// the file is absent.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("symbol catalog: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("symbol catalog: %w", err)
	}
	return New(f.Symbols)
}

// Normalize upper-cases and trims a symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Normalize is the method form of Normalize, so a Catalog can serve as a
// price-API coin resolver.
func (c *Catalog) Normalize(symbol string) string { return Normalize(symbol) }

// Known reports whether the symbol is in the catalog (case-insensitive).
func (c *Catalog) Known(symbol string) bool {
	_, ok := c.coins[Normalize(symbol)]
	return ok
}

// CoinID returns the price-API identifier for symbol. Unknown symbols fall
// back to their lower-cased ticker, which the price API may still resolve.
func (c *Catalog) CoinID(symbol string) string {
	sym := Normalize(symbol)
	if id, ok := c.coins[sym]; ok {
		return id
	}
	return strings.ToLower(sym)
}

// Symbols returns the catalog's symbols in sorted order.
func (c *Catalog) Symbols() []string {
	out := make([]string, 0, len(c.coins))
	for s := range c.coins {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
