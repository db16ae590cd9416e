package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Automation backends.
const (
	BackendBrowserCat = "browsercat"
	BackendCDP        = "cdp"
)

// Config holds all configuration for the bridge. It is read once at startup
// and not modified afterwards.
type Config struct {
	// HTTP listener
	BindAddr         string
	PortAutoFallback bool
	PortCandidates   []string

	// Logging
	LogLevel string
	LogFile  string
	Debug    bool

	// Automation
	Backend           string
	BrowserCatBaseURL string
	BrowserCatAPIKey  string
	StepTimeout       time.Duration
	HeatmapSettle     time.Duration
	HeatmapPageURL    string
	CDPURL            string
	ChromiumLaunch    bool
	ChromiumHeadless  bool
	ChromiumProfile   string
	SnapshotDir       string
	SnapshotKeep      int
	SymbolsFile       string

	// Capture policy
	SimulateDefault       bool
	MaxConcurrentCaptures int

	// Price lookups
	PriceBaseURL       string
	PriceRatePerMinute int

	// Notifications
	NtfyURL string

	// Optional user API
	UserAPIEnabled bool
	UserAPIToken   string
	DatabasePath   string

	// MCP session defaults
	MCPDefaultTimePeriod string
	MCPAllowSimulated    *bool
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:              getEnvOrDefault("BIND_ADDR", "127.0.0.1:5000"),
		PortAutoFallback:      getEnvBoolOrDefault("PORT_AUTO_FALLBACK", true),
		PortCandidates:        splitList(getEnvOrDefault("PORT_CANDIDATES", "127.0.0.1:5001,127.0.0.1:5002,127.0.0.1:5003")),
		LogLevel:              strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFile:               getEnvOrDefault("LOG_FILE", "logs/liqmap_bridge.log"),
		Debug:                 getEnvBoolOrDefault("DEBUG", false),
		Backend:               strings.ToLower(getEnvOrDefault("AUTOMATION_BACKEND", BackendBrowserCat)),
		BrowserCatBaseURL:     getEnvOrDefault("BROWSERCAT_BASE_URL", ""),
		BrowserCatAPIKey:      os.Getenv("BROWSERCAT_API_KEY"),
		StepTimeout:           getEnvSecondsOrDefault("BROWSERCAT_TIMEOUT", 30*time.Second),
		HeatmapSettle:         getEnvSecondsOrDefault("HEATMAP_SETTLE", 5*time.Second),
		HeatmapPageURL:        getEnvOrDefault("HEATMAP_PAGE_URL", ""),
		CDPURL:                getEnvOrDefault("CHROMIUM_CDP_URL", "http://127.0.0.1:9222"),
		ChromiumLaunch:        getEnvBoolOrDefault("CHROMIUM_LAUNCH", false),
		ChromiumHeadless:      getEnvBoolOrDefault("CHROMIUM_HEADLESS", true),
		ChromiumProfile:       getEnvOrDefault("CHROMIUM_PROFILE_DIR", "./data/chromium-profile"),
		SnapshotDir:           getEnvOrDefault("SNAPSHOT_DIR", "./snapshots"),
		SnapshotKeep:          getEnvIntOrDefault("SNAPSHOT_KEEP", 200),
		SymbolsFile:           os.Getenv("SYMBOLS_FILE"),
		SimulateDefault:       getEnvBoolOrDefault("ENABLE_SIMULATED_HEATMAP", true),
		MaxConcurrentCaptures: getEnvIntOrDefault("MAX_CONCURRENT_CAPTURES", 0),
		PriceBaseURL:          getEnvOrDefault("PRICE_API_BASE_URL", ""),
		PriceRatePerMinute:    getEnvIntOrDefault("PRICE_RATE_PER_MINUTE", 30),
		NtfyURL:               os.Getenv("NTFY_URL"),
		UserAPIEnabled:        getEnvBoolOrDefault("ENABLE_USER_API", false),
		UserAPIToken:          os.Getenv("USER_API_TOKEN"),
		DatabasePath:          getEnvOrDefault("DATABASE_PATH", "./data/users.db"),
		MCPDefaultTimePeriod:  getEnvOrDefault("MCP_DEFAULT_TIME_PERIOD", "24 hour"),
		MCPAllowSimulated:     getEnvOptionalBool("MCP_ALLOW_SIMULATED"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendBrowserCat, BackendCDP:
	default:
		return fmt.Errorf("config: AUTOMATION_BACKEND must be %q or %q, got %q", BackendBrowserCat, BackendCDP, c.Backend)
	}
	if c.StepTimeout < time.Second {
		c.StepTimeout = time.Second
	}
	if c.MaxConcurrentCaptures < 0 {
		c.MaxConcurrentCaptures = 0
	}
	if c.UserAPIEnabled && c.UserAPIToken == "" {
		slog.Warn("user API enabled without USER_API_TOKEN; requests will be rejected")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if b := getEnvOptionalBool(key); b != nil {
		return *b
	}
	return defaultVal
}

// getEnvOptionalBool returns nil when key is unset or not a recognised
// boolean. Accepts yes/no and on/off besides strconv.ParseBool spellings.
func getEnvOptionalBool(key string) *bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	var b bool
	switch val {
	case "yes", "on":
		b = true
	case "no", "off":
		b = false
	default:
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return nil
		}
		b = parsed
	}
	return &b
}

// getEnvSecondsOrDefault reads a duration given in (possibly fractional)
// seconds, or a Go duration string such as "45s".
func getEnvSecondsOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
