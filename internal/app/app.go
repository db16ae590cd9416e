// Package app wires configuration into a ready bridge service.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/liqmap_bridge/internal/automation"
	"github.com/dgnsrekt/liqmap_bridge/internal/browser"
	"github.com/dgnsrekt/liqmap_bridge/internal/cdpdriver"
	"github.com/dgnsrekt/liqmap_bridge/internal/config"
	"github.com/dgnsrekt/liqmap_bridge/internal/controller"
	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
	"github.com/dgnsrekt/liqmap_bridge/internal/notify"
	"github.com/dgnsrekt/liqmap_bridge/internal/pricing"
	"github.com/dgnsrekt/liqmap_bridge/internal/snapshot"
	"github.com/dgnsrekt/liqmap_bridge/internal/symbols"
	"github.com/dgnsrekt/liqmap_bridge/internal/users"
)

const (
	// Version is reported by the HTTP docs and the MCP server.
	Version = "1.0.0"
	// CDPBackendLabel names the chromedp backend in failure messages.
	CDPBackendLabel = "Chromium CDP"
)

// Bridge is the assembled service plus the resources it owns.
type Bridge struct {
	Service  *controller.Service
	users    *users.Store
	launcher *browser.Launcher
}

// Close releases resources opened by Build.
func (b *Bridge) Close() error {
	if b.launcher != nil {
		b.launcher.Stop()
	}
	if b.users != nil {
		return b.users.Close()
	}
	return nil
}

// Build assembles the bridge from cfg. The user store is opened only when
// withUsers is set and the user API is enabled.
func Build(ctx context.Context, cfg *config.Config, withUsers bool) (*Bridge, error) {
	catalog, err := loadCatalog(cfg.SymbolsFile)
	if err != nil {
		return nil, err
	}

	var (
		automator heatmap.Automator
		snaps     *snapshot.Store
		label     = heatmap.DefaultBackendLabel
	)
	b := &Bridge{}
	switch cfg.Backend {
	case config.BackendCDP:
		if cfg.ChromiumLaunch {
			b.launcher, err = browser.NewLauncher(browser.Config{
				CDPURL:     cfg.CDPURL,
				ProfileDir: cfg.ChromiumProfile,
				Headless:   cfg.ChromiumHeadless,
			})
			if err != nil {
				return nil, err
			}
			if err := b.launcher.Launch(ctx); err != nil {
				return nil, err
			}
		}
		snaps, err = snapshot.NewStore(cfg.SnapshotDir)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
		snaps.SetRetention(cfg.SnapshotKeep)
		automator = cdpdriver.New(cdpdriver.Config{
			CDPURL:  cfg.CDPURL,
			PageURL: cfg.HeatmapPageURL,
			Timeout: cfg.StepTimeout,
			Settle:  cfg.HeatmapSettle,
		}, snaps)
		label = CDPBackendLabel
	default:
		automator = automation.NewClient(automation.Config{
			BaseURL: cfg.BrowserCatBaseURL,
			APIKey:  cfg.BrowserCatAPIKey,
			PageURL: cfg.HeatmapPageURL,
			Timeout: cfg.StepTimeout,
			Settle:  cfg.HeatmapSettle,
		})
	}

	opts := heatmap.Options{
		SimulateDefault: cfg.SimulateDefault,
		MaxConcurrent:   int64(cfg.MaxConcurrentCaptures),
		BackendLabel:    label,
	}
	if cfg.NtfyURL != "" {
		opts.OnFailure = notify.NewNotifier(cfg.NtfyURL, nil).Hook()
	}
	orch := heatmap.NewOrchestrator(catalog, automator, heatmap.NewSynthesizer(cfg.Debug), opts)

	prices := pricing.NewClient(pricing.Config{
		BaseURL:       cfg.PriceBaseURL,
		RatePerMinute: cfg.PriceRatePerMinute,
	}, catalog)

	if withUsers && cfg.UserAPIEnabled {
		b.users, err = users.Open(ctx, cfg.DatabasePath)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("user store: %w", err)
		}
	}

	slog.Info("bridge assembled",
		"backend", cfg.Backend,
		"symbols", len(catalog.Symbols()),
		"simulate_default", cfg.SimulateDefault,
		"max_concurrent_captures", cfg.MaxConcurrentCaptures,
		"snapshots", snaps != nil,
		"user_api", b.users != nil,
		"ntfy", cfg.NtfyURL != "",
	)

	b.Service = controller.NewService(orch, prices, snaps, b.users)
	return b, nil
}

func loadCatalog(path string) (*symbols.Catalog, error) {
	if path == "" {
		return symbols.Default(), nil
	}
	c, err := symbols.LoadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("symbol catalog loaded", "path", path, "symbols", c.Symbols())
	return c, nil
}
