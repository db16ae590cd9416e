// Package mcpserver exposes the bridge as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
	"github.com/dgnsrekt/liqmap_bridge/internal/pricing"
)

const (
	serverName = "Crypto Heatmap MCP Server"

	ToolGetCryptoPrice = "get_crypto_price"
	ToolCaptureHeatmap = "capture_heatmap"
)

// Service is the subset of the bridge the tools call.
type Service interface {
	CaptureHeatmap(ctx context.Context, symbol, period string, override heatmap.SimulateOverride) (heatmap.Envelope, error)
	GetPrice(ctx context.Context, symbol string) (pricing.Quote, error)
}

// SessionConfig holds per-server defaults applied when a tool call omits
// the corresponding argument.
type SessionConfig struct {
	DefaultTimePeriod string
	// AllowSimulated, when non-nil, overrides the process-wide fallback
	// policy for calls that do not pass allow_simulated.
	AllowSimulated *bool
}

// New builds an MCP server with the bridge tools registered.
func New(svc Service, cfg SessionConfig, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	Register(srv, svc, cfg)
	return srv
}

// Register adds the bridge tools to srv.
func Register(srv *mcp.Server, svc Service, cfg SessionConfig) {
	if strings.TrimSpace(cfg.DefaultTimePeriod) == "" {
		cfg.DefaultTimePeriod = string(heatmap.DefaultPeriod)
	}
	registerPriceTool(srv, svc)
	registerCaptureTool(srv, svc, cfg)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Errorf("marshal: %w", err)), nil
	}
	return &mcp.CallToolResult{
		IsError: isError,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

// --- get_crypto_price ---

type priceArgs struct {
	Symbol string `json:"symbol"`
}

func registerPriceTool(srv *mcp.Server, svc Service) {
	tool := &mcp.Tool{
		Name:        ToolGetCryptoPrice,
		Description: "Fetch the latest USD price for a cryptocurrency symbol.",
		InputSchema: inputSchema(map[string]any{
			"symbol": map[string]any{"type": "string", "description": "Cryptocurrency symbol, e.g. BTC"},
		}, []string{"symbol"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args priceArgs
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		quote, err := svc.GetPrice(ctx, args.Symbol)
		if err != nil {
			var pe *pricing.Error
			if errors.As(err, &pe) {
				return toolError(errors.New(pe.Message)), nil
			}
			return toolError(fmt.Errorf("failed to fetch price for %s", strings.ToUpper(args.Symbol))), nil
		}
		return jsonResult(quote, false)
	})
}

// --- capture_heatmap ---

type captureArgs struct {
	Symbol         string `json:"symbol"`
	TimePeriod     string `json:"time_period,omitempty"`
	AllowSimulated any    `json:"allow_simulated,omitempty"`
}

func registerCaptureTool(srv *mcp.Server, svc Service, cfg SessionConfig) {
	tool := &mcp.Tool{
		Name:        ToolCaptureHeatmap,
		Description: "Capture a liquidation heatmap for the requested symbol. When the capture fails and simulation is allowed, a clearly labeled placeholder is returned alongside the failure detail.",
		InputSchema: inputSchema(map[string]any{
			"symbol":          map[string]any{"type": "string", "description": "Cryptocurrency symbol, e.g. BTC"},
			"time_period":     map[string]any{"type": "string", "description": "12 hour, 24 hour, 1 month or 3 month", "default": cfg.DefaultTimePeriod},
			"allow_simulated": map[string]any{"type": []string{"boolean", "null"}, "description": "true always attaches a simulated payload on failure, false never does, null defers to server configuration"},
		}, []string{"symbol"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args captureArgs
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}

		period := args.TimePeriod
		if strings.TrimSpace(period) == "" {
			period = cfg.DefaultTimePeriod
		}
		override := heatmap.ParseSimulateOverride(args.AllowSimulated)
		if override == heatmap.SimulateUnset {
			override = heatmap.OverrideFromBool(cfg.AllowSimulated)
		}

		env, err := svc.CaptureHeatmap(ctx, args.Symbol, period, override)
		if err != nil {
			slog.Info("mcp capture rejected", "symbol", args.Symbol, "time_period", period, "error", err)
			var coded *heatmap.CodedError
			if errors.As(err, &coded) {
				return toolError(errors.New(coded.Message)), nil
			}
			return toolError(err), nil
		}

		report, _ := heatmap.NewReport(env)
		// A served fallback is a usable answer; a bare failure is a tool error
		// that still carries the structured detail.
		return jsonResult(report, !env.Primary.OK() && !env.FallbackProvided)
	})
}
