package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
)

const defaultCaptureSymbol = "BTC"

type captureOutput struct {
	Status int
	Body   heatmap.Report
}

type captureQueryInput struct {
	Symbol         string `query:"symbol" default:"BTC" doc:"Cryptocurrency symbol, e.g. BTC or ETH"`
	TimePeriod     string `query:"time_period" default:"24 hour" doc:"One of 12 hour, 24 hour, 1 month, 3 month (or 12h, 24h, 1mo, 3mo)"`
	AllowSimulated string `query:"allow_simulated" doc:"Override the simulated fallback policy (true/false). Omit to use the server default."`
}

type captureBodyInput struct {
	Body *struct {
		Symbol         string `json:"symbol,omitempty" doc:"Cryptocurrency symbol, defaults to BTC"`
		TimePeriod     string `json:"time_period,omitempty" doc:"Time period, defaults to 24 hour"`
		AllowSimulated any    `json:"allow_simulated,omitempty" doc:"Override the simulated fallback policy"`
	}
}

func registerHeatmapHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "capture-heatmap", Method: http.MethodGet, Path: "/api/capture_heatmap", Summary: "Capture liquidation heatmap", Description: "Drives the remote browser to screenshot the liquidation heatmap. On failure the response carries the upstream error and, when allowed, a simulated placeholder.", Tags: []string{"Heatmap"}},
		func(ctx context.Context, input *captureQueryInput) (*captureOutput, error) {
			return captureHeatmap(ctx, svc, input.Symbol, input.TimePeriod, heatmap.ParseSimulateOverride(input.AllowSimulated))
		})

	huma.Register(api, huma.Operation{OperationID: "capture-heatmap-post", Method: http.MethodPost, Path: "/api/capture_heatmap", Summary: "Capture liquidation heatmap (JSON body)", Tags: []string{"Heatmap"}},
		func(ctx context.Context, input *captureBodyInput) (*captureOutput, error) {
			symbol, period := defaultCaptureSymbol, string(heatmap.DefaultPeriod)
			var override heatmap.SimulateOverride
			if b := input.Body; b != nil {
				if b.Symbol != "" {
					symbol = b.Symbol
				}
				if b.TimePeriod != "" {
					period = b.TimePeriod
				}
				override = heatmap.ParseSimulateOverride(b.AllowSimulated)
			}
			return captureHeatmap(ctx, svc, symbol, period, override)
		})
}

func captureHeatmap(ctx context.Context, svc Service, symbol, period string, override heatmap.SimulateOverride) (*captureOutput, error) {
	env, err := svc.CaptureHeatmap(ctx, symbol, period, override)
	if err != nil {
		if heatmap.IsValidation(err) {
			return &captureOutput{Status: http.StatusBadRequest, Body: heatmap.ValidationReport(symbol, period, validationMessage(err))}, nil
		}
		return nil, mapErr(err)
	}
	report, status := heatmap.NewReport(env)
	return &captureOutput{Status: status, Body: report}, nil
}

func validationMessage(err error) string {
	var coded *heatmap.CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

func registerHealthHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type apiHealthOutput struct {
		Body struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "api-health", Method: http.MethodGet, Path: "/api/health", Summary: "Bridge health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*apiHealthOutput, error) {
			out := &apiHealthOutput{}
			out.Body.Status = "healthy"
			out.Body.Timestamp = time.Now().UTC()
			return out, nil
		})

	type featuresOutput struct {
		Body struct {
			UserAPIEnabled          bool `json:"userApiEnabled"`
			SnapshotsEnabled        bool `json:"snapshotsEnabled"`
			SimulatedHeatmapDefault bool `json:"simulatedHeatmapDefault"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "features", Method: http.MethodGet, Path: "/api/features", Summary: "Optional feature flags", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*featuresOutput, error) {
			out := &featuresOutput{}
			out.Body.UserAPIEnabled = svc.UserAPIEnabled()
			out.Body.SnapshotsEnabled = svc.SnapshotsEnabled()
			out.Body.SimulatedHeatmapDefault = svc.SimulateDefault()
			return out, nil
		})
}
