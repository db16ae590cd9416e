package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/liqmap_bridge/internal/controller"
	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
	"github.com/dgnsrekt/liqmap_bridge/internal/pricing"
	"github.com/dgnsrekt/liqmap_bridge/internal/snapshot"
	"github.com/dgnsrekt/liqmap_bridge/internal/users"
)

type Service interface {
	CaptureHeatmap(ctx context.Context, symbol, period string, override heatmap.SimulateOverride) (heatmap.Envelope, error)
	SimulateDefault() bool
	GetPrice(ctx context.Context, symbol string) (pricing.Quote, error)
	SnapshotsEnabled() bool
	UserAPIEnabled() bool
	ListSnapshots(ctx context.Context) ([]snapshot.SnapshotMeta, error)
	GetSnapshot(ctx context.Context, id string) (snapshot.SnapshotMeta, error)
	ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error)
	DeleteSnapshot(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]users.User, error)
	GetUser(ctx context.Context, id int64) (users.User, error)
	CreateUser(ctx context.Context, username, email string) (users.User, error)
	UpdateUser(ctx context.Context, id int64, patch users.Patch) (users.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Options configures the HTTP surface.
type Options struct {
	// Version is published in the OpenAPI document. Empty means "dev".
	Version string
	// UserAPIToken is the bearer token required by the user endpoints.
	UserAPIToken string
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	cfg := huma.DefaultConfig("Liquidation Heatmap Bridge API", version)
	cfg.DocsPath = ""
	if cfg.Components.SecuritySchemes == nil {
		cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	cfg.Components.SecuritySchemes["bearer"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer"}
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerHealthHandlers(api, svc)
	registerHeatmapHandlers(api, svc)
	registerPriceHandlers(api, svc)
	if svc.SnapshotsEnabled() {
		registerSnapshotHandlers(api, svc)
	}
	if svc.UserAPIEnabled() {
		registerUserHandlers(api, svc, bearerAuth(api, opts.UserAPIToken))
	}

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}

	var fieldErr *users.FieldError
	if errors.As(err, &fieldErr) {
		details := make([]error, 0, len(fieldErr.Fields))
		for field, msgs := range fieldErr.Fields {
			for _, msg := range msgs {
				details = append(details, &huma.ErrorDetail{Location: "body." + field, Message: msg})
			}
		}
		if fieldErr.Conflict {
			return huma.Error409Conflict("user already exists", details...)
		}
		return huma.Error400BadRequest("invalid user payload", details...)
	}

	switch {
	case errors.Is(err, snapshot.ErrNotFound), errors.Is(err, users.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, snapshot.ErrInvalidID):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, controller.ErrSnapshotsDisabled), errors.Is(err, controller.ErrUserAPIDisabled):
		return huma.Error404NotFound(err.Error())
	}

	var coded *heatmap.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case heatmap.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case heatmap.CodeStepTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case heatmap.CodeMissingCredential, heatmap.CodeStepTransport, heatmap.CodeCanceled:
			return huma.Error503ServiceUnavailable(coded.Message)
		case heatmap.CodeStepFailure:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
