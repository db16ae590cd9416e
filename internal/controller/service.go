package controller

import (
	"context"
	"errors"
	"strings"

	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
	"github.com/dgnsrekt/liqmap_bridge/internal/pricing"
	"github.com/dgnsrekt/liqmap_bridge/internal/snapshot"
	"github.com/dgnsrekt/liqmap_bridge/internal/users"
)

var (
	// ErrSnapshotsDisabled is returned by snapshot operations when the
	// active backend does not store artifacts.
	ErrSnapshotsDisabled = errors.New("snapshot storage is not enabled")
	// ErrUserAPIDisabled is returned by user operations when the user API
	// is off.
	ErrUserAPIDisabled = errors.New("user API is not enabled")
)

// Capturer runs heatmap captures.
type Capturer interface {
	Capture(ctx context.Context, symbol, period string, override heatmap.SimulateOverride) (heatmap.Envelope, error)
	SimulateDefault() bool
}

// PriceLookup fetches spot prices.
type PriceLookup interface {
	Lookup(ctx context.Context, symbol string) (pricing.Quote, error)
}

// Service wraps the bridge operations behind the HTTP and MCP surfaces.
// snaps and users may be nil when their features are disabled.
type Service struct {
	capture Capturer
	prices  PriceLookup
	snaps   *snapshot.Store
	users   *users.Store
}

func NewService(capture Capturer, prices PriceLookup, snaps *snapshot.Store, userStore *users.Store) *Service {
	return &Service{capture: capture, prices: prices, snaps: snaps, users: userStore}
}

func (s *Service) CaptureHeatmap(ctx context.Context, symbol, period string, override heatmap.SimulateOverride) (heatmap.Envelope, error) {
	return s.capture.Capture(ctx, strings.TrimSpace(symbol), strings.TrimSpace(period), override)
}

func (s *Service) SimulateDefault() bool { return s.capture.SimulateDefault() }

func (s *Service) GetPrice(ctx context.Context, symbol string) (pricing.Quote, error) {
	return s.prices.Lookup(ctx, symbol)
}

func (s *Service) SnapshotsEnabled() bool { return s.snaps != nil }

func (s *Service) UserAPIEnabled() bool { return s.users != nil }

func (s *Service) ListSnapshots(ctx context.Context) ([]snapshot.SnapshotMeta, error) {
	if s.snaps == nil {
		return nil, ErrSnapshotsDisabled
	}
	return s.snaps.List()
}

func (s *Service) GetSnapshot(ctx context.Context, id string) (snapshot.SnapshotMeta, error) {
	if s.snaps == nil {
		return snapshot.SnapshotMeta{}, ErrSnapshotsDisabled
	}
	return s.snaps.Get(strings.TrimSpace(id))
}

func (s *Service) ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error) {
	if s.snaps == nil {
		return nil, "", ErrSnapshotsDisabled
	}
	return s.snaps.ReadImage(strings.TrimSpace(id))
}

func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	if s.snaps == nil {
		return ErrSnapshotsDisabled
	}
	return s.snaps.Delete(strings.TrimSpace(id))
}

func (s *Service) ListUsers(ctx context.Context) ([]users.User, error) {
	if s.users == nil {
		return nil, ErrUserAPIDisabled
	}
	return s.users.List(ctx)
}

func (s *Service) GetUser(ctx context.Context, id int64) (users.User, error) {
	if s.users == nil {
		return users.User{}, ErrUserAPIDisabled
	}
	return s.users.Get(ctx, id)
}

func (s *Service) CreateUser(ctx context.Context, username, email string) (users.User, error) {
	if s.users == nil {
		return users.User{}, ErrUserAPIDisabled
	}
	return s.users.Create(ctx, username, email)
}

func (s *Service) UpdateUser(ctx context.Context, id int64, patch users.Patch) (users.User, error) {
	if s.users == nil {
		return users.User{}, ErrUserAPIDisabled
	}
	return s.users.Update(ctx, id, patch)
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if s.users == nil {
		return ErrUserAPIDisabled
	}
	return s.users.Delete(ctx, id)
}
