package app

import (
	"context"
	"fmt"

	"cowly/internal/util"
	"cowly/pkg/domain"
	"cowly/pkg/herd"
	"cowly/pkg/store"
)

// Home summarizes the caller's herd. A user with no stored data at all is
// reported as not found.
func (a *App) Home(ctx context.Context, uid string) (domain.FleetSummary, error) {
	raw, ok, err := a.docs.Get(ctx, store.UserPath(uid))
	if err != nil {
		return domain.FleetSummary{}, fmt.Errorf("load user: %w", err)
	}
	user, isObject := raw.(map[string]any)
	if !ok || !isObject {
		util.LoggerFromContext(ctx).Warn("user data not found", "user_id", uid)
		return domain.FleetSummary{}, ErrUserNotFound
	}
	return herd.SummarizeFleet(ctx, user["cows"]), nil
}

// HealthSummary returns the health histogram of the caller's herd.
func (a *App) HealthSummary(ctx context.Context, uid string) (domain.HealthHistogram, error) {
	raw, _, err := a.docs.Get(ctx, store.CowsPath(uid))
	if err != nil {
		return domain.HealthHistogram{}, fmt.Errorf("load cows: %w", err)
	}
	return herd.SummarizeFleet(ctx, raw).Health, nil
}

// Dashboard counts farmers and cows across the platform.
func (a *App) Dashboard(ctx context.Context) (domain.PlatformSummary, error) {
	raw, _, err := a.docs.Get(ctx, store.UsersPath)
	if err != nil {
		return domain.PlatformSummary{}, fmt.Errorf("load users: %w", err)
	}
	return herd.SummarizePlatform(ctx, raw), nil
}

// ListFarmers lists every farmer account.
func (a *App) ListFarmers(ctx context.Context) ([]domain.FarmerSummary, error) {
	raw, _, err := a.docs.Get(ctx, store.UsersPath)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if herd.Count(raw) == 0 {
		return nil, ErrNoUsers
	}
	farmers := herd.ListFarmers(raw)
	if len(farmers) == 0 {
		return nil, ErrNoFarmers
	}
	return farmers, nil
}
