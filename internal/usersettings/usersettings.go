// Package usersettings layers defaults, validation, and sanitize-on-read
// over the durable store's user_settings table.
package usersettings

import (
	"context"
	"fmt"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/domainerr"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/store"
)

// Store is the subset of *store.Store this service depends on.
type Store interface {
	GetUserSettings(ctx context.Context, userID int64) (store.UserSettings, bool, error)
	UpsertUserSettings(ctx context.Context, settings store.UserSettings) error
}

// Service backs UserSettings reads/writes with sanitize-on-read.
type Service struct {
	store       Store
	gridLimit   int
	defaultGrid store.GridOption
	padding     int
}

// New constructs a Service. gridLimit is the maximum tiles a grid may
// carry (emoji_max_tiles); defaultGrid/defaultPadding are the configured
// fallbacks applied when a user has no stored settings, or when a stored
// grid violates gridLimit and the configured default itself does not fit
// either (in which case 1x1 is used).
func New(st Store, gridLimit int, defaultGrid store.GridOption, defaultPadding int) *Service {
	return &Service{store: st, gridLimit: gridLimit, defaultGrid: defaultGrid, padding: defaultPadding}
}

// Get returns userID's effective settings. If none are stored, the
// configured defaults are returned without a write. If a stored grid
// violates gridLimit, the repaired settings (configured default, or 1x1 if
// that also violates the limit) are persisted before returning.
func (s *Service) Get(ctx context.Context, userID int64) (store.UserSettings, error) {
	existing, ok, err := s.store.GetUserSettings(ctx, userID)
	if err != nil {
		return store.UserSettings{}, domainerr.New(domainerr.IO, "usersettings.Get", err)
	}
	if !ok {
		return store.UserSettings{UserID: userID, DefaultGrid: s.defaultGrid, Padding: s.padding}, nil
	}
	if existing.DefaultGrid.Tiles() <= s.gridLimit {
		return existing, nil
	}

	repaired := existing
	repaired.DefaultGrid = s.defaultGrid
	if repaired.DefaultGrid.Tiles() > s.gridLimit {
		repaired.DefaultGrid = store.GridOption{Rows: 1, Cols: 1}
	}
	if err := s.store.UpsertUserSettings(ctx, repaired); err != nil {
		return store.UserSettings{}, domainerr.New(domainerr.IO, "usersettings.Get", err)
	}
	return repaired, nil
}

// Update validates and persists a new default grid/padding for userID,
// rejecting grids whose tile count exceeds gridLimit.
func (s *Service) Update(ctx context.Context, userID int64, grid store.GridOption, padding int) error {
	if grid.Tiles() > s.gridLimit {
		return domainerr.New(domainerr.InputInvalid, "usersettings.Update",
			fmt.Errorf("grid %s has %d tiles, exceeds limit %d", grid.Encode(), grid.Tiles(), s.gridLimit))
	}
	if err := s.store.UpsertUserSettings(ctx, store.UserSettings{UserID: userID, DefaultGrid: grid, Padding: padding}); err != nil {
		return domainerr.New(domainerr.IO, "usersettings.Update", err)
	}
	return nil
}
