package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cowly/pkg/domain"
	"cowly/pkg/herd"
	"cowly/pkg/store"
)

// cowFields are the user-editable cow attributes and the JSON kind each
// must have.
var cowFields = []struct {
	name    string
	numeric bool
}{
	{"name", false},
	{"breed", false},
	{"age", true},
	{"health_status", false},
	{"milk_production", true},
}

// AddCow stores a new cow under the caller. cow_id and every cow field are
// required.
func (a *App) AddCow(ctx context.Context, uid string, in map[string]any) error {
	rawID, ok := in["cow_id"]
	if !ok || rawID == nil {
		return ErrMissingFields
	}
	for _, f := range cowFields {
		if v, ok := in[f.name]; !ok || v == nil {
			return ErrMissingFields
		}
	}
	cowID := domain.NormalizeCowID(herd.Text(rawID))
	if !domain.ValidCowID(cowID) {
		return ErrInvalidCowID
	}
	record := map[string]any{"cow_id": cowID}
	for _, f := range cowFields {
		v, err := checkCowField(f.name, f.numeric, in[f.name])
		if err != nil {
			return err
		}
		record[f.name] = v
	}
	_, exists, err := a.docs.Get(ctx, store.CowPath(uid, cowID))
	if err != nil {
		return fmt.Errorf("load cow: %w", err)
	}
	if exists {
		return ErrCowExists
	}
	record["created_at"] = a.timestamp()
	if err := a.docs.Set(ctx, store.CowPath(uid, cowID), record); err != nil {
		return fmt.Errorf("store cow: %w", err)
	}
	return nil
}

// ListCows returns the caller's cows keyed by id. A farmer with no cows
// gets an empty map.
func (a *App) ListCows(ctx context.Context, uid string) (map[string]any, error) {
	raw, _, err := a.docs.Get(ctx, store.CowsPath(uid))
	if err != nil {
		return nil, fmt.Errorf("load cows: %w", err)
	}
	out := make(map[string]any)
	for _, e := range herd.Entries(raw) {
		out[e.ID] = e.Value
	}
	return out, nil
}

// UpdateCow applies the recognized fields from in. Unknown keys are ignored.
func (a *App) UpdateCow(ctx context.Context, uid, cowID string, in map[string]any) error {
	cowID = domain.NormalizeCowID(cowID)
	if !domain.ValidCowID(cowID) {
		return ErrCowNotFound
	}
	_, exists, err := a.docs.Get(ctx, store.CowPath(uid, cowID))
	if err != nil {
		return fmt.Errorf("load cow: %w", err)
	}
	if !exists {
		return ErrCowNotFound
	}
	update := make(map[string]any)
	for _, f := range cowFields {
		v, ok := in[f.name]
		if !ok {
			continue
		}
		checked, err := checkCowField(f.name, f.numeric, v)
		if err != nil {
			return err
		}
		update[f.name] = checked
	}
	if len(update) == 0 {
		return ErrNoValidFields
	}
	update["updated_at"] = a.timestamp()
	if err := a.docs.Update(ctx, store.CowPath(uid, cowID), update); err != nil {
		return fmt.Errorf("update cow: %w", err)
	}
	return nil
}

// DeleteCow removes the cow and its readings.
func (a *App) DeleteCow(ctx context.Context, uid, cowID string) (string, error) {
	cowID = domain.NormalizeCowID(cowID)
	if !domain.ValidCowID(cowID) {
		return "", ErrCowNotFound
	}
	_, exists, err := a.docs.Get(ctx, store.CowPath(uid, cowID))
	if err != nil {
		return "", fmt.Errorf("load cow: %w", err)
	}
	if !exists {
		return "", ErrCowNotFound
	}
	if err := a.docs.Delete(ctx, store.CowPath(uid, cowID)); err != nil {
		return "", fmt.Errorf("delete cow: %w", err)
	}
	return cowID, nil
}

// SearchCows finds the caller's cows whose field equals value, ignoring case.
func (a *App) SearchCows(ctx context.Context, uid, field, value string) ([]map[string]any, error) {
	field, value = strings.TrimSpace(field), strings.TrimSpace(value)
	if field == "" || value == "" {
		return nil, ErrMissingSearch
	}
	raw, _, err := a.docs.Get(ctx, store.CowsPath(uid))
	if err != nil {
		return nil, fmt.Errorf("load cows: %w", err)
	}
	if herd.Count(raw) == 0 {
		return nil, ErrNoCows
	}
	results := herd.MatchCows(raw, field, value)
	if results == nil {
		results = []map[string]any{}
	}
	return results, nil
}

// CowProfile classifies the cow's most recent reading.
func (a *App) CowProfile(ctx context.Context, uid, cowID string) (domain.CowProfile, error) {
	cowID = domain.NormalizeCowID(cowID)
	if !domain.ValidCowID(cowID) {
		return domain.CowProfile{}, herd.ErrNoReadings
	}
	raw, _, err := a.docs.Get(ctx, store.ReadingsPath(uid, cowID))
	if err != nil {
		return domain.CowProfile{}, fmt.Errorf("load readings: %w", err)
	}
	return herd.BuildProfile(cowID, raw)
}

func checkCowField(name string, numeric bool, v any) (any, error) {
	if numeric {
		n, ok := herd.Number(v)
		if !ok {
			return nil, invalidField(name, "a number")
		}
		return n, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, invalidField(name, "a string")
	}
	return s, nil
}

// IsReadingError reports whether err comes from a malformed stored reading.
func IsReadingError(err error) bool {
	return errors.Is(err, herd.ErrMalformedReading) || errors.Is(err, herd.ErrIncompleteReading)
}
