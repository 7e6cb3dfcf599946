package app

import (
	"context"

	"github.com/soocke/pixel-scheduler-go/config"
	"github.com/soocke/pixel-scheduler-go/store"
)

// KeyThreshold is the settings key of the persisted similarity threshold.
const KeyThreshold = "threshold"

// LoadThreshold returns the persisted threshold clamped to the valid range,
// or def when none is stored.
func LoadThreshold(ctx context.Context, s store.Store, def float64) (float64, bool, error) {
	var v float64
	ok, err := s.Get(ctx, store.NSSettings, KeyThreshold, &v)
	if err != nil || !ok {
		return config.ClampThreshold(def), false, err
	}
	return config.ClampThreshold(v), true, nil
}

// SaveThreshold clamps v and persists it. It returns the stored value.
func SaveThreshold(ctx context.Context, s store.Store, v float64) (float64, error) {
	v = config.ClampThreshold(v)
	return v, s.Put(ctx, store.NSSettings, KeyThreshold, v)
}

// ClearThreshold removes the persisted threshold so the file value applies.
func ClearThreshold(ctx context.Context, s store.Store) error {
	return s.Remove(ctx, store.NSSettings, KeyThreshold)
}
