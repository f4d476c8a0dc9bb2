package app

import (
	"context"
	"math"
	"strings"

	"cowly/pkg/herd"
	"cowly/pkg/inference"
)

// PredictMilk returns the predicted daily yield in litres, rounded to two
// decimals.
func (a *App) PredictMilk(ctx context.Context, features map[string]any) (float64, error) {
	if a.milk == nil {
		return 0, ErrModelUnavailable
	}
	yield, err := a.milk.PredictMilkYield(ctx, features)
	if err != nil {
		return 0, err
	}
	return math.Round(yield*100) / 100, nil
}

// PredictDisease validates the clinical sample and classifies it. isolated
// is encoded as 0 for "Yes" and 1 for anything else.
func (a *App) PredictDisease(ctx context.Context, in map[string]any) (string, error) {
	sample := make(map[string]any, len(inference.DiseaseFields))
	for _, f := range inference.DiseaseFields {
		v, ok := in[f]
		if !ok || v == nil {
			return "", missingField(f)
		}
		sample[f] = v
	}
	if strings.EqualFold(strings.TrimSpace(herd.Text(sample["isolated"])), "yes") {
		sample["isolated"] = 0
	} else {
		sample["isolated"] = 1
	}
	if a.disease == nil {
		return "", ErrModelUnavailable
	}
	return a.disease.PredictDisease(ctx, sample)
}
