package inference

import (
	"context"
	"fmt"
	"net/http"
)

// MilkYieldRegressor asks the milk-yield model for a daily yield estimate.
type MilkYieldRegressor struct {
	client *modelClient
}

func NewMilkYieldRegressor(endpoint string, httpClient *http.Client) (*MilkYieldRegressor, error) {
	client, err := newModelClient(endpoint, httpClient)
	if err != nil {
		return nil, err
	}
	return &MilkYieldRegressor{client: client}, nil
}

// PredictMilkYield posts the feature map as-is and returns the predicted
// yield in litres.
func (r *MilkYieldRegressor) PredictMilkYield(ctx context.Context, features map[string]any) (float64, error) {
	if len(features) == 0 {
		return 0, fmt.Errorf("no input features provided")
	}
	var resp struct {
		PredictedMilkYield *float64 `json:"predicted_milk_yield"`
	}
	if err := r.client.doJSON(ctx, features, &resp); err != nil {
		return 0, err
	}
	if resp.PredictedMilkYield == nil {
		return 0, fmt.Errorf("model response missing predicted_milk_yield")
	}
	return *resp.PredictedMilkYield, nil
}
