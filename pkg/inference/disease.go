package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cowly/pkg/herd"
	"cowly/pkg/storage"
)

const (
	PreprocessingParamsKey = "preprocessing_params.json"
	FeatureOrderKey        = "feature_order.json"
	LabelMappingKey        = "label_mapping.json"
)

// NumericColumns are standardized with the stored mean and std.
var NumericColumns = []string{
	"Age", "Milk_Production_Liters", "Temperature_C",
	"Heart_Rate_BPM", "Respiratory_Rate_BPM",
	"Appetite_Score", "Mobility_Score",
}

// DiseaseFields must all be present in a disease prediction request.
var DiseaseFields = []string{
	"Age", "Breed", "Milk_Production_Liters", "Temperature_C",
	"Heart_Rate_BPM", "Respiratory_Rate_BPM",
	"Appetite_Score", "Mobility_Score", "isolated",
}

type PreprocessingParams struct {
	Means map[string]float64 `json:"means"`
	Stds  map[string]float64 `json:"stds"`
}

// Artifacts are the preprocessing files published next to the model.
type Artifacts struct {
	Params       PreprocessingParams
	FeatureOrder []string
	Labels       map[string]string
}

// LoadArtifacts reads the three preprocessing artifacts from store.
func LoadArtifacts(ctx context.Context, store storage.ObjectStore) (Artifacts, error) {
	var a Artifacts
	if err := readJSON(ctx, store, PreprocessingParamsKey, &a.Params); err != nil {
		return a, err
	}
	if err := readJSON(ctx, store, FeatureOrderKey, &a.FeatureOrder); err != nil {
		return a, err
	}
	if err := readJSON(ctx, store, LabelMappingKey, &a.Labels); err != nil {
		return a, err
	}
	if len(a.FeatureOrder) == 0 {
		return a, fmt.Errorf("%s is empty", FeatureOrderKey)
	}
	return a, nil
}

func readJSON(ctx context.Context, store storage.ObjectStore, key string, out any) error {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

// DiseaseClassifier turns a raw sample into the model's feature tensor and
// maps the most probable class to its label.
type DiseaseClassifier struct {
	client    *modelClient
	artifacts Artifacts
}

func NewDiseaseClassifier(endpoint string, artifacts Artifacts, httpClient *http.Client) (*DiseaseClassifier, error) {
	client, err := newModelClient(endpoint, httpClient)
	if err != nil {
		return nil, err
	}
	if len(artifacts.FeatureOrder) == 0 {
		return nil, fmt.Errorf("feature order required")
	}
	return &DiseaseClassifier{client: client, artifacts: artifacts}, nil
}

// Features builds the feature vector in canonical column order. Breed is
// one-hot encoded as Breed_<value>; columns the model does not know are
// dropped and missing ones are zero.
func (c *DiseaseClassifier) Features(sample map[string]any) ([]float64, error) {
	row := make(map[string]float64, len(sample))
	for k, v := range sample {
		if k == "Breed" {
			row["Breed_"+herd.Text(v)] = 1
			continue
		}
		n, ok := herd.Number(v)
		if !ok {
			if c.inOrder(k) {
				return nil, fmt.Errorf("could not convert %s value %q to float", k, herd.Text(v))
			}
			continue
		}
		row[k] = n
	}
	for _, col := range NumericColumns {
		v, ok := row[col]
		if !ok {
			continue
		}
		mean := c.artifacts.Params.Means[col]
		std, ok := c.artifacts.Params.Stds[col]
		if !ok || std == 0 {
			std = 1
		}
		row[col] = (v - mean) / std
	}
	out := make([]float64, len(c.artifacts.FeatureOrder))
	for i, col := range c.artifacts.FeatureOrder {
		out[i] = row[col]
	}
	return out, nil
}

func (c *DiseaseClassifier) inOrder(col string) bool {
	for _, f := range c.artifacts.FeatureOrder {
		if f == col {
			return true
		}
	}
	return false
}

// PredictDisease returns the label of the most probable disease class.
func (c *DiseaseClassifier) PredictDisease(ctx context.Context, sample map[string]any) (string, error) {
	features, err := c.Features(sample)
	if err != nil {
		return "", err
	}
	var resp predictResponse
	req := predictRequest{Instances: [][][]float64{{features}}}
	if err := c.client.doJSON(ctx, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Predictions) == 0 || len(resp.Predictions[0]) == 0 {
		return "", fmt.Errorf("model response missing predictions")
	}
	probs := resp.Predictions[0]
	top := 0
	for i, p := range probs {
		if p > probs[top] {
			top = i
		}
	}
	if label, ok := c.artifacts.Labels[strconv.Itoa(top)]; ok {
		return label, nil
	}
	return fmt.Sprintf("class_%d", top), nil
}

type predictRequest struct {
	Instances [][][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
}
