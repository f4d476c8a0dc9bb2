package inference

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cowly/pkg/storage"
)

func testArtifacts() Artifacts {
	return Artifacts{
		Params: PreprocessingParams{
			Means: map[string]float64{"Age": 5, "Temperature_C": 38.5},
			Stds:  map[string]float64{"Age": 2, "Temperature_C": 0},
		},
		FeatureOrder: []string{"Age", "Temperature_C", "isolated", "Breed_Jersey", "Breed_Holstein", "Heart_Rate_BPM"},
		Labels:       map[string]string{"0": "Healthy", "1": "Mastitis"},
	}
}

func TestDiseaseFeatures(t *testing.T) {
	c, err := NewDiseaseClassifier("http://model.invalid/predict", testArtifacts(), nil)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	got, err := c.Features(map[string]any{
		"Age":           9.0,
		"Temperature_C": 39.5,
		"isolated":      1,
		"Breed":         "Holstein",
		"Unknown":       "ignored",
	})
	if err != nil {
		t.Fatalf("features: %v", err)
	}
	// Age standardized, zero std treated as one, Heart_Rate_BPM zero filled.
	want := []float64{2, 1, 1, 0, 1, 0}
	if len(got) != len(want) {
		t.Fatalf("features = %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("features = %v, want %v", got, want)
		}
	}
}

func TestDiseaseFeaturesRejectsNonNumeric(t *testing.T) {
	c, _ := NewDiseaseClassifier("http://model.invalid/predict", testArtifacts(), nil)
	if _, err := c.Features(map[string]any{"Age": "old"}); err == nil {
		t.Fatal("expected error for non-numeric model column")
	}
}

func TestPredictDisease(t *testing.T) {
	var received predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"predictions":[[0.2,0.7,0.1]]}`))
	}))
	defer srv.Close()

	c, err := NewDiseaseClassifier(srv.URL, testArtifacts(), srv.Client())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	label, err := c.PredictDisease(context.Background(), map[string]any{"Age": 5.0, "Breed": "Jersey"})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if label != "Mastitis" {
		t.Fatalf("label = %q, want Mastitis", label)
	}
	if len(received.Instances) != 1 || len(received.Instances[0]) != 1 || len(received.Instances[0][0]) != 6 {
		t.Fatalf("unexpected tensor shape: %v", received.Instances)
	}
}

func TestPredictDiseaseFallbackLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[[0.1,0.1,0.8]]}`))
	}))
	defer srv.Close()
	c, _ := NewDiseaseClassifier(srv.URL, testArtifacts(), srv.Client())
	label, err := c.PredictDisease(context.Background(), map[string]any{"Age": 5.0})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if label != "class_2" {
		t.Fatalf("label = %q, want class_2", label)
	}
}

func TestPredictDiseaseServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()
	c, _ := NewDiseaseClassifier(srv.URL, testArtifacts(), srv.Client())
	_, err := c.PredictDisease(context.Background(), map[string]any{"Age": 5.0})
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v, want model server error", err)
	}
}

func TestLoadArtifacts(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		PreprocessingParamsKey: `{"means":{"Age":4.5},"stds":{"Age":1.5}}`,
		FeatureOrderKey:        `["Age","Breed_Jersey"]`,
		LabelMappingKey:        `{"0":"Healthy"}`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	store, err := storage.NewDirStore(dir)
	if err != nil {
		t.Fatalf("dir store: %v", err)
	}
	a, err := LoadArtifacts(context.Background(), store)
	if err != nil {
		t.Fatalf("load artifacts: %v", err)
	}
	if a.Params.Means["Age"] != 4.5 || len(a.FeatureOrder) != 2 || a.Labels["0"] != "Healthy" {
		t.Fatalf("unexpected artifacts: %+v", a)
	}

	_ = os.Remove(filepath.Join(dir, LabelMappingKey))
	if _, err := LoadArtifacts(context.Background(), store); err == nil {
		t.Fatal("expected error for missing label mapping")
	}
}
