package herd

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func validReading() map[string]any {
	return map[string]any{
		"temperature":   38.6,
		"accelerometer": map[string]any{"x": 0.1, "y": 0.2, "z": 0.3},
		"gyroscope":     map[string]any{"x": 1, "y": int64(2), "z": json.Number("3.5")},
	}
}

func TestNormalizeReading(t *testing.T) {
	sample, err := NormalizeReading(validReading())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if sample.Temperature != 38.6 {
		t.Fatalf("temperature = %v", sample.Temperature)
	}
	if sample.Accel.Z != 0.3 || sample.Gyro.X != 1 || sample.Gyro.Y != 2 || sample.Gyro.Z != 3.5 {
		t.Fatalf("unexpected sample: %+v", sample)
	}
}

func TestNormalizeReadingMalformed(t *testing.T) {
	for _, raw := range []any{nil, "38.5", []any{1, 2}, 42.0} {
		if _, err := NormalizeReading(raw); !errors.Is(err, ErrMalformedReading) {
			t.Fatalf("NormalizeReading(%#v) err = %v, want ErrMalformedReading", raw, err)
		}
	}
}

func TestNormalizeReadingIncomplete(t *testing.T) {
	raw := validReading()
	delete(raw, "temperature")
	raw["gyroscope"] = map[string]any{"x": 0.1, "y": "fast"}

	_, err := NormalizeReading(raw)
	if !errors.Is(err, ErrIncompleteReading) {
		t.Fatalf("err = %v, want ErrIncompleteReading", err)
	}
	var incomplete *IncompleteReadingError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected *IncompleteReadingError, got %T", err)
	}
	want := []string{"temperature", "gyroscope.y", "gyroscope.z"}
	if !reflect.DeepEqual(incomplete.Fields, want) {
		t.Fatalf("missing fields = %v, want %v", incomplete.Fields, want)
	}
}

func TestNormalizeReadingMissingVector(t *testing.T) {
	raw := validReading()
	raw["accelerometer"] = []any{0.1, 0.2, 0.3}
	_, err := NormalizeReading(raw)
	var incomplete *IncompleteReadingError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected incomplete error, got %v", err)
	}
	if len(incomplete.Fields) != 1 || incomplete.Fields[0] != "accelerometer" {
		t.Fatalf("missing fields = %v", incomplete.Fields)
	}
}
