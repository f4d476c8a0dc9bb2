package herd

import (
	"errors"
	"fmt"
	"strings"

	"cowly/pkg/domain"
)

var (
	// ErrMalformedReading is returned when a stored reading is not an object.
	ErrMalformedReading = errors.New("invalid reading format")
	// ErrIncompleteReading is returned when required reading fields are absent
	// or not numeric. The concrete error is *IncompleteReadingError.
	ErrIncompleteReading = errors.New("incomplete reading data")
)

// IncompleteReadingError names every field a reading is missing.
type IncompleteReadingError struct {
	Fields []string
}

func (e *IncompleteReadingError) Error() string {
	return ErrIncompleteReading.Error() + ": missing " + strings.Join(e.Fields, ", ")
}

func (e *IncompleteReadingError) Unwrap() error {
	return ErrIncompleteReading
}

// Sample is the validated numeric content of a reading.
type Sample struct {
	Temperature float64
	Accel       domain.Vector3
	Gyro        domain.Vector3
}

// NormalizeReading validates a raw reading record and extracts its
// temperature, accelerometer and gyroscope components.
func NormalizeReading(raw any) (Sample, error) {
	record, ok := raw.(map[string]any)
	if !ok {
		return Sample{}, fmt.Errorf("%w: expected object, got %s", ErrMalformedReading, kindOf(raw))
	}
	var missing []string
	temperature, ok := Number(record["temperature"])
	if !ok {
		missing = append(missing, "temperature")
	}
	accel, accelMissing := vectorField(record, "accelerometer")
	gyro, gyroMissing := vectorField(record, "gyroscope")
	missing = append(missing, accelMissing...)
	missing = append(missing, gyroMissing...)
	if len(missing) > 0 {
		return Sample{}, &IncompleteReadingError{Fields: missing}
	}
	return Sample{Temperature: temperature, Accel: accel, Gyro: gyro}, nil
}

func vectorField(record map[string]any, name string) (domain.Vector3, []string) {
	obj, ok := record[name].(map[string]any)
	if !ok {
		return domain.Vector3{}, []string{name}
	}
	var missing []string
	axis := func(key string) float64 {
		v, ok := Number(obj[key])
		if !ok {
			missing = append(missing, name+"."+key)
		}
		return v
	}
	v := domain.Vector3{X: axis("x"), Y: axis("y"), Z: axis("z")}
	return v, missing
}
