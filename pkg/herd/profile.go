package herd

import (
	"errors"
	"fmt"

	"cowly/pkg/domain"
)

// ErrNoReadings is returned when a cow has no stored readings.
var ErrNoReadings = errors.New("no readings found for this cow")

// LatestReading picks the reading with the lexically greatest key. Keys are
// zero-padded ISO-8601 timestamps, so lexical order is time order.
func LatestReading(readings any) (string, any, bool) {
	var (
		key   string
		value any
		found bool
	)
	for _, e := range Entries(readings) {
		if !found || e.ID > key {
			key, value, found = e.ID, e.Value, true
		}
	}
	return key, value, found
}

// BuildProfile derives a cow's current temperature and activity level from
// its most recent reading. Malformed data in that reading is an error.
func BuildProfile(cowID string, readings any) (domain.CowProfile, error) {
	key, raw, ok := LatestReading(readings)
	if !ok {
		return domain.CowProfile{}, ErrNoReadings
	}
	sample, err := NormalizeReading(raw)
	if err != nil {
		return domain.CowProfile{}, fmt.Errorf("reading %s: %w", key, err)
	}
	return domain.CowProfile{
		CowID:         cowID,
		Temperature:   sample.Temperature,
		ActivityLevel: Classify(sample.Accel, sample.Gyro),
		ReadingKey:    key,
	}, nil
}
