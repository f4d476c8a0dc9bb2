package herd

import (
	"context"
	"testing"

	"cowly/pkg/domain"
)

func TestSummarizeFleetEmpty(t *testing.T) {
	for _, cows := range []any{nil, map[string]any{}, []any{}} {
		if got := SummarizeFleet(context.Background(), cows); got != (domain.FleetSummary{}) {
			t.Fatalf("SummarizeFleet(%#v) = %+v, want zero", cows, got)
		}
	}
}

func TestSummarizeFleetCountsAndHistogram(t *testing.T) {
	cows := map[string]any{
		"a": map[string]any{"milk_production": 10.5, "health_status": "Healthy"},
		"b": map[string]any{"milk_production": 4, "health_status": "PREGNANT"},
		"c": map[string]any{"milk_production": "lots", "health_status": "Low Milk"},
		"d": map[string]any{"health_status": "low_milk"},
		"e": map[string]any{"milk_production": 2.5, "health_status": "unhealthy"},
		"f": map[string]any{"milk_production": 1.0, "health_status": "recovering"},
		"g": nil,
	}
	got := SummarizeFleet(context.Background(), cows)
	want := domain.FleetSummary{
		TotalCows:           6,
		TotalMilkProduction: 18,
		Health: domain.HealthHistogram{
			Healthy:   1,
			Pregnant:  1,
			LowMilk:   2,
			Unhealthy: 1,
		},
	}
	if got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}
}

func TestSummarizeFleetListWithHoles(t *testing.T) {
	cows := []any{
		nil,
		map[string]any{"milk_production": 3.0, "health_status": "healthy"},
		nil,
		map[string]any{"milk_production": 2.0, "health_status": "healthy"},
	}
	got := SummarizeFleet(context.Background(), cows)
	if got.TotalCows != 2 || got.TotalMilkProduction != 5 || got.Health.Healthy != 2 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestBucketHealth(t *testing.T) {
	tests := map[string]HealthBucket{
		"healthy":   BucketHealthy,
		"HeAlThY":   BucketHealthy,
		"pregnant":  BucketPregnant,
		"low milk":  BucketLowMilk,
		"LOW_MILK":  BucketLowMilk,
		"unhealthy": BucketUnhealthy,
		" healthy":  BucketNone,
		"sick":      BucketNone,
		"":          BucketNone,
	}
	for status, want := range tests {
		if got := BucketHealth(status); got != want {
			t.Fatalf("BucketHealth(%q) = %v, want %v", status, got, want)
		}
	}
}
