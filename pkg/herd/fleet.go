package herd

import (
	"context"
	"strings"

	"cowly/internal/util"
	"cowly/pkg/domain"
)

// HealthBucket is the category a free-text health status falls into.
type HealthBucket int

const (
	BucketNone HealthBucket = iota
	BucketHealthy
	BucketPregnant
	BucketLowMilk
	BucketUnhealthy
)

// BucketHealth categorizes a health status case-insensitively. Statuses
// outside the known vocabulary return BucketNone and are not counted.
func BucketHealth(status string) HealthBucket {
	switch strings.ToLower(status) {
	case "healthy":
		return BucketHealthy
	case "pregnant":
		return BucketPregnant
	case "low milk", "low_milk":
		return BucketLowMilk
	case "unhealthy":
		return BucketUnhealthy
	default:
		return BucketNone
	}
}

// SummarizeFleet computes herd totals and the health histogram for one
// farmer's cows. Bad records are logged and skipped; it never fails.
func SummarizeFleet(ctx context.Context, cows any) domain.FleetSummary {
	logger := util.LoggerFromContext(ctx)
	var summary domain.FleetSummary
	for _, e := range Entries(cows) {
		summary.TotalCows++
		record, ok := e.Value.(map[string]any)
		if !ok {
			logger.Warn("cow record is not an object", "cow_id", e.ID, "kind", kindOf(e.Value))
			continue
		}
		milk, present := record["milk_production"]
		if n, ok := Number(milk); ok {
			summary.TotalMilkProduction += n
		} else if present {
			logger.Warn("invalid milk_production value", "cow_id", e.ID, "value", milk)
		} else {
			logger.Warn("cow has no milk_production", "cow_id", e.ID)
		}

		status, _ := record["health_status"].(string)
		switch BucketHealth(status) {
		case BucketHealthy:
			summary.Health.Healthy++
		case BucketPregnant:
			summary.Health.Pregnant++
		case BucketLowMilk:
			summary.Health.LowMilk++
		case BucketUnhealthy:
			summary.Health.Unhealthy++
		}
	}
	return summary
}
