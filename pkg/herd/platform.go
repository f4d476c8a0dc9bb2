package herd

import (
	"context"

	"cowly/internal/util"
	"cowly/pkg/domain"
)

// SummarizePlatform counts farmers and cows across every user.
// Only an exact "farmer" role is counted; cows are counted for all users.
func SummarizePlatform(ctx context.Context, users any) domain.PlatformSummary {
	logger := util.LoggerFromContext(ctx)
	var summary domain.PlatformSummary
	for _, u := range Entries(users) {
		record, ok := u.Value.(map[string]any)
		if !ok {
			logger.Warn("user record is not an object", "user_id", u.ID)
			continue
		}
		if details(record).Role == domain.RoleFarmer {
			summary.TotalFarmers++
		}
		summary.TotalCows += Count(record["cows"])
	}
	return summary
}

// ListFarmers returns the farmer-role users in id order.
func ListFarmers(users any) []domain.FarmerSummary {
	var out []domain.FarmerSummary
	for _, u := range Entries(users) {
		record, ok := u.Value.(map[string]any)
		if !ok {
			continue
		}
		d := details(record)
		if d.Role != domain.RoleFarmer {
			continue
		}
		out = append(out, domain.FarmerSummary{
			UserID: u.ID,
			Email:  d.Email,
			Name:   d.Name,
			Role:   d.Role,
		})
	}
	return out
}

func details(user map[string]any) domain.UserDetails {
	raw, _ := user["details"].(map[string]any)
	name, _ := raw["name"].(string)
	email, _ := raw["email"].(string)
	role, _ := raw["role"].(string)
	return domain.UserDetails{Name: name, Email: email, Role: domain.UserRole(role)}
}
