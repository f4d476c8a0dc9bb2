package domain

import (
	"regexp"
	"strings"
	"time"
)

type UserRole string

const (
	RoleFarmer UserRole = "farmer"
	RoleAdmin  UserRole = "admin"
)

// Valid reports whether the role belongs to the closed role set.
func (r UserRole) Valid() bool {
	return r == RoleFarmer || r == RoleAdmin
}

var cowIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// NormalizeCowID trims and lower-cases a cow id. Cow ids are stored and
// looked up in this form only.
func NormalizeCowID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidCowID reports whether id uses only letters, digits, '_' and '-'.
func ValidCowID(id string) bool {
	return cowIDPattern.MatchString(id)
}

type ActivityLevel string

const (
	ActivityLow    ActivityLevel = "Low"
	ActivityMedium ActivityLevel = "Medium"
	ActivityHigh   ActivityLevel = "High"
)

// UserDetails mirrors users/{uid}/details.
type UserDetails struct {
	UserID       string   `json:"user_id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Role         UserRole `json:"role"`
	PasswordHash string   `json:"-"`
}

// Vector3 is a three-axis sensor sample.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Reading is one timestamped telemetry sample for a cow.
type Reading struct {
	Temperature   float64   `json:"temperature"`
	Accelerometer Vector3   `json:"accelerometer"`
	Gyroscope     Vector3   `json:"gyroscope"`
	Timestamp     time.Time `json:"timestamp"`
}

type CowProfile struct {
	CowID         string        `json:"cow_id"`
	Temperature   float64       `json:"temperature"`
	ActivityLevel ActivityLevel `json:"activity_level"`
	ReadingKey    string        `json:"reading_key,omitempty"`
}

type HealthHistogram struct {
	Healthy   int `json:"total_healthy_cows"`
	Pregnant  int `json:"total_pregnant_cows"`
	LowMilk   int `json:"total_low_milk_cows"`
	Unhealthy int `json:"total_unhealthy_cows"`
}

type FleetSummary struct {
	TotalCows           int             `json:"total_cows"`
	TotalMilkProduction float64         `json:"total_milk_production"`
	Health              HealthHistogram `json:"health"`
}

type PlatformSummary struct {
	TotalCows    int `json:"total_cows"`
	TotalFarmers int `json:"total_farmers"`
}

type FarmerSummary struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Role   UserRole `json:"role"`
}
