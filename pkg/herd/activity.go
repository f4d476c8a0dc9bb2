package herd

import (
	"math"

	"cowly/pkg/domain"
)

const (
	AccelThreshold = 1.5
	GyroThreshold  = 0.8
)

// Magnitude returns the Euclidean norm of v.
func Magnitude(v domain.Vector3) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Classify maps motion vectors to an activity level. Thresholds are strict:
// a magnitude equal to a threshold does not cross it.
func Classify(accel, gyro domain.Vector3) domain.ActivityLevel {
	a, g := Magnitude(accel), Magnitude(gyro)
	switch {
	case a > AccelThreshold || g > GyroThreshold:
		return domain.ActivityHigh
	case a > AccelThreshold*0.5 || g > GyroThreshold*0.5:
		return domain.ActivityMedium
	default:
		return domain.ActivityLow
	}
}
