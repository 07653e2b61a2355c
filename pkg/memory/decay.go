package memory

import (
	"math"
	"time"
)

// timeDecayMultiplier returns the factor applied to a fused score for a
// chunk of the given age:
//
//	0.7 + 0.3 * exp(-age_days * (1 - factor))
//
// The 0.7 floor means no chunk ever loses more than 30% of its fused
// score to age; the remaining 30% decays with a half-life set by the
// factor (0.95 puts it on the order of weeks, 1.0 disables decay).
func timeDecayMultiplier(age time.Duration, factor float64) float64 {
	if age < 0 {
		age = 0
	}
	ageDays := age.Hours() / 24
	return 0.7 + 0.3*math.Exp(-ageDays*(1-factor))
}
