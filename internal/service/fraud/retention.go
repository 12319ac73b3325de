package fraud

import (
	"sort"
	"time"
)

// RetentionPolicy bounds a behavioral profile by age and by sample count
type RetentionPolicy struct {
	MaxAge     time.Duration
	MaxSamples int
}

// Apply returns the samples that survive the policy, oldest first. Age is
// measured from the newest sample so an idle profile is not wiped out
// wholesale. The input slice is not modified.
func (p RetentionPolicy) Apply(samples []BehaviorSample) []BehaviorSample {
	if len(samples) == 0 {
		return nil
	}

	sorted := make([]BehaviorSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ObservedAt.Before(sorted[j].ObservedAt)
	})

	start := 0
	if p.MaxAge > 0 {
		cutoff := sorted[len(sorted)-1].ObservedAt.Add(-p.MaxAge)
		for start < len(sorted) && sorted[start].ObservedAt.Before(cutoff) {
			start++
		}
	}
	if p.MaxSamples > 0 && len(sorted)-start > p.MaxSamples {
		start = len(sorted) - p.MaxSamples
	}

	return sorted[start:]
}
