package fraud

import (
	"context"
	"fmt"
	"math"
)

// analyzeBehavior compares the action's interaction telemetry against the
// user's profile. Without a profile there is no baseline and no factor.
func (s *service) analyzeBehavior(ctx context.Context, ev *evaluation) (*RiskFactor, error) {
	profile, err := ev.profile()
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, nil
	}

	var anomalies []BehavioralAnomaly

	if ev.data.TypingSpeed != nil {
		if a, ok := relativeDeviation(AnomalyTypingSpeed, *ev.data.TypingSpeed, profile.TypingSpeeds(), TypingSpeedDeviation); ok {
			anomalies = append(anomalies, a)
		}
	}

	hour := ev.now.Hour()
	if ev.data.TimeOfDay != nil {
		hour = *ev.data.TimeOfDay
	}
	if a, ok := hourAnomaly(hour, profile.TimesOfDay()); ok {
		anomalies = append(anomalies, a)
	}

	if ev.data.SessionDuration != nil {
		if a, ok := relativeDeviation(AnomalySessionDuration, *ev.data.SessionDuration, profile.SessionDurations(), SessionDurationDeviation); ok {
			anomalies = append(anomalies, a)
		}
	}

	if len(anomalies) == 0 {
		return nil, nil
	}

	n := len(anomalies)
	return &RiskFactor{
		Category:    CategoryBehavioral,
		Severity:    behavioralSeverity(n),
		Score:       math.Min(float64(n)*behavioralScoreStep, 1),
		Description: fmt.Sprintf("Behavioral anomalies detected: %d deviations from baseline", n),
		Evidence:    Evidence{Behavioral: anomalies},
		Timestamp:   ev.now,
	}, nil
}

// relativeDeviation flags current when it strays from the history mean by
// more than limit. An empty history or a non-positive mean is not comparable.
func relativeDeviation(kind BehavioralAnomalyKind, current float64, history []float64, limit float64) (BehavioralAnomaly, bool) {
	if len(history) == 0 {
		return BehavioralAnomaly{}, false
	}
	m := mean(history)
	if m <= 0 {
		return BehavioralAnomaly{}, false
	}
	dev := math.Abs(current-m) / m
	if dev <= limit {
		return BehavioralAnomaly{}, false
	}
	return BehavioralAnomaly{Kind: kind, Observed: current, Expected: m, Deviation: dev}, true
}

// hourAnomaly flags an hour that has no recorded neighbour within HourWindow.
// An empty history has no neighbours and is therefore anomalous.
func hourAnomaly(hour int, history []int) (BehavioralAnomaly, bool) {
	nearest, best := -1, 24
	for _, h := range history {
		if d := hourDistance(hour, h); d < best {
			nearest, best = h, d
		}
	}
	if nearest >= 0 && best <= HourWindow {
		return BehavioralAnomaly{}, false
	}
	a := BehavioralAnomaly{Kind: AnomalyTimeOfDay, Observed: float64(hour), Expected: float64(nearest)}
	if nearest >= 0 {
		a.Deviation = float64(best)
	}
	return a, true
}

func behavioralSeverity(n int) Severity {
	switch {
	case n >= 5:
		return SeverityCritical
	case n >= 3:
		return SeverityHigh
	case n >= 2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
