package fraud

import (
	"context"
	"fmt"
	"math"
)

// analyzeDevice swaps in the new fingerprint and compares it with the one it
// replaced. The first sighting only establishes the baseline.
func (s *service) analyzeDevice(ctx context.Context, ev *evaluation) (*RiskFactor, error) {
	prev, err := s.stores.Devices.Swap(ctx, ev.userID, *ev.fp)
	if err != nil {
		return nil, fmt.Errorf("swap device fingerprint: %w", err)
	}
	if prev == nil {
		return nil, nil
	}

	anomalies := compareFingerprints(*prev, *ev.fp)
	if len(anomalies) == 0 {
		return nil, nil
	}

	n := len(anomalies)
	return &RiskFactor{
		Category:    CategoryDevice,
		Severity:    deviceSeverity(anomalies),
		Score:       math.Min(float64(n)*deviceScoreStep, 1),
		Description: fmt.Sprintf("Device fingerprint changed: %d differences from last known device", n),
		Evidence:    Evidence{Device: anomalies},
		Timestamp:   ev.now,
	}, nil
}

func compareFingerprints(prev, cur DeviceFingerprint) []DeviceAnomaly {
	var anomalies []DeviceAnomaly

	if prev.Location != nil && cur.Location != nil {
		if d := haversineKm(*prev.Location, *cur.Location); d > GeoJumpMinKm {
			anomalies = append(anomalies, DeviceAnomaly{Kind: AnomalyLocationJump, DistanceKm: d})
		}
	}
	if prev.ScreenResolution != cur.ScreenResolution {
		anomalies = append(anomalies, DeviceAnomaly{Kind: AnomalyScreenResolution, Previous: prev.ScreenResolution, Current: cur.ScreenResolution})
	}
	if prev.Timezone != cur.Timezone {
		anomalies = append(anomalies, DeviceAnomaly{Kind: AnomalyTimezone, Previous: prev.Timezone, Current: cur.Timezone})
	}
	if prev.Platform != cur.Platform {
		anomalies = append(anomalies, DeviceAnomaly{Kind: AnomalyPlatform, Previous: prev.Platform, Current: cur.Platform})
	}

	return anomalies
}

func deviceSeverity(anomalies []DeviceAnomaly) Severity {
	var major int
	for _, a := range anomalies {
		if a.Kind == AnomalyLocationJump || a.Kind == AnomalyPlatform {
			major++
		}
	}
	return keyedSeverity(major, len(anomalies), 3)
}

// keyedSeverity grades a factor by its count of key findings, falling back to
// medium when the total reaches mediumAt
func keyedSeverity(key, total, mediumAt int) Severity {
	switch {
	case key >= 2:
		return SeverityCritical
	case key >= 1:
		return SeverityHigh
	case total >= mediumAt:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
