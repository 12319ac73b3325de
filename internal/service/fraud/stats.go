package fraud

import (
	"context"
	"fmt"
	"sync"
)

// verdictStats keeps running totals over evaluations that did not fail
type verdictStats struct {
	mu        sync.Mutex
	evaluated int64
	detected  int64
	riskSum   float64
}

func (v *verdictStats) observe(risk FraudRisk) {
	if risk.Status == StatusFailed {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.evaluated++
	v.riskSum += risk.OverallRisk
	if len(risk.RiskFactors) > 0 {
		v.detected++
	}
}

func (v *verdictStats) snapshot() (avgRisk, detectionRate float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.evaluated == 0 {
		return 0, 0
	}
	return v.riskSum / float64(v.evaluated), float64(v.detected) / float64(v.evaluated)
}

// GetFraudStats combines store counts with the running verdict totals
func (s *service) GetFraudStats(ctx context.Context) (FraudStats, error) {
	profiles, err := s.stores.Profiles.Count(ctx)
	if err != nil {
		return FraudStats{}, fmt.Errorf("count profiles: %w", err)
	}
	devices, err := s.stores.Devices.Count(ctx)
	if err != nil {
		return FraudStats{}, fmt.Errorf("count devices: %w", err)
	}
	blacklisted, err := s.stores.Blacklist.Count(ctx)
	if err != nil {
		return FraudStats{}, fmt.Errorf("count blacklisted IPs: %w", err)
	}

	s.metrics.SetStoreSizes(profiles, devices, blacklisted)

	avg, rate := s.stats.snapshot()
	return FraudStats{
		TotalProfiles:    profiles,
		TotalDevices:     devices,
		BlacklistedIPs:   blacklisted,
		AverageRiskScore: avg,
		DetectionRate:    rate,
	}, nil
}
