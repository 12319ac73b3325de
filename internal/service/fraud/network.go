package fraud

import (
	"context"
	"fmt"
	"math"
	"net/netip"
)

// analyzeNetwork checks the source address against the blacklist, anonymizer
// flags and the user's last known location.
func (s *service) analyzeNetwork(ctx context.Context, ev *evaluation) (*RiskFactor, error) {
	if ev.data.IPAddress == "" {
		return nil, nil
	}
	ip, err := canonicalIP(ev.data.IPAddress)
	if err != nil {
		return nil, nil
	}

	var findings []NetworkFinding

	blacklisted, err := s.stores.Blacklist.Contains(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup: %w", err)
	}
	if blacklisted {
		findings = append(findings, NetworkFinding{Kind: FindingBlacklistedIP, IPAddress: ip})
	}

	intel := s.intel.lookup(ctx, ip)
	if intel.degraded {
		ev.intelDegraded.Store(true)
	}
	// one anonymizer finding regardless of how many flags are set
	isVPN := ev.data.IsVPN || intel.IsVPN
	isProxy := ev.data.IsProxy || intel.IsProxy
	if isVPN || isProxy {
		findings = append(findings, NetworkFinding{Kind: FindingVPNProxy, IPAddress: ip, IsVPN: isVPN, IsProxy: isProxy})
	}

	location := ev.data.GeoLocation
	if location == nil {
		location = intel.Location
	}
	if location != nil {
		profile, err := ev.profile()
		if err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		if f, ok := impossibleTravel(ip, profile, *location, ev); ok {
			findings = append(findings, f)
		}
	}

	if len(findings) == 0 {
		return nil, nil
	}

	var key int
	for _, f := range findings {
		if f.Kind == FindingBlacklistedIP || f.Kind == FindingGeoAnomaly {
			key++
		}
	}

	n := len(findings)
	return &RiskFactor{
		Category:    CategoryNetwork,
		Severity:    keyedSeverity(key, n, 2),
		Score:       math.Min(float64(n)*networkScoreStep, 1),
		Description: fmt.Sprintf("Network risks detected for %s: %d findings", ip, n),
		Evidence:    Evidence{Network: findings},
		Timestamp:   ev.now,
	}, nil
}

// impossibleTravel flags a location that could not have been reached from
// the profile's last known location in the elapsed time
func impossibleTravel(ip string, profile *BehavioralProfile, current GeoPoint, ev *evaluation) (NetworkFinding, bool) {
	if profile == nil {
		return NetworkFinding{}, false
	}
	last, seenAt := profile.LastLocation()
	if last == nil {
		return NetworkFinding{}, false
	}

	distance := haversineKm(*last, current)
	if distance <= GeoJumpMinKm {
		return NetworkFinding{}, false
	}

	speed := math.Inf(1)
	if hours := ev.now.Sub(seenAt).Hours(); hours > 0 {
		speed = distance / hours
	}
	if speed <= MaxTravelSpeedKmh {
		return NetworkFinding{}, false
	}

	f := NetworkFinding{Kind: FindingGeoAnomaly, IPAddress: ip, DistanceKm: distance}
	if !math.IsInf(speed, 1) {
		f.SpeedKmh = speed
	}
	return f, true
}

// canonicalIP normalizes an address so IPv4-mapped IPv6 and plain IPv4 forms
// compare equal
func canonicalIP(raw string) (string, error) {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", err
	}
	return addr.Unmap().WithZone("").String(), nil
}
