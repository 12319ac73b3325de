package fraud

import (
	"context"

	"github.com/shopspring/decimal"
)

// Service defines the fraud detection service interface
type Service interface {
	// DetectFraud evaluates an action and returns a verdict. It never fails:
	// internal faults yield a neutral verdict with Status == StatusFailed.
	// Callers gating high-value actions should check Status and may choose to
	// fail closed on StatusFailed instead of trusting ActionRequired == none.
	DetectFraud(ctx context.Context, userID string, action ActionType, data ActionData, fp *DeviceFingerprint) FraudRisk
	// UpdateBehavioralProfile appends an interaction sample to the user's profile
	UpdateBehavioralProfile(ctx context.Context, userID string, sample BehaviorSample) error
	// GetFraudStats returns dashboard counters
	GetFraudStats(ctx context.Context) (FraudStats, error)
	// AddBlacklistedIP flags an address for every later evaluation
	AddBlacklistedIP(ctx context.Context, ip string) error
	// RemoveBlacklistedIP clears a flagged address
	RemoveBlacklistedIP(ctx context.Context, ip string) error
	// GetBlacklistedIPs lists flagged addresses in canonical form
	GetBlacklistedIPs(ctx context.Context) ([]string, error)
	// Close waits for pending audit writes to finish
	Close(ctx context.Context) error
}

// ProfileStore persists behavioral profiles
type ProfileStore interface {
	// Get returns the profile for a user, or nil when none exists
	Get(ctx context.Context, userID string) (*BehavioralProfile, error)
	// Append adds a sample under the retention policy and returns the updated
	// profile. Appends for one user are serialized.
	Append(ctx context.Context, userID string, sample BehaviorSample, policy RetentionPolicy) (*BehavioralProfile, error)
	// Count returns the number of stored profiles
	Count(ctx context.Context) (int64, error)
}

// DeviceStore persists the last seen fingerprint per user
type DeviceStore interface {
	// Swap atomically replaces the stored fingerprint and returns the previous
	// one, or nil on first sighting
	Swap(ctx context.Context, userID string, fp DeviceFingerprint) (*DeviceFingerprint, error)
	// Count returns the number of users with a stored fingerprint
	Count(ctx context.Context) (int64, error)
}

// BlacklistStore persists flagged IP addresses. Addresses arrive canonicalized.
type BlacklistStore interface {
	Add(ctx context.Context, ip string) error
	Remove(ctx context.Context, ip string) error
	Contains(ctx context.Context, ip string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

// NetworkIntelProvider looks up VPN/proxy status and geolocation for an IP
type NetworkIntelProvider interface {
	Lookup(ctx context.Context, ip string) (*NetworkIntel, error)
}

// RecipientRiskChecker is an extension point for recipient screening.
// No implementation ships with the engine.
type RecipientRiskChecker interface {
	IsRisky(ctx context.Context, recipientID string, amount decimal.Decimal) (bool, error)
}

// VerdictRecorder receives every non-failed verdict, for auditing or to feed
// a notification pipeline
type VerdictRecorder interface {
	Record(ctx context.Context, record VerdictRecord) error
}

// Stores groups the state backends the engine reads and writes
type Stores struct {
	Profiles  ProfileStore
	Devices   DeviceStore
	Blacklist BlacklistStore
}
