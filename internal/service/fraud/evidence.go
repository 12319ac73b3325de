package fraud

import "github.com/shopspring/decimal"

// Evidence is the category-specific detail behind a RiskFactor. Exactly one
// slice is populated, matching the factor's category.
type Evidence struct {
	Behavioral  []BehavioralAnomaly  `json:"behavioral,omitempty"`
	Device      []DeviceAnomaly      `json:"device,omitempty"`
	Network     []NetworkFinding     `json:"network,omitempty"`
	Transaction []TransactionFinding `json:"transaction,omitempty"`
	Identity    []IdentityFinding    `json:"identity,omitempty"`
}

// Len counts the findings across all categories
func (e Evidence) Len() int {
	return len(e.Behavioral) + len(e.Device) + len(e.Network) + len(e.Transaction) + len(e.Identity)
}

// BehavioralAnomalyKind names a behavioral deviation
type BehavioralAnomalyKind string

const (
	AnomalyTypingSpeed     BehavioralAnomalyKind = "typing_speed"
	AnomalyTimeOfDay       BehavioralAnomalyKind = "time_of_day"
	AnomalySessionDuration BehavioralAnomalyKind = "session_duration"
)

// BehavioralAnomaly compares an observed value against the user's baseline.
// For time-of-day anomalies Expected holds the nearest known hour, or -1
// when no hour has been recorded.
type BehavioralAnomaly struct {
	Kind      BehavioralAnomalyKind `json:"kind"`
	Observed  float64               `json:"observed"`
	Expected  float64               `json:"expected"`
	Deviation float64               `json:"deviation"`
}

// DeviceAnomalyKind names a fingerprint change
type DeviceAnomalyKind string

const (
	AnomalyLocationJump     DeviceAnomalyKind = "location_jump"
	AnomalyScreenResolution DeviceAnomalyKind = "screen_resolution_change"
	AnomalyTimezone         DeviceAnomalyKind = "timezone_change"
	AnomalyPlatform         DeviceAnomalyKind = "platform_change"
)

// DeviceAnomaly records what changed between the stored and new fingerprint
type DeviceAnomaly struct {
	Kind       DeviceAnomalyKind `json:"kind"`
	Previous   string            `json:"previous,omitempty"`
	Current    string            `json:"current,omitempty"`
	DistanceKm float64           `json:"distance_km,omitempty"`
}

// NetworkFindingKind names a network signal
type NetworkFindingKind string

const (
	FindingBlacklistedIP NetworkFindingKind = "blacklisted_ip"
	FindingVPNProxy      NetworkFindingKind = "vpn_proxy_usage"
	FindingGeoAnomaly    NetworkFindingKind = "geo_anomaly"
)

// NetworkFinding records a network signal for the evaluated address
type NetworkFinding struct {
	Kind       NetworkFindingKind `json:"kind"`
	IPAddress  string             `json:"ip_address"`
	IsVPN      bool               `json:"is_vpn,omitempty"`
	IsProxy    bool               `json:"is_proxy,omitempty"`
	DistanceKm float64            `json:"distance_km,omitempty"`
	SpeedKmh   float64            `json:"speed_kmh,omitempty"`
}

// TransactionFindingKind names a transaction signal
type TransactionFindingKind string

const (
	FindingHighAmount        TransactionFindingKind = "high_amount"
	FindingRapidTransactions TransactionFindingKind = "rapid_transactions"
	FindingRiskyRecipient    TransactionFindingKind = "risky_recipient"
)

// TransactionFinding records a transaction signal
type TransactionFinding struct {
	Kind        TransactionFindingKind `json:"kind"`
	Amount      decimal.Decimal        `json:"amount,omitempty"`
	Threshold   decimal.Decimal        `json:"threshold,omitempty"`
	Count       int                    `json:"count,omitempty"`
	RecipientID string                 `json:"recipient_id,omitempty"`
}

// IdentityFindingKind names an identity signal
type IdentityFindingKind string

const (
	FindingDocumentAnomaly     IdentityFindingKind = "document_anomaly"
	FindingMultipleAccounts    IdentityFindingKind = "multiple_accounts"
	FindingFailedVerifications IdentityFindingKind = "repeated_failed_verification"
)

// IdentityFinding records an identity signal
type IdentityFinding struct {
	Kind              IdentityFindingKind `json:"kind"`
	DocumentType      string              `json:"document_type,omitempty"`
	AuthenticityScore float64             `json:"authenticity_score,omitempty"`
	ConsistencyScore  float64             `json:"consistency_score,omitempty"`
	Count             int                 `json:"count,omitempty"`
}
