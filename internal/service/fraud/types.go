package fraud

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category identifies the signal family a risk factor came from
type Category string

const (
	CategoryBehavioral  Category = "behavioral"
	CategoryDevice      Category = "device"
	CategoryNetwork     Category = "network"
	CategoryTransaction Category = "transaction"
	CategoryIdentity    Category = "identity"
)

// Severity represents the severity level of a risk factor
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Action is the downstream behavior a verdict asks for
type Action string

const (
	ActionNone     Action = "none"
	ActionReview   Action = "review"
	ActionBlock    Action = "block"
	ActionEscalate Action = "escalate"
)

// ActionType is the user action being evaluated
type ActionType string

const (
	ActionLogin         ActionType = "login"
	ActionPayment       ActionType = "payment"
	ActionTransfer      ActionType = "transfer"
	ActionProfileUpdate ActionType = "profile_update"
)

// IsMonetary reports whether the action moves money
func (a ActionType) IsMonetary() bool {
	return a == ActionPayment || a == ActionTransfer
}

// VerdictStatus tells callers how much of the evaluation actually ran.
type VerdictStatus string

const (
	// StatusComplete means every scheduled analyzer finished.
	StatusComplete VerdictStatus = "complete"
	// StatusPartial means the deadline expired before every analyzer finished.
	StatusPartial VerdictStatus = "partial"
	// StatusFailed means the engine failed internally and returned the neutral verdict.
	StatusFailed VerdictStatus = "failed"
)

// RiskFactor is one signal-category finding. Treat it as immutable once produced.
type RiskFactor struct {
	Category          Category  `json:"category"`
	Severity          Severity  `json:"severity"`
	Score             float64   `json:"score"`
	Description       string    `json:"description"`
	Evidence          Evidence  `json:"evidence"`
	Timestamp         time.Time `json:"timestamp"`
	ThresholdExceeded bool      `json:"threshold_exceeded"`
}

// FraudRisk is the aggregated verdict for one evaluated action
type FraudRisk struct {
	OverallRisk     float64       `json:"overall_risk"`
	RiskFactors     []RiskFactor  `json:"risk_factors"`
	Confidence      float64       `json:"confidence"`
	Recommendations []string      `json:"recommendations"`
	ActionRequired  Action        `json:"action_required"`
	Status          VerdictStatus `json:"status"`
}

// neutralVerdict is returned whenever the engine cannot produce a real one
func neutralVerdict() FraudRisk {
	return FraudRisk{
		OverallRisk:     0,
		RiskFactors:     []RiskFactor{},
		Confidence:      0,
		Recommendations: []string{},
		ActionRequired:  ActionNone,
		Status:          StatusFailed,
	}
}

// GeoPoint is a WGS84 coordinate with an optional accuracy radius in meters
type GeoPoint struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Accuracy  float64 `json:"accuracy" validate:"gte=0"`
}

// DeviceFingerprint is a snapshot of client device and browser characteristics
type DeviceFingerprint struct {
	UserAgent           string    `json:"user_agent"`
	ScreenResolution    string    `json:"screen_resolution"`
	Timezone            string    `json:"timezone"`
	Language            string    `json:"language"`
	Platform            string    `json:"platform"`
	HardwareConcurrency int       `json:"hardware_concurrency" validate:"gte=0"`
	DeviceMemory        float64   `json:"device_memory" validate:"gte=0"`
	CanvasFingerprint   string    `json:"canvas_fingerprint,omitempty"`
	WebGLFingerprint    string    `json:"webgl_fingerprint,omitempty"`
	AudioFingerprint    string    `json:"audio_fingerprint,omitempty"`
	Location            *GeoPoint `json:"location,omitempty" validate:"omitempty"`
}

// TransactionRecord is one entry of a caller-supplied transaction history
type TransactionRecord struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// IdentityDocument carries the scores produced by an upstream document check
type IdentityDocument struct {
	Type              string  `json:"type"`
	AuthenticityScore float64 `json:"authenticity_score" validate:"min=0,max=1"`
	ConsistencyScore  float64 `json:"consistency_score" validate:"min=0,max=1"`
}

// VerificationStatusFailed marks a failed verification attempt
const VerificationStatusFailed = "failed"

// VerificationAttempt is one entry of a caller-supplied verification history
type VerificationAttempt struct {
	Status      string    `json:"status"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// ActionData carries the per-call signals. Every field is optional; a missing
// or invalid field only disables the checks that depend on it.
type ActionData struct {
	// Network
	IPAddress   string    `json:"ip_address,omitempty" validate:"omitempty,ip"`
	IsVPN       bool      `json:"is_vpn,omitempty"`
	IsProxy     bool      `json:"is_proxy,omitempty"`
	GeoLocation *GeoPoint `json:"geo_location,omitempty" validate:"omitempty"`

	// Behavior
	TypingSpeed     *float64 `json:"typing_speed,omitempty" validate:"omitempty,gt=0"`
	SessionDuration *float64 `json:"session_duration,omitempty" validate:"omitempty,gt=0"`
	TimeOfDay       *int     `json:"time_of_day,omitempty" validate:"omitempty,min=0,max=23"`

	// Transaction
	Amount             *decimal.Decimal    `json:"amount,omitempty"`
	RecipientID        string              `json:"recipient_id,omitempty"`
	TransactionHistory []TransactionRecord `json:"transaction_history,omitempty"`

	// Identity
	IdentityDocuments   []IdentityDocument    `json:"identity_documents,omitempty" validate:"omitempty,dive"`
	AccountCount        int                   `json:"account_count,omitempty" validate:"gte=0"`
	VerificationHistory []VerificationAttempt `json:"verification_history,omitempty"`
}

// BehaviorSample is one observation of user-interaction telemetry
type BehaviorSample struct {
	TypingSpeed     *float64  `json:"typing_speed,omitempty" validate:"omitempty,gt=0"`
	SessionDuration *float64  `json:"session_duration,omitempty" validate:"omitempty,gt=0"`
	TimeOfDay       *int      `json:"time_of_day,omitempty" validate:"omitempty,min=0,max=23"`
	Location        *GeoPoint `json:"location,omitempty" validate:"omitempty"`
	ObservedAt      time.Time `json:"observed_at"`
}

// IsEmpty reports whether the sample carries no signal at all
func (s BehaviorSample) IsEmpty() bool {
	return s.TypingSpeed == nil && s.SessionDuration == nil && s.TimeOfDay == nil && s.Location == nil
}

// BehavioralProfile is the retained interaction history of one user.
// Samples are ordered oldest first.
type BehavioralProfile struct {
	UserID      string           `json:"user_id"`
	Samples     []BehaviorSample `json:"samples"`
	LastUpdated time.Time        `json:"last_updated"`
}

// TypingSpeeds returns the recorded typing speeds, oldest first
func (p *BehavioralProfile) TypingSpeeds() []float64 {
	var out []float64
	for _, s := range p.Samples {
		if s.TypingSpeed != nil {
			out = append(out, *s.TypingSpeed)
		}
	}
	return out
}

// SessionDurations returns the recorded session durations, oldest first
func (p *BehavioralProfile) SessionDurations() []float64 {
	var out []float64
	for _, s := range p.Samples {
		if s.SessionDuration != nil {
			out = append(out, *s.SessionDuration)
		}
	}
	return out
}

// TimesOfDay returns the recorded activity hours, oldest first
func (p *BehavioralProfile) TimesOfDay() []int {
	var out []int
	for _, s := range p.Samples {
		if s.TimeOfDay != nil {
			out = append(out, *s.TimeOfDay)
		}
	}
	return out
}

// LastLocation returns the newest recorded location and when it was observed
func (p *BehavioralProfile) LastLocation() (*GeoPoint, time.Time) {
	for i := len(p.Samples) - 1; i >= 0; i-- {
		if p.Samples[i].Location != nil {
			loc := *p.Samples[i].Location
			return &loc, p.Samples[i].ObservedAt
		}
	}
	return nil, time.Time{}
}

// FraudStats is read-only telemetry for operational dashboards
type FraudStats struct {
	TotalProfiles    int64   `json:"total_profiles"`
	TotalDevices     int64   `json:"total_devices"`
	BlacklistedIPs   int64   `json:"blacklisted_ips"`
	AverageRiskScore float64 `json:"average_risk_score"`
	DetectionRate    float64 `json:"detection_rate"`
}

// NetworkIntel is what an IP intelligence provider knows about an address
type NetworkIntel struct {
	IsVPN    bool
	IsProxy  bool
	Location *GeoPoint
}

// VerdictRecord is the audit-trail entry written for each evaluation
type VerdictRecord struct {
	ID          string
	UserID      string
	Action      ActionType
	Verdict     FraudRisk
	EvaluatedAt time.Time
	Duration    time.Duration
}
