package fraud

import "time"

// Action thresholds applied to the blended overall risk
const (
	// RiskScoreEscalate escalates to a human investigator
	RiskScoreEscalate = 0.9

	// RiskScoreBlock blocks the action outright
	RiskScoreBlock = 0.8

	// RiskScoreReview queues the action for manual review
	RiskScoreReview = 0.6
)

// Confidence levels
const (
	// ConfidenceWithEvidence is the per-factor confidence when evidence is attached
	ConfidenceWithEvidence = 0.8

	// ConfidenceWithoutEvidence is the per-factor confidence for bare factors
	ConfidenceWithoutEvidence = 0.5

	// MaxConfidence caps the aggregated confidence
	MaxConfidence = 0.95

	// IntelDegradedPenalty scales confidence when the intel provider could not answer
	IntelDegradedPenalty = 0.8
)

// Per-anomaly score increments
const (
	behavioralScoreStep  = 0.2
	deviceScoreStep      = 0.3
	networkScoreStep     = 0.4
	transactionScoreStep = 0.3
	identityScoreStep    = 0.4
)

// Behavioral analysis
const (
	// TypingSpeedDeviation is the relative deviation from the mean that counts as anomalous
	TypingSpeedDeviation = 0.5

	// SessionDurationDeviation is the relative deviation from the mean that counts as anomalous
	SessionDurationDeviation = 0.7

	// HourWindow is how many hours either side of a known hour are still normal
	HourWindow = 2
)

// Device and network analysis
const (
	// GeoJumpMinKm is the distance beyond which a location change is suspicious
	GeoJumpMinKm = 100.0

	// MaxTravelSpeedKmh is the fastest plausible travel speed (roughly a commercial jet)
	MaxTravelSpeedKmh = 900.0
)

// Transaction and identity analysis
const (
	// DefaultHighAmountThreshold is the amount above which a payment is flagged
	DefaultHighAmountThreshold = 10000.0

	// RapidTransactionWindow is the trailing window for velocity counting
	RapidTransactionWindow = time.Hour

	// RapidTransactionLimit is the number of transactions tolerated inside the window
	RapidTransactionLimit = 5

	// MinDocumentAuthenticity is the lowest acceptable document authenticity score
	MinDocumentAuthenticity = 0.7

	// MinDocumentConsistency is the lowest acceptable document consistency score
	MinDocumentConsistency = 0.8

	// MaxAccountsPerIdentity is the number of linked accounts tolerated
	MaxAccountsPerIdentity = 3

	// MaxFailedVerifications is the number of failed verifications tolerated
	MaxFailedVerifications = 3
)

// Retention and runtime defaults
const (
	DefaultProfileRetention  = 30 * 24 * time.Hour
	DefaultMaxProfileSamples = 500
	DefaultEvaluationTimeout = 200 * time.Millisecond
	DefaultIntelTimeout      = 50 * time.Millisecond
	DefaultIntelRateLimit    = 100.0
	DefaultIntelBurst        = 20
	DefaultRecordTimeout     = 2 * time.Second
)

// categoryWeights drive the blended overall risk
var categoryWeights = map[Category]float64{
	CategoryBehavioral:  0.20,
	CategoryDevice:      0.15,
	CategoryNetwork:     0.25,
	CategoryTransaction: 0.25,
	CategoryIdentity:    0.15,
}

// defaultCategoryWeight applies to any category without an explicit weight
const defaultCategoryWeight = 0.10

// categoryThresholds mark a factor as ThresholdExceeded. They are informational
// only; the action is always derived from the overall risk.
var categoryThresholds = map[Category]float64{
	CategoryBehavioral:  0.4,
	CategoryDevice:      0.5,
	CategoryNetwork:     0.7,
	CategoryTransaction: 0.6,
	CategoryIdentity:    0.8,
}

// recommendations holds the advisory string emitted per category
var recommendations = map[Category]string{
	CategoryBehavioral:  "Review user behavior patterns for anomalies",
	CategoryDevice:      "Verify device fingerprint consistency",
	CategoryNetwork:     "Check network security and location",
	CategoryTransaction: "Review transaction patterns and amounts",
	CategoryIdentity:    "Re-verify user identity documents",
}

// MaxRecommendations is how many recommendations a verdict carries
const MaxRecommendations = 3
