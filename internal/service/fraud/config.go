package fraud

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the tunable parameters of the engine
type Config struct {
	HighAmountThreshold float64       `koanf:"high_amount_threshold" validate:"gt=0"`
	ProfileRetention    time.Duration `koanf:"profile_retention" validate:"gt=0"`
	MaxProfileSamples   int           `koanf:"max_profile_samples" validate:"gt=0"`
	EvaluationTimeout   time.Duration `koanf:"evaluation_timeout" validate:"gt=0"`
	IntelTimeout        time.Duration `koanf:"intel_timeout" validate:"gt=0"`
	IntelRateLimit      float64       `koanf:"intel_rate_limit" validate:"gt=0"`
	IntelBurst          int           `koanf:"intel_burst" validate:"gt=0"`
	RecordTimeout       time.Duration `koanf:"record_timeout" validate:"gt=0"`
	BlacklistSeed       []string      `koanf:"blacklist_seed" validate:"omitempty,dive,ip"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		HighAmountThreshold: DefaultHighAmountThreshold,
		ProfileRetention:    DefaultProfileRetention,
		MaxProfileSamples:   DefaultMaxProfileSamples,
		EvaluationTimeout:   DefaultEvaluationTimeout,
		IntelTimeout:        DefaultIntelTimeout,
		IntelRateLimit:      DefaultIntelRateLimit,
		IntelBurst:          DefaultIntelBurst,
		RecordTimeout:       DefaultRecordTimeout,
	}
}

// withDefaults fills zero values so a partially populated Config is usable
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HighAmountThreshold <= 0 {
		c.HighAmountThreshold = d.HighAmountThreshold
	}
	if c.ProfileRetention <= 0 {
		c.ProfileRetention = d.ProfileRetention
	}
	if c.MaxProfileSamples <= 0 {
		c.MaxProfileSamples = d.MaxProfileSamples
	}
	if c.EvaluationTimeout <= 0 {
		c.EvaluationTimeout = d.EvaluationTimeout
	}
	if c.IntelTimeout <= 0 {
		c.IntelTimeout = d.IntelTimeout
	}
	if c.IntelRateLimit <= 0 {
		c.IntelRateLimit = d.IntelRateLimit
	}
	if c.IntelBurst <= 0 {
		c.IntelBurst = d.IntelBurst
	}
	if c.RecordTimeout <= 0 {
		c.RecordTimeout = d.RecordTimeout
	}
	return c
}

func (c Config) highAmount() decimal.Decimal {
	return decimal.NewFromFloat(c.HighAmountThreshold)
}

// RetentionPolicy returns the profile retention rules derived from the config
func (c Config) RetentionPolicy() RetentionPolicy {
	return RetentionPolicy{MaxAge: c.ProfileRetention, MaxSamples: c.MaxProfileSamples}
}
