package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/service/fraud"
)

// Dashboard gauges fed from GetFraudStats

var (
	storedProfiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "risk",
			Subsystem: "fraud",
			Name:      "profiles_total",
			Help:      "Number of stored behavioral profiles",
		},
	)

	storedDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "risk",
			Subsystem: "fraud",
			Name:      "devices_total",
			Help:      "Number of users with a stored device fingerprint",
		},
	)

	blacklistedIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "risk",
			Subsystem: "fraud",
			Name:      "blacklisted_ips_total",
			Help:      "Number of blacklisted IP addresses",
		},
	)

	averageRiskScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "risk",
			Subsystem: "fraud",
			Name:      "average_risk_score",
			Help:      "Mean overall risk of evaluations that did not fail",
		},
	)

	detectionRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "risk",
			Subsystem: "fraud",
			Name:      "detection_rate",
			Help:      "Share of evaluations that produced at least one risk factor",
		},
	)

	statsErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "risk",
			Subsystem: "fraud",
			Name:      "stats_errors_total",
			Help:      "Failed attempts to read engine statistics",
		},
	)
)

type statsSource interface {
	GetFraudStats(ctx context.Context) (fraud.FraudStats, error)
}

// statsCollector polls the engine and publishes its statistics
type statsCollector struct {
	source statsSource
	logger *zap.Logger
}

func newStatsCollector(source statsSource, logger *zap.Logger) *statsCollector {
	return &statsCollector{source: source, logger: logger.Named("stats")}
}

func (c *statsCollector) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *statsCollector) collect(ctx context.Context) {
	stats, err := c.source.GetFraudStats(ctx)
	if err != nil {
		statsErrors.Inc()
		c.logger.Warn("failed to collect fraud stats", zap.Error(err))
		return
	}

	storedProfiles.Set(float64(stats.TotalProfiles))
	storedDevices.Set(float64(stats.TotalDevices))
	blacklistedIPs.Set(float64(stats.BlacklistedIPs))
	averageRiskScore.Set(stats.AverageRiskScore)
	detectionRate.Set(stats.DetectionRate)
}
