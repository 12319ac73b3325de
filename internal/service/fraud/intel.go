package fraud

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/davidleathers/risk-engine/internal/domain/errors"
	"github.com/davidleathers/risk-engine/internal/metrics"
)

// intelResult is what the network analyzer gets back from the guard. A
// degraded result carries no intel and lowers verdict confidence.
type intelResult struct {
	NetworkIntel
	degraded bool
	err      error
}

// intelGuard puts a timeout and a token bucket in front of the provider so a
// slow or overloaded provider never blocks an evaluation
type intelGuard struct {
	provider NetworkIntelProvider
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Registry
}

func newIntelGuard(provider NetworkIntelProvider, cfg Config, logger *zap.Logger, m *metrics.Registry) *intelGuard {
	return &intelGuard{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(cfg.IntelRateLimit), cfg.IntelBurst),
		timeout:  cfg.IntelTimeout,
		logger:   logger,
		metrics:  m,
	}
}

func (g *intelGuard) lookup(ctx context.Context, ip string) intelResult {
	if g == nil || g.provider == nil {
		return intelResult{}
	}

	if !g.limiter.Allow() {
		g.metrics.RecordIntelLookup(ctx, "rate_limited")
		err := errors.NewExternalError("intel", "lookup rate limited")
		g.logger.Debug("Intel lookup rate limited", zap.String("ip", ip))
		return intelResult{degraded: true, err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type reply struct {
		intel *NetworkIntel
		err   error
	}
	ch := make(chan reply, 1)
	go func() {
		intel, err := g.provider.Lookup(ctx, ip)
		ch <- reply{intel, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			g.metrics.RecordIntelLookup(ctx, "error")
			err := errors.NewExternalError("intel", "lookup failed").WithCause(r.err)
			g.logger.Warn("Intel lookup failed", zap.String("ip", ip), zap.Error(err))
			return intelResult{degraded: true, err: err}
		}
		g.metrics.RecordIntelLookup(ctx, "ok")
		if r.intel == nil {
			return intelResult{}
		}
		return intelResult{NetworkIntel: *r.intel}
	case <-ctx.Done():
		g.metrics.RecordIntelLookup(context.Background(), "timeout")
		err := errors.NewExternalError("intel", "lookup timed out").WithCause(ctx.Err())
		g.logger.Warn("Intel lookup timed out", zap.String("ip", ip), zap.Duration("timeout", g.timeout))
		return intelResult{degraded: true, err: err}
	}
}
