package fraud

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/domain/errors"
	"github.com/davidleathers/risk-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-engine/internal/metrics"
)

// Ensure service implements the interface
var _ Service = (*service)(nil)

// service implements the Service interface
type service struct {
	logger *zap.Logger
	cfg    Config
	stores Stores

	// Collaborators
	intel      *intelGuard
	recipients RecipientRiskChecker
	recorder   VerdictRecorder

	// Observability
	metrics *metrics.Registry
	tracer  trace.Tracer
	stats   verdictStats

	validate   *validator.Validate
	highAmount decimal.Decimal
	now        func() time.Time

	// pending tracks asynchronous audit writes
	pending sync.WaitGroup
}

// Option configures optional collaborators
type Option func(*options)

type options struct {
	intel      NetworkIntelProvider
	recipients RecipientRiskChecker
	recorder   VerdictRecorder
	metrics    *metrics.Registry
	clock      func() time.Time
}

// WithIntelProvider enables IP intelligence lookups
func WithIntelProvider(p NetworkIntelProvider) Option {
	return func(o *options) { o.intel = p }
}

// WithRecipientChecker installs the recipient screening hook
func WithRecipientChecker(c RecipientRiskChecker) Option {
	return func(o *options) { o.recipients = c }
}

// WithVerdictRecorder sends every completed verdict to an audit trail
func WithVerdictRecorder(r VerdictRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithMetrics records engine metrics in the given registry
func WithMetrics(m *metrics.Registry) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the engine clock
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// NewService creates a new fraud detection service
func NewService(logger *zap.Logger, cfg Config, stores Stores, opts ...Option) (Service, error) {
	if logger == nil {
		return nil, errors.NewValidationError("MISSING_DEPENDENCY", "logger is required")
	}
	if stores.Profiles == nil || stores.Devices == nil || stores.Blacklist == nil {
		return nil, errors.NewValidationError("MISSING_DEPENDENCY", "profile, device and blacklist stores are required")
	}

	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.withDefaults()
	logger = logger.Named("fraud")

	s := &service{
		logger:     logger,
		cfg:        cfg,
		stores:     stores,
		recipients: o.recipients,
		recorder:   o.recorder,
		metrics:    o.metrics,
		tracer:     otel.Tracer("risk-engine/fraud"),
		validate:   validator.New(),
		highAmount: cfg.highAmount(),
		now:        o.clock,
	}
	if o.intel != nil {
		s.intel = newIntelGuard(o.intel, cfg, logger, o.metrics)
	}

	return s, nil
}

// evaluation is the per-call state shared by the analyzers
type evaluation struct {
	userID string
	action ActionType
	data   ActionData
	fp     *DeviceFingerprint
	now    time.Time

	// profile loads the behavioral profile at most once per call
	profile       func() (*BehavioralProfile, error)
	intelDegraded atomic.Bool
}

type analyzerFunc func(ctx context.Context, ev *evaluation) (*RiskFactor, error)

type analyzer struct {
	name string
	run  analyzerFunc
}

// plan returns the analyzers that apply to this call, in execution order
func (s *service) plan(ev *evaluation) []analyzer {
	plan := []analyzer{{"behavioral", s.analyzeBehavior}}
	if ev.fp != nil && ev.userID != "" {
		plan = append(plan, analyzer{"device", s.analyzeDevice})
	}
	plan = append(plan, analyzer{"network", s.analyzeNetwork})
	if ev.action.IsMonetary() {
		plan = append(plan, analyzer{"transaction", s.analyzeTransaction})
	}
	return append(plan, analyzer{"identity", s.analyzeIdentity})
}

// DetectFraud runs the applicable analyzers concurrently and aggregates their
// factors. It is fail-open: any internal fault yields the neutral verdict with
// Status == StatusFailed, so callers that must fail closed should check Status.
func (s *service) DetectFraud(ctx context.Context, userID string, action ActionType, data ActionData, fp *DeviceFingerprint) (risk FraudRisk) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "fraud.DetectFraud", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("action_type", string(action)),
		attribute.Bool("has_fingerprint", fp != nil),
	))
	defer span.End()

	logger := telemetry.WithTrace(ctx, s.logger).With(
		zap.String("user_id", userID),
		zap.String("action_type", string(action)),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Fraud evaluation panicked, returning neutral verdict", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
			risk = neutralVerdict()
		}
		s.finish(ctx, logger, userID, action, risk, time.Since(start))
		span.SetAttributes(
			attribute.Float64("overall_risk", risk.OverallRisk),
			attribute.String("action_required", string(risk.ActionRequired)),
			attribute.String("status", string(risk.Status)),
		)
	}()

	ev := &evaluation{
		userID: userID,
		action: action,
		data:   s.sanitizeActionData(userID, data),
		now:    s.now(),
	}
	if fp != nil {
		clean := s.sanitizeFingerprint(userID, *fp)
		ev.fp = &clean
	}

	evalCtx, cancel := context.WithTimeout(ctx, s.cfg.EvaluationTimeout)
	defer cancel()

	ev.profile = sync.OnceValues(func() (*BehavioralProfile, error) {
		if userID == "" {
			return nil, nil
		}
		return s.stores.Profiles.Get(evalCtx, userID)
	})

	plan := s.plan(ev)
	slots, completed := s.runAll(evalCtx, logger, plan, ev)

	factors := make([]RiskFactor, 0, len(slots))
	for _, f := range slots {
		if f != nil {
			factors = append(factors, *f)
		}
	}

	if completed < len(plan) {
		logger.Warn("Evaluation deadline reached, returning partial verdict",
			zap.Int("completed", completed),
			zap.Int("scheduled", len(plan)))
		s.metrics.RecordDeadlineCutoff(ctx, completed, len(plan))
		span.AddEvent("deadline_exceeded")
	}

	verdict, err := aggregate(factors, coverage{
		completed:     completed,
		scheduled:     len(plan),
		intelDegraded: ev.intelDegraded.Load(),
	})
	if err != nil {
		logger.Error("Failed to aggregate risk factors, returning neutral verdict", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		return neutralVerdict()
	}

	return verdict
}

// runAll starts one goroutine per analyzer and collects results until all
// finish or the context expires. Slots keep execution order.
func (s *service) runAll(ctx context.Context, logger *zap.Logger, plan []analyzer, ev *evaluation) ([]*RiskFactor, int) {
	type result struct {
		idx    int
		factor *RiskFactor
	}

	results := make(chan result, len(plan))
	for i, a := range plan {
		go func(i int, a analyzer) {
			results <- result{idx: i, factor: s.runAnalyzer(ctx, logger, a, ev)}
		}(i, a)
	}

	slots := make([]*RiskFactor, len(plan))
	completed := 0
	for completed < len(plan) {
		select {
		case r := <-results:
			slots[r.idx] = r.factor
			completed++
		case <-ctx.Done():
			// keep whatever already landed
			for {
				select {
				case r := <-results:
					slots[r.idx] = r.factor
					completed++
				default:
					return slots, completed
				}
			}
		}
	}
	return slots, completed
}

// runAnalyzer isolates one analyzer: an error or panic drops its factor only
func (s *service) runAnalyzer(ctx context.Context, logger *zap.Logger, a analyzer, ev *evaluation) (factor *RiskFactor) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Analyzer panicked", zap.String("analyzer", a.name), zap.Any("panic", r))
			s.metrics.RecordAnalyzerFailure(ctx, a.name, true)
			factor = nil
		}
	}()

	f, err := a.run(ctx, ev)
	if err != nil {
		logger.Warn("Analyzer failed", zap.String("analyzer", a.name), zap.Error(err))
		s.metrics.RecordAnalyzerFailure(ctx, a.name, false)
		return nil
	}
	return f
}

// finish updates running stats, metrics and the audit trail
func (s *service) finish(ctx context.Context, logger *zap.Logger, userID string, action ActionType, risk FraudRisk, elapsed time.Duration) {
	s.stats.observe(risk)

	s.metrics.RecordDetection(ctx, float64(elapsed.Microseconds())/1000, string(action),
		string(risk.ActionRequired), string(risk.Status), risk.OverallRisk)
	for _, f := range risk.RiskFactors {
		s.metrics.RecordFactor(ctx, string(f.Category), string(f.Severity))
	}

	if risk.ActionRequired != ActionNone {
		logger.Info("Fraud risk detected",
			zap.Float64("overall_risk", risk.OverallRisk),
			zap.Float64("confidence", risk.Confidence),
			zap.String("action_required", string(risk.ActionRequired)),
			zap.Int("factors", len(risk.RiskFactors)))
	} else {
		logger.Debug("Fraud evaluation completed",
			zap.Float64("overall_risk", risk.OverallRisk),
			zap.String("status", string(risk.Status)),
			zap.Duration("elapsed", elapsed))
	}

	if s.recorder == nil || risk.Status == StatusFailed {
		return
	}

	record := VerdictRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Action:      action,
		Verdict:     risk,
		EvaluatedAt: s.now(),
		Duration:    elapsed,
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		recCtx, cancel := context.WithTimeout(context.Background(), s.cfg.RecordTimeout)
		defer cancel()
		if err := s.recorder.Record(recCtx, record); err != nil {
			s.metrics.RecordVerdictRecordFailure(recCtx)
			logger.Warn("Failed to record verdict", zap.String("verdict_id", record.ID), zap.Error(err))
		}
	}()
}

// Close waits for in-flight audit writes
func (s *service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateBehavioralProfile appends a sample under the configured retention
func (s *service) UpdateBehavioralProfile(ctx context.Context, userID string, sample BehaviorSample) error {
	if strings.TrimSpace(userID) == "" {
		return errors.ErrEmptyUserID
	}
	if err := s.validateSample(sample); err != nil {
		return err
	}
	if sample.ObservedAt.IsZero() {
		sample.ObservedAt = s.now()
	}

	profile, err := s.stores.Profiles.Append(ctx, userID, sample, s.cfg.RetentionPolicy())
	if err != nil {
		return errors.NewInternalError("failed to update behavioral profile").WithCause(err)
	}

	s.logger.Debug("Behavioral profile updated",
		zap.String("user_id", userID),
		zap.Int("samples", len(profile.Samples)))
	return nil
}

// AddBlacklistedIP flags an address; it is visible to every later evaluation
func (s *service) AddBlacklistedIP(ctx context.Context, ip string) error {
	canon, err := s.parseIP(ip)
	if err != nil {
		return err
	}
	if err := s.stores.Blacklist.Add(ctx, canon); err != nil {
		return errors.NewInternalError("failed to blacklist IP").WithCause(err)
	}
	s.logger.Info("IP address blacklisted", zap.String("ip", canon))
	return nil
}

// RemoveBlacklistedIP clears a flagged address. Removing an unknown address is not an error.
func (s *service) RemoveBlacklistedIP(ctx context.Context, ip string) error {
	canon, err := s.parseIP(ip)
	if err != nil {
		return err
	}
	if err := s.stores.Blacklist.Remove(ctx, canon); err != nil {
		return errors.NewInternalError("failed to remove blacklisted IP").WithCause(err)
	}
	s.logger.Info("IP address removed from blacklist", zap.String("ip", canon))
	return nil
}

func (s *service) GetBlacklistedIPs(ctx context.Context) ([]string, error) {
	ips, err := s.stores.Blacklist.List(ctx)
	if err != nil {
		return nil, errors.NewInternalError("failed to list blacklisted IPs").WithCause(err)
	}
	return ips, nil
}

func (s *service) parseIP(ip string) (string, error) {
	canon, err := canonicalIP(strings.TrimSpace(ip))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", errors.ErrInvalidIP, ip, err)
	}
	return canon, nil
}

// SeedBlacklist adds every configured address, stopping at the first failure
func SeedBlacklist(ctx context.Context, svc Service, ips []string) error {
	for _, ip := range ips {
		if err := svc.AddBlacklistedIP(ctx, ip); err != nil {
			return errors.Wrap(err, "seed blacklist")
		}
	}
	return nil
}
