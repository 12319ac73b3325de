package fraud

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/risk-engine/internal/domain/errors"
)

var fixedNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestService(t *testing.T, cfg Config, stores Stores, opts ...Option) *service {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	svc, err := NewService(zaptest.NewLogger(t), cfg, stores, opts...)
	require.NoError(t, err)
	return svc.(*service)
}

func ptr[T any](v T) *T { return &v }

func factorFor(risk FraudRisk, c Category) *RiskFactor {
	for i := range risk.RiskFactors {
		if risk.RiskFactors[i].Category == c {
			return &risk.RiskFactors[i]
		}
	}
	return nil
}

func TestNewService(t *testing.T) {
	t.Run("requires logger", func(t *testing.T) {
		_, err := NewService(nil, DefaultConfig(), NewMemoryStores())
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("requires stores", func(t *testing.T) {
		_, err := NewService(zaptest.NewLogger(t), DefaultConfig(), Stores{Profiles: NewMemoryProfileStore()})
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("fills zero config", func(t *testing.T) {
		svc := newTestService(t, Config{}, NewMemoryStores())
		assert.Equal(t, DefaultConfig().EvaluationTimeout, svc.cfg.EvaluationTimeout)
		assert.True(t, svc.highAmount.Equal(decimal.NewFromInt(10000)))
	})
}

func TestService_DetectFraud_ColdStart(t *testing.T) {
	svc := newTestService(t, DefaultConfig(), NewMemoryStores())

	risk := svc.DetectFraud(context.Background(), "new-user", ActionLogin, ActionData{}, nil)

	assert.Empty(t, risk.RiskFactors)
	assert.Zero(t, risk.OverallRisk)
	assert.Zero(t, risk.Confidence)
	assert.Equal(t, ActionNone, risk.ActionRequired)
	assert.Equal(t, StatusComplete, risk.Status)
}

func TestService_DetectFraud_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("behavioral typing spike", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())
		for i, speed := range []float64{50, 52, 48, 51} {
			err := svc.UpdateBehavioralProfile(ctx, "user-a", BehaviorSample{
				TypingSpeed: ptr(speed),
				ObservedAt:  fixedNow.Add(-time.Duration(4-i) * time.Hour),
			})
			require.NoError(t, err)
		}

		risk := svc.DetectFraud(ctx, "user-a", ActionLogin, ActionData{TypingSpeed: ptr(100.0)}, nil)

		f := factorFor(risk, CategoryBehavioral)
		require.NotNil(t, f)
		assert.Contains(t, []Severity{SeverityMedium, SeverityHigh, SeverityCritical}, f.Severity)
		assert.Equal(t, AnomalyTypingSpeed, f.Evidence.Behavioral[0].Kind)
		assert.InDelta(t, 50.25, f.Evidence.Behavioral[0].Expected, 1e-9)
	})

	t.Run("device location jump", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())
		base := DeviceFingerprint{
			UserAgent: "Mozilla/5.0", ScreenResolution: "1920x1080", Timezone: "Asia/Manila",
			Platform: "MacIntel", Location: &GeoPoint{Latitude: 10.0, Longitude: 123.0},
		}

		first := svc.DetectFraud(ctx, "user-b", ActionLogin, ActionData{}, &base)
		assert.Nil(t, factorFor(first, CategoryDevice))

		moved := base
		moved.Location = &GeoPoint{Latitude: 12.0, Longitude: 123.0}
		risk := svc.DetectFraud(ctx, "user-b", ActionLogin, ActionData{}, &moved)

		f := factorFor(risk, CategoryDevice)
		require.NotNil(t, f)
		require.Len(t, f.Evidence.Device, 1)
		assert.Equal(t, AnomalyLocationJump, f.Evidence.Device[0].Kind)
		assert.Greater(t, f.Evidence.Device[0].DistanceKm, 200.0)
		assert.Contains(t, []Severity{SeverityHigh, SeverityCritical}, f.Severity)
	})

	t.Run("network blacklisted IP", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())
		require.NoError(t, svc.AddBlacklistedIP(ctx, "203.0.113.7"))

		risk := svc.DetectFraud(ctx, "user-c", ActionLogin, ActionData{IPAddress: "203.0.113.7"}, nil)

		f := factorFor(risk, CategoryNetwork)
		require.NotNil(t, f)
		assert.Equal(t, FindingBlacklistedIP, f.Evidence.Network[0].Kind)
		assert.Equal(t, SeverityHigh, f.Severity)
		assert.InDelta(t, 0.4, risk.OverallRisk, 1e-9)
		assert.Equal(t, ActionNone, risk.ActionRequired)
	})

	t.Run("vpn and proxy on a clean address count once", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())

		risk := svc.DetectFraud(ctx, "user-v", ActionLogin, ActionData{IPAddress: "198.51.100.4", IsVPN: true, IsProxy: true}, nil)

		f := factorFor(risk, CategoryNetwork)
		require.NotNil(t, f)
		require.Len(t, f.Evidence.Network, 1)
		assert.Equal(t, FindingVPNProxy, f.Evidence.Network[0].Kind)
		assert.InDelta(t, 0.4, f.Score, 1e-9)
		assert.Equal(t, SeverityLow, f.Severity)
		assert.InDelta(t, 0.4, risk.OverallRisk, 1e-9)
		assert.Equal(t, ActionNone, risk.ActionRequired)
	})

	t.Run("network blend crossing block threshold", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())
		require.NoError(t, svc.AddBlacklistedIP(ctx, "203.0.113.7"))

		risk := svc.DetectFraud(ctx, "user-c", ActionLogin, ActionData{IPAddress: "203.0.113.7", IsVPN: true}, nil)

		assert.InDelta(t, 0.8, risk.OverallRisk, 1e-9)
		assert.Equal(t, ActionBlock, risk.ActionRequired)
	})

	t.Run("transaction high amount", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())
		amount := decimal.NewFromInt(15000)

		risk := svc.DetectFraud(ctx, "user-d", ActionPayment, ActionData{Amount: &amount}, nil)

		f := factorFor(risk, CategoryTransaction)
		require.NotNil(t, f)
		assert.Equal(t, FindingHighAmount, f.Evidence.Transaction[0].Kind)
		assert.True(t, f.Evidence.Transaction[0].Amount.Equal(amount))
	})

	t.Run("transaction skipped for login", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())
		amount := decimal.NewFromInt(15000)

		risk := svc.DetectFraud(ctx, "user-d", ActionLogin, ActionData{Amount: &amount}, nil)

		assert.Nil(t, factorFor(risk, CategoryTransaction))
	})

	t.Run("identity document anomaly", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())

		risk := svc.DetectFraud(ctx, "user-e", ActionProfileUpdate, ActionData{
			IdentityDocuments: []IdentityDocument{{Type: "passport", AuthenticityScore: 0.5, ConsistencyScore: 0.9}},
		}, nil)

		f := factorFor(risk, CategoryIdentity)
		require.NotNil(t, f)
		assert.Equal(t, FindingDocumentAnomaly, f.Evidence.Identity[0].Kind)
		assert.Equal(t, "passport", f.Evidence.Identity[0].DocumentType)
	})

	t.Run("blacklist lifecycle", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())
		require.NoError(t, svc.AddBlacklistedIP(ctx, "198.51.100.4"))
		require.NoError(t, svc.RemoveBlacklistedIP(ctx, "198.51.100.4"))

		risk := svc.DetectFraud(ctx, "user-f", ActionLogin, ActionData{IPAddress: "198.51.100.4"}, nil)

		assert.Nil(t, factorFor(risk, CategoryNetwork))
	})
}

func TestService_DetectFraud_Bounds(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultConfig(), NewMemoryStores())
	require.NoError(t, svc.AddBlacklistedIP(ctx, "192.0.2.1"))
	require.NoError(t, svc.UpdateBehavioralProfile(ctx, "u", BehaviorSample{
		TypingSpeed: ptr(40.0), SessionDuration: ptr(300.0), TimeOfDay: ptr(3),
		Location: &GeoPoint{Latitude: 0, Longitude: 0}, ObservedAt: fixedNow.Add(-time.Minute),
	}))

	amount := decimal.NewFromInt(1_000_000)
	history := make([]TransactionRecord, 10)
	for i := range history {
		history[i] = TransactionRecord{ID: "tx", Amount: decimal.NewFromInt(5), Timestamp: fixedNow.Add(-time.Minute)}
	}
	failed := make([]VerificationAttempt, 5)
	for i := range failed {
		failed[i] = VerificationAttempt{Status: VerificationStatusFailed, AttemptedAt: fixedNow}
	}

	inputs := []ActionData{
		{},
		{IPAddress: "192.0.2.1", IsVPN: true, IsProxy: true, GeoLocation: &GeoPoint{Latitude: 50, Longitude: 50}},
		{TypingSpeed: ptr(400.0), SessionDuration: ptr(5.0), TimeOfDay: ptr(15)},
		{Amount: &amount, TransactionHistory: history},
		{
			IPAddress: "192.0.2.1", IsVPN: true, IsProxy: true, GeoLocation: &GeoPoint{Latitude: 50, Longitude: 50},
			TypingSpeed: ptr(400.0), SessionDuration: ptr(5.0), TimeOfDay: ptr(15),
			Amount: &amount, TransactionHistory: history,
			IdentityDocuments:   []IdentityDocument{{AuthenticityScore: 0.1, ConsistencyScore: 0.1}},
			AccountCount:        9,
			VerificationHistory: failed,
		},
	}

	for _, data := range inputs {
		for _, action := range []ActionType{ActionLogin, ActionTransfer} {
			risk := svc.DetectFraud(ctx, "u", action, data, nil)
			assert.GreaterOrEqual(t, risk.OverallRisk, 0.0)
			assert.LessOrEqual(t, risk.OverallRisk, 1.0)
			assert.GreaterOrEqual(t, risk.Confidence, 0.0)
			assert.LessOrEqual(t, risk.Confidence, MaxConfidence)
			assert.LessOrEqual(t, len(risk.Recommendations), MaxRecommendations)
			assert.Equal(t, decideAction(risk.OverallRisk), risk.ActionRequired)
			for _, f := range risk.RiskFactors {
				assert.GreaterOrEqual(t, f.Score, 0.0)
				assert.LessOrEqual(t, f.Score, 1.0)
			}
		}
	}
}

func TestService_DetectFraud_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultConfig(), NewMemoryStores())
	require.NoError(t, svc.UpdateBehavioralProfile(ctx, "u", BehaviorSample{TypingSpeed: ptr(50.0), TimeOfDay: ptr(9)}))
	require.NoError(t, svc.AddBlacklistedIP(ctx, "192.0.2.1"))

	data := ActionData{
		IPAddress:         "192.0.2.1",
		TypingSpeed:       ptr(120.0),
		IdentityDocuments: []IdentityDocument{{AuthenticityScore: 0.2, ConsistencyScore: 0.2}},
	}

	first := svc.DetectFraud(ctx, "u", ActionLogin, data, nil)
	second := svc.DetectFraud(ctx, "u", ActionLogin, data, nil)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.RiskFactors)
}

func TestService_DetectFraud_ExecutionOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultConfig(), NewMemoryStores())
	require.NoError(t, svc.UpdateBehavioralProfile(ctx, "u", BehaviorSample{TypingSpeed: ptr(50.0)}))
	require.NoError(t, svc.AddBlacklistedIP(ctx, "192.0.2.1"))
	fp := DeviceFingerprint{Platform: "Win32"}
	svc.DetectFraud(ctx, "u", ActionLogin, ActionData{}, &fp)

	changed := DeviceFingerprint{Platform: "Linux x86_64"}
	amount := decimal.NewFromInt(20000)
	risk := svc.DetectFraud(ctx, "u", ActionTransfer, ActionData{
		IPAddress:         "192.0.2.1",
		TypingSpeed:       ptr(200.0),
		Amount:            &amount,
		IdentityDocuments: []IdentityDocument{{AuthenticityScore: 0.1, ConsistencyScore: 0.1}},
	}, &changed)

	var order []Category
	for _, f := range risk.RiskFactors {
		order = append(order, f.Category)
	}
	assert.Equal(t, []Category{CategoryBehavioral, CategoryDevice, CategoryNetwork, CategoryTransaction, CategoryIdentity}, order)
	assert.Equal(t, []string{
		recommendations[CategoryBehavioral],
		recommendations[CategoryDevice],
		recommendations[CategoryNetwork],
	}, risk.Recommendations)
}

func TestService_DetectFraud_GeoAnomaly(t *testing.T) {
	ctx := context.Background()
	newYork := &GeoPoint{Latitude: 40.7128, Longitude: -74.0060}
	london := &GeoPoint{Latitude: 51.5074, Longitude: -0.1278}

	tests := []struct {
		name      string
		seenAgo   time.Duration
		withPrior bool
		expectGeo bool
	}{
		{name: "impossible travel", seenAgo: time.Hour, withPrior: true, expectGeo: true},
		{name: "plausible flight", seenAgo: 10 * time.Hour, withPrior: true, expectGeo: false},
		{name: "no prior location", withPrior: false, expectGeo: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, DefaultConfig(), NewMemoryStores())
			sample := BehaviorSample{TypingSpeed: ptr(50.0), ObservedAt: fixedNow.Add(-tt.seenAgo)}
			if tt.withPrior {
				sample.Location = newYork
			}
			require.NoError(t, svc.UpdateBehavioralProfile(ctx, "traveler", sample))

			risk := svc.DetectFraud(ctx, "traveler", ActionLogin, ActionData{IPAddress: "192.0.2.50", GeoLocation: london}, nil)

			f := factorFor(risk, CategoryNetwork)
			if !tt.expectGeo {
				assert.Nil(t, f)
				return
			}
			require.NotNil(t, f)
			assert.Equal(t, FindingGeoAnomaly, f.Evidence.Network[0].Kind)
			assert.Greater(t, f.Evidence.Network[0].SpeedKmh, MaxTravelSpeedKmh)
			assert.Equal(t, SeverityHigh, f.Severity)
		})
	}
}

func TestService_DetectFraud_DropsInvalidFields(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultConfig(), NewMemoryStores())
	require.NoError(t, svc.UpdateBehavioralProfile(ctx, "u", BehaviorSample{TypingSpeed: ptr(50.0), TimeOfDay: ptr(14)}))

	risk := svc.DetectFraud(ctx, "u", ActionLogin, ActionData{
		IPAddress:   "not-an-ip",
		IsVPN:       true,
		TypingSpeed: ptr(-10.0),
		TimeOfDay:   ptr(99),
		IdentityDocuments: []IdentityDocument{
			{Type: "bogus", AuthenticityScore: 7, ConsistencyScore: 0.1},
			{Type: "license", AuthenticityScore: 0.3, ConsistencyScore: 0.9},
		},
	}, nil)

	assert.Nil(t, factorFor(risk, CategoryBehavioral))
	assert.Nil(t, factorFor(risk, CategoryNetwork))
	f := factorFor(risk, CategoryIdentity)
	require.NotNil(t, f)
	assert.Equal(t, "license", f.Evidence.Identity[0].DocumentType)
	assert.Equal(t, 1, f.Evidence.Identity[0].Count)
	assert.Equal(t, StatusComplete, risk.Status)
}

func TestService_DetectFraud_AnalyzerFailure(t *testing.T) {
	ctx := context.Background()
	profiles := new(mockProfileStore)
	profiles.On("Get", mock.Anything, "u").Return(nil, stderrors.New("connection refused"))
	stores := NewMemoryStores()
	stores.Profiles = profiles
	svc := newTestService(t, DefaultConfig(), stores)

	risk := svc.DetectFraud(ctx, "u", ActionLogin, ActionData{
		TypingSpeed:  ptr(10.0),
		AccountCount: 5,
	}, nil)

	assert.Nil(t, factorFor(risk, CategoryBehavioral))
	require.NotNil(t, factorFor(risk, CategoryIdentity))
	assert.Equal(t, StatusComplete, risk.Status)
	profiles.AssertExpectations(t)
}

func TestService_DetectFraud_AnalyzerPanic(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStores()
	stores.Devices = panickingDeviceStore{}
	svc := newTestService(t, DefaultConfig(), stores)

	risk := svc.DetectFraud(ctx, "u", ActionLogin, ActionData{AccountCount: 4}, &DeviceFingerprint{Platform: "x"})

	assert.Nil(t, factorFor(risk, CategoryDevice))
	assert.NotNil(t, factorFor(risk, CategoryIdentity))
	assert.Equal(t, StatusComplete, risk.Status)
}

func TestService_DetectFraud_FailOpen(t *testing.T) {
	svc := newTestService(t, DefaultConfig(), NewMemoryStores(),
		WithClock(func() time.Time { panic("clock unavailable") }))

	risk := svc.DetectFraud(context.Background(), "u", ActionPayment, ActionData{AccountCount: 9}, nil)

	assert.Equal(t, neutralVerdict(), risk)
	assert.Equal(t, StatusFailed, risk.Status)
	assert.Equal(t, ActionNone, risk.ActionRequired)

	stats, err := svc.GetFraudStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.AverageRiskScore)
}

func TestService_DetectFraud_DeadlinePartial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvaluationTimeout = 30 * time.Millisecond
	stores := NewMemoryStores()
	stores.Blacklist = &slowBlacklist{MemoryBlacklistStore: NewMemoryBlacklistStore(), delay: 500 * time.Millisecond}
	svc := newTestService(t, cfg, stores)

	risk := svc.DetectFraud(context.Background(), "u", ActionLogin, ActionData{
		IPAddress:         "192.0.2.9",
		IdentityDocuments: []IdentityDocument{{AuthenticityScore: 0.1, ConsistencyScore: 0.1}},
	}, nil)

	assert.Equal(t, StatusPartial, risk.Status)
	assert.Nil(t, factorFor(risk, CategoryNetwork))
	require.NotNil(t, factorFor(risk, CategoryIdentity))
	assert.InDelta(t, ConfidenceWithEvidence*2/3, risk.Confidence, 1e-9)
}

func TestService_DetectFraud_IntelProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("provider flags merge with caller flags", func(t *testing.T) {
		intel := new(mockIntelProvider)
		intel.On("Lookup", mock.Anything, "192.0.2.77").Return(&NetworkIntel{IsProxy: true}, nil)
		svc := newTestService(t, DefaultConfig(), NewMemoryStores(), WithIntelProvider(intel))

		risk := svc.DetectFraud(ctx, "u", ActionLogin, ActionData{IPAddress: "192.0.2.77", IsVPN: true}, nil)

		f := factorFor(risk, CategoryNetwork)
		require.NotNil(t, f)
		require.Len(t, f.Evidence.Network, 1)
		finding := f.Evidence.Network[0]
		assert.Equal(t, FindingVPNProxy, finding.Kind)
		assert.True(t, finding.IsVPN)
		assert.True(t, finding.IsProxy)
		assert.InDelta(t, 0.4, f.Score, 1e-9)
		assert.Equal(t, SeverityLow, f.Severity)
		intel.AssertExpectations(t)
	})

	t.Run("provider failure degrades confidence", func(t *testing.T) {
		intel := new(mockIntelProvider)
		intel.On("Lookup", mock.Anything, "192.0.2.78").Return(nil, stderrors.New("upstream 503"))
		svc := newTestService(t, DefaultConfig(), NewMemoryStores(), WithIntelProvider(intel))

		risk := svc.DetectFraud(ctx, "u", ActionLogin, ActionData{IPAddress: "192.0.2.78", AccountCount: 4}, nil)

		assert.Equal(t, StatusComplete, risk.Status)
		assert.InDelta(t, ConfidenceWithEvidence*IntelDegradedPenalty, risk.Confidence, 1e-9)
	})
}

func TestService_VerdictRecorder(t *testing.T) {
	ctx := context.Background()
	recorder := new(mockVerdictRecorder)
	recorder.On("Record", mock.Anything, mock.MatchedBy(func(r VerdictRecord) bool {
		return r.UserID == "u" && r.Action == ActionPayment && r.ID != "" && len(r.Verdict.RiskFactors) == 1
	})).Return(nil).Once()

	svc := newTestService(t, DefaultConfig(), NewMemoryStores(), WithVerdictRecorder(recorder))
	amount := decimal.NewFromInt(50000)
	svc.DetectFraud(ctx, "u", ActionPayment, ActionData{Amount: &amount}, nil)

	require.NoError(t, svc.Close(ctx))
	recorder.AssertExpectations(t)
}

func TestService_UpdateBehavioralProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		svc := newTestService(t, DefaultConfig(), NewMemoryStores())

		err := svc.UpdateBehavioralProfile(ctx, "  ", BehaviorSample{TypingSpeed: ptr(1.0)})
		assert.ErrorIs(t, err, errors.ErrEmptyUserID)

		err = svc.UpdateBehavioralProfile(ctx, "u", BehaviorSample{})
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

		err = svc.UpdateBehavioralProfile(ctx, "u", BehaviorSample{TimeOfDay: ptr(24)})
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("store failure", func(t *testing.T) {
		profiles := new(mockProfileStore)
		profiles.On("Append", mock.Anything, "u", mock.Anything, mock.Anything).Return(nil, stderrors.New("timeout"))
		stores := NewMemoryStores()
		stores.Profiles = profiles
		svc := newTestService(t, DefaultConfig(), stores)

		err := svc.UpdateBehavioralProfile(ctx, "u", BehaviorSample{TypingSpeed: ptr(1.0)})
		assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
		assert.True(t, errors.IsRetryable(err))
	})

	t.Run("stamps observation time", func(t *testing.T) {
		stores := NewMemoryStores()
		svc := newTestService(t, DefaultConfig(), stores)

		require.NoError(t, svc.UpdateBehavioralProfile(ctx, "u", BehaviorSample{TypingSpeed: ptr(1.0)}))

		p, err := stores.Profiles.Get(ctx, "u")
		require.NoError(t, err)
		require.Len(t, p.Samples, 1)
		assert.Equal(t, fixedNow, p.Samples[0].ObservedAt)
	})
}

func TestService_Blacklist(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultConfig(), NewMemoryStores())

	require.NoError(t, svc.AddBlacklistedIP(ctx, "::ffff:10.0.0.1"))
	require.NoError(t, svc.AddBlacklistedIP(ctx, " 10.0.0.1 "))
	require.NoError(t, svc.AddBlacklistedIP(ctx, "2001:DB8::1"))

	ips, err := svc.GetBlacklistedIPs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "2001:db8::1"}, ips)

	risk := svc.DetectFraud(ctx, "u", ActionLogin, ActionData{IPAddress: "::ffff:10.0.0.1"}, nil)
	assert.NotNil(t, factorFor(risk, CategoryNetwork))

	err = svc.AddBlacklistedIP(ctx, "10.0.0.256")
	assert.ErrorIs(t, err, errors.ErrInvalidIP)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.ErrorIs(t, svc.RemoveBlacklistedIP(ctx, "nope"), errors.ErrInvalidIP)

	assert.NoError(t, svc.RemoveBlacklistedIP(ctx, "192.0.2.200"))
	require.NoError(t, SeedBlacklist(ctx, svc, []string{"192.0.2.1", "192.0.2.2"}))
	assert.Error(t, SeedBlacklist(ctx, svc, []string{"bad"}))

	ips, err = svc.GetBlacklistedIPs(ctx)
	require.NoError(t, err)
	assert.Len(t, ips, 4)
}

func TestService_GetFraudStats(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultConfig(), NewMemoryStores())

	stats, err := svc.GetFraudStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, FraudStats{}, stats)

	require.NoError(t, svc.UpdateBehavioralProfile(ctx, "a", BehaviorSample{TypingSpeed: ptr(1.0)}))
	require.NoError(t, svc.AddBlacklistedIP(ctx, "192.0.2.1"))
	svc.DetectFraud(ctx, "b", ActionLogin, ActionData{}, &DeviceFingerprint{Platform: "x"})

	amount := decimal.NewFromInt(20000)
	svc.DetectFraud(ctx, "c", ActionPayment, ActionData{Amount: &amount}, nil)

	stats, err = svc.GetFraudStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalProfiles)
	assert.Equal(t, int64(1), stats.TotalDevices)
	assert.Equal(t, int64(1), stats.BlacklistedIPs)
	assert.InDelta(t, 0.15, stats.AverageRiskScore, 1e-9)
	assert.InDelta(t, 0.5, stats.DetectionRate, 1e-9)
}

// Mock implementations

type mockProfileStore struct {
	mock.Mock
}

func (m *mockProfileStore) Get(ctx context.Context, userID string) (*BehavioralProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BehavioralProfile), args.Error(1)
}

func (m *mockProfileStore) Append(ctx context.Context, userID string, sample BehaviorSample, policy RetentionPolicy) (*BehavioralProfile, error) {
	args := m.Called(ctx, userID, sample, policy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BehavioralProfile), args.Error(1)
}

func (m *mockProfileStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockIntelProvider struct {
	mock.Mock
}

func (m *mockIntelProvider) Lookup(ctx context.Context, ip string) (*NetworkIntel, error) {
	args := m.Called(ctx, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*NetworkIntel), args.Error(1)
}

type mockVerdictRecorder struct {
	mock.Mock
}

func (m *mockVerdictRecorder) Record(ctx context.Context, record VerdictRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type panickingDeviceStore struct{}

func (panickingDeviceStore) Swap(context.Context, string, DeviceFingerprint) (*DeviceFingerprint, error) {
	panic("corrupt fingerprint")
}

func (panickingDeviceStore) Count(context.Context) (int64, error) { return 0, nil }

type slowBlacklist struct {
	*MemoryBlacklistStore
	delay time.Duration
}

func (s *slowBlacklist) Contains(ctx context.Context, ip string) (bool, error) {
	time.Sleep(s.delay)
	return s.MemoryBlacklistStore.Contains(ctx, ip)
}

func TestService_ConcurrentDetectAndUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultConfig(), NewMemoryStores())
	require.NoError(t, svc.AddBlacklistedIP(ctx, "203.0.113.7"))

	users := []string{"alice", "bob", "carol"}
	const rounds = 20

	var wg sync.WaitGroup
	for _, user := range users {
		for i := 0; i < rounds; i++ {
			wg.Add(2)
			go func(user string, i int) {
				defer wg.Done()
				err := svc.UpdateBehavioralProfile(ctx, user, BehaviorSample{
					TypingSpeed: ptr(40.0 + float64(i)),
					TimeOfDay:   ptr(i % 24),
					ObservedAt:  fixedNow.Add(-time.Duration(i) * time.Minute),
				})
				assert.NoError(t, err)
			}(user, i)
			go func(user string) {
				defer wg.Done()
				risk := svc.DetectFraud(ctx, user, ActionLogin, ActionData{
					IPAddress:   "203.0.113.7",
					TypingSpeed: ptr(300.0),
					TimeOfDay:   ptr(3),
				}, &DeviceFingerprint{Platform: "linux", Timezone: "UTC"})
				assert.NotEqual(t, StatusFailed, risk.Status)
				assert.GreaterOrEqual(t, risk.OverallRisk, 0.0)
				assert.LessOrEqual(t, risk.OverallRisk, 1.0)
				assert.NotNil(t, factorFor(risk, CategoryNetwork))
			}(user)
		}
	}
	wg.Wait()

	for _, user := range users {
		profile, err := svc.stores.Profiles.Get(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, profile)
		assert.Len(t, profile.Samples, rounds, user)
	}

	stats, err := svc.GetFraudStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(users)), stats.TotalProfiles)
	assert.Equal(t, int64(len(users)), stats.TotalDevices)
}
