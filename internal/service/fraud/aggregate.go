package fraud

import (
	"fmt"
	"math"

	"github.com/davidleathers/risk-engine/internal/domain/errors"
)

// coverage describes how much of an evaluation actually ran
type coverage struct {
	completed     int
	scheduled     int
	intelDegraded bool
}

// aggregate blends the factors, given in analyzer-execution order, into a
// verdict. The action is a pure function of the overall risk; category
// thresholds are only reported on the factors.
func aggregate(factors []RiskFactor, cov coverage) (FraudRisk, error) {
	out := make([]RiskFactor, 0, len(factors))
	var weighted, totalWeight, confidence float64

	for _, f := range factors {
		if math.IsNaN(f.Score) || math.IsInf(f.Score, 0) {
			return FraudRisk{}, errors.NewAggregationError(
				fmt.Sprintf("non-finite score for %s factor", f.Category))
		}
		f.Score = clamp01(f.Score)
		if threshold, ok := categoryThresholds[f.Category]; ok {
			f.ThresholdExceeded = f.Score >= threshold
		}

		w := categoryWeight(f.Category)
		weighted += f.Score * w
		totalWeight += w

		if f.Evidence.Len() > 0 {
			confidence += ConfidenceWithEvidence
		} else {
			confidence += ConfidenceWithoutEvidence
		}
		out = append(out, f)
	}

	risk := FraudRisk{
		RiskFactors:     out,
		Recommendations: recommend(out),
		Status:          StatusComplete,
	}

	if len(out) > 0 && totalWeight > 0 {
		risk.OverallRisk = clamp01(weighted / totalWeight)
		risk.Confidence = math.Min(confidence/float64(len(out)), MaxConfidence)
	}

	if cov.scheduled > 0 && cov.completed < cov.scheduled {
		risk.Status = StatusPartial
		risk.Confidence *= float64(cov.completed) / float64(cov.scheduled)
	}
	if cov.intelDegraded {
		risk.Confidence *= IntelDegradedPenalty
	}

	risk.ActionRequired = decideAction(risk.OverallRisk)
	return risk, nil
}

func categoryWeight(c Category) float64 {
	if w, ok := categoryWeights[c]; ok {
		return w
	}
	return defaultCategoryWeight
}

// recommend emits one advisory per category in execution order, keeping the
// first MaxRecommendations
func recommend(factors []RiskFactor) []string {
	recs := make([]string, 0, MaxRecommendations)
	seen := make(map[Category]bool, len(factors))
	for _, f := range factors {
		if len(recs) == MaxRecommendations {
			break
		}
		rec, ok := recommendations[f.Category]
		if !ok || seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		recs = append(recs, rec)
	}
	return recs
}

func decideAction(overall float64) Action {
	switch {
	case overall >= RiskScoreEscalate:
		return ActionEscalate
	case overall >= RiskScoreBlock:
		return ActionBlock
	case overall >= RiskScoreReview:
		return ActionReview
	default:
		return ActionNone
	}
}
