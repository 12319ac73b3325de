package fraud

import (
	"context"
	"fmt"
	"math"
)

func (s *service) analyzeIdentity(ctx context.Context, ev *evaluation) (*RiskFactor, error) {
	var findings []IdentityFinding

	if f, ok := documentAnomaly(ev.data.IdentityDocuments); ok {
		findings = append(findings, f)
	}

	if ev.data.AccountCount > MaxAccountsPerIdentity {
		findings = append(findings, IdentityFinding{Kind: FindingMultipleAccounts, Count: ev.data.AccountCount})
	}

	var failed int
	for _, v := range ev.data.VerificationHistory {
		if v.Status == VerificationStatusFailed {
			failed++
		}
	}
	if failed > MaxFailedVerifications {
		findings = append(findings, IdentityFinding{Kind: FindingFailedVerifications, Count: failed})
	}

	if len(findings) == 0 {
		return nil, nil
	}

	var key int
	for _, f := range findings {
		if f.Kind == FindingDocumentAnomaly || f.Kind == FindingFailedVerifications {
			key++
		}
	}

	n := len(findings)
	return &RiskFactor{
		Category:    CategoryIdentity,
		Severity:    keyedSeverity(key, n, 2),
		Score:       math.Min(float64(n)*identityScoreStep, 1),
		Description: fmt.Sprintf("Identity verification risks detected: %d issues", n),
		Evidence:    Evidence{Identity: findings},
		Timestamp:   ev.now,
	}, nil
}

// documentAnomaly reports the first suspicious document along with how many
// documents failed the score checks
func documentAnomaly(docs []IdentityDocument) (IdentityFinding, bool) {
	var first *IdentityDocument
	var count int
	for i := range docs {
		d := &docs[i]
		if d.AuthenticityScore < MinDocumentAuthenticity || d.ConsistencyScore < MinDocumentConsistency {
			if first == nil {
				first = d
			}
			count++
		}
	}
	if first == nil {
		return IdentityFinding{}, false
	}
	return IdentityFinding{
		Kind:              FindingDocumentAnomaly,
		DocumentType:      first.Type,
		AuthenticityScore: first.AuthenticityScore,
		ConsistencyScore:  first.ConsistencyScore,
		Count:             count,
	}, true
}
