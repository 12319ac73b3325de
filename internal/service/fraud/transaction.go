package fraud

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/domain/errors"
)

// analyzeTransaction runs only for monetary actions
func (s *service) analyzeTransaction(ctx context.Context, ev *evaluation) (*RiskFactor, error) {
	var findings []TransactionFinding

	if ev.data.Amount != nil && ev.data.Amount.GreaterThan(s.highAmount) {
		findings = append(findings, TransactionFinding{
			Kind:      FindingHighAmount,
			Amount:    *ev.data.Amount,
			Threshold: s.highAmount,
		})
	}

	if n := recentTransactions(ev.data.TransactionHistory, ev); n > RapidTransactionLimit {
		findings = append(findings, TransactionFinding{Kind: FindingRapidTransactions, Count: n})
	}

	if s.recipients != nil && ev.data.RecipientID != "" {
		amount := decimal.Zero
		if ev.data.Amount != nil {
			amount = *ev.data.Amount
		}
		risky, err := s.recipientRisky(ctx, ev.data.RecipientID, amount)
		if err != nil {
			s.logger.Warn("Recipient risk check failed",
				zap.String("user_id", ev.userID),
				zap.String("recipient_id", ev.data.RecipientID),
				zap.Error(err))
		} else if risky {
			findings = append(findings, TransactionFinding{Kind: FindingRiskyRecipient, RecipientID: ev.data.RecipientID})
		}
	}

	if len(findings) == 0 {
		return nil, nil
	}

	var key int
	for _, f := range findings {
		if f.Kind == FindingHighAmount || f.Kind == FindingRapidTransactions {
			key++
		}
	}

	n := len(findings)
	return &RiskFactor{
		Category:    CategoryTransaction,
		Severity:    keyedSeverity(key, n, 2),
		Score:       math.Min(float64(n)*transactionScoreStep, 1),
		Description: fmt.Sprintf("Transaction risks detected: %d findings", n),
		Evidence:    Evidence{Transaction: findings},
		Timestamp:   ev.now,
	}, nil
}

// recentTransactions counts history entries inside the trailing window
func recentTransactions(history []TransactionRecord, ev *evaluation) int {
	since := ev.now.Add(-RapidTransactionWindow)
	var n int
	for _, tx := range history {
		if tx.Timestamp.After(since) && !tx.Timestamp.After(ev.now) {
			n++
		}
	}
	return n
}

// recipientRisky asks the configured checker about a payee. A checker failure
// is reported as an external error and never fails the evaluation.
func (s *service) recipientRisky(ctx context.Context, recipientID string, amount decimal.Decimal) (bool, error) {
	risky, err := s.recipients.IsRisky(ctx, recipientID, amount)
	if err != nil {
		return false, errors.NewExternalError("recipient", "risk check failed").WithCause(err)
	}
	return risky, nil
}
