package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/risk-engine/internal/domain/errors"
	"github.com/davidleathers/risk-engine/internal/service/fraud"
)

// VerdictRepository persists the verdict audit trail in fraud_verdicts.
// It satisfies fraud.VerdictRecorder.
type VerdictRepository struct {
	db *pgxpool.Pool
}

var _ fraud.VerdictRecorder = (*VerdictRepository)(nil)

func NewVerdictRepository(db *pgxpool.Pool) *VerdictRepository {
	return &VerdictRepository{db: db}
}

func (r *VerdictRepository) Record(ctx context.Context, rec fraud.VerdictRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return errors.NewValidationError("INVALID_VERDICT_ID", "verdict id must be a uuid").WithCause(err)
	}

	factors := rec.Verdict.RiskFactors
	if factors == nil {
		factors = []fraud.RiskFactor{}
	}
	factorsJSON, err := json.Marshal(factors)
	if err != nil {
		return errors.NewInternalError("failed to marshal risk factors").WithCause(err)
	}
	recs := rec.Verdict.Recommendations
	if recs == nil {
		recs = []string{}
	}
	recsJSON, err := json.Marshal(recs)
	if err != nil {
		return errors.NewInternalError("failed to marshal recommendations").WithCause(err)
	}

	query := `
		INSERT INTO fraud_verdicts (
			id, user_id, action_type, overall_risk, confidence, action_required,
			status, factors, recommendations, evaluated_at, duration_ms
		) VALUES ($1::text::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(ctx, query,
		id.String(),
		rec.UserID,
		string(rec.Action),
		rec.Verdict.OverallRisk,
		rec.Verdict.Confidence,
		string(rec.Verdict.ActionRequired),
		string(rec.Verdict.Status),
		factorsJSON,
		recsJSON,
		rec.EvaluatedAt,
		float64(rec.Duration)/float64(time.Millisecond),
	)
	if err != nil {
		return errors.NewInternalError("failed to record verdict").WithCause(err)
	}
	return nil
}

// ListByUser returns the most recent verdicts for a user, newest first
func (r *VerdictRepository) ListByUser(ctx context.Context, userID string, limit int) ([]fraud.VerdictRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id::text, user_id, action_type, overall_risk, confidence, action_required,
			status, factors, recommendations, evaluated_at, duration_ms
		FROM fraud_verdicts
		WHERE user_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, errors.NewInternalError("failed to query verdicts").WithCause(err)
	}
	defer rows.Close()

	var out []fraud.VerdictRecord
	for rows.Next() {
		var (
			rec                   fraud.VerdictRecord
			action, required, st  string
			factorsJSON, recsJSON []byte
			durationMS            float64
		)
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &action,
			&rec.Verdict.OverallRisk, &rec.Verdict.Confidence, &required, &st,
			&factorsJSON, &recsJSON, &rec.EvaluatedAt, &durationMS,
		); err != nil {
			return nil, errors.NewInternalError("failed to scan verdict").WithCause(err)
		}
		if err := json.Unmarshal(factorsJSON, &rec.Verdict.RiskFactors); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal risk factors").WithCause(err)
		}
		if err := json.Unmarshal(recsJSON, &rec.Verdict.Recommendations); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal recommendations").WithCause(err)
		}
		rec.Action = fraud.ActionType(action)
		rec.Verdict.ActionRequired = fraud.Action(required)
		rec.Verdict.Status = fraud.VerdictStatus(st)
		rec.Duration = time.Duration(durationMS * float64(time.Millisecond))
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate verdicts").WithCause(err)
	}
	return out, nil
}
