package database

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/risk-engine/internal/domain/errors"
	"github.com/davidleathers/risk-engine/internal/service/fraud"
)

// BlacklistRepository implements fraud.BlacklistStore on the blacklisted_ips table
type BlacklistRepository struct {
	db *pgxpool.Pool
}

var _ fraud.BlacklistStore = (*BlacklistRepository)(nil)

func NewBlacklistRepository(db *pgxpool.Pool) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

func (r *BlacklistRepository) Add(ctx context.Context, ip string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO blacklisted_ips (ip) VALUES ($1::text::inet) ON CONFLICT (ip) DO NOTHING`, ip)
	if err != nil {
		return errors.NewInternalError("failed to blacklist ip").WithCause(err)
	}
	return nil
}

func (r *BlacklistRepository) Remove(ctx context.Context, ip string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM blacklisted_ips WHERE ip = $1::text::inet`, ip)
	if err != nil {
		return errors.NewInternalError("failed to remove blacklisted ip").WithCause(err)
	}
	return nil
}

func (r *BlacklistRepository) Contains(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blacklisted_ips WHERE ip = $1::text::inet)`, ip).Scan(&exists)
	if err != nil {
		return false, errors.NewInternalError("failed to check blacklist").WithCause(err)
	}
	return exists, nil
}

// List returns addresses in the same lexical order as the other stores
func (r *BlacklistRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT host(ip) FROM blacklisted_ips`)
	if err != nil {
		return nil, errors.NewInternalError("failed to list blacklist").WithCause(err)
	}
	defer rows.Close()

	ips := []string{}
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, errors.NewInternalError("failed to scan blacklisted ip").WithCause(err)
		}
		ips = append(ips, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate blacklist").WithCause(err)
	}

	sort.Strings(ips)
	return ips, nil
}

func (r *BlacklistRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM blacklisted_ips`).Scan(&n); err != nil {
		return 0, errors.NewInternalError("failed to count blacklist").WithCause(err)
	}
	return n, nil
}
