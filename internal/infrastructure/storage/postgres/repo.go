package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain"
	"yieldopt/internal/domain/model"
)

// Repo implements the Store contract on postgres, for deployments that
// already run one next to the optimizer.
type Repo struct {
	db *sql.DB

	mu     sync.Mutex
	lastTS int64
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", domain.ErrPersistence, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrPersistence, err)
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS markets (
  id BIGSERIAL PRIMARY KEY,
  unique_key TEXT NOT NULL,
  token_symbol TEXT NOT NULL,
  token_address TEXT NOT NULL,
  supply_apy DOUBLE PRECISION NOT NULL,
  borrow_apy DOUBLE PRECISION NOT NULL,
  utilization DOUBLE PRECISION NOT NULL,
  lltv DOUBLE PRECISION NOT NULL,
  max_supply DOUBLE PRECISION NOT NULL,
  risk DOUBLE PRECISION NOT NULL,
  timestamp BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_markets_key_ts ON markets(unique_key, timestamp);

CREATE TABLE IF NOT EXISTS allocations (
  id BIGSERIAL PRIMARY KEY,
  market_key TEXT NOT NULL,
  allocated_amount DOUBLE PRECISION NOT NULL,
  available_funds DOUBLE PRECISION NOT NULL,
  max_risk DOUBLE PRECISION NOT NULL,
  max_utilization DOUBLE PRECISION NOT NULL,
  timestamp BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_allocations_key ON allocations(market_key);
`)
	return err
}

func (r *Repo) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UnixMilli()
	if now < r.lastTS {
		now = r.lastTS
	}
	r.lastTS = now
	return time.UnixMilli(now)
}

func (r *Repo) AppendSnapshots(ctx context.Context, snaps []model.MarketSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	for i := range snaps {
		snaps[i].Timestamp = r.stamp()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO markets(
				unique_key, token_symbol, token_address,
				supply_apy, borrow_apy, utilization,
				lltv, max_supply, risk, timestamp
			) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, snaps[i].MarketKey, snaps[i].TokenSymbol, snaps[i].TokenAddress,
			snaps[i].SupplyAPY, snaps[i].BorrowAPY, snaps[i].Utilization,
			snaps[i].Lltv, snaps[i].MaxSupply, snaps[i].Risk,
			snaps[i].Timestamp.UnixMilli())
		if err != nil {
			return fmt.Errorf("%w: insert market %s: %v", domain.ErrPersistence, snaps[i].MarketKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit snapshots: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *Repo) AppendAllocation(ctx context.Context, dec model.AllocationDecision, params model.ParamSet) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	ts := r.stamp().UnixMilli()
	for _, line := range dec.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO allocations(
				market_key, allocated_amount, available_funds,
				max_risk, max_utilization, timestamp
			) VALUES($1, $2, $3, $4, $5, $6)
		`, line.MarketKey, line.Amount, params.AvailableFunds,
			params.MaxRisk, params.MaxUtilization, ts)
		if err != nil {
			return fmt.Errorf("%w: insert allocation %s: %v", domain.ErrPersistence, line.MarketKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit allocation: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *Repo) QueryHistory(ctx context.Context, marketKey string, since time.Time) ([]model.MarketSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT unique_key, token_symbol, token_address,
		       supply_apy, borrow_apy, utilization,
		       lltv, max_supply, risk, timestamp
		FROM markets
		WHERE unique_key = $1 AND timestamp >= $2
		ORDER BY timestamp DESC, id DESC
	`, marketKey, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: query history %s: %v", domain.ErrPersistence, marketKey, err)
	}
	defer rows.Close()

	var out []model.MarketSnapshot
	for rows.Next() {
		var s model.MarketSnapshot
		var ts int64
		if err := rows.Scan(&s.MarketKey, &s.TokenSymbol, &s.TokenAddress,
			&s.SupplyAPY, &s.BorrowAPY, &s.Utilization,
			&s.Lltv, &s.MaxSupply, &s.Risk, &ts); err != nil {
			return nil, fmt.Errorf("%w: scan history %s: %v", domain.ErrPersistence, marketKey, err)
		}
		s.Timestamp = time.UnixMilli(ts)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate history %s: %v", domain.ErrPersistence, marketKey, err)
	}
	return out, nil
}

var _ port.Store = (*Repo)(nil)
