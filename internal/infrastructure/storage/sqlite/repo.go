package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain"
	"yieldopt/internal/domain/model"
)

// Repo is the append-only sqlite system of record for market snapshots and
// allocation decisions.
type Repo struct {
	db *sql.DB

	mu     sync.Mutex
	lastTS int64 // insert timestamps are monotonically non-decreasing
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrPersistence, path, err)
	}
	db.SetMaxOpenConns(1)

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
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  unique_key TEXT NOT NULL,
  token_symbol TEXT NOT NULL,
  token_address TEXT NOT NULL,
  supply_apy REAL NOT NULL,
  borrow_apy REAL NOT NULL,
  utilization REAL NOT NULL,
  lltv REAL NOT NULL,
  max_supply REAL NOT NULL,
  risk REAL NOT NULL,
  timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_markets_key_ts ON markets(unique_key, timestamp);

CREATE TABLE IF NOT EXISTS allocations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  market_key TEXT NOT NULL,
  allocated_amount REAL NOT NULL,
  available_funds REAL NOT NULL,
  max_risk REAL NOT NULL,
  max_utilization REAL NOT NULL,
  timestamp INTEGER NOT NULL
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

// AppendSnapshots writes the batch as new rows in one transaction. Assigned
// timestamps are written back to the batch elements.
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
			) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

// AppendAllocation writes one row per market in the decision, zero
// allocations included, alongside the parameters used. All rows of one
// decision share a timestamp.
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
			) VALUES(?, ?, ?, ?, ?, ?)
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

// QueryHistory returns all snapshots for the key with timestamp >= since,
// most-recent-first.
func (r *Repo) QueryHistory(ctx context.Context, marketKey string, since time.Time) ([]model.MarketSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT unique_key, token_symbol, token_address,
		       supply_apy, borrow_apy, utilization,
		       lltv, max_supply, risk, timestamp
		FROM markets
		WHERE unique_key = ? AND timestamp >= ?
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
