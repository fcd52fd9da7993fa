package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/paperdex/trading-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Row locks (SELECT ... FOR UPDATE) linearize concurrent transactions on the
// same (user, asset) row; pg_advisory_xact_lock provides the per-user lock
// for portfolio initialization.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the ledger tables if they do not exist. The unique
// primary keys on (user_id, asset) back the create-if-absent semantics of
// portfolio initialization; the CHECK constraints are a last line of defense
// for the non-negativity invariants the engine enforces.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS balances (
			user_id    TEXT        NOT NULL,
			asset      TEXT        NOT NULL,
			available  NUMERIC     NOT NULL DEFAULT 0 CHECK (available >= 0),
			locked     NUMERIC     NOT NULL DEFAULT 0 CHECK (locked >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, asset)
		);
		CREATE TABLE IF NOT EXISTS positions (
			user_id         TEXT        NOT NULL,
			asset           TEXT        NOT NULL,
			size            NUMERIC     NOT NULL DEFAULT 0 CHECK (size >= 0),
			avg_entry_price NUMERIC     NOT NULL DEFAULT 0,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, asset)
		);
		CREATE TABLE IF NOT EXISTS orders (
			id                  TEXT        PRIMARY KEY,
			user_id             TEXT        NOT NULL,
			side                TEXT        NOT NULL,
			base_asset          TEXT        NOT NULL,
			quote_asset         TEXT        NOT NULL,
			requested_size      NUMERIC     NOT NULL,
			price_at_order_time NUMERIC     NOT NULL,
			status              TEXT        NOT NULL,
			fees_applied        NUMERIC     NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS orders_user_created_idx
			ON orders (user_id, created_at DESC);
		CREATE TABLE IF NOT EXISTS trades (
			id             TEXT        PRIMARY KEY,
			order_id       TEXT        NOT NULL,
			user_id        TEXT        NOT NULL,
			side           TEXT        NOT NULL,
			executed_price NUMERIC     NOT NULL,
			executed_size  NUMERIC     NOT NULL,
			fee            NUMERIC     NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS trades_user_created_idx
			ON trades (user_id, created_at DESC);
	`)
	return err
}

// WithinTx runs fn inside one transaction: commit on nil, rollback on error.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// pgTx implements Tx on a live pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) BalanceForUpdate(ctx context.Context, userID, asset string) (*model.Balance, error) {
	// Create-if-absent keeps the get-then-lock race-free: the unique primary
	// key makes concurrent inserts collapse into one row.
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO balances (user_id, asset) VALUES ($1, $2)
		ON CONFLICT (user_id, asset) DO NOTHING
	`, userID, asset); err != nil {
		return nil, err
	}

	var b model.Balance
	var available, locked string
	err := t.tx.QueryRow(ctx, `
		SELECT user_id, asset, available::TEXT, locked::TEXT, updated_at
		FROM balances WHERE user_id = $1 AND asset = $2
		FOR UPDATE
	`, userID, asset).Scan(&b.UserID, &b.Asset, &available, &locked, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock balance %s/%s: %w", userID, asset, err)
	}

	if b.Available, err = decimal.NewFromString(available); err != nil {
		return nil, fmt.Errorf("parse available balance: %w", err)
	}
	if b.Locked, err = decimal.NewFromString(locked); err != nil {
		return nil, fmt.Errorf("parse locked balance: %w", err)
	}
	return &b, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, b *model.Balance) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE balances
		SET available = $3::NUMERIC, locked = $4::NUMERIC, updated_at = $5
		WHERE user_id = $1 AND asset = $2
	`, b.UserID, b.Asset, b.Available.String(), b.Locked.String(), b.UpdatedAt)
	return err
}

func (t *pgTx) PositionForUpdate(ctx context.Context, userID, asset string) (*model.Position, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO positions (user_id, asset) VALUES ($1, $2)
		ON CONFLICT (user_id, asset) DO NOTHING
	`, userID, asset); err != nil {
		return nil, err
	}

	var p model.Position
	var size, avg string
	err := t.tx.QueryRow(ctx, `
		SELECT user_id, asset, size::TEXT, avg_entry_price::TEXT, updated_at
		FROM positions WHERE user_id = $1 AND asset = $2
		FOR UPDATE
	`, userID, asset).Scan(&p.UserID, &p.Asset, &size, &avg, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock position %s/%s: %w", userID, asset, err)
	}

	if p.Size, err = decimal.NewFromString(size); err != nil {
		return nil, fmt.Errorf("parse position size: %w", err)
	}
	if p.AvgEntryPrice, err = decimal.NewFromString(avg); err != nil {
		return nil, fmt.Errorf("parse avg entry price: %w", err)
	}
	return &p, nil
}

func (t *pgTx) UpdatePosition(ctx context.Context, p *model.Position) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE positions
		SET size = $3::NUMERIC, avg_entry_price = $4::NUMERIC, updated_at = $5
		WHERE user_id = $1 AND asset = $2
	`, p.UserID, p.Asset, p.Size.String(), p.AvgEntryPrice.String(), p.UpdatedAt)
	return err
}

func (t *pgTx) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, side, base_asset, quote_asset,
			requested_size, price_at_order_time, status, fees_applied,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9::NUMERIC, $10, $11)
	`, o.ID, o.UserID, string(o.Side), o.BaseAsset, o.QuoteAsset,
		o.RequestedSize.String(), o.PriceAtOrderTime.String(), string(o.Status),
		o.FeesApplied.String(), o.CreatedAt, o.UpdatedAt)
	return err
}

func (t *pgTx) OrderForUpdate(ctx context.Context, orderID string) (*model.Order, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, user_id, side, base_asset, quote_asset,
		       requested_size::TEXT, price_at_order_time::TEXT, status,
		       fees_applied::TEXT, created_at, updated_at
		FROM orders WHERE id = $1
		FOR UPDATE
	`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, fees_applied = $3::NUMERIC, updated_at = $4
		WHERE id = $1
	`, o.ID, string(o.Status), o.FeesApplied.String(), o.UpdatedAt)
	return err
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *model.Trade) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trades (id, order_id, user_id, side, executed_price,
			executed_size, fee, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)
	`, tr.ID, tr.OrderID, tr.UserID, string(tr.Side),
		tr.ExecutedPrice.String(), tr.ExecutedSize.String(), tr.Fee.String(), tr.CreatedAt)
	return err
}

func (t *pgTx) LockUser(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID)
	return err
}

func (t *pgTx) HasBalances(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM balances WHERE user_id = $1)`, userID).Scan(&exists)
	return exists, err
}

func (t *pgTx) CreateBalance(ctx context.Context, b *model.Balance) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO balances (user_id, asset, available, locked, updated_at)
		VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)
	`, b.UserID, b.Asset, b.Available.String(), b.Locked.String(), b.UpdatedAt)
	return err
}

func (t *pgTx) CreatePosition(ctx context.Context, p *model.Position) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO positions (user_id, asset, size, avg_entry_price, updated_at)
		VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)
	`, p.UserID, p.Asset, p.Size.String(), p.AvgEntryPrice.String(), p.UpdatedAt)
	return err
}

// --- Read side ---

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, side, base_asset, quote_asset,
		       requested_size::TEXT, price_at_order_time::TEXT, status,
		       fees_applied::TEXT, created_at, updated_at
		FROM orders WHERE id = $1
	`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *PostgresStore) GetUserOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.queryOrders(ctx, `
		SELECT id, user_id, side, base_asset, quote_asset,
		       requested_size::TEXT, price_at_order_time::TEXT, status,
		       fees_applied::TEXT, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
}

func (s *PostgresStore) GetOpenOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.queryOrders(ctx, `
		SELECT id, user_id, side, base_asset, quote_asset,
		       requested_size::TEXT, price_at_order_time::TEXT, status,
		       fees_applied::TEXT, created_at, updated_at
		FROM orders WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`, userID)
}

func (s *PostgresStore) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) GetBalances(ctx context.Context, userID string) ([]model.Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, asset, available::TEXT, locked::TEXT, updated_at
		FROM balances WHERE user_id = $1 ORDER BY asset
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []model.Balance
	for rows.Next() {
		var b model.Balance
		var available, locked string
		if err := rows.Scan(&b.UserID, &b.Asset, &available, &locked, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if b.Available, err = decimal.NewFromString(available); err != nil {
			return nil, err
		}
		if b.Locked, err = decimal.NewFromString(locked); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (s *PostgresStore) GetPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, asset, size::TEXT, avg_entry_price::TEXT, updated_at
		FROM positions WHERE user_id = $1 ORDER BY asset
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var size, avg string
		if err := rows.Scan(&p.UserID, &p.Asset, &size, &avg, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if p.Size, err = decimal.NewFromString(size); err != nil {
			return nil, err
		}
		if p.AvgEntryPrice, err = decimal.NewFromString(avg); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) GetUserTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, user_id, side, executed_price::TEXT,
		       executed_size::TEXT, fee::TEXT, created_at
		FROM trades WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var tr model.Trade
		var price, size, fee string
		if err := rows.Scan(&tr.ID, &tr.OrderID, &tr.UserID, &tr.Side,
			&price, &size, &fee, &tr.CreatedAt); err != nil {
			return nil, err
		}
		if tr.ExecutedPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if tr.ExecutedSize, err = decimal.NewFromString(size); err != nil {
			return nil, err
		}
		if tr.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, err
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

// scanOrder reads one order row from a pgx row.
func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var side, status string
	var size, price, fees string

	if err := row.Scan(&o.ID, &o.UserID, &side, &o.BaseAsset, &o.QuoteAsset,
		&size, &price, &status, &fees, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}

	o.Side = model.Side(side)
	o.Status = model.OrderStatus(status)

	var err error
	if o.RequestedSize, err = decimal.NewFromString(size); err != nil {
		return nil, fmt.Errorf("parse requested size: %w", err)
	}
	if o.PriceAtOrderTime, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse order price: %w", err)
	}
	if o.FeesApplied, err = decimal.NewFromString(fees); err != nil {
		return nil, fmt.Errorf("parse fees applied: %w", err)
	}
	return &o, nil
}
