// Package postgres provides a PostgreSQL-backed Store for botledger.
//
// Accounts and promo codes live in two tables. Update runs in one database
// transaction holding an advisory lock per user and promo key, so a first-time
// user is serialized even before their row exists. This makes it safe for
// multi-instance bots and durable across restarts.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/botledger"
)

// Store is a PostgreSQL-backed Store.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
	owned       bool
}

var (
	_ botledger.Store    = (*Store)(nil)
	_ botledger.Exporter = (*Store)(nil)
	_ botledger.Importer = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "botledger_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed Store. The caller keeps ownership of pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "botledger_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromURL connects to databaseURL, creates the schema and returns a Store
// that owns the pool.
func NewFromURL(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("botledger/postgres: parse url: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, botledger.StoreError("botledger/postgres: connect", err)
	}

	s := New(pool, opts...)
	s.owned = true
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) accountsTable() string { return s.tablePrefix + "accounts" }
func (s *Store) promosTable() string   { return s.tablePrefix + "promocodes" }

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT PRIMARY KEY,
			tier TEXT NOT NULL,
			limits JSONB NOT NULL DEFAULT '{}',
			history JSONB NOT NULL DEFAULT '{}'
		);
		CREATE TABLE IF NOT EXISTS %s (
			code TEXT PRIMARY KEY,
			tier TEXT NOT NULL,
			used BOOLEAN NOT NULL DEFAULT false,
			used_by TEXT
		);
	`, s.accountsTable(), s.promosTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return botledger.StoreError("botledger/postgres: ensure schema", err)
	}
	return nil
}

// View runs fn with reads served from the pool.
func (s *Store) View(ctx context.Context, scope botledger.Scope, fn func(tx botledger.Tx) error) error {
	return fn(&tx{ctx: ctx, store: s, db: s.pool, scope: scope, readOnly: true})
}

// Update runs fn in a database transaction. Writes go straight to the
// transaction and are discarded if fn fails.
func (s *Store) Update(ctx context.Context, scope botledger.Scope, fn func(tx botledger.Tx) error) error {
	ptx, err := s.pool.Begin(ctx)
	if err != nil {
		return botledger.StoreError("botledger/postgres: begin tx", err)
	}
	defer ptx.Rollback(ctx)

	// User before promo; every caller takes them in this order.
	for _, key := range lockKeys(scope) {
		if _, err := ptx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return botledger.StoreError("botledger/postgres: lock "+key, err)
		}
	}

	if err := fn(&tx{ctx: ctx, store: s, db: ptx, scope: scope}); err != nil {
		return err
	}

	if err := ptx.Commit(ctx); err != nil {
		return botledger.StoreError("botledger/postgres: commit", err)
	}
	return nil
}

func lockKeys(scope botledger.Scope) []string {
	var keys []string
	if scope.UserID != "" {
		keys = append(keys, "user:"+scope.UserID)
	}
	if scope.PromoCode != "" {
		keys = append(keys, "promo:"+scope.PromoCode)
	}
	return keys
}

// Export dumps both tables.
func (s *Store) Export(ctx context.Context) (botledger.Snapshot, error) {
	snap := botledger.NewSnapshot()

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT user_id, tier, limits, history FROM %s`, s.accountsTable()))
	if err != nil {
		return botledger.Snapshot{}, botledger.StoreError("botledger/postgres: export users", err)
	}
	for rows.Next() {
		var (
			id                    string
			tier                  string
			limitsRaw, historyRaw []byte
		)
		if err := rows.Scan(&id, &tier, &limitsRaw, &historyRaw); err != nil {
			rows.Close()
			return botledger.Snapshot{}, botledger.StoreError("botledger/postgres: export users", err)
		}
		acc, err := decodeAccount(tier, limitsRaw, historyRaw)
		if err != nil {
			rows.Close()
			return botledger.Snapshot{}, botledger.StoreError("botledger/postgres: decode user "+id, err)
		}
		snap.Users[id] = acc
	}
	if err := rows.Err(); err != nil {
		return botledger.Snapshot{}, botledger.StoreError("botledger/postgres: export users", err)
	}

	rows, err = s.pool.Query(ctx,
		fmt.Sprintf(`SELECT code, tier, used, used_by FROM %s`, s.promosTable()))
	if err != nil {
		return botledger.Snapshot{}, botledger.StoreError("botledger/postgres: export promocodes", err)
	}
	for rows.Next() {
		var (
			code   string
			p      botledger.PromoCode
			usedBy *string
		)
		if err := rows.Scan(&code, &p.Tier, &p.Used, &usedBy); err != nil {
			rows.Close()
			return botledger.Snapshot{}, botledger.StoreError("botledger/postgres: export promocodes", err)
		}
		if usedBy != nil {
			p.UsedBy = botledger.UserID(*usedBy)
		}
		snap.Promocodes[code] = p
	}
	if err := rows.Err(); err != nil {
		return botledger.Snapshot{}, botledger.StoreError("botledger/postgres: export promocodes", err)
	}

	return snap, nil
}

// Import upserts every record of snap in one transaction.
func (s *Store) Import(ctx context.Context, snap botledger.Snapshot) error {
	batch := &pgx.Batch{}
	for id, acc := range snap.Users {
		limits, history, err := encodeAccount(acc)
		if err != nil {
			return fmt.Errorf("botledger/postgres: encode user %s: %w", id, err)
		}
		batch.Queue(s.upsertAccountSQL(), id, acc.Tier, limits, history)
	}
	for code, p := range snap.Promocodes {
		batch.Queue(s.upsertPromoSQL(), code, p.Tier, p.Used, usedByArg(p.UsedBy))
	}

	err := pgx.BeginFunc(ctx, s.pool, func(ptx pgx.Tx) error {
		return ptx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return botledger.StoreError("botledger/postgres: import", err)
	}
	return nil
}

// Close closes the pool if the store created it.
func (s *Store) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

func (s *Store) upsertAccountSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (user_id, tier, limits, history)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET tier = $2, limits = $3, history = $4`,
		s.accountsTable())
}

func (s *Store) upsertPromoSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (code, tier, used, used_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET tier = $2, used = $3, used_by = $4`,
		s.promosTable())
}

func encodeAccount(acc botledger.Account) (limits, history []byte, err error) {
	if acc.Limits == nil {
		acc.Limits = map[string]int64{}
	}
	if acc.History == nil {
		acc.History = map[string][]botledger.Message{}
	}
	if limits, err = json.Marshal(acc.Limits); err != nil {
		return nil, nil, err
	}
	if history, err = json.Marshal(acc.History); err != nil {
		return nil, nil, err
	}
	return limits, history, nil
}

func decodeAccount(tier string, limitsRaw, historyRaw []byte) (botledger.Account, error) {
	acc := botledger.Account{Tier: tier}
	if err := json.Unmarshal(limitsRaw, &acc.Limits); err != nil {
		return botledger.Account{}, err
	}
	if err := json.Unmarshal(historyRaw, &acc.History); err != nil {
		return botledger.Account{}, err
	}
	if len(acc.History) == 0 {
		acc.History = nil
	}
	return acc, nil
}

func usedByArg(id botledger.UserID) any {
	if id == "" {
		return nil
	}
	return string(id)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type tx struct {
	ctx      context.Context
	store    *Store
	db       querier
	scope    botledger.Scope
	readOnly bool
}

func (t *tx) Account(userID string) (botledger.Account, bool, error) {
	if !t.scope.Covers(userID, "") {
		return botledger.Account{}, false, fmt.Errorf("%w: user %q", botledger.ErrOutOfScope, userID)
	}

	var (
		tier                  string
		limitsRaw, historyRaw []byte
	)
	err := t.db.QueryRow(t.ctx,
		fmt.Sprintf(`SELECT tier, limits, history FROM %s WHERE user_id = $1`, t.store.accountsTable()),
		userID,
	).Scan(&tier, &limitsRaw, &historyRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return botledger.Account{}, false, nil
	}
	if err != nil {
		return botledger.Account{}, false, botledger.StoreError("botledger/postgres: get user "+userID, err)
	}

	acc, err := decodeAccount(tier, limitsRaw, historyRaw)
	if err != nil {
		return botledger.Account{}, false, botledger.StoreError("botledger/postgres: decode user "+userID, err)
	}
	return acc, true, nil
}

func (t *tx) PutAccount(userID string, acc botledger.Account) error {
	if t.readOnly {
		return fmt.Errorf("botledger/postgres: write in read-only transaction")
	}
	if !t.scope.Covers(userID, "") {
		return fmt.Errorf("%w: user %q", botledger.ErrOutOfScope, userID)
	}

	limits, history, err := encodeAccount(acc)
	if err != nil {
		return fmt.Errorf("botledger/postgres: encode user %s: %w", userID, err)
	}
	if _, err := t.db.Exec(t.ctx, t.store.upsertAccountSQL(), userID, acc.Tier, limits, history); err != nil {
		return botledger.StoreError("botledger/postgres: put user "+userID, err)
	}
	return nil
}

func (t *tx) Promo(code string) (botledger.PromoCode, bool, error) {
	if !t.scope.Covers("", code) {
		return botledger.PromoCode{}, false, fmt.Errorf("%w: promo %q", botledger.ErrOutOfScope, code)
	}

	var (
		p      botledger.PromoCode
		usedBy *string
	)
	err := t.db.QueryRow(t.ctx,
		fmt.Sprintf(`SELECT tier, used, used_by FROM %s WHERE code = $1`, t.store.promosTable()),
		code,
	).Scan(&p.Tier, &p.Used, &usedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return botledger.PromoCode{}, false, nil
	}
	if err != nil {
		return botledger.PromoCode{}, false, botledger.StoreError("botledger/postgres: get promo "+code, err)
	}
	if usedBy != nil {
		p.UsedBy = botledger.UserID(*usedBy)
	}
	return p, true, nil
}

func (t *tx) PutPromo(code string, promo botledger.PromoCode) error {
	if t.readOnly {
		return fmt.Errorf("botledger/postgres: write in read-only transaction")
	}
	if !t.scope.Covers("", code) {
		return fmt.Errorf("%w: promo %q", botledger.ErrOutOfScope, code)
	}

	_, err := t.db.Exec(t.ctx, t.store.upsertPromoSQL(), code, promo.Tier, promo.Used, usedByArg(promo.UsedBy))
	if err != nil {
		return botledger.StoreError("botledger/postgres: put promo "+code, err)
	}
	return nil
}
