// Package redis provides a Redis-backed Store for botledger.
//
// Each account and promo code is one JSON string key. Update is an optimistic
// WATCH/MULTI transaction over the keys in scope, retried when another client
// changes a watched key first. This makes it safe for multi-instance bots.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/botledger"
)

// ErrTooManyConflicts is returned when Update lost every optimistic retry.
var ErrTooManyConflicts = errors.New("botledger/redis: too many concurrent updates")

// Store is a Redis-backed Store.
type Store struct {
	client     goredis.UniversalClient
	keyPrefix  string
	maxRetries int
	owned      bool
}

var (
	_ botledger.Store    = (*Store)(nil)
	_ botledger.Exporter = (*Store)(nil)
	_ botledger.Importer = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "botledger:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithMaxRetries sets how many times a conflicting Update is retried (default 16).
func WithMaxRetries(n int) Option {
	return func(s *Store) { s.maxRetries = n }
}

// New creates a new Redis-backed Store. The caller keeps ownership of client.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:     client,
		keyPrefix:  "botledger:",
		maxRetries: 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromURL connects to redisURL and creates a Store that owns the client.
func NewFromURL(ctx context.Context, redisURL string, opts ...Option) (*Store, error) {
	o, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("botledger/redis: parse url: %w", err)
	}

	client := goredis.NewClient(o)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, botledger.StoreError("botledger/redis: connect", err)
	}

	s := New(client, opts...)
	s.owned = true
	return s, nil
}

func (s *Store) userKey(id string) string    { return s.keyPrefix + "user:" + id }
func (s *Store) promoKey(code string) string { return s.keyPrefix + "promo:" + code }
func (s *Store) userPattern() string         { return s.keyPrefix + "user:*" }
func (s *Store) promoPattern() string        { return s.keyPrefix + "promo:*" }

func (s *Store) scopeKeys(scope botledger.Scope) []string {
	var keys []string
	if scope.UserID != "" {
		keys = append(keys, s.userKey(scope.UserID))
	}
	if scope.PromoCode != "" {
		keys = append(keys, s.promoKey(scope.PromoCode))
	}
	return keys
}

// View runs fn with reads served directly by Redis.
func (s *Store) View(ctx context.Context, scope botledger.Scope, fn func(tx botledger.Tx) error) error {
	return fn(&tx{ctx: ctx, store: s, reader: s.client, scope: scope, readOnly: true})
}

// Update runs fn inside WATCH on the scope's keys and writes its changes in
// one MULTI/EXEC. fn may run several times if another client interferes.
func (s *Store) Update(ctx context.Context, scope botledger.Scope, fn func(tx botledger.Tx) error) error {
	keys := s.scopeKeys(scope)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(rtx *goredis.Tx) error {
			t := &tx{ctx: ctx, store: s, reader: rtx, scope: scope}
			if fnErr = fn(t); fnErr != nil {
				return fnErr
			}
			if len(t.accounts) == 0 && len(t.promos) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				return s.queueWrites(ctx, pipe, t.accounts, t.promos)
			})
			return err
		}, keys...)

		switch {
		case fnErr != nil:
			return fnErr
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case err != nil:
			return botledger.StoreError("botledger/redis: update", err)
		default:
			return nil
		}
	}
	return botledger.StoreError("botledger/redis: update", ErrTooManyConflicts)
}

func (s *Store) queueWrites(ctx context.Context, pipe goredis.Pipeliner, accounts map[string]botledger.Account, promos map[string]botledger.PromoCode) error {
	for id, acc := range accounts {
		data, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("botledger/redis: encode account %s: %w", id, err)
		}
		pipe.Set(ctx, s.userKey(id), data, 0)
	}
	for code, p := range promos {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("botledger/redis: encode promo %s: %w", code, err)
		}
		pipe.Set(ctx, s.promoKey(code), data, 0)
	}
	return nil
}

// Export dumps every account and promo code under the key prefix.
func (s *Store) Export(ctx context.Context) (botledger.Snapshot, error) {
	snap := botledger.NewSnapshot()

	err := s.scan(ctx, s.userPattern(), func(key string, data []byte) error {
		var acc botledger.Account
		if err := json.Unmarshal(data, &acc); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		snap.Users[strings.TrimPrefix(key, s.keyPrefix+"user:")] = acc
		return nil
	})
	if err != nil {
		return botledger.Snapshot{}, botledger.StoreError("botledger/redis: export users", err)
	}

	err = s.scan(ctx, s.promoPattern(), func(key string, data []byte) error {
		var p botledger.PromoCode
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		snap.Promocodes[strings.TrimPrefix(key, s.keyPrefix+"promo:")] = p
		return nil
	})
	if err != nil {
		return botledger.Snapshot{}, botledger.StoreError("botledger/redis: export promocodes", err)
	}

	return snap, nil
}

func (s *Store) scan(ctx context.Context, pattern string, fn func(key string, data []byte) error) error {
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue // deleted between SCAN and GET
		}
		if err != nil {
			return err
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Import writes every record of snap in one pipeline.
func (s *Store) Import(ctx context.Context, snap botledger.Snapshot) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return s.queueWrites(ctx, pipe, snap.Users, snap.Promocodes)
	})
	if err != nil {
		return botledger.StoreError("botledger/redis: import", err)
	}
	return nil
}

// Close closes the client if the store created it.
func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

type tx struct {
	ctx      context.Context
	store    *Store
	reader   getter
	scope    botledger.Scope
	readOnly bool
	accounts map[string]botledger.Account
	promos   map[string]botledger.PromoCode
}

func (t *tx) get(key string, v any) (bool, error) {
	data, err := t.reader.Get(t.ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, botledger.StoreError("botledger/redis: get "+key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, botledger.StoreError("botledger/redis: decode "+key, err)
	}
	return true, nil
}

func (t *tx) Account(userID string) (botledger.Account, bool, error) {
	if !t.scope.Covers(userID, "") {
		return botledger.Account{}, false, fmt.Errorf("%w: user %q", botledger.ErrOutOfScope, userID)
	}
	if acc, ok := t.accounts[userID]; ok {
		return acc.Clone(), true, nil
	}
	var acc botledger.Account
	ok, err := t.get(t.store.userKey(userID), &acc)
	return acc, ok, err
}

func (t *tx) PutAccount(userID string, acc botledger.Account) error {
	if t.readOnly {
		return fmt.Errorf("botledger/redis: write in read-only transaction")
	}
	if !t.scope.Covers(userID, "") {
		return fmt.Errorf("%w: user %q", botledger.ErrOutOfScope, userID)
	}
	if t.accounts == nil {
		t.accounts = make(map[string]botledger.Account)
	}
	t.accounts[userID] = acc.Clone()
	return nil
}

func (t *tx) Promo(code string) (botledger.PromoCode, bool, error) {
	if !t.scope.Covers("", code) {
		return botledger.PromoCode{}, false, fmt.Errorf("%w: promo %q", botledger.ErrOutOfScope, code)
	}
	if p, ok := t.promos[code]; ok {
		return p, true, nil
	}
	var p botledger.PromoCode
	ok, err := t.get(t.store.promoKey(code), &p)
	return p, ok, err
}

func (t *tx) PutPromo(code string, promo botledger.PromoCode) error {
	if t.readOnly {
		return fmt.Errorf("botledger/redis: write in read-only transaction")
	}
	if !t.scope.Covers("", code) {
		return fmt.Errorf("%w: promo %q", botledger.ErrOutOfScope, code)
	}
	if t.promos == nil {
		t.promos = make(map[string]botledger.PromoCode)
	}
	t.promos[code] = promo
	return nil
}
