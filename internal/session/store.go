// Package session はサーバー側セッションを Redis に保存します。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/sahilsz/node-docker/internal/users"
)

const keyPrefix = "session:"

// ErrMissing はセッションが存在しないか期限切れの場合に返されます。
var ErrMissing = errors.New("session missing")

// Data はセッションに保存する内容です。
type Data struct {
	User *users.Public `json:"user,omitempty"`
}

type record struct {
	Data      Data      `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store は Redis をバックエンドとするセッションストアです。
// TTL は作成時に固定され、アクセスによる延長は行いません。
type Store struct {
	rdb redis.Cmdable
	now func() time.Time
}

// Option は Store の設定を変更します。
type Option func(*Store)

// WithClock は期限判定に使う時計を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore は Store を作成します。
func NewStore(rdb redis.Cmdable, opts ...Option) *Store {
	s := &Store{rdb: rdb, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create はセッションを保存します。同じ ID が既にあれば上書きします。
func (s *Store) Create(ctx context.Context, id string, data Data, ttl time.Duration) error {
	if id == "" {
		return oops.Code("SESSION_INVALID_ID").Errorf("session id is required")
	}
	if ttl <= 0 {
		return oops.Code("SESSION_INVALID_TTL").With("ttl", ttl).Errorf("ttl must be positive")
	}

	now := s.now().UTC()
	payload, err := json.Marshal(&record{
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}

	if err := s.rdb.Set(ctx, key(id), payload, ttl).Err(); err != nil {
		return oops.Code("SESSION_STORE_FAILED").With("operation", "set").Wrap(err)
	}
	return nil
}

// Get はセッションを取得します。存在しないか期限切れなら ErrMissing を返します。
func (s *Store) Get(ctx context.Context, id string) (*Data, error) {
	if id == "" {
		return nil, ErrMissing
	}

	raw, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMissing
		}
		return nil, oops.Code("SESSION_STORE_FAILED").With("operation", "get").Wrap(err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}

	if !s.now().Before(rec.ExpiresAt) {
		// Redis 側の失効より先に時計が進んだ場合も期限切れとして扱う
		_ = s.rdb.Del(ctx, key(id)).Err()
		return nil, ErrMissing
	}
	return &rec.Data, nil
}

// Delete はセッションを削除します。存在しなくてもエラーにはしません。
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, key(id)).Err(); err != nil {
		return oops.Code("SESSION_STORE_FAILED").With("operation", "del").Wrap(err)
	}
	return nil
}

func key(id string) string {
	return keyPrefix + id
}
