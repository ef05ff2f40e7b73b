package audit

import (
	"context"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	collectionName = "audit_events"
	retention      = 30 * 24 * time.Hour
)

// Store は監査イベントを MongoDB に保存します。
type Store struct {
	coll *mongo.Collection
}

// NewStore は Store を作成します。
func NewStore(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(collectionName)}
}

// EnsureIndexes は検索用インデックスと保持期間の TTL インデックスを作成します。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}, {Key: "occurredAt", Value: -1}},
			Options: options.Index().SetName("username_occurred"),
		},
		{
			Keys:    bson.D{{Key: "occurredAt", Value: 1}},
			Options: options.Index().SetName("occurred_ttl").SetExpireAfterSeconds(int32(retention.Seconds())),
		},
	})
	if err != nil {
		return oops.Code("AUDIT_INDEX_FAILED").With("collection", collectionName).Wrap(err)
	}
	return nil
}

// Insert はイベントを保存します。再配送で同じ ID が来た場合は成功扱いにします。
func (s *Store) Insert(ctx context.Context, ev *Event) error {
	if ev == nil || ev.ID == "" {
		return oops.Code("AUDIT_INVALID_EVENT").Errorf("event id is required")
	}
	if _, err := s.coll.InsertOne(ctx, ev); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return oops.Code("AUDIT_STORE_FAILED").With("event_id", ev.ID).Wrap(err)
	}
	return nil
}

// ListByUsername はユーザーの直近のイベントを新しい順に返します。
func (s *Store) ListByUsername(ctx context.Context, username string, limit int64) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "username", Value: username}},
		options.Find().SetSort(bson.D{{Key: "occurredAt", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, oops.Code("AUDIT_STORE_FAILED").With("operation", "find").Wrap(err)
	}
	events := make([]Event, 0)
	if err := cur.All(ctx, &events); err != nil {
		return nil, oops.Code("AUDIT_STORE_FAILED").With("operation", "decode").Wrap(err)
	}
	return events, nil
}
