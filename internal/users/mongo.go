package users

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionName はユーザーを保存するコレクション名です。
const CollectionName = "users"

type userDocument struct {
	ID           bson.ObjectID `bson:"_id"`
	Username     string        `bson:"username"`
	PasswordHash string        `bson:"password"`
	CreatedAt    time.Time     `bson:"createdAt"`
}

func (d *userDocument) toUser() *User {
	return &User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}
}

// MongoStore は MongoDB をバックエンドとする Store です。
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoStore は MongoStore を作成します。
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		coll: db.Collection(CollectionName),
		now:  time.Now,
	}
}

// EnsureIndexes は username のユニークインデックスを作成します。
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	})
	if err != nil {
		return oops.Code("USER_INDEX_FAILED").With("collection", CollectionName).Wrap(err)
	}
	return nil
}

// Create はユーザーを作成します。重複時は ErrDuplicate を返します。
func (s *MongoStore) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	if username == "" || passwordHash == "" {
		return nil, ErrValidation
	}

	doc := &userDocument{
		ID:           bson.NewObjectID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, oops.Code("USER_STORE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return doc.toUser(), nil
}

// FindByUsername はユーザー名で検索します。見つからない場合は ErrNotFound を返します。
func (s *MongoStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	var doc userDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "username", Value: username}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, oops.Code("USER_STORE_FAILED").
			With("operation", "find user").
			Wrap(err)
	}
	return doc.toUser(), nil
}
