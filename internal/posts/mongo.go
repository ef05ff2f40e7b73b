package posts

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const collectionName = "posts"

type postDocument struct {
	ID        bson.ObjectID `bson:"_id"`
	Title     string        `bson:"title"`
	Body      string        `bson:"body"`
	Author    string        `bson:"author"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d *postDocument) toPost() *Post {
	return &Post{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		Body:      d.Body,
		Author:    d.Author,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// MongoStore は MongoDB をバックエンドとする Store です。
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoStore は MongoStore を作成します。
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(collectionName), now: time.Now}
}

// EnsureIndexes は一覧表示用のインデックスを作成します。
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("created_desc"),
	})
	if err != nil {
		return oops.Code("POST_INDEX_FAILED").With("collection", collectionName).Wrap(err)
	}
	return nil
}

// Create は投稿を保存します。
func (s *MongoStore) Create(ctx context.Context, p *Post) (*Post, error) {
	if p == nil || p.Title == "" || p.Body == "" || p.Author == "" {
		return nil, ErrValidation
	}
	now := s.now().UTC()
	doc := &postDocument{
		ID:        bson.NewObjectID(),
		Title:     p.Title,
		Body:      p.Body,
		Author:    p.Author,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, oops.Code("POST_STORE_FAILED").With("operation", "insert").Wrap(err)
	}
	return doc.toPost(), nil
}

// List は新しい順に投稿を返します。
func (s *MongoStore) List(ctx context.Context, limit int64) ([]Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, oops.Code("POST_STORE_FAILED").With("operation", "find").Wrap(err)
	}
	var docs []postDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, oops.Code("POST_STORE_FAILED").With("operation", "decode").Wrap(err)
	}
	out := make([]Post, len(docs))
	for i := range docs {
		out[i] = *docs[i].toPost()
	}
	return out, nil
}

// Get は ID で投稿を取得します。
func (s *MongoStore) Get(ctx context.Context, id string) (*Post, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	var doc postDocument
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, oops.Code("POST_STORE_FAILED").With("operation", "find one").Wrap(err)
	}
	return doc.toPost(), nil
}

// Update は投稿を部分更新し、更新後の内容を返します。
func (s *MongoStore) Update(ctx context.Context, id, author string, u Update) (*Post, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	if u.empty() {
		return nil, ErrValidation
	}

	set := bson.D{{Key: "updatedAt", Value: s.now().UTC()}}
	if u.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *u.Title})
	}
	if u.Body != nil {
		set = append(set, bson.E{Key: "body", Value: *u.Body})
	}

	var doc postDocument
	err = s.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "author", Value: author}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, oops.Code("POST_STORE_FAILED").With("operation", "update").Wrap(err)
	}
	return doc.toPost(), nil
}

// Delete は投稿を削除します。
func (s *MongoStore) Delete(ctx context.Context, id, author string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}, {Key: "author", Value: author}})
	if err != nil {
		return oops.Code("POST_STORE_FAILED").With("operation", "delete").Wrap(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
