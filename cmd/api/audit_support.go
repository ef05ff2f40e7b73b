package main

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/sahilsz/node-docker/internal/audit"
	"github.com/sahilsz/node-docker/internal/config"
)

// setupAudit は監査イベントの保存先とキューを初期化します。
// キューはセッションと同じ Redis を使います。
func setupAudit(ctx context.Context, cfg *config.Config, db *mongo.Database, logger *slog.Logger) (*audit.Manager, *audit.Store, error) {
	store := audit.NewStore(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, nil, err
	}
	manager, err := audit.NewManager(cfg.RedisURL, store, logger)
	if err != nil {
		return nil, nil, err
	}
	return manager, store, nil
}
