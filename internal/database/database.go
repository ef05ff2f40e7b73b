// Package database は MongoDB と Redis への接続を確立します。
// 接続は起動時にリトライ付きで確認し、その後の再接続は各ドライバのプールに任せます。
package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// RetryPolicy は起動時の接続確認のリトライ設定です。
type RetryPolicy struct {
	MaxRetries uint64
	Backoff    time.Duration
}

// ConnectMongo は MongoDB クライアントを作成し、疎通を確認します。
func ConnectMongo(ctx context.Context, uri string, policy RetryPolicy, logger *slog.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("backend", "mongo").Wrap(err)
	}

	err = withRetry(ctx, policy, logger, "mongo", func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, oops.Code("DB_CONNECT_FAILED").With("backend", "mongo").Wrap(err)
	}
	logger.Info("connected to database", "backend", "mongo")
	return client, nil
}

// ConnectRedis は URL から Redis クライアントを作成し、疎通を確認します。
func ConnectRedis(ctx context.Context, url string, policy RetryPolicy, logger *slog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("backend", "redis").Wrap(err)
	}
	client := redis.NewClient(opt)

	err = withRetry(ctx, policy, logger, "redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("backend", "redis").Wrap(err)
	}
	logger.Info("connected to database", "backend", "redis")
	return client, nil
}

func withRetry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, backend string, fn func(context.Context) error) error {
	backoff := policy.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	b := retry.WithMaxRetries(policy.MaxRetries, retry.NewExponential(backoff))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := fn(pingCtx); err != nil {
			if logger != nil {
				logger.Warn("database not ready", "backend", backend, "attempt", attempt, "error", err)
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}
