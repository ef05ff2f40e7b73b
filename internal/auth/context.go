package auth

import (
	"context"

	"github.com/sahilsz/node-docker/internal/users"
)

type userCtxKey struct{}

// WithUser は認証済みユーザーを載せた新しいコンテキストを返します。
func WithUser(ctx context.Context, user *users.Public) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// UserFromContext は Guard が載せたユーザーを取り出します。
func UserFromContext(ctx context.Context) (*users.Public, bool) {
	user, ok := ctx.Value(userCtxKey{}).(*users.Public)
	return user, ok && user != nil
}
