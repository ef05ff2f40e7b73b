// Package users はユーザーの永続化を提供します。
package users

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrValidation はユーザー名またはハッシュが空の場合に返されます。
	ErrValidation = errors.New("username and password hash are required")
	// ErrDuplicate は同じユーザー名が既に存在する場合に返されます。
	ErrDuplicate = errors.New("user already exists")
	// ErrNotFound はユーザーが見つからない場合に返されます。
	ErrNotFound = errors.New("user not found")
)

// User は保存されるユーザーです。PasswordHash はクライアントへ返してはいけません。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Public はクライアントに返すユーザーの公開情報です。
type Public struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Public は公開用の射影を返します。
func (u *User) Public() *Public {
	if u == nil {
		return nil
	}
	return &Public{ID: u.ID, Username: u.Username}
}

// Store はユーザーの保存と検索を行います。
// ユーザー名の一意性はバックエンドの原子的な挿入で保証されます。
type Store interface {
	Create(ctx context.Context, username, passwordHash string) (*User, error)
	// FindByUsername は大文字小文字を区別する完全一致で検索します。
	FindByUsername(ctx context.Context, username string) (*User, error)
}
