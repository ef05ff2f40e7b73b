// Package posts は投稿の CRUD を提供します。
package posts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("post not found")
	ErrInvalidID  = errors.New("invalid post id")
	ErrValidation = errors.New("title and body are required")
	ErrForbidden  = errors.New("only the author can modify this post")
)

// Post は投稿です。Author は作成したユーザーのユーザー名です。
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Update は部分更新の内容です。nil のフィールドは変更しません。
type Update struct {
	Title *string
	Body  *string
}

func (u Update) empty() bool {
	return u.Title == nil && u.Body == nil
}

// Store は投稿の永続化を行います。
type Store interface {
	Create(ctx context.Context, p *Post) (*Post, error)
	List(ctx context.Context, limit int64) ([]Post, error)
	Get(ctx context.Context, id string) (*Post, error)
	// Update と Delete は author が一致する投稿だけを対象にします。
	Update(ctx context.Context, id, author string, u Update) (*Post, error)
	Delete(ctx context.Context, id, author string) error
}
