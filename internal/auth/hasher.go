// Package auth はサインアップ・ログインとセッション検証を提供します。
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost は元サービスと同じコスト値です。
const DefaultBcryptCost = 12

// Hasher はパスワードのハッシュ化と照合を行います。
type Hasher interface {
	// Hash はソルト付きの一方向ハッシュを返します。
	Hash(password string) (string, error)
	// Verify は一致なら (true, nil)、不一致なら (false, nil)、
	// 保存済みハッシュが壊れている場合のみエラーを返します。
	Verify(password, hash string) (bool, error)
}

// BcryptHasher は bcrypt による Hasher 実装です。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher は指定コストの BcryptHasher を作成します。
// 範囲外のコストは DefaultBcryptCost に置き換えます。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// bcryptMaxPasswordBytes を超える入力は bcrypt が受け付けない。
const bcryptMaxPasswordBytes = 72

// bcryptInput は長いパスワードを SHA-256 + base64 (44 バイト) に縮めます。
// 72 バイト以下はそのまま渡すので、通常の bcrypt ハッシュと互換です。
func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxPasswordBytes {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// Hash はパスワードをハッシュ化します。
func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASHING_FAILED").
			With("cost", h.cost).
			Wrapf(errors.Join(ErrHashing, err), "hash password")
	}
	return string(hashed), nil
}

// Verify はパスワードとハッシュを定数時間で照合します。
func (h *BcryptHasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
}
