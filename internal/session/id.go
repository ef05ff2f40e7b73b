package session

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/samber/oops"
)

const idBytes = 32

// NewID は推測困難なセッションIDを生成します（256bit）。
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_ID_FAILED").
			With("requested_bytes", idBytes).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
