// Package audit は認証イベントを非同期キュー経由で記録します。
package audit

import "time"

// Action は記録対象の操作です。
type Action string

const (
	ActionSignup Action = "signup"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
)

// Outcome は操作の結果です。メトリクスのラベルにも使います。
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeInvalid            Outcome = "invalid"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeNotFound           Outcome = "not_found"
	OutcomeInvalidCredentials Outcome = "invalid_credentials"
	OutcomeError              Outcome = "error"
)

// Event は1件の認証イベントです。パスワードやハッシュは含めません。
type Event struct {
	ID         string    `json:"id" bson:"_id"`
	Action     Action    `json:"action" bson:"action"`
	Outcome    Outcome   `json:"outcome" bson:"outcome"`
	Username   string    `json:"username" bson:"username"`
	RequestID  string    `json:"requestId,omitempty" bson:"requestId,omitempty"`
	OccurredAt time.Time `json:"occurredAt" bson:"occurredAt"`
}
