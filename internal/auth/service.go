package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/sahilsz/node-docker/internal/audit"
	"github.com/sahilsz/node-docker/internal/logging"
	"github.com/sahilsz/node-docker/internal/session"
	"github.com/sahilsz/node-docker/internal/users"
)

// SessionStore はセッションの保存先です。
type SessionStore interface {
	Create(ctx context.Context, id string, data session.Data, ttl time.Duration) error
	Get(ctx context.Context, id string) (*session.Data, error)
	Delete(ctx context.Context, id string) error
}

// AuditRecorder は認証イベントの記録先です。
type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

// Options は Service の任意設定です。
type Options struct {
	SessionTTL time.Duration
	Audit      AuditRecorder
	Metrics    *Metrics
	Logger     *slog.Logger
}

// DefaultSessionTTL は Options.SessionTTL 未指定時の有効期限です。
const DefaultSessionTTL = 30 * time.Minute

// Service はサインアップ・ログイン・セッション解決をまとめます。
type Service struct {
	users    users.Store
	sessions SessionStore
	hasher   Hasher
	ttl      time.Duration
	audit    AuditRecorder
	metrics  *Metrics
	logger   *slog.Logger
	newID    func() (string, error)
}

// NewService は Service を作成します。
func NewService(userStore users.Store, sessions SessionStore, hasher Hasher, opts Options) *Service {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    userStore,
		sessions: sessions,
		hasher:   hasher,
		ttl:      ttl,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		logger:   logger,
		newID:    session.NewID,
	}
}

// SessionTTL はログイン時に設定する有効期限を返します。
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// SignUp はユーザーを作成し、公開情報を返します。
// セッションは作成しません。ログインは別途 Login で行います。
func (s *Service) SignUp(ctx context.Context, username, password string) (*users.Public, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		s.observe(ctx, audit.ActionSignup, audit.OutcomeInvalid, username)
		return nil, oops.Code("AUTH_VALIDATION").Wrap(ErrValidation)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.observe(ctx, audit.ActionSignup, audit.OutcomeError, username)
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	// クライアントが切断しても挿入は最後まで行う
	user, err := s.users.Create(context.WithoutCancel(ctx), username, hash)
	switch {
	case err == nil:
	case errors.Is(err, users.ErrDuplicate):
		s.observe(ctx, audit.ActionSignup, audit.OutcomeDuplicate, username)
		return nil, oops.Code("AUTH_DUPLICATE_USER").With("username", username).Wrap(ErrDuplicateUser)
	case errors.Is(err, users.ErrValidation):
		s.observe(ctx, audit.ActionSignup, audit.OutcomeInvalid, username)
		return nil, oops.Code("AUTH_VALIDATION").Wrap(ErrValidation)
	default:
		s.observe(ctx, audit.ActionSignup, audit.OutcomeError, username)
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.observe(ctx, audit.ActionSignup, audit.OutcomeSuccess, username)
	return user.Public(), nil
}

// Login は資格情報を検証し、新しいセッションIDを発行します。
// 同じユーザーの既存セッションはそのまま残ります。
func (s *Service) Login(ctx context.Context, username, password string) (string, *users.Public, error) {
	if username == "" || password == "" {
		s.observe(ctx, audit.ActionLogin, audit.OutcomeInvalid, username)
		return "", nil, oops.Code("AUTH_VALIDATION").Wrap(ErrValidation)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.observe(ctx, audit.ActionLogin, audit.OutcomeNotFound, username)
			return "", nil, oops.Code("AUTH_USER_NOT_FOUND").Wrap(ErrUserNotFound)
		}
		s.observe(ctx, audit.ActionLogin, audit.OutcomeError, username)
		return "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user").
			Wrap(err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.observe(ctx, audit.ActionLogin, audit.OutcomeError, username)
		return "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(err)
	}
	if !ok {
		s.observe(ctx, audit.ActionLogin, audit.OutcomeInvalidCredentials, username)
		return "", nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	id, err := s.newID()
	if err != nil {
		s.observe(ctx, audit.ActionLogin, audit.OutcomeError, username)
		return "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session id").
			Wrap(err)
	}

	public := user.Public()
	if err := s.sessions.Create(context.WithoutCancel(ctx), id, session.Data{User: public}, s.ttl); err != nil {
		s.observe(ctx, audit.ActionLogin, audit.OutcomeError, username)
		return "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	s.observe(ctx, audit.ActionLogin, audit.OutcomeSuccess, username)
	return id, public, nil
}

// Authenticate はセッションIDからユーザーを解決します。
// セッションが無い・期限切れ・ユーザー情報を含まない場合は ErrUnauthorized です。
func (s *Service) Authenticate(ctx context.Context, sessionID string) (*users.Public, error) {
	if sessionID == "" {
		return nil, ErrUnauthorized
	}

	data, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrMissing) {
			return nil, ErrUnauthorized
		}
		return nil, oops.Code("AUTH_SESSION_LOOKUP_FAILED").Wrap(err)
	}
	if data == nil || data.User == nil || data.User.Username == "" {
		return nil, ErrUnauthorized
	}
	return data.User, nil
}

// Logout はセッションを破棄します。
func (s *Service) Logout(ctx context.Context, sessionID string, user *users.Public) error {
	var username string
	if user != nil {
		username = user.Username
	}
	if err := s.sessions.Delete(context.WithoutCancel(ctx), sessionID); err != nil {
		s.observe(ctx, audit.ActionLogout, audit.OutcomeError, username)
		return oops.Code("AUTH_LOGOUT_FAILED").Wrap(err)
	}
	s.observe(ctx, audit.ActionLogout, audit.OutcomeSuccess, username)
	return nil
}

// DiscardSession は発行済みだがクライアントに渡せなかったセッションを削除します。
// ログアウトとは違い、監査イベントは記録しません。
func (s *Service) DiscardSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(context.WithoutCancel(ctx), sessionID); err != nil {
		return oops.Code("AUTH_SESSION_DISCARD_FAILED").Wrap(err)
	}
	return nil
}

func (s *Service) observe(ctx context.Context, action audit.Action, outcome audit.Outcome, username string) {
	s.metrics.observe(action, outcome)
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{
		Action:    action,
		Outcome:   outcome,
		Username:  username,
		RequestID: logging.RequestID(ctx),
	})
}
