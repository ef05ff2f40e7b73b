package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/sahilsz/node-docker/internal/audit"
	"github.com/sahilsz/node-docker/internal/session"
	"github.com/sahilsz/node-docker/internal/users"
)

// memoryUserStore は MongoStore と同じ契約を持つテスト用ストアです。
type memoryUserStore struct {
	mu      sync.Mutex
	byName  map[string]*users.User
	nextID  int
	findErr error
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{byName: make(map[string]*users.User)}
}

func (s *memoryUserStore) Create(ctx context.Context, username, passwordHash string) (*users.User, error) {
	if username == "" || passwordHash == "" {
		return nil, users.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return nil, users.ErrDuplicate
	}
	s.nextID++
	u := &users.User{
		ID:           fmt.Sprintf("u%d", s.nextID),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	s.byName[username] = u
	return u, nil
}

func (s *memoryUserStore) FindByUsername(ctx context.Context, username string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	u, ok := s.byName[username]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Record(ctx context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingAudit) outcomes() []audit.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Outcome, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Outcome
	}
	return out
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) {
	return "", oops.Code("AUTH_HASHING_FAILED").Wrap(ErrHashing)
}

func (failingHasher) Verify(string, string) (bool, error) { return false, nil }

type testEnv struct {
	svc      *Service
	users    *memoryUserStore
	sessions *session.Store
	redis    *miniredis.Miniredis
	audit    *recordingAudit
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		users:    newMemoryUserStore(),
		sessions: session.NewStore(rdb),
		redis:    mr,
		audit:    &recordingAudit{},
	}
	env.svc = NewService(env.users, env.sessions, NewBcryptHasher(bcrypt.MinCost), Options{
		SessionTTL: time.Minute,
		Audit:      env.audit,
		Logger:     discardLogger(),
	})
	return env
}

func (e *testEnv) router(protected gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware(CookieOptions{Secret: []byte("test-secret"), TTL: time.Minute}))

	guard := NewGuard(e.svc, discardLogger())
	NewHandler(e.svc, nil, discardLogger()).Register(r.Group("/users"), guard)
	if protected != nil {
		r.POST("/protected", guard.RequireLogin(), protected)
	}
	return r
}

func doJSON(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}
