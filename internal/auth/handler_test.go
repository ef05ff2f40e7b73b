package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilsz/node-docker/internal/audit"
	"github.com/sahilsz/node-docker/internal/users"
)

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload), string(body))
	return payload
}

func TestSignupLoginScenario(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(nil)

	rec := doJSON(r, http.MethodPost, "/users/signup", `{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payload := decode(t, rec.Body.Bytes())
	assert.Equal(t, "success", payload["status"])
	user := payload["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, rec.Body.String(), "$2a$")
	assert.Nil(t, sessionCookie(rec), "signup must not establish a session")

	rec = doJSON(r, http.MethodPost, "/users/login", `{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())
	assert.NotNil(t, sessionCookie(rec))

	rec = doJSON(r, http.MethodPost, "/users/login", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"fail","message":"incorrect username or password"}`, rec.Body.String())
	assert.Nil(t, sessionCookie(rec))

	rec = doJSON(r, http.MethodPost, "/users/login", `{"username":"bob","password":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"fail","message":"user not found"}`, rec.Body.String())
}

func TestSessionCookieAttributes(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(nil)

	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/users/signup", `{"username":"alice","password":"secret1"}`).Code)
	rec := doJSON(r, http.MethodPost, "/users/login", `{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, 60, c.MaxAge)
	assert.Equal(t, "/", c.Path)
}

func TestSignupAndLoginWithLongPassword(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(nil)
	body := `{"username":"alice","password":"` + strings.Repeat("p", 100) + `"}`

	rec := doJSON(r, http.MethodPost, "/users/signup", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(r, http.MethodPost, "/users/login", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, sessionCookie(rec))
}

func TestSignupDuplicateIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(nil)

	rec := doJSON(r, http.MethodPost, "/users/signup", `{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(r, http.MethodPost, "/users/signup", `{"username":"alice","password":"secret2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"fail"}`, rec.Body.String())
}

func TestSignupInternalFailureLooksLikeDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.svc.hasher = failingHasher{}
	r := env.router(nil)

	rec := doJSON(r, http.MethodPost, "/users/signup", `{"username":"alice","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"fail"}`, rec.Body.String())
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(nil)

	for _, body := range []string{`{"username":"alice"}`, `{"password":"x"}`, `{}`} {
		rec := doJSON(r, http.MethodPost, "/users/signup", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "fail", decode(t, rec.Body.Bytes())["status"])
	}

	rec := doJSON(r, http.MethodPost, "/users/signup", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(nil)

	rec := doJSON(r, http.MethodPost, "/users/login", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuardRejectsMissingSession(t *testing.T) {
	env := newTestEnv(t)
	calls := 0
	r := env.router(func(c *gin.Context) {
		calls++
		c.Status(http.StatusNoContent)
	})

	rec := doJSON(r, http.MethodPost, "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"status":"fail","message":"unauthorized"}`, rec.Body.String())
	assert.Zero(t, calls)

	rec = doJSON(r, http.MethodPost, "/protected", "", &http.Cookie{Name: SessionCookieName, Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, calls)
}

func TestGuardAttachesUser(t *testing.T) {
	env := newTestEnv(t)
	var seen *users.Public
	r := env.router(func(c *gin.Context) {
		seen, _ = UserFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	_, err := env.svc.SignUp(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	login := doJSON(r, http.MethodPost, "/users/login", `{"username":"alice","password":"secret1"}`)
	cookie := sessionCookie(login)
	require.NotNil(t, cookie)

	rec := doJSON(r, http.MethodPost, "/protected", "", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Username)
}

func TestGuardRejectsExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	calls := 0
	r := env.router(func(c *gin.Context) {
		calls++
		c.Status(http.StatusNoContent)
	})

	_, err := env.svc.SignUp(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	cookie := sessionCookie(doJSON(r, http.MethodPost, "/users/login", `{"username":"alice","password":"secret1"}`))
	require.NotNil(t, cookie)

	env.redis.FastForward(2 * time.Minute)

	rec := doJSON(r, http.MethodPost, "/protected", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, calls)
}

func TestGuardStoreFailureIs500(t *testing.T) {
	env := newTestEnv(t)
	calls := 0
	r := env.router(func(c *gin.Context) {
		calls++
	})

	_, err := env.svc.SignUp(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	cookie := sessionCookie(doJSON(r, http.MethodPost, "/users/login", `{"username":"alice","password":"secret1"}`))
	require.NotNil(t, cookie)

	env.redis.Close()

	rec := doJSON(r, http.MethodPost, "/protected", "", cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection")
	assert.Zero(t, calls)
}

func TestMeAndLogout(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(nil)

	_, err := env.svc.SignUp(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	cookie := sessionCookie(doJSON(r, http.MethodPost, "/users/login", `{"username":"alice","password":"secret1"}`))
	require.NotNil(t, cookie)

	rec := doJSON(r, http.MethodGet, "/users/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec.Body.Bytes())["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])

	rec = doJSON(r, http.MethodPost, "/users/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	// 古いクッキーを再送してもサーバー側のセッションは消えている
	rec = doJSON(r, http.MethodGet, "/users/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Contains(t, env.audit.outcomes(), audit.OutcomeSuccess)
	last := env.audit.events[len(env.audit.events)-1]
	assert.Equal(t, audit.ActionLogout, last.Action)
	assert.Equal(t, "alice", last.Username)
}

type stubActivity struct {
	username string
	events   []audit.Event
}

func (s *stubActivity) ListByUsername(ctx context.Context, username string, limit int64) ([]audit.Event, error) {
	s.username = username
	return s.events, nil
}

func TestActivity(t *testing.T) {
	env := newTestEnv(t)
	activity := &stubActivity{events: []audit.Event{{ID: "e1", Action: audit.ActionLogin, Outcome: audit.OutcomeSuccess}}}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware(CookieOptions{Secret: []byte("test-secret"), TTL: time.Minute}))
	NewHandler(env.svc, activity, discardLogger()).Register(r.Group("/users"), NewGuard(env.svc, discardLogger()))

	_, err := env.svc.SignUp(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	cookie := sessionCookie(doJSON(r, http.MethodPost, "/users/login", `{"username":"alice","password":"secret1"}`))
	require.NotNil(t, cookie)

	rec := doJSON(r, http.MethodGet, "/users/me/activity", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alice", activity.username)
	assert.Equal(t, float64(1), decode(t, rec.Body.Bytes())["results"])
}
