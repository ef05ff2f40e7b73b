package auth

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const (
	// SessionCookieName は署名付きセッションクッキーの名前です。
	SessionCookieName = "sid"
	sessionKeyID      = "session_id"
)

// CookieOptions はセッションクッキーの発行設定です。
type CookieOptions struct {
	Secret []byte
	TTL    time.Duration
	Secure bool
}

// SessionMiddleware はセッションIDを運ぶ署名付きクッキーを扱うミドルウェアを返します。
// クッキーに入るのはセッションIDだけで、ユーザー情報はサーバー側に保存します。
func SessionMiddleware(opts CookieOptions) gin.HandlerFunc {
	store := cookie.NewStore(opts.Secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return sessions.Sessions(SessionCookieName, store)
}

func sessionHandle(c *gin.Context) string {
	id, _ := sessions.Default(c).Get(sessionKeyID).(string)
	return id
}

func saveSessionHandle(c *gin.Context, id string) error {
	s := sessions.Default(c)
	s.Set(sessionKeyID, id)
	return s.Save()
}

func clearSessionHandle(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteStrictMode})
	return s.Save()
}
