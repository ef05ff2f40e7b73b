package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sahilsz/node-docker/internal/audit"
	"github.com/sahilsz/node-docker/internal/logging"
)

// ActivityLister はユーザーの直近の認証イベントを返します。
type ActivityLister interface {
	ListByUsername(ctx context.Context, username string, limit int64) ([]audit.Event, error)
}

// Handler は /users 配下の HTTP ハンドラーです。
type Handler struct {
	svc      *Service
	activity ActivityLister
	logger   *slog.Logger
}

// NewHandler は Handler を作成します。activity は nil でも構いません。
func NewHandler(svc *Service, activity ActivityLister, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, activity: activity, logger: logger}
}

// Register はルートを登録します。
func (h *Handler) Register(r gin.IRouter, guard *Guard) {
	r.POST("/signup", h.SignUp)
	r.POST("/login", h.Login)
	r.POST("/logout", guard.RequireLogin(), h.Logout)
	r.GET("/me", guard.RequireLogin(), h.Me)
	if h.activity != nil {
		r.GET("/me/activity", guard.RequireLogin(), h.Activity)
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignUp は POST /users/signup のハンドラーです。
func (h *Handler) SignUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "")
		return
	}

	user, err := h.svc.SignUp(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			fail(c, http.StatusBadRequest, ErrValidation.Error())
		case errors.Is(err, ErrDuplicateUser):
			// 重複かどうかはレスポンスから判別できないようにする
			fail(c, http.StatusBadRequest, "")
		default:
			logging.LogError(c.Request.Context(), h.logger, "signup failed", err)
			fail(c, http.StatusBadRequest, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"user": user},
	})
}

// Login は POST /users/login のハンドラーです。
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "")
		return
	}

	id, _, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			fail(c, http.StatusBadRequest, ErrValidation.Error())
		case errors.Is(err, ErrUserNotFound):
			fail(c, http.StatusNotFound, "user not found")
		case errors.Is(err, ErrInvalidCredentials):
			fail(c, http.StatusBadRequest, "incorrect username or password")
		default:
			logging.LogError(c.Request.Context(), h.logger, "login failed", err)
			fail(c, http.StatusBadRequest, "")
		}
		return
	}

	if err := saveSessionHandle(c, id); err != nil {
		// クッキーを渡せなかったセッションは使われないので消しておく
		logging.LogError(c.Request.Context(), h.logger, "failed to write session cookie", err)
		if err := h.svc.DiscardSession(c.Request.Context(), id); err != nil {
			logging.LogError(c.Request.Context(), h.logger, "failed to discard session", err)
		}
		fail(c, http.StatusInternalServerError, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Logout は POST /users/logout のハンドラーです。Guard の後段で使います。
func (h *Handler) Logout(c *gin.Context) {
	user, _ := UserFromContext(c.Request.Context())
	if err := h.svc.Logout(c.Request.Context(), sessionHandle(c), user); err != nil {
		logging.LogError(c.Request.Context(), h.logger, "logout failed", err)
		fail(c, http.StatusInternalServerError, "")
		return
	}
	if err := clearSessionHandle(c); err != nil {
		logging.LogError(c.Request.Context(), h.logger, "failed to clear session cookie", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Me は GET /users/me のハンドラーです。
func (h *Handler) Me(c *gin.Context) {
	user, ok := UserFromContext(c.Request.Context())
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"user": user},
	})
}

// Activity は GET /users/me/activity のハンドラーです。
func (h *Handler) Activity(c *gin.Context) {
	user, ok := UserFromContext(c.Request.Context())
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	events, err := h.activity.ListByUsername(c.Request.Context(), user.Username, 20)
	if err != nil {
		logging.LogError(c.Request.Context(), h.logger, "failed to list activity", err)
		fail(c, http.StatusInternalServerError, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": len(events),
		"data":    gin.H{"events": events},
	})
}

func fail(c *gin.Context, status int, message string) {
	body := gin.H{"status": "fail"}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}
