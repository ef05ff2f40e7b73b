package posts

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sahilsz/node-docker/internal/auth"
	"github.com/sahilsz/node-docker/internal/logging"
)

const listLimit = 100

// Handler は /posts 配下の HTTP ハンドラーです。
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Register はルートを登録します。書き込み系は requireLogin の後段に置きます。
func (h *Handler) Register(r gin.IRouter, requireLogin gin.HandlerFunc) {
	r.GET("", h.List)
	r.GET("/:id", h.Get)
	r.POST("", requireLogin, h.Create)
	r.PATCH("/:id", requireLogin, h.Update)
	r.DELETE("/:id", requireLogin, h.Delete)
}

type createRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type updateRequest struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
}

// List は GET /posts のハンドラーです。
func (h *Handler) List(c *gin.Context) {
	posts, err := h.store.List(c.Request.Context(), listLimit)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": len(posts),
		"data":    gin.H{"posts": posts},
	})
}

// Get は GET /posts/:id のハンドラーです。
func (h *Handler) Get(c *gin.Context) {
	post, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"post": post},
	})
}

// Create は POST /posts のハンドラーです。
func (h *Handler) Create(c *gin.Context) {
	user, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || strings.TrimSpace(req.Body) == "" {
		h.respondWithError(c, ErrValidation)
		return
	}

	post, err := h.store.Create(c.Request.Context(), &Post{
		Title:  req.Title,
		Body:   req.Body,
		Author: user.Username,
	})
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   gin.H{"post": post},
	})
}

// Update は PATCH /posts/:id のハンドラーです。作成者のみ更新できます。
func (h *Handler) Update(c *gin.Context) {
	user, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		if trimmed == "" {
			h.respondWithError(c, ErrValidation)
			return
		}
		req.Title = &trimmed
	}
	if req.Body != nil && strings.TrimSpace(*req.Body) == "" {
		h.respondWithError(c, ErrValidation)
		return
	}

	if err := h.checkAuthor(c, user.Username); err != nil {
		h.respondWithError(c, err)
		return
	}

	post, err := h.store.Update(c.Request.Context(), c.Param("id"), user.Username, Update{Title: req.Title, Body: req.Body})
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"post": post},
	})
}

// Delete は DELETE /posts/:id のハンドラーです。作成者のみ削除できます。
func (h *Handler) Delete(c *gin.Context) {
	user, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.checkAuthor(c, user.Username); err != nil {
		h.respondWithError(c, err)
		return
	}
	if err := h.store.Delete(c.Request.Context(), c.Param("id"), user.Username); err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// checkAuthor は他人の投稿への書き込みを 404 ではなく 403 で返すための事前確認です。
func (h *Handler) checkAuthor(c *gin.Context, username string) error {
	post, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if post.Author != username {
		return ErrForbidden
	}
	return nil
}

func (h *Handler) respondWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		fail(c, http.StatusBadRequest, ErrValidation.Error())
	case errors.Is(err, ErrInvalidID):
		fail(c, http.StatusBadRequest, ErrInvalidID.Error())
	case errors.Is(err, ErrNotFound):
		fail(c, http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrForbidden):
		fail(c, http.StatusForbidden, ErrForbidden.Error())
	default:
		logging.LogError(c.Request.Context(), h.logger, "post operation failed", err)
		fail(c, http.StatusInternalServerError, "internal server error")
	}
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"status": "fail", "message": message})
}
