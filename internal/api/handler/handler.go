// Package handler exposes the chat engine over HTTP and WebSocket.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"chatmatch/backend/internal/auth"
	"chatmatch/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const userIDKey = "user_id"

// Handler holds the services behind the HTTP routes.
type Handler struct {
	Engine *chathub.Engine
	Hub    *chathub.Hub
	Auth   *auth.Service

	// AllowedOrigins restricts WebSocket upgrades; empty allows any origin.
	AllowedOrigins []string
}

func NewHandler(engine *chathub.Engine, hub *chathub.Hub, authSvc *auth.Service) *Handler {
	return &Handler{Engine: engine, Hub: hub, Auth: authSvc}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.GET("/ws", h.ServeWebSocket)

	authed := r.Group("/", h.RequireUser)
	authed.POST("/logout", h.Logout)
	authed.GET("/me", h.Me)
	authed.GET("/match/preview", h.PreviewMatch)
	authed.POST("/match", h.RequestMatch)
	authed.POST("/sessions/:id/messages", h.SendMessage)
	authed.GET("/sessions/:id/messages", h.PollMessages)
	authed.POST("/sessions/:id/end", h.EndChat)
}

// RequireUser rejects requests without a valid bearer token and stores the
// caller's id in the context.
func (h *Handler) RequireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authorization token missing"})
		return
	}
	userID, err := h.Auth.Authenticate(token)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := h.resume(c.Request.Context(), userID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

// resume brings a token holder back online when the directory has never seen
// them, which happens after a restart. Users who logged out stay offline.
func (h *Handler) resume(ctx context.Context, userID string) error {
	if _, known := h.Engine.Directory.Get(userID); known {
		return nil
	}
	err := h.Auth.Resume(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return auth.ErrInvalidToken
	}
	return err
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// statusFor maps a domain error onto an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrDuplicateIdentity):
		return http.StatusConflict, "duplicate_identity"
	case errors.Is(err, auth.ErrInvalidProfile):
		return http.StatusBadRequest, "invalid_profile"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	}

	code := chathub.ErrorCode(err)
	switch code {
	case "no_match", "session_not_found", "unknown_user":
		return http.StatusNotFound, code
	case "already_in_session", "user_offline":
		return http.StatusConflict, code
	case "session_not_active":
		return http.StatusGone, code
	case "not_a_participant":
		return http.StatusForbidden, code
	case "same_user", "empty_message", "message_too_long":
		return http.StatusBadRequest, code
	}
	return http.StatusInternalServerError, code
}

func abortWithError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": msg})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
}
