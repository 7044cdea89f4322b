package handler

import (
	"net/http"

	"chatmatch/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account. The new user stays offline until login.
func (h *Handler) Register(c *gin.Context) {
	var in auth.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.Auth.Register(c.Request.Context(), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": u.ID, "username": u.Username})
}

// Login checks the credentials, brings the user online and returns a token.
func (h *Handler) Login(c *gin.Context) {
	var in loginRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	userID, token, err := h.Auth.AuthenticateAndGoOnline(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": userID})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.Auth.Logout(c.Request.Context(), currentUser(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the caller's own profile together with presence and the
// active session, if any.
func (h *Handler) Me(c *gin.Context) {
	userID := currentUser(c)
	u, err := h.Auth.Profile(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := gin.H{
		"user_id":    u.ID,
		"username":   u.Username,
		"gender":     u.Gender,
		"preference": u.Preference,
		"interests":  u.Interests,
		"online":     h.Engine.Directory.IsOnline(userID),
		"session_id": nil,
	}
	if s, ok := h.Engine.Sessions.GetActiveSession(userID); ok {
		resp["session_id"] = s.SessionID
	}
	c.JSON(http.StatusOK, resp)
}
