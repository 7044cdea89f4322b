package handler

import (
	"errors"
	"net/http"
	"time"

	"chatmatch/backend/internal/chathub"
	"chatmatch/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type messageRequest struct {
	Body string `json:"body"`
}

// PreviewMatch lists the ranked candidates without reserving anyone.
func (h *Handler) PreviewMatch(c *gin.Context) {
	candidates, err := h.Engine.Matcher.Candidates(currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	views := make([]models.PartnerView, 0, len(candidates))
	for _, cand := range candidates {
		v := cand.User.Anonymous()
		v.CommonInterests = cand.Overlap
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"candidates": views})
}

func (h *Handler) RequestMatch(c *gin.Context) {
	m, err := h.Engine.RequestMatch(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) SendMessage(c *gin.Context) {
	var in messageRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.Engine.SendChatMessage(c.Request.Context(), c.Param("id"), currentUser(c), in.Body)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// PollMessages returns the turns posted after ?since. A closed session
// answers 410 with whatever was still unread.
func (h *Handler) PollMessages(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		since = t
	}

	msgs, err := h.Engine.PollMessages(c.Request.Context(), c.Param("id"), currentUser(c), since)
	if errors.Is(err, chathub.ErrSessionNotActive) {
		c.JSON(http.StatusGone, gin.H{"error": "session_not_active", "messages": msgs})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) EndChat(c *gin.Context) {
	s, err := h.Engine.EndChat(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
