package handler

import (
	"log"
	"net/http"
	"slices"
	"strings"

	"chatmatch/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ServeWebSocket upgrades the connection and registers a push client. The
// token comes from ?token= since browsers cannot set headers on upgrade.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	userID, err := h.Auth.Authenticate(token)
	if err != nil {
		abortWithError(c, err)
		return
	}

	// Opening a push channel counts as coming online, also after a logout.
	if !h.Engine.Directory.IsOnline(userID) {
		if err := h.Auth.Resume(c.Request.Context(), userID); err != nil {
			abortWithError(c, err)
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WARNING: websocket upgrade failed for %s: %v", userID, err)
		return
	}

	client := chathub.NewWebSocketClient(userID, conn, h.Hub)
	h.Hub.RegisterCh <- client
	client.Run()
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and, when AllowedOrigins is set, only the listed origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.AllowedOrigins, origin)
}
