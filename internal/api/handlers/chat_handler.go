package handlers

import (
	"example.com/jonoshongjog/services/relief/internal/api/middleware"
	"example.com/jonoshongjog/services/relief/internal/chat"

	"github.com/gin-gonic/gin"
)

// ChatHandler proxies the assistant
type ChatHandler struct {
	Responder
	chat *chat.Service
}

// NewChatHandler creates a new chat handler
func NewChatHandler(r Responder, chat *chat.Service) *ChatHandler {
	return &ChatHandler{Responder: r, chat: chat}
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message   string `json:"message" binding:"required,max=4000"`
	SessionID string `json:"session_id" binding:"omitempty,max=64"`
}

// Send handles POST /chat
func (h *ChatHandler) Send(c *gin.Context) {
	var req ChatRequest
	if !h.bindJSON(c, &req) {
		return
	}
	reply, err := h.chat.Reply(c.Request.Context(), middleware.Actor(c), req.SessionID, req.Message)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, reply)
}

// DeleteSession handles DELETE /chat/:sessionId
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.chat.DeleteSession(c.Request.Context(), middleware.Actor(c), c.Param("sessionId")); err != nil {
		h.fail(c, err)
		return
	}
	h.message(c, "Chat session deleted")
}

// RegisterRoutes registers the handler's routes
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup, authn gin.HandlerFunc) {
	g := rg.Group("/chat", authn)
	g.POST("", h.Send)
	g.DELETE("/:sessionId", h.DeleteSession)
}
