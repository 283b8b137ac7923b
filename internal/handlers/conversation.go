package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-client/internal/api"
	"chat-client/internal/ledger"
	"chat-client/internal/pipeline"
	"chat-client/internal/session"
)

// SessionProvider hands out open conversation sessions.
type SessionProvider interface {
	Get(ctx context.Context, conversationID string) (*session.Session, error)
}

// ConversationHandler exposes conversation sessions over the local sidecar
// API consumed by the UI shell.
type ConversationHandler struct {
	sessions SessionProvider
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(sessions SessionProvider) *ConversationHandler {
	return &ConversationHandler{sessions: sessions}
}

// Register wires the conversation routes.
func (h *ConversationHandler) Register(router gin.IRoutes) {
	router.GET("/conversations/:conversation_id/messages", h.ListMessages)
	router.POST("/conversations/:conversation_id/messages", h.PostMessage)
	router.PATCH("/conversations/:conversation_id/messages/:message_id", h.EditMessage)
	router.DELETE("/conversations/:conversation_id/messages/:message_id/all", h.DeleteForAll)
	router.DELETE("/conversations/:conversation_id/messages/:message_id/me", h.DeleteForMe)
	router.POST("/conversations/:conversation_id/messages/:message_id/undo-remove", h.UndoRemove)
	router.POST("/conversations/:conversation_id/messages/:message_id/react", h.React)
	router.POST("/conversations/:conversation_id/messages/:message_id/star", h.Star)
	router.POST("/conversations/:conversation_id/messages/:message_id/pin", h.Pin)
	router.POST("/conversations/:conversation_id/clear", h.ClearChat)
	router.GET("/conversations/:conversation_id/draft", h.GetDraft)
	router.PUT("/conversations/:conversation_id/draft", h.PutDraft)
	router.POST("/conversations/:conversation_id/typing", h.Typing)
}

// ListMessages returns the visible projection for the configured user.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": s.Messages()})
}

// PostMessage performs an optimistic send and returns the temporary record
// immediately; the durable write continues in the background.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req struct {
		Text      string `json:"text" binding:"required"`
		ReplyToID string `json:"replyToId"`
		ImageURL  string `json:"imageUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := s.Send(c.Request.Context(), pipeline.Draft{
		Text:      req.Text,
		ReplyToID: req.ReplyToID,
		ImageURL:  req.ImageURL,
	})
	c.JSON(http.StatusAccepted, msg)
}

// EditMessage rewrites a confirmed message's body.
func (h *ConversationHandler) EditMessage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Edit(c.Request.Context(), c.Param("message_id"), req.Text); err != nil {
		writeActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteForAll hard-deletes a message for both parties.
func (h *ConversationHandler) DeleteForAll(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.DeleteForEveryone(c.Request.Context(), c.Param("message_id")); err != nil {
		writeActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteForMe hides a message for the configured user only.
func (h *ConversationHandler) DeleteForMe(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.DeleteForMe(c.Request.Context(), c.Param("message_id")); err != nil {
		writeActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UndoRemove reverses a delete-for-me within the grace window.
func (h *ConversationHandler) UndoRemove(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.UndoDeleteForMe(c.Request.Context(), c.Param("message_id")); err != nil {
		writeActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// React toggles a reaction.
func (h *ConversationHandler) React(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
		Added *bool  `json:"added" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.React(c.Request.Context(), c.Param("message_id"), req.Emoji, *req.Added); err != nil {
		writeActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Star toggles the user's private star.
func (h *ConversationHandler) Star(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req struct {
		Starred *bool `json:"starred" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Star(c.Request.Context(), c.Param("message_id"), *req.Starred); err != nil {
		writeActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Pin toggles a pin.
func (h *ConversationHandler) Pin(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req struct {
		Pinned *bool `json:"pinned" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Pin(c.Request.Context(), c.Param("message_id"), *req.Pinned); err != nil {
		writeActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearChat hides the whole conversation up to now for this user.
func (h *ConversationHandler) ClearChat(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.ClearChat(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear chat"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDraft returns the persisted composer draft.
func (h *ConversationHandler) GetDraft(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	draft, err := s.Draft(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load draft"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": draft})
}

// PutDraft persists the composer draft.
func (h *ConversationHandler) PutDraft(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req struct {
		Draft string `json:"draft"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.SaveDraft(c.Request.Context(), req.Draft); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save draft"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Typing publishes a typing signal to the counterpart.
func (h *ConversationHandler) Typing(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Typing(c.Request.Context())
	c.Status(http.StatusAccepted)
}

func (h *ConversationHandler) session(c *gin.Context) (*session.Session, bool) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing conversation id"})
		return nil, false
	}

	s, err := h.sessions.Get(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, api.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": "could not open conversation"})
		return nil, false
	}
	return s, true
}

func writeActionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrPendingMessage):
		c.JSON(http.StatusConflict, gin.H{"error": "message is still pending"})
	case errors.Is(err, ledger.ErrUndoExpired):
		c.JSON(http.StatusGone, gin.H{"error": "undo window expired"})
	case errors.Is(err, api.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
	case errors.Is(err, api.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "message changed on the server"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
