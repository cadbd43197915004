package handler

import (
	"errors"
	"html"
	"log"
	"net/http"
	"strconv"

	"foodshare/backend/internal/data"
	"foodshare/backend/internal/relay"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// defaultHistoryLimit caps how many messages GetHistory returns per call.
const defaultHistoryLimit = 100

type sendMessageRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
	Subject string `json:"subject"` // optional don id the thread is about
}

// SendMessage handles POST /chat/message. The sender comes from the
// verified JWT; the message is durably stored first and then broadcast
// best-effort on the conversation's channel — a failed broadcast never
// fails the request.
func (h *Handler) SendMessage(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "missing authorization token"})
		return
	}
	sender, err := claims.UserObjectID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "invalid token"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "malformed request body"})
		return
	}

	recipientID, err := bson.ObjectIDFromHex(req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "to must be a valid identifier"})
		return
	}

	var subject *bson.ObjectID
	if req.Subject != "" {
		id, err := bson.ObjectIDFromHex(req.Subject)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"result": false, "error": "subject must be a valid identifier"})
			return
		}
		subject = &id
	}

	// Recipient must exist before a thread is opened with them
	if _, err := h.users.GetUserByID(c.Request.Context(), recipientID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"result": false, "error": "recipient not found"})
			return
		}
		respondStoreError(c, err)
		return
	}

	// Content is stored raw; the length bound applies to what the sender
	// typed, not an escaped expansion of it.
	msg, conv, err := h.chat.SendMessage(c.Request.Context(), sender, recipientID, req.Content, subject)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	// Best-effort real-time broadcast. The message is already stored; a
	// broker outage only costs the live notification. Escaping happens
	// here, where the content leaves for subscribers that render it.
	if err := h.relay.PublishMessage(c.Request.Context(), relay.MessageEvent{
		MessageID:      msg.ID.Hex(),
		ConversationID: msg.ConversationID.Hex(),
		From:           msg.From.Hex(),
		To:             msg.To.Hex(),
		Content:        html.EscapeString(msg.Content),
		Date:           msg.Date,
	}); err != nil {
		log.Printf("broadcast of message %s failed: %v", msg.ID.Hex(), err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"result":         true,
		"message":        msg,
		"conversationId": conv.ID.Hex(),
	})
}

// GetHistory handles GET /chat/history/:userId: the thread between the
// caller and the named counterpart, oldest message first.
func (h *Handler) GetHistory(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "missing authorization token"})
		return
	}
	caller, err := claims.UserObjectID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "invalid token"})
		return
	}

	other, ok := pathObjectID(c, "userId")
	if !ok {
		return
	}

	limit := int64(defaultHistoryLimit)
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, conv, err := h.chat.History(c.Request.Context(), caller, other, limit)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*data.Message{}
	}

	c.JSON(http.StatusOK, gin.H{
		"result":         true,
		"conversationId": conv.ID.Hex(),
		"messages":       msgs,
	})
}

// ListConversations handles GET /chat/conversations: the caller's threads
// ordered by last activity.
func (h *Handler) ListConversations(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "missing authorization token"})
		return
	}
	caller, err := claims.UserObjectID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "invalid token"})
		return
	}

	limit := int64(50)
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}

	convs, err := h.chat.RecentConversations(c.Request.Context(), caller, limit)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if convs == nil {
		convs = []*data.Conversation{}
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "conversations": convs})
}

// MarkRead handles PUT /chat/read/:messageId. Only the recipient flips
// the read flag, and only false→true.
func (h *Handler) MarkRead(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "missing authorization token"})
		return
	}
	reader, err := claims.UserObjectID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "error": "invalid token"})
		return
	}

	msgID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}

	msg, err := h.chat.MarkRead(c.Request.Context(), msgID, reader)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": true, "message": msg})
}

// JoinChat handles PUT /chat/users/:token: marks the user online and
// broadcasts a join event on the shared chat channel.
func (h *Handler) JoinChat(c *gin.Context) {
	token := c.Param("token")

	if err := h.users.SetPresence(c.Request.Context(), token, true); err != nil {
		respondStoreError(c, err)
		return
	}

	if err := h.relay.PublishPresence(c.Request.Context(), relay.PresenceEvent{Event: "join", Token: token}); err != nil {
		log.Printf("join broadcast failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"result": true})
}

// LeaveChat handles DELETE /chat/users/:token: marks the user offline
// (stamping last-seen) and broadcasts a leave event.
func (h *Handler) LeaveChat(c *gin.Context) {
	token := c.Param("token")

	if err := h.users.SetPresence(c.Request.Context(), token, false); err != nil {
		respondStoreError(c, err)
		return
	}

	if err := h.relay.PublishPresence(c.Request.Context(), relay.PresenceEvent{Event: "leave", Token: token}); err != nil {
		log.Printf("leave broadcast failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"result": true})
}
