package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sageteck/tuneup-relay/internal/app"
	"github.com/sageteck/tuneup-relay/internal/domain"
	"github.com/sageteck/tuneup-relay/internal/store"
)

// HistoryHandlers serves conversation history CRUD backed by the store,
// fanning out live events after each write.
type HistoryHandlers struct {
	Store      *store.Store
	Dispatcher *app.Dispatcher
}

// Conversations lists a user's conversations with summaries.
func (h *HistoryHandlers) Conversations(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid user_id"})
		return
	}
	role := domain.RoleFromIsStudent(c.Query("is_student") != "false")

	convs, err := h.Store.UserConversations(c.Request.Context(), domain.UserID(userID), role)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// Messages returns a page of a conversation's messages.
func (h *HistoryHandlers) Messages(c *gin.Context) {
	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || convID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	msgs, err := h.Store.ConversationMessages(c.Request.Context(), domain.ConversationID(convID), limit, offset)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type PostMessageRequest struct {
	TenantID      int64   `json:"tenant_id" binding:"required"`
	UserID        int64   `json:"user_id" binding:"required"`
	IsStudent     *bool   `json:"is_student" binding:"required"`
	Content       string  `json:"content" binding:"required"`
	Type          string  `json:"type" binding:"omitempty,oneof=text image video audio"`
	AttachmentURL *string `json:"attachment_url"`
}

// PostMessage persists a message and fans it out to the conversation room.
func (h *HistoryHandlers) PostMessage(c *gin.Context) {
	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || convID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := domain.RoleFromIsStudent(*req.IsStudent)
	msg, err := h.Store.InsertMessage(c.Request.Context(),
		domain.ConversationID(convID), domain.UserID(req.UserID), role,
		req.Content, req.Type, req.AttachmentURL)
	if err != nil {
		if errors.Is(err, store.ErrNotParticipant) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("insert message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	payload := gin.H{
		"id":             msg.ID,
		"content":        msg.Content,
		"type":           msg.Type,
		"attachment_url": msg.AttachmentURL,
		"sent_at":        msg.SentAt,
		"sender": gin.H{
			"id":         req.UserID,
			"is_student": *req.IsStudent,
		},
		"conversation_id": convID,
		"tenant_id":       req.TenantID,
	}
	_, _ = h.Dispatcher.IngestPersistedEvent(
		domain.TenantID(req.TenantID), domain.ConversationID(convID),
		app.EventNewMessage, payload)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

type MarkReadRequest struct {
	TenantID  int64 `json:"tenant_id" binding:"required"`
	UserID    int64 `json:"user_id" binding:"required"`
	IsStudent *bool `json:"is_student" binding:"required"`
}

// MarkRead marks a conversation read for the user and fans out the receipt.
func (h *HistoryHandlers) MarkRead(c *gin.Context) {
	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || convID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := domain.RoleFromIsStudent(*req.IsStudent)
	n, err := h.Store.MarkRead(c.Request.Context(),
		domain.ConversationID(convID), domain.UserID(req.UserID), role)
	if err != nil {
		if errors.Is(err, store.ErrNotParticipant) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("mark read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	_, _ = h.Dispatcher.IngestPersistedEvent(
		domain.TenantID(req.TenantID), domain.ConversationID(convID),
		app.EventMessagesRead, gin.H{
			"user_id":         req.UserID,
			"is_student":      *req.IsStudent,
			"conversation_id": convID,
			"tenant_id":       req.TenantID,
		})

	c.JSON(http.StatusOK, gin.H{"success": true, "marked_read": n})
}
