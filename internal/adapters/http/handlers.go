package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sageteck/tuneup-relay/internal/app"
	"github.com/sageteck/tuneup-relay/internal/domain"
)

// Handlers serves the REST ingestion boundary: the backend has persisted an
// event and asks for live fan-out.
type Handlers struct {
	Dispatcher *app.Dispatcher
}

type MessageRequest struct {
	MessageID      int64   `json:"message_id" binding:"required"`
	ConversationID int64   `json:"conversation_id" binding:"required"`
	TenantID       int64   `json:"tenant_id" binding:"required"`
	UserID         int64   `json:"user_id" binding:"required"`
	IsStudent      *bool   `json:"is_student" binding:"required"`
	Content        string  `json:"content" binding:"required"`
	Type           string  `json:"type" binding:"omitempty,oneof=text image video audio"`
	AttachmentURL  *string `json:"attachment_url"`
}

type TypingRequest struct {
	ConversationID int64 `json:"conversation_id" binding:"required"`
	TenantID       int64 `json:"tenant_id" binding:"required"`
	UserID         int64 `json:"user_id" binding:"required"`
	IsStudent      *bool `json:"is_student" binding:"required"`
	IsTyping       *bool `json:"is_typing"`
}

type ReadRequest struct {
	ConversationID int64 `json:"conversation_id" binding:"required"`
	TenantID       int64 `json:"tenant_id" binding:"required"`
	UserID         int64 `json:"user_id" binding:"required"`
	IsStudent      *bool `json:"is_student" binding:"required"`
}

type EmitRequest struct {
	Event    string         `json:"event" binding:"required"`
	Data     map[string]any `json:"data" binding:"required"`
	TenantID int64          `json:"tenant_id" binding:"required"`
	Room     string         `json:"room"`
}

// SendMessage broadcasts a newly persisted message to its conversation room.
func (h *Handlers) SendMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msgType := req.Type
	if msgType == "" {
		msgType = "text"
	}

	message := gin.H{
		"id":             req.MessageID,
		"content":        req.Content,
		"type":           msgType,
		"attachment_url": req.AttachmentURL,
		"sent_at":        time.Now().Format(time.RFC3339),
		"sender": gin.H{
			"id":         req.UserID,
			"is_student": *req.IsStudent,
		},
		"conversation_id": req.ConversationID,
		"tenant_id":       req.TenantID,
	}

	_, err := h.Dispatcher.IngestPersistedEvent(
		domain.TenantID(req.TenantID), domain.ConversationID(req.ConversationID),
		app.EventNewMessage, message)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message_id": req.MessageID})
}

// TypingStatus broadcasts a backend-pushed typing update.
func (h *Handlers) TypingStatus(c *gin.Context) {
	var req TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	isTyping := true
	if req.IsTyping != nil {
		isTyping = *req.IsTyping
	}

	payload := gin.H{
		"user_id":         req.UserID,
		"is_student":      *req.IsStudent,
		"is_typing":       isTyping,
		"conversation_id": req.ConversationID,
		"tenant_id":       req.TenantID,
	}

	_, err := h.Dispatcher.IngestPersistedEvent(
		domain.TenantID(req.TenantID), domain.ConversationID(req.ConversationID),
		app.EventTypingStatus, payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkRead broadcasts a backend-pushed read receipt.
func (h *Handlers) MarkRead(c *gin.Context) {
	var req ReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload := gin.H{
		"user_id":         req.UserID,
		"is_student":      *req.IsStudent,
		"conversation_id": req.ConversationID,
		"tenant_id":       req.TenantID,
	}

	_, err := h.Dispatcher.IngestPersistedEvent(
		domain.TenantID(req.TenantID), domain.ConversationID(req.ConversationID),
		app.EventMessagesRead, payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Emit broadcasts an arbitrary event, to the named room if one is given or
// to the whole tenant otherwise.
func (h *Handlers) Emit(c *gin.Context) {
	var req EmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Room != "" {
		h.Dispatcher.BroadcastRoom(domain.RoomName(req.Room), req.Event, req.Data)
	} else {
		h.Dispatcher.BroadcastTenant(domain.TenantID(req.TenantID), req.Event, req.Data)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type TestBroadcastRequest struct {
	ConversationID int64  `json:"conversation_id"`
	TenantID       int64  `json:"tenant_id"`
	Message        string `json:"message"`
}

// TestBroadcast is a diagnostic for the tenant room layout: it pushes a
// canned message into a conversation room and a marker event to the
// whole tenant. Every field defaults so `{}` is a valid request.
func (h *Handlers) TestBroadcast(c *gin.Context) {
	var req TestBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ConversationID == 0 {
		req.ConversationID = 1
	}
	if req.TenantID == 0 {
		req.TenantID = 1
	}
	if req.Message == "" {
		req.Message = "Test message from server"
	}

	tenant := domain.TenantID(req.TenantID)
	room := domain.ConversationRoom(tenant, domain.ConversationID(req.ConversationID))

	message := gin.H{
		"id":             int64(9999),
		"content":        req.Message,
		"type":           "text",
		"attachment_url": nil,
		"sent_at":        time.Now().Format(time.RFC3339),
		"sender": gin.H{
			"id":         0,
			"is_student": false,
		},
		"conversation_id": req.ConversationID,
		"tenant_id":       req.TenantID,
	}

	h.Dispatcher.BroadcastRoom(room, app.EventNewMessage, message)
	h.Dispatcher.BroadcastTenant(tenant, "test_broadcast", gin.H{
		"message":           req.Message,
		"conversation_room": room,
		"tenant_id":         req.TenantID,
	})

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ConnectedClients lists every live connection with its tenant, role and
// joined rooms.
func (h *Handlers) ConnectedClients(c *gin.Context) {
	clients := h.Dispatcher.Snapshot()

	tenants := make(map[domain.TenantID]struct{})
	for _, cl := range clients {
		tenants[cl.TenantID] = struct{}{}
	}
	tenantIDs := make([]domain.TenantID, 0, len(tenants))
	for t := range tenants {
		tenantIDs = append(tenantIDs, t)
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connected_clients": len(clients),
		"connected_clients":       clients,
		"tenants":                 tenantIDs,
	})
}

// Health reports liveness plus per-tenant user counts by role.
func (h *Handlers) Health(c *gin.Context) {
	clients := h.Dispatcher.Snapshot()

	type tenantStat struct {
		TotalUsers  int                 `json:"total_users"`
		UsersByType map[domain.Role]int `json:"users_by_type"`
	}
	stats := make(map[domain.TenantID]*tenantStat)
	for _, cl := range clients {
		st, ok := stats[cl.TenantID]
		if !ok {
			st = &tenantStat{UsersByType: map[domain.Role]int{
				domain.RoleStudent:    0,
				domain.RoleInstructor: 0,
			}}
			stats[cl.TenantID] = st
		}
		st.TotalUsers++
		st.UsersByType[cl.Role]++
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                "online",
		"service":               "tuneup-relay",
		"multi_tenant":          true,
		"total_connected_users": len(clients),
		"tenant_stats":          stats,
		"server_time":           time.Now().Format(time.RFC3339),
	})
}
