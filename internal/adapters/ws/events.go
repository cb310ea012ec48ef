package ws

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sageteck/tuneup-relay/internal/app"
	"github.com/sageteck/tuneup-relay/internal/core"
	"github.com/sageteck/tuneup-relay/internal/domain"
)

func (ctl *Controller) handleJoin(sid core.ConnectionID, c *chatConn, data json.RawMessage) {
	var p struct {
		ConversationID domain.ConversationID `json:"conversation_id"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			ctl.sendErrorCode(c, "bad_payload")
			return
		}
	}

	room, err := ctl.Dispatcher.JoinConversation(sid, p.ConversationID)
	if err != nil {
		ctl.sendError(c, err)
		return
	}

	log.Info().Str("module", "ws").Str("sid", string(sid)).
		Int64("conversation_id", int64(p.ConversationID)).Str("room", string(room)).Msg("join")
	ctl.sendJSON(c, core.Envelope{Event: "room_joined", Data: map[string]any{
		"success":         true,
		"conversation_id": p.ConversationID,
		"room":            room,
	}})
}

func (ctl *Controller) handleLeave(sid core.ConnectionID, c *chatConn, data json.RawMessage) {
	var p struct {
		ConversationID domain.ConversationID `json:"conversation_id"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			ctl.sendErrorCode(c, "bad_payload")
			return
		}
	}

	if _, err := ctl.Dispatcher.LeaveConversation(sid, p.ConversationID); err != nil {
		ctl.sendError(c, err)
		return
	}

	log.Info().Str("module", "ws").Str("sid", string(sid)).
		Int64("conversation_id", int64(p.ConversationID)).Msg("leave")
	ctl.sendJSON(c, core.Envelope{Event: "room_left", Data: map[string]any{
		"success":         true,
		"conversation_id": p.ConversationID,
	}})
}

// handleRelay covers typing_status and messages_read: the payload is
// forwarded as-is to the other room members, the sender gets no echo and
// no ack beyond an error event on failure.
func (ctl *Controller) handleRelay(
	sid core.ConnectionID,
	c *chatConn,
	data json.RawMessage,
	relay func(core.ConnectionID, domain.ConversationID, map[string]any) (int, error),
) {
	payload := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			ctl.sendErrorCode(c, "bad_payload")
			return
		}
	}

	if _, err := relay(sid, conversationID(payload), payload); err != nil {
		ctl.sendError(c, err)
	}
}

// handleTestMessage fabricates a message and pushes it into the named
// conversation room, sender included. Diagnostic aid for client work;
// nothing is persisted.
func (ctl *Controller) handleTestMessage(sid core.ConnectionID, c *chatConn, data json.RawMessage) {
	payload := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			ctl.sendErrorCode(c, "bad_payload")
			return
		}
	}

	conv := conversationID(payload)
	if err := ctl.Dispatcher.Guard.AuthorizeRoomAction(conv); err != nil {
		ctl.sendError(c, err)
		return
	}
	tenant, ok := ctl.Dispatcher.Registry.TenantOf(sid)
	if !ok {
		ctl.sendError(c, core.ErrUnknownConnection)
		return
	}

	content, _ := payload["content"].(string)
	if content == "" {
		content = "Test message"
	}
	msgType, _ := payload["type"].(string)
	if msgType == "" {
		msgType = "text"
	}
	sender := map[string]any{"id": 0, "is_student": true}
	if v, ok := payload["user_id"]; ok {
		sender["id"] = v
	}
	if v, ok := payload["is_student"]; ok {
		sender["is_student"] = v
	}

	message := map[string]any{
		"id":              999,
		"content":         content,
		"type":            msgType,
		"attachment_url":  payload["attachment_url"],
		"sent_at":         time.Now().Format(time.RFC3339),
		"sender":          sender,
		"conversation_id": conv,
		"tenant_id":       tenant,
	}

	room := domain.ConversationRoom(tenant, conv)
	delivered := ctl.Dispatcher.BroadcastRoom(room, app.EventNewMessage, message)
	log.Info().Str("module", "ws").Str("sid", string(sid)).
		Str("room", string(room)).Int("delivered", delivered).Msg("test message")
	ctl.sendJSON(c, core.Envelope{Event: "test_message_sent", Data: map[string]any{
		"success": true,
		"message": message,
	}})
}

// conversationID pulls conversation_id out of a loosely-typed payload.
// encoding/json decodes numbers into float64.
func conversationID(payload map[string]any) domain.ConversationID {
	switch v := payload["conversation_id"].(type) {
	case float64:
		return domain.ConversationID(v)
	default:
		return 0
	}
}

func (ctl *Controller) sendJSON(c *chatConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *chatConn, err error) {
	ctl.sendErrorCode(c, core.ErrorCode(err))
}

func (ctl *Controller) sendErrorCode(c *chatConn, code string) {
	ctl.sendJSON(c, core.Envelope{Event: "error", Data: map[string]any{"error": code}})
}
