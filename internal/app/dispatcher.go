package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sageteck/tuneup-relay/internal/core"
	"github.com/sageteck/tuneup-relay/internal/domain"
)

// Server-to-client event names shared by the live and REST paths.
const (
	EventNewMessage   = "new_message"
	EventTypingStatus = "typing_status"
	EventMessagesRead = "messages_read"
)

// AuthClaims are the out-of-band identity claims a transport handshake
// carries into Connect.
type AuthClaims struct {
	TenantID domain.TenantID
	UserID   domain.UserID
	Role     domain.Role
}

// Dispatcher drives the connection state machine and routes every inbound
// event, whether it came from a live connection or the REST boundary.
// All rejections come back as errors from the taxonomy in core; nothing
// here panics or retries.
type Dispatcher struct {
	Registry *Registry
	Router   *Router
	Guard    Guard
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{
		Registry: reg,
		Router:   NewRouter(reg),
	}
}

// Connect admits a new connection and places it in its tenant-wide room.
// On error the caller must refuse the transport session; no record exists.
func (d *Dispatcher) Connect(id core.ConnectionID, claims AuthClaims, conn core.ClientConnection) error {
	if err := d.Guard.AuthorizeConnect(claims.TenantID, claims.UserID); err != nil {
		log.Warn().Err(err).Str("module", "app.dispatcher").Str("sid", string(id)).Msg("connect rejected")
		return err
	}
	if err := d.Registry.Register(id, claims.TenantID, claims.UserID, claims.Role, conn); err != nil {
		return err
	}
	return nil
}

// JoinConversation resolves the conversation room inside the connection's
// own tenant and joins it. The resolved room name is returned for the
// client's confirmation.
func (d *Dispatcher) JoinConversation(id core.ConnectionID, conversation domain.ConversationID) (domain.RoomName, error) {
	if err := d.Guard.AuthorizeRoomAction(conversation); err != nil {
		return "", err
	}
	tenant, ok := d.Registry.TenantOf(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrUnknownConnection, id)
	}
	room := domain.ConversationRoom(tenant, conversation)
	if err := d.Registry.JoinRoom(id, room); err != nil {
		return "", err
	}
	return room, nil
}

// LeaveConversation resolves the conversation room and leaves it. Attempts
// to leave the tenant-wide room surface ErrForbiddenLeave.
func (d *Dispatcher) LeaveConversation(id core.ConnectionID, conversation domain.ConversationID) (domain.RoomName, error) {
	if err := d.Guard.AuthorizeRoomAction(conversation); err != nil {
		return "", err
	}
	tenant, ok := d.Registry.TenantOf(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrUnknownConnection, id)
	}
	room := domain.ConversationRoom(tenant, conversation)
	if err := d.Registry.LeaveRoom(id, room); err != nil {
		return "", err
	}
	return room, nil
}

// RelayTypingStatus relays a peer-originated typing update to the other
// members of the conversation. No persistence; the sender gets no echo.
func (d *Dispatcher) RelayTypingStatus(id core.ConnectionID, conversation domain.ConversationID, payload map[string]any) (int, error) {
	return d.relayPeerEvent(id, conversation, EventTypingStatus, payload)
}

// RelayMessagesRead relays a peer-originated read receipt the same way.
func (d *Dispatcher) RelayMessagesRead(id core.ConnectionID, conversation domain.ConversationID, payload map[string]any) (int, error) {
	return d.relayPeerEvent(id, conversation, EventMessagesRead, payload)
}

func (d *Dispatcher) relayPeerEvent(id core.ConnectionID, conversation domain.ConversationID, event string, payload map[string]any) (int, error) {
	if err := d.Guard.AuthorizeRoomAction(conversation); err != nil {
		return 0, err
	}
	tenant, ok := d.Registry.TenantOf(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrUnknownConnection, id)
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	if _, ok := payload["tenant_id"]; !ok {
		payload["tenant_id"] = int64(tenant)
	}
	room := domain.ConversationRoom(tenant, conversation)
	return d.Router.Broadcast(room, event, payload, id), nil
}

// IngestPersistedEvent is the REST boundary's entry point: the backend has
// already persisted the event and only asks for fan-out. No connection
// state is involved and nobody is excluded.
func (d *Dispatcher) IngestPersistedEvent(tenant domain.TenantID, conversation domain.ConversationID, event string, payload any) (int, error) {
	if !conversation.Valid() {
		return 0, core.ErrMissingConversation
	}
	room := domain.ConversationRoom(tenant, conversation)
	n := d.Router.Broadcast(room, event, payload, NoExclude)
	log.Info().Str("module", "app.dispatcher").Str("event", event).
		Int64("tenant_id", int64(tenant)).Int64("conversation_id", int64(conversation)).
		Int("delivered", n).Msg("ingested persisted event")
	return n, nil
}

// BroadcastTenant pushes a generic event to every connection of a tenant.
func (d *Dispatcher) BroadcastTenant(tenant domain.TenantID, event string, payload any) int {
	return d.Router.Broadcast(domain.TenantRoom(tenant), event, payload, NoExclude)
}

// BroadcastRoom pushes a generic event to an explicitly named room. Only
// the trusted REST boundary may use this; live connections never supply
// room names.
func (d *Dispatcher) BroadcastRoom(room domain.RoomName, event string, payload any) int {
	return d.Router.Broadcast(room, event, payload, NoExclude)
}

// Disconnect tears the connection down. Idempotent; a second disconnect
// for the same id is a no-op.
func (d *Dispatcher) Disconnect(id core.ConnectionID) {
	d.Registry.Unregister(id)
}

// Snapshot exposes the registry's introspection view.
func (d *Dispatcher) Snapshot() []core.ConnectionSummary {
	return d.Registry.Snapshot()
}
