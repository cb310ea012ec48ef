// Package core defines the transport-facing contracts of the relay.
package core

import "github.com/sageteck/tuneup-relay/internal/domain"

// Frame is a serialized event ready for the wire.
type Frame []byte

// ConnectionID identifies one live transport session. Assigned at connect
// time, never reused.
type ConnectionID string

// ClientConnection is a transport endpoint the relay can push frames to.
// Owned by the adapter; the adapter must Close() it. TrySend must never
// block: a slow client is the adapter's problem, not the router's.
type ClientConnection interface {
	TrySend(Frame) error
	Close()
}

// Envelope is the JSON shape of every server-to-client event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ConnectionSummary is a read-only view for introspection APIs
// (no transport fields).
type ConnectionSummary struct {
	ID       ConnectionID      `json:"sid"`
	TenantID domain.TenantID   `json:"tenant_id"`
	UserID   domain.UserID     `json:"user_id"`
	Role     domain.Role       `json:"user_type"`
	Rooms    []domain.RoomName `json:"rooms"`
}
