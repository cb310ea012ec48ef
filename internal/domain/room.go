package domain

import "fmt"

// RoomName is a broadcast scope key. Rooms are not stored objects; names
// are derived from the tenant (and conversation) they cover, so the tenant
// is always encoded in the name and two tenants can never share a room.
type RoomName string

// TenantRoom returns the tenant-wide room every connection of the tenant
// belongs to for its whole lifetime.
func TenantRoom(tenant TenantID) RoomName {
	return RoomName(fmt.Sprintf("tenant_%d", tenant))
}

// ConversationRoom returns the room for one conversation inside a tenant.
// The "_conversation_" segment keeps the namespace disjoint from tenant
// rooms, so no conversation id can alias a tenant-wide room.
func ConversationRoom(tenant TenantID, conversation ConversationID) RoomName {
	return RoomName(fmt.Sprintf("tenant_%d_conversation_%d", tenant, conversation))
}
