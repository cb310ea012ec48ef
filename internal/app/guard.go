package app

import (
	"fmt"

	"github.com/sageteck/tuneup-relay/internal/core"
	"github.com/sageteck/tuneup-relay/internal/domain"
)

// Guard validates tenant-scoped admission and room actions. It never takes
// a tenant id from client input on room actions: the tenant component of a
// room name always comes from the registered connection, which makes
// cross-tenant room access unrepresentable rather than merely checked.
type Guard struct{}

// AuthorizeConnect is the single admission check at connect time.
// Credential validity is the backend's concern; here only the claims'
// shape is enforced.
func (Guard) AuthorizeConnect(tenant domain.TenantID, user domain.UserID) error {
	if !tenant.Valid() {
		return fmt.Errorf("%w: invalid tenant_id %d", core.ErrAdmissionRejected, tenant)
	}
	if user == 0 {
		return fmt.Errorf("%w: missing user id", core.ErrAdmissionRejected)
	}
	return nil
}

// AuthorizeRoomAction admits any room action that names a conversation.
func (Guard) AuthorizeRoomAction(conversation domain.ConversationID) error {
	if !conversation.Valid() {
		return core.ErrMissingConversation
	}
	return nil
}
