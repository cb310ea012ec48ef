package core

import "errors"

var (
	// ErrAdmissionRejected means the connect claims were missing or invalid.
	ErrAdmissionRejected = errors.New("admission rejected")

	// ErrDuplicateConnection means a connection id was registered twice.
	// The transport assigns fresh ids, so this is a defensive fault.
	ErrDuplicateConnection = errors.New("duplicate connection")

	// ErrUnknownConnection means the referenced connection is not registered.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrMissingConversation means a room-targeted event named no conversation.
	ErrMissingConversation = errors.New("missing conversation_id")

	// ErrForbiddenLeave means an attempt to leave the tenant-wide room.
	ErrForbiddenLeave = errors.New("cannot leave tenant room")
)

// ErrorCode maps the relay error taxonomy onto stable wire strings.
// Unrecognized errors collapse to "internal_error" so transport callers
// never see raw error text.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAdmissionRejected):
		return "admission_rejected"
	case errors.Is(err, ErrDuplicateConnection):
		return "duplicate_connection"
	case errors.Is(err, ErrUnknownConnection):
		return "unknown_connection"
	case errors.Is(err, ErrMissingConversation):
		return "missing_conversation_id"
	case errors.Is(err, ErrForbiddenLeave):
		return "forbidden_leave"
	default:
		return "internal_error"
	}
}
