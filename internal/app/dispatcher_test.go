package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sageteck/tuneup-relay/internal/core"
	"github.com/sageteck/tuneup-relay/internal/domain"
)

func connect(t *testing.T, d *Dispatcher, id core.ConnectionID, tenant domain.TenantID, user domain.UserID) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	claims := AuthClaims{TenantID: tenant, UserID: user, Role: domain.RoleStudent}
	require.NoError(t, d.Connect(id, claims, conn))
	return conn
}

func TestConnectRejectedLeavesNoTrace(t *testing.T) {
	d := NewDispatcher(NewRegistry())

	err := d.Connect("A", AuthClaims{TenantID: 0, UserID: 10}, &fakeConn{})
	assert.ErrorIs(t, err, core.ErrAdmissionRejected)
	assert.Empty(t, d.Snapshot())

	err = d.Connect("B", AuthClaims{TenantID: 1, UserID: 0}, &fakeConn{})
	assert.ErrorIs(t, err, core.ErrAdmissionRejected)
	assert.Empty(t, d.Snapshot())
}

func TestJoinConversationReturnsRoomName(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	connect(t, d, "A", 1, 10)

	room, err := d.JoinConversation("A", 5)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("tenant_1_conversation_5"), room)
}

func TestJoinConversationMissingID(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	connect(t, d, "A", 1, 10)

	_, err := d.JoinConversation("A", 0)
	assert.ErrorIs(t, err, core.ErrMissingConversation)
}

func TestIngestDeliversOnlyToMatchingTenant(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	connA := connect(t, d, "A", 1, 10)
	_, err := d.JoinConversation("A", 5)
	require.NoError(t, err)

	n, err := d.IngestPersistedEvent(1, 5, EventNewMessage, map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, connA.count())

	// Same conversation id under another tenant resolves to another room.
	n, err = d.IngestPersistedEvent(2, 5, EventNewMessage, map[string]any{"id": 2})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, connA.count())
}

func TestRelayTypingStatusExcludesSender(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	connA := connect(t, d, "A", 1, 10)
	connB := connect(t, d, "B", 1, 11)
	_, err := d.JoinConversation("A", 7)
	require.NoError(t, err)
	_, err = d.JoinConversation("B", 7)
	require.NoError(t, err)

	n, err := d.RelayTypingStatus("A", 7, map[string]any{"is_typing": true, "conversation_id": 7})
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Zero(t, connA.count())
	require.Equal(t, 1, connB.count())

	event, data := connB.lastEvent(t)
	assert.Equal(t, EventTypingStatus, event)
	assert.Equal(t, true, data["is_typing"])
	// The sender's tenant is stamped onto the relayed payload.
	assert.EqualValues(t, 1, data["tenant_id"])
}

func TestRelayFromUnknownConnection(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	_, err := d.RelayMessagesRead("ghost", 7, nil)
	assert.ErrorIs(t, err, core.ErrUnknownConnection)
}

func TestLeaveConversationForbiddenForTenantRoom(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	connect(t, d, "A", 1, 10)

	// Conversation rooms never alias the tenant room, so the forbidden
	// path only triggers through the registry check.
	err := d.Registry.LeaveRoom("A", domain.TenantRoom(1))
	assert.ErrorIs(t, err, core.ErrForbiddenLeave)
}

func TestDisconnectThenJoinFails(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	connect(t, d, "A", 1, 10)
	_, err := d.JoinConversation("A", 5)
	require.NoError(t, err)

	d.Disconnect("A")
	d.Disconnect("A") // idempotent

	assert.Empty(t, d.Snapshot())
	assert.Empty(t, d.Registry.MembersOf(domain.ConversationRoom(1, 5)))

	_, err = d.JoinConversation("A", 5)
	assert.ErrorIs(t, err, core.ErrUnknownConnection)
}

func TestBroadcastTenantReachesWholeTenantOnly(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	connA := connect(t, d, "A", 1, 10)
	connB := connect(t, d, "B", 1, 11)
	connC := connect(t, d, "C", 2, 12)

	n := d.BroadcastTenant(1, "announcement", map[string]any{"text": "hi"})

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, connA.count())
	assert.Equal(t, 1, connB.count())
	assert.Zero(t, connC.count())
}

// TestConcurrentLifecycleChurn drives many full connection lifecycles
// against a constant broadcast load. Meant for -race runs; afterwards
// the membership index must be back to empty on both directions.
func TestConcurrentLifecycleChurn(t *testing.T) {
	d := NewDispatcher(NewRegistry())

	const (
		workers    = 16
		lifecycles = 50
	)

	stop := make(chan struct{})
	var broadcasters sync.WaitGroup
	for i := 0; i < 4; i++ {
		broadcasters.Add(1)
		go func() {
			defer broadcasters.Done()
			for {
				select {
				case <-stop:
					return
				default:
					d.BroadcastTenant(1, "announcement", map[string]any{"text": "hi"})
					d.BroadcastRoom(domain.ConversationRoom(1, 7), EventNewMessage, map[string]any{"id": 1})
				}
			}
		}()
	}

	var churn sync.WaitGroup
	errs := make(chan error, workers*lifecycles*3)
	for w := 0; w < workers; w++ {
		churn.Add(1)
		go func(w int) {
			defer churn.Done()
			for i := 0; i < lifecycles; i++ {
				id := core.ConnectionID(fmt.Sprintf("conn-%d-%d", w, i))
				claims := AuthClaims{
					TenantID: 1,
					UserID:   domain.UserID(w*lifecycles + i + 1),
					Role:     domain.RoleStudent,
				}
				if err := d.Connect(id, claims, &fakeConn{}); err != nil {
					errs <- err
					continue
				}
				if _, err := d.JoinConversation(id, 7); err != nil {
					errs <- err
				}
				if _, err := d.RelayTypingStatus(id, 7, map[string]any{"is_typing": true}); err != nil {
					errs <- err
				}
				d.Disconnect(id)
			}
		}(w)
	}

	churn.Wait()
	close(stop)
	broadcasters.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("lifecycle error: %v", err)
	}

	assert.Zero(t, d.Registry.Count())
	assert.Empty(t, d.Snapshot())
	assert.Empty(t, d.Registry.MembersOf(domain.TenantRoom(1)))
	assert.Empty(t, d.Registry.MembersOf(domain.ConversationRoom(1, 7)))
}
