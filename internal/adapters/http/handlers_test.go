package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sageteck/tuneup-relay/internal/app"
	"github.com/sageteck/tuneup-relay/internal/config"
	"github.com/sageteck/tuneup-relay/internal/core"
	"github.com/sageteck/tuneup-relay/internal/domain"
)

const testAPIKey = "test-secret"

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (f *fakeConn) TrySend(frame core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeConn) lastEvent(t *testing.T) (string, map[string]any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.frames)
	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(f.frames[len(f.frames)-1], &env))
	return env.Event, env.Data
}

func newTestServer(t *testing.T) (*gin.Engine, *app.Dispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:   "release",
		APIKey: testAPIKey,
	}
	disp := app.NewDispatcher(app.NewRegistry())
	r := SetupRouter(context.Background(), cfg, disp, nil)
	return r, disp
}

func doJSON(r *gin.Engine, method, path, body, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(HeaderAPIKey, apiKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAPIKeyRejectedWithoutSideEffects(t *testing.T) {
	r, disp := newTestServer(t)

	conn := &fakeConn{}
	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, conn))

	body := `{"message_id":1,"conversation_id":5,"tenant_id":1,"user_id":10,"is_student":true,"content":"hi"}`

	w := doJSON(r, http.MethodPost, "/send-message", body, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPost, "/send-message", body, "wrong-key")
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Zero(t, conn.count())
}

func TestSendMessageFansOutToConversation(t *testing.T) {
	r, disp := newTestServer(t)

	conn := &fakeConn{}
	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, conn))
	require.NoError(t, disp.Registry.JoinRoom("A", domain.ConversationRoom(1, 5)))

	body := `{"message_id":42,"conversation_id":5,"tenant_id":1,"user_id":11,"is_student":false,"content":"hello","type":"text"}`
	w := doJSON(r, http.MethodPost, "/send-message", body, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.EqualValues(t, 42, resp["message_id"])

	require.Equal(t, 1, conn.count())
	event, data := conn.lastEvent(t)
	assert.Equal(t, app.EventNewMessage, event)
	assert.Equal(t, "hello", data["content"])
	assert.EqualValues(t, 1, data["tenant_id"])
}

func TestSendMessageWrongTenantNotDelivered(t *testing.T) {
	r, disp := newTestServer(t)

	conn := &fakeConn{}
	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, conn))
	require.NoError(t, disp.Registry.JoinRoom("A", domain.ConversationRoom(1, 5)))

	body := `{"message_id":42,"conversation_id":5,"tenant_id":2,"user_id":11,"is_student":false,"content":"hello"}`
	w := doJSON(r, http.MethodPost, "/send-message", body, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, conn.count())
}

func TestSendMessageRejectsBadType(t *testing.T) {
	r, _ := newTestServer(t)

	body := `{"message_id":1,"conversation_id":5,"tenant_id":1,"user_id":10,"is_student":true,"content":"x","type":"carrier-pigeon"}`
	w := doJSON(r, http.MethodPost, "/send-message", body, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTypingStatusDefaultsToTyping(t *testing.T) {
	r, disp := newTestServer(t)

	conn := &fakeConn{}
	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, conn))
	require.NoError(t, disp.Registry.JoinRoom("A", domain.ConversationRoom(1, 5)))

	body := `{"conversation_id":5,"tenant_id":1,"user_id":11,"is_student":true}`
	w := doJSON(r, http.MethodPost, "/typing-status", body, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)
	event, data := conn.lastEvent(t)
	assert.Equal(t, app.EventTypingStatus, event)
	assert.Equal(t, true, data["is_typing"])
}

func TestEmitTargetsTenantRoomByDefault(t *testing.T) {
	r, disp := newTestServer(t)

	inTenant := &fakeConn{}
	otherTenant := &fakeConn{}
	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, inTenant))
	require.NoError(t, disp.Registry.Register("B", 2, 20, domain.RoleStudent, otherTenant))

	body := `{"event":"plan_updated","data":{"plan":"pro"},"tenant_id":1}`
	w := doJSON(r, http.MethodPost, "/emit", body, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, inTenant.count())
	event, data := inTenant.lastEvent(t)
	assert.Equal(t, "plan_updated", event)
	assert.Equal(t, "pro", data["plan"])
	assert.Zero(t, otherTenant.count())
}

func TestEmitWithRoomOverride(t *testing.T) {
	r, disp := newTestServer(t)

	member := &fakeConn{}
	bystander := &fakeConn{}
	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, member))
	require.NoError(t, disp.Registry.Register("B", 1, 11, domain.RoleStudent, bystander))
	require.NoError(t, disp.Registry.JoinRoom("A", domain.ConversationRoom(1, 9)))

	body := `{"event":"custom","data":{"k":"v"},"tenant_id":1,"room":"tenant_1_conversation_9"}`
	w := doJSON(r, http.MethodPost, "/emit", body, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, member.count())
	assert.Zero(t, bystander.count())
}

func TestTestBroadcastReachesConversationAndTenant(t *testing.T) {
	r, disp := newTestServer(t)

	member := &fakeConn{}
	bystander := &fakeConn{}
	otherTenant := &fakeConn{}
	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, member))
	require.NoError(t, disp.Registry.Register("B", 1, 11, domain.RoleStudent, bystander))
	require.NoError(t, disp.Registry.Register("C", 2, 20, domain.RoleStudent, otherTenant))
	require.NoError(t, disp.Registry.JoinRoom("A", domain.ConversationRoom(1, 5)))

	body := `{"conversation_id":5,"tenant_id":1,"message":"ping the room"}`
	w := doJSON(r, http.MethodPost, "/test-broadcast", body, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)

	// Room member sees the fabricated message plus the tenant marker.
	require.Equal(t, 2, member.count())
	event, data := member.lastEvent(t)
	assert.Equal(t, "test_broadcast", event)
	assert.Equal(t, "ping the room", data["message"])

	// Tenant bystander only sees the marker; the other tenant nothing.
	require.Equal(t, 1, bystander.count())
	event, _ = bystander.lastEvent(t)
	assert.Equal(t, "test_broadcast", event)
	assert.Zero(t, otherTenant.count())
}

func TestTestBroadcastDefaults(t *testing.T) {
	r, disp := newTestServer(t)

	conn := &fakeConn{}
	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, conn))
	require.NoError(t, disp.Registry.JoinRoom("A", domain.ConversationRoom(1, 1)))

	w := doJSON(r, http.MethodPost, "/test-broadcast", `{}`, testAPIKey)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 2, conn.count())
}

func TestConnectedClients(t *testing.T) {
	r, disp := newTestServer(t)

	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, &fakeConn{}))
	require.NoError(t, disp.Registry.Register("B", 2, 20, domain.RoleInstructor, &fakeConn{}))

	w := doJSON(r, http.MethodGet, "/connected-clients", "", testAPIKey)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total   int                      `json:"total_connected_clients"`
		Clients []core.ConnectionSummary `json:"connected_clients"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Clients, 2)
}

func TestHealth(t *testing.T) {
	r, disp := newTestServer(t)
	require.NoError(t, disp.Registry.Register("A", 1, 10, domain.RoleStudent, &fakeConn{}))

	w := doJSON(r, http.MethodGet, "/", "", testAPIKey)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "online", resp["status"])
	assert.EqualValues(t, 1, resp["total_connected_users"])
}
