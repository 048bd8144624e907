package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"
	"ringlink/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCallService struct {
	mu         sync.Mutex
	registered map[domain.UserID]bool
}

func newStubCallService() *stubCallService {
	return &stubCallService{registered: make(map[domain.UserID]bool)}
}

func (s *stubCallService) RegisterPeer(userID domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered[userID] = true
}

func (s *stubCallService) UnregisterPeer(userID domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registered, userID)
}

func (s *stubCallService) isRegistered(userID domain.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered[userID]
}

func (s *stubCallService) StartCall(context.Context, domain.UserID, domain.ConversationID, domain.CallType) (*domain.CallState, error) {
	return nil, nil
}
func (s *stubCallService) Answer(context.Context, domain.UserID) (*domain.CallState, error) {
	return nil, nil
}
func (s *stubCallService) Decline(context.Context, domain.UserID) error { return nil }
func (s *stubCallService) Hangup(context.Context, domain.UserID) error  { return nil }
func (s *stubCallService) ToggleMute(context.Context, domain.UserID) (bool, error) {
	return false, nil
}
func (s *stubCallService) ToggleVideo(context.Context, domain.UserID) (bool, error) {
	return false, nil
}
func (s *stubCallService) ToggleScreenShare(context.Context, domain.UserID) (bool, error) {
	return false, nil
}
func (s *stubCallService) StartRecording(context.Context, domain.UserID) error { return nil }
func (s *stubCallService) StopRecording(context.Context, domain.UserID) error  { return nil }
func (s *stubCallService) CurrentCall(domain.UserID) (*domain.CallState, bool) {
	return nil, false
}

func dialGateway(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestGatewayRegistersAndPushesEvents(t *testing.T) {
	calls := newStubCallService()
	gw := NewGateway(nil, calls, 50*time.Millisecond, time.Second, logger.Nop().Sugar())

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWebSocket))
	defer server.Close()

	conn := dialGateway(t, server, "alice")
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return calls.isRegistered("alice") && gw.IsConnected("alice")
	}, 2*time.Second, 10*time.Millisecond)

	gw.PushEvent("alice", ports.CallEvent{
		Kind:  "incoming_call",
		State: &domain.CallState{CallID: "call-1", Type: domain.CallTypeVoice},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type  string          `json:"type"`
		Event ports.CallEvent `json:"event"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "call_event", msg.Type)
	assert.Equal(t, "incoming_call", msg.Event.Kind)
	require.NotNil(t, msg.Event.State)
	assert.Equal(t, domain.CallID("call-1"), msg.Event.State.CallID)
}

func TestGatewayUnregistersOnDisconnect(t *testing.T) {
	calls := newStubCallService()
	gw := NewGateway(nil, calls, 50*time.Millisecond, time.Second, logger.Nop().Sugar())

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWebSocket))
	defer server.Close()

	conn := dialGateway(t, server, "bob")
	assert.Eventually(t, func() bool {
		return calls.isRegistered("bob")
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool {
		return !calls.isRegistered("bob") && !gw.IsConnected("bob")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayRejectsMissingIdentity(t *testing.T) {
	gw := NewGateway(nil, newStubCallService(), 50*time.Millisecond, time.Second, logger.Nop().Sugar())

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGatewaySoundCues(t *testing.T) {
	calls := newStubCallService()
	gw := NewGateway(nil, calls, time.Second, 2*time.Second, logger.Nop().Sugar())

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWebSocket))
	defer server.Close()

	conn := dialGateway(t, server, "carol")
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return gw.IsConnected("carol")
	}, 2*time.Second, 10*time.Millisecond)

	gw.Play("carol", "ringtone")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string `json:"type"`
		Cue  string `json:"cue"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "sound_play", msg.Type)
	assert.Equal(t, "ringtone", msg.Cue)
}
