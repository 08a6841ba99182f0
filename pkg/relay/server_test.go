package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/relay-chat/pkg/chat"
)

type memStore struct {
	mu       sync.Mutex
	messages []chat.ArchivedMessage
}

func (s *memStore) Append(m chat.ArchivedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *memStore) List() ([]chat.ArchivedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.ArchivedMessage(nil), s.messages...), nil
}

func newTestRelay(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	hub := NewHub(nil)
	s := &Server{
		Store:           &memStore{},
		Hub:             hub,
		Signal:          NewSignal(),
		LongPollTimeout: 200 * time.Millisecond,
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, s
}

func dialSocket(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/socket", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSaveThenListMessages(t *testing.T) {
	srv, _ := newTestRelay(t)

	for _, m := range []chat.ArchivedMessage{{Message: "one", From: "ana"}, {Message: "two", From: "bob"}} {
		body, _ := json.Marshal(m)
		resp, err := http.Post(srv.URL+"/api/save", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var out struct {
		Messages []chat.ArchivedMessage `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []chat.ArchivedMessage{{Message: "one", From: "ana"}, {Message: "two", From: "bob"}}, out.Messages)
}

func TestSaveRejectsIncompleteMessages(t *testing.T) {
	srv, _ := newTestRelay(t)
	for _, body := range []string{`not json`, `{"message":"hi"}`, `{"message":"hi","from":"  "}`} {
		resp, err := http.Post(srv.URL+"/api/save", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestSaveAcceptsEmptyBody(t *testing.T) {
	srv, s := newTestRelay(t)
	resp, err := http.Post(srv.URL+"/api/save", "application/json", strings.NewReader(`{"message":"","from":"ana"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	stored, err := s.Store.List()
	require.NoError(t, err)
	assert.Equal(t, []chat.ArchivedMessage{{Message: "", From: "ana"}}, stored)
}

func TestEmptyBacklogIsAnEmptyList(t *testing.T) {
	srv, _ := newTestRelay(t)
	resp, err := http.Get(srv.URL + "/api/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.JSONEq(t, `[]`, string(out["messages"]))
}

func TestUserCountFollowsConnections(t *testing.T) {
	srv, s := newTestRelay(t)
	count := func() int {
		resp, err := http.Get(srv.URL + "/api/userCount")
		require.NoError(t, err)
		defer resp.Body.Close()
		var out struct {
			UserCount int `json:"userCount"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out.UserCount
	}
	assert.Equal(t, 0, count())

	a := dialSocket(t, srv)
	dialSocket(t, srv)
	require.Eventually(t, func() bool { return s.Hub.Count() == 2 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, 2, count())

	_ = a.Close()
	require.Eventually(t, func() bool { return count() == 1 }, 5*time.Second, 5*time.Millisecond)
}

func TestBroadcastSkipsSender(t *testing.T) {
	srv, s := newTestRelay(t)
	alice := dialSocket(t, srv)
	bob := dialSocket(t, srv)
	carol := dialSocket(t, srv)
	require.Eventually(t, func() bool { return s.Hub.Count() == 3 }, 5*time.Second, time.Millisecond)

	require.NoError(t, alice.WriteJSON(chat.NewEmitFrame("hi", "alice")))

	for _, conn := range []*websocket.Conn{bob, carol} {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f chat.Frame
		require.NoError(t, conn.ReadJSON(&f))
		m, err := f.Message()
		require.NoError(t, err)
		assert.Equal(t, chat.LiveMessage{Body: "hi", From: "alice"}, m)
	}

	_ = alice.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := alice.ReadMessage()
	assert.Error(t, err, "sender must not receive its own message")
}

func TestHubKeepsPeerAfterMalformedFrame(t *testing.T) {
	srv, s := newTestRelay(t)
	alice := dialSocket(t, srv)
	bob := dialSocket(t, srv)
	require.Eventually(t, func() bool { return s.Hub.Count() == 2 }, 5*time.Second, time.Millisecond)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"event":"message","args":[1,2]}`)))
	require.NoError(t, alice.WriteJSON(chat.NewEmitFrame("still here", "alice")))

	_ = bob.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f chat.Frame
	require.NoError(t, bob.ReadJSON(&f))
	m, err := f.Message()
	require.NoError(t, err)
	assert.Equal(t, chat.LiveMessage{Body: "still here", From: "alice"}, m)
	assert.Equal(t, 2, s.Hub.Count())
}

func TestNotificationLongPoll(t *testing.T) {
	srv, _ := newTestRelay(t)

	get := func() (int, string) {
		resp, err := http.Get(srv.URL + "/api/notification")
		require.NoError(t, err)
		defer resp.Body.Close()
		var out struct {
			Notification json.RawMessage `json:"notification"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp.StatusCode, string(out.Notification)
	}

	start := time.Now()
	code, value := get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "false", value)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "request is held until the timeout")

	type result struct {
		code  int
		value string
	}
	results := make(chan result, 1)
	go func() {
		c, v := get()
		results <- result{c, v}
	}()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/notification", "application/json", strings.NewReader(`{"notification":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	select {
	case r := <-results:
		assert.Equal(t, http.StatusOK, r.code)
		assert.Equal(t, "true", r.value)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestSignalWaitHonoursContext(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.Equal(t, "false", string(s.Wait(ctx, time.Minute)))
	assert.Less(t, time.Since(start), time.Second)
}
