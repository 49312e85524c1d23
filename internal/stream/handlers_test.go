package stream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

type fakeWatchers map[string]string

func (f fakeWatchers) CanWatch(_ context.Context, userID, sessionID string) (bool, error) {
	if sessionID == "broken" {
		return false, errors.New("lookup failed")
	}
	return f[sessionID] == userID, nil
}

var owners = fakeWatchers{
	"session-1": "ada",
	"session-2": "ada",
	"session-3": "ada",
	"session-4": "ada",
	"session-9": "bob",
}

// fakeAuth accepts "Bearer token-<user>" and stores the user like the JWT
// middleware does.
func fakeAuth(c *fiber.Ctx) error {
	scheme, token, _ := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	user, ok := strings.CutPrefix(token, "token-")
	if scheme != "Bearer" || !ok || user == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	c.Locals("user_id", user)
	return c.Next()
}

func startApp(t *testing.T, hub *Hub) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, fakeAuth, owners)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = ln.Close()
	})
	return "ws://" + ln.Addr().String() + "/stream/ws/"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?access_token=token-ada", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	return conn
}

func waitSubscribers(t *testing.T, hub *Hub, sessionID string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Subscribers(sessionID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers on %s, have %d", n, sessionID, hub.Subscribers(sessionID))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamRequiresUpgrade(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil), fakeAuth, owners)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream/ws/session-1", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

func TestStreamDeliversSamplesToEverySubscriber(t *testing.T) {
	hub := NewHub(nil)
	base := startApp(t, hub)

	first := dial(t, base+"session-1")
	defer first.Close()
	second := dial(t, base+"session-1")
	defer second.Close()
	other := dial(t, base+"session-2")
	defer other.Close()
	waitSubscribers(t, hub, "session-1", 2)

	sample := []byte(`{"accepted":true,"total_distance_km":1.2}`)
	hub.Broadcast("session-1", sample)

	for _, conn := range []*websocket.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read error: %v", err)
		}
		if string(msg) != string(sample) {
			t.Fatalf("unexpected message %s", msg)
		}
	}

	_ = other.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, msg, err := other.ReadMessage(); err == nil {
		t.Fatalf("session-2 must not receive session-1 samples, got %s", msg)
	}
}

func TestStreamUnregistersOnClose(t *testing.T) {
	hub := NewHub(nil)
	base := startApp(t, hub)

	conn := dial(t, base+"session-3")
	waitSubscribers(t, hub, "session-3", 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()
	waitSubscribers(t, hub, "session-3", 0)

	hub.Broadcast("session-3", []byte(`{}`))
}

func TestStreamIgnoresClientMessages(t *testing.T) {
	hub := NewHub(nil)
	base := startApp(t, hub)

	conn := dial(t, base+"session-4")
	defer conn.Close()
	waitSubscribers(t, hub, "session-4", 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("client")); err != nil {
		t.Fatalf("write error: %v", err)
	}
	hub.Broadcast("session-4", []byte(`{"n":1}`))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, msg, err := conn.ReadMessage(); err != nil || string(msg) != `{"n":1}` {
		t.Fatalf("unexpected read %s %v", msg, err)
	}
}

func TestStreamRejectsUnauthorizedSubscribers(t *testing.T) {
	hub := NewHub(nil)
	base := startApp(t, hub)

	cases := []struct {
		name   string
		url    string
		header http.Header
		want   int
	}{
		{"no token", base + "session-1", nil, http.StatusUnauthorized},
		{"bad token", base + "session-1?access_token=nope", nil, http.StatusUnauthorized},
		{"foreign session", base + "session-9?access_token=token-ada", nil, http.StatusNotFound},
		{"unknown session", base + "session-404?access_token=token-ada", nil, http.StatusNotFound},
		{"lookup error", base + "broken?access_token=token-ada", nil, http.StatusInternalServerError},
		{"header wins over query", base + "session-1?access_token=token-ada", http.Header{"Authorization": {"Bearer token-bob"}}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(tc.url, tc.header)
			if err == nil {
				conn.Close()
				t.Fatalf("expected handshake to fail")
			}
			if resp == nil || resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %+v", tc.want, resp)
			}
		})
	}
	if n := hub.Subscribers("session-1") + hub.Subscribers("session-9"); n != 0 {
		t.Fatalf("rejected handshakes must not subscribe, have %d", n)
	}
}

func TestStreamAcceptsAuthorizationHeader(t *testing.T) {
	hub := NewHub(nil)
	base := startApp(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"session-9", http.Header{"Authorization": {"Bearer token-bob"}})
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	waitSubscribers(t, hub, "session-9", 1)
}
