package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showdown-server/internal/chat"
	"showdown-server/internal/config"
	"showdown-server/internal/room"
)

func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	registry, err := room.NewRegistry(gameFactory, "liars")
	require.NoError(t, err)

	s := &Server{
		cfg:         config.Config{DefaultGame: "liars"},
		registry:    registry,
		connections: NewConnectionManager(),
		sessions:    NewSessionManager(),
		interp:      chat.DefaultInterpreter(),
		connLimiter: NewRateLimiter(100, time.Second),
		chatLimiter: NewRateLimiter(100, 10*time.Second),
		feeds:       make(map[string]*chat.Feed),
	}

	server := httptest.NewServer(http.HandlerFunc(s.websocketHandler))
	t.Cleanup(func() {
		server.Close()
		registry.CloseAll()
	})
	return s, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dialWS(ctx context.Context, t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func writeFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(ClientMessage{Type: msgType, Payload: raw})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func errorCode(t *testing.T, msg ServerMessage) string {
	t.Helper()
	payload, ok := msg.Payload.(map[string]any)
	require.True(t, ok, "error payload is not an object: %+v", msg.Payload)
	code, _ := payload["code"].(string)
	return code
}

func TestWebSocketJoinRoom(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, url := setupTestServer(t)
	conn := dialWS(ctx, t, url)

	writeFrame(ctx, t, conn, "join_room", JoinRoomRequest{RoomKey: "lobby1", DisplayName: "Alice"})

	joined := readFrame(ctx, t, conn)
	assert.Equal("room_joined", joined.Type)
	payload := joined.Payload.(map[string]any)
	assert.Equal("lobby1", payload["room_key"])
	assert.Equal("alice", payload["identity"])
	assert.NotEmpty(payload["token"])

	snap := readFrame(ctx, t, conn)
	assert.Equal("snapshot", snap.Type)

	assert.Equal(1, s.sessions.Count())
}

func TestWebSocketRejectedJoinLeavesNoBinding(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, url := setupTestServer(t)
	conn := dialWS(ctx, t, url)

	// Eight 4-byte runes fit the display-name length check but overrun the
	// room's identity limit, so the room itself rejects the join.
	name := strings.Repeat("\U0001F349", 8)
	writeFrame(ctx, t, conn, "join_room", JoinRoomRequest{RoomKey: "lobby1", DisplayName: name})

	rejected := readFrame(ctx, t, conn)
	assert.Equal("error", rejected.Type)
	assert.Equal("INVALID_NAME", errorCode(t, rejected))

	// A rejected join leaves the connection unbound: the next action must be
	// refused for not being in a room, not fail on a dangling token.
	writeFrame(ctx, t, conn, "action", ActionRequest{Type: "start"})
	refused := readFrame(ctx, t, conn)
	assert.Equal("error", refused.Type)
	assert.Equal("NOT_IN_ROOM", errorCode(t, refused))

	assert.Equal(0, s.sessions.Count())
}
