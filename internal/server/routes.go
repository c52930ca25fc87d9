package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"showdown-server/internal/chat"
	"showdown-server/internal/room"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ws", s.websocketHandler)
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/history", s.historyHandler)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"service": "showdown-server"}
	jsonResp, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(jsonResp); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":      "up",
		"rooms":       s.registry.Len(),
		"connections": s.connections.Count(),
		"sessions":    s.sessions.Count(),
		"history":     s.history != nil,
	}
	resp, err := json.Marshal(health)
	if err != nil {
		http.Error(w, "Failed to marshal health check response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// historyHandler lists recently archived matches for a room.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "match history is not enabled", http.StatusNotFound)
		return
	}
	key := NormalizeRoomKey(r.URL.Query().Get("room"))
	if !ValidateRoomKey(key) {
		http.Error(w, "invalid room key", http.StatusBadRequest)
		return
	}

	matches, err := s.history.RecentMatches(r.Context(), key, 20)
	if err != nil {
		log.Printf("Failed to load history for room %s: %v", key, err)
		http.Error(w, "failed to load match history", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(matches); err != nil {
		log.Printf("Failed to write history response: %v", err)
	}
}

// client wraps one device websocket. All frame writes go through send so the
// snapshot writer goroutine and the read-loop handlers never interleave.
type client struct {
	id      string
	socket  *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.socket.Write(ctx, websocket.MessageText, data)
}

func (c *client) sendError(ctx context.Context, err error) {
	msg := err.Error()
	code := ""
	if i := strings.Index(msg, ": "); i > 0 && msg[:i] == strings.ToUpper(msg[:i]) {
		code = msg[:i]
	}
	response := ServerMessage{
		Type:    "error",
		Payload: ErrorMessage{Message: msg, Code: code},
	}
	if sendErr := c.send(ctx, response); sendErr != nil {
		log.Printf("Failed to send error to %s: %v", c.id, sendErr)
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	c := &client{id: uuid.New().String(), socket: socket}
	log.Printf("New connection: %s", c.id)
	s.connections.Add(c.id, socket)
	defer s.teardownConnection(c.id)

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Printf("Connection %s read error: %v", c.id, err)
			return
		}
		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", c.id)
			continue
		}

		if !s.connLimiter.Allow(c.id) {
			c.sendError(ctx, fmt.Errorf("RATE_LIMITED: Too many messages, slow down"))
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Invalid JSON from %s: %v", c.id, err)
			c.sendError(ctx, fmt.Errorf("INVALID_JSON: Could not parse message"))
			continue
		}

		if err := ValidateMessageType(msg.Type); err != nil {
			c.sendError(ctx, err)
			continue
		}

		switch msg.Type {
		case "ping":
			s.handlePing(ctx, c)
		case "join_room":
			s.handleJoinRoom(ctx, c, msg.Payload)
		case "reconnect":
			s.handleReconnect(ctx, c, msg.Payload)
		case "action":
			s.handleAction(ctx, c, msg.Payload)
		case "leave_room":
			s.handleLeaveRoom(ctx, c)
		}
	}
}

// teardownConnection runs when a device socket closes for any reason. The
// session survives so the same token (or display name) can reconnect; only
// the connection binding is released.
func (s *Server) teardownConnection(connID string) {
	token, hadToken := s.connections.TokenByConn(connID)
	s.connections.Remove(connID)
	s.connLimiter.RemoveKey(connID)
	log.Printf("Connection closed: %s", connID)

	if !hadToken {
		return
	}
	info, ok := s.sessions.Get(token)
	if !ok {
		return
	}
	rm, ok := s.registry.Get(info.RoomKey)
	if !ok {
		return
	}
	rm.Unsubscribe(connID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := rm.Submit(ctx, room.Disconnect{
		ActorRef: room.ActorRef{ID: info.Identity},
		ConnRef:  connID,
	})
	if err != nil {
		log.Printf("Failed to mark %s disconnected in room %s: %v", info.Identity, info.RoomKey, err)
	}
}

func (s *Server) handlePing(ctx context.Context, c *client) {
	if err := c.send(ctx, ServerMessage{Type: "pong", Payload: struct{}{}}); err != nil {
		log.Printf("Failed to send pong to %s: %v", c.id, err)
	}
}

func (s *Server) handleJoinRoom(ctx context.Context, c *client, payload json.RawMessage) {
	var req JoinRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(ctx, fmt.Errorf("INVALID_PAYLOAD: Invalid join_room payload"))
		return
	}
	if err := ValidateDisplayName(req.DisplayName); err != nil {
		c.sendError(ctx, err)
		return
	}

	key := NormalizeRoomKey(req.RoomKey)
	if key == "" {
		key = GenerateRoomKey(func(k string) bool {
			_, exists := s.registry.Get(k)
			return exists
		})
	}
	if !ValidateRoomKey(key) {
		c.sendError(ctx, fmt.Errorf("INVALID_ROOM_KEY: Room keys are 3-16 letters and digits"))
		return
	}

	rm := s.registry.GetOrCreate(key)
	identity := room.Normalize(req.DisplayName)
	token := uuid.New().String()

	err := rm.Submit(ctx, room.Join{
		ActorRef:    room.ActorRef{ID: identity},
		DisplayName: req.DisplayName,
		ConnRef:     c.id,
	})
	if err != nil {
		c.sendError(ctx, err)
		return
	}

	// Joining under a name that is already connected evicts the old device.
	// The newest connection always wins the identity.
	s.evictExistingDevice(key, identity, token, c.id)

	// The session and the conn->token binding exist only for accepted joins,
	// so a rejected connection carries no state into later actions.
	s.sessions.Store(SessionInfo{
		Token:       token,
		RoomKey:     key,
		Identity:    identity,
		DisplayName: req.DisplayName,
	})
	s.connections.Bind(c.id, token)
	if room.Role(req.Role) == room.RoleController {
		err := rm.Submit(ctx, room.SwitchRole{
			ActorRef: room.ActorRef{ID: identity},
			Role:     room.RoleController,
		})
		if err != nil {
			log.Printf("Failed to grant controller role to %s: %v", identity, err)
		}
	}

	response := ServerMessage{
		Type: "room_joined",
		Payload: JoinRoomResponse{
			RoomKey:  key,
			Token:    token,
			Identity: identity,
		},
	}
	if err := c.send(ctx, response); err != nil {
		log.Printf("Failed to send room_joined: %v", err)
		return
	}

	s.startSnapshotWriter(ctx, c, rm, identity)
}

func (s *Server) handleReconnect(ctx context.Context, c *client, payload json.RawMessage) {
	var req ReconnectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(ctx, fmt.Errorf("INVALID_PAYLOAD: Invalid reconnect payload"))
		return
	}
	info, ok := s.sessions.Get(req.Token)
	if !ok {
		c.sendError(ctx, fmt.Errorf("TOKEN_NOT_FOUND: Invalid session token"))
		return
	}
	rm, ok := s.registry.Get(info.RoomKey)
	if !ok {
		s.sessions.Remove(req.Token)
		c.sendError(ctx, fmt.Errorf("ROOM_NOT_FOUND: Room %s no longer exists", info.RoomKey))
		return
	}

	err := rm.Submit(ctx, room.Join{
		ActorRef:    room.ActorRef{ID: info.Identity},
		DisplayName: info.DisplayName,
		ConnRef:     c.id,
	})
	if err != nil {
		c.sendError(ctx, err)
		return
	}

	s.evictExistingDevice(info.RoomKey, info.Identity, req.Token, c.id)
	s.connections.Bind(c.id, req.Token)

	response := ServerMessage{
		Type: "reconnected",
		Payload: ReconnectResponse{
			RoomKey:     info.RoomKey,
			Identity:    info.Identity,
			DisplayName: info.DisplayName,
		},
	}
	if err := c.send(ctx, response); err != nil {
		log.Printf("Failed to send reconnected: %v", err)
		return
	}

	s.startSnapshotWriter(ctx, c, rm, info.Identity)
}

// evictExistingDevice closes any connection currently holding the identity in
// the room and drops the superseded sessions. The evicted device sees close
// reason "disconnected_elsewhere". keepToken names the session taking over.
func (s *Server) evictExistingDevice(roomKey, identity, keepToken, newConnID string) {
	for _, info := range s.sessions.SessionsByIdentity(roomKey, identity) {
		if info.Token == keepToken {
			continue
		}
		if oldConnID, ok := s.connections.ConnIDByToken(info.Token); ok && oldConnID != newConnID {
			if conn, found := s.connections.Get(oldConnID); found {
				log.Printf("Identity %s in room %s taken over, evicting connection %s", identity, roomKey, oldConnID)
				conn.Close(websocket.StatusPolicyViolation, "disconnected_elsewhere")
			}
		}
		s.sessions.Remove(info.Token)
	}
}

// startSnapshotWriter subscribes the connection to the room and forwards
// every snapshot version in order. An eviction for falling behind closes the
// socket; the client reconnects with its token and resumes from the current
// snapshot.
func (s *Server) startSnapshotWriter(ctx context.Context, c *client, rm *room.Room, identity string) {
	snaps, err := rm.Subscribe(ctx, c.id, identity)
	if err != nil {
		c.sendError(ctx, err)
		return
	}
	go func() {
		for snap := range snaps {
			if err := c.send(ctx, ServerMessage{Type: "snapshot", Payload: snap}); err != nil {
				log.Printf("Failed to send snapshot v%d to %s: %v", snap.Version, c.id, err)
				rm.Unsubscribe(c.id)
				return
			}
		}
		if ctx.Err() == nil {
			c.socket.Close(websocket.StatusTryAgainLater, "resubscribe required")
		}
	}()
}

func (s *Server) handleAction(ctx context.Context, c *client, payload json.RawMessage) {
	token, ok := s.connections.TokenByConn(c.id)
	if !ok {
		c.sendError(ctx, fmt.Errorf("NOT_IN_ROOM: Join a room before sending actions"))
		return
	}
	info, ok := s.sessions.Get(token)
	if !ok {
		c.sendError(ctx, fmt.Errorf("TOKEN_NOT_FOUND: Invalid session token"))
		return
	}
	rm, ok := s.registry.Get(info.RoomKey)
	if !ok {
		c.sendError(ctx, fmt.Errorf("ROOM_NOT_FOUND: Room %s no longer exists", info.RoomKey))
		return
	}

	var req ActionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(ctx, fmt.Errorf("INVALID_PAYLOAD: Invalid action payload"))
		return
	}
	act, err := parseAction(info.Identity, req)
	if err != nil {
		c.sendError(ctx, err)
		return
	}

	if err := rm.Submit(ctx, act); err != nil {
		// Rejections are private: only the actor hears about them.
		response := ServerMessage{
			Type:    "action_rejected",
			Payload: ActionResultResponse{Accepted: false, Error: err.Error()},
		}
		if sendErr := c.send(ctx, response); sendErr != nil {
			log.Printf("Failed to send action_rejected: %v", sendErr)
		}
		return
	}

	response := ServerMessage{
		Type:    "action_result",
		Payload: ActionResultResponse{Accepted: true},
	}
	if err := c.send(ctx, response); err != nil {
		log.Printf("Failed to send action_result: %v", err)
	}
}

func (s *Server) handleLeaveRoom(ctx context.Context, c *client) {
	token, ok := s.connections.TokenByConn(c.id)
	if !ok {
		c.sendError(ctx, fmt.Errorf("NOT_IN_ROOM: Not in a room"))
		return
	}
	info, ok := s.sessions.Get(token)
	if !ok {
		c.sendError(ctx, fmt.Errorf("TOKEN_NOT_FOUND: Invalid session token"))
		return
	}
	if rm, found := s.registry.Get(info.RoomKey); found {
		rm.Unsubscribe(c.id)
		err := rm.Submit(ctx, room.Leave{ActorRef: room.ActorRef{ID: info.Identity}})
		if err != nil {
			log.Printf("Failed to remove %s from room %s: %v", info.Identity, info.RoomKey, err)
		}
	}
	s.sessions.Remove(token)

	if err := c.send(ctx, ServerMessage{Type: "room_left", Payload: struct{}{}}); err != nil {
		log.Printf("Failed to send room_left: %v", err)
	}
}

// chatHandler ingests the room's chat stream. Frames are chat events, not
// commands: the interpreter decides which ones become room actions.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	key := NormalizeRoomKey(r.URL.Query().Get("room"))
	if !ValidateRoomKey(key) {
		http.Error(w, "invalid room key", http.StatusBadRequest)
		return
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()
	rm := s.registry.GetOrCreate(key)
	feed := s.feedFor(rm)
	log.Printf("Chat stream attached to room %s", key)

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Printf("Chat stream for room %s closed: %v", key, err)
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var ev chat.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("Invalid chat event for room %s: %v", key, err)
			continue
		}
		feed.Handle(ctx, ev)
	}
}
