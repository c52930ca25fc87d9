package server

import (
	"sync"

	"github.com/coder/websocket"
)

// ConnectionManager tracks live websocket connections and the session
// token each connection is bound to. A token is bound to at most one
// connection at a time; binding a token to a new connection returns the
// previous connection id so the caller can evict it.
type ConnectionManager struct {
	mu      sync.RWMutex
	conns   map[string]*websocket.Conn
	tokens  map[string]string // connID -> token
	byToken map[string]string // token -> connID
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		conns:   make(map[string]*websocket.Conn),
		tokens:  make(map[string]string),
		byToken: make(map[string]string),
	}
}

func (cm *ConnectionManager) Add(connID string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conns[connID] = conn
}

// Bind associates a token with a connection, returning the id of the
// connection previously bound to the token, if any.
func (cm *ConnectionManager) Bind(connID, token string) (oldConnID string, evicted bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if prev, ok := cm.byToken[token]; ok && prev != connID {
		delete(cm.tokens, prev)
		oldConnID, evicted = prev, true
	}
	cm.tokens[connID] = token
	cm.byToken[token] = connID
	return oldConnID, evicted
}

func (cm *ConnectionManager) Remove(connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.conns, connID)
	if token, ok := cm.tokens[connID]; ok {
		delete(cm.tokens, connID)
		if cm.byToken[token] == connID {
			delete(cm.byToken, token)
		}
	}
}

func (cm *ConnectionManager) Get(connID string) (*websocket.Conn, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	conn, ok := cm.conns[connID]
	return conn, ok
}

func (cm *ConnectionManager) ConnIDByToken(token string) (string, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	id, ok := cm.byToken[token]
	return id, ok
}

func (cm *ConnectionManager) TokenByConn(connID string) (string, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	token, ok := cm.tokens[connID]
	return token, ok
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}
