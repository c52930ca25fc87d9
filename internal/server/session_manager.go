package server

import "sync"

// SessionInfo records what a session token resolves to. Sessions let a
// client that lost its socket reclaim its seat in a room.
type SessionInfo struct {
	Token       string
	RoomKey     string
	Identity    string
	DisplayName string
}

type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]SessionInfo
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]SessionInfo)}
}

func (sm *SessionManager) Store(info SessionInfo) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[info.Token] = info
}

func (sm *SessionManager) Get(token string) (SessionInfo, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	info, ok := sm.sessions[token]
	return info, ok
}

func (sm *SessionManager) Remove(token string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, token)
}

// SessionsByIdentity returns every session holding an identity in a room.
// Used to detect a second join under the same display name; superseded joins
// can leave more than one behind.
func (sm *SessionManager) SessionsByIdentity(roomKey, identity string) []SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var found []SessionInfo
	for _, info := range sm.sessions {
		if info.RoomKey == roomKey && info.Identity == identity {
			found = append(found, info)
		}
	}
	return found
}

func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
