package room

import "time"

// Snapshot is an immutable, per-recipient-redacted copy of room state, built
// after every accepted action and tagged with the version that produced it.
// For a given (version, recipient) pair the snapshot is deterministic.
type Snapshot struct {
	Version     uint64       `json:"version"`
	Room        string       `json:"room"`
	Game        string       `json:"game"`
	Phase       Phase        `json:"phase"`
	Turn        *int         `json:"turn"` // index into Seats, null when no active turn
	Seats       []string     `json:"seats,omitempty"`
	Players     []PlayerView `json:"players"`
	Payload     any          `json:"payload,omitempty"`
	Winner      string       `json:"winner,omitempty"`
	RedactedFor string       `json:"redactedFor"`
}

type PlayerView struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	Connected   bool   `json:"connected"`
	IsYou       bool   `json:"isYou"`
}

// Player looks up a roster entry by normalized identity.
func (s Snapshot) Player(identity string) (PlayerView, bool) {
	for _, p := range s.Players {
		if p.Identity == identity {
			return p, true
		}
	}
	return PlayerView{}, false
}

// TurnHolder returns the identity whose turn it is, or "".
func (s Snapshot) TurnHolder() string {
	if s.Turn == nil || *s.Turn < 0 || *s.Turn >= len(s.Seats) {
		return ""
	}
	return s.Seats[*s.Turn]
}

// Result summarizes a finished game for the match archive.
type Result struct {
	RoomKey    string
	Game       string
	Winner     string
	Players    []string
	Version    uint64
	FinishedAt time.Time
}
