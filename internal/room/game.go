package room

import (
	"fmt"
	"math/rand"
)

type Phase string

const (
	PhaseWaiting     Phase = "waiting"
	PhasePlaying     Phase = "playing"
	PhaseChallenge   Phase = "challenge"
	PhaseElimination Phase = "elimination"
	PhaseGameOver    Phase = "gameover"
)

// Table is the slice of room state a game variant is allowed to see and
// mutate while applying an action. The engine copies it out of the room
// before the call and back in afterwards, re-validating the turn pointer.
type Table struct {
	Phase  Phase
	Seats  []string // active seat order, normalized identities
	Turn   int      // index into Seats, -1 when no active turn
	Winner string
	Rand   *rand.Rand
	// Privileged is set when the acting player holds the controller role.
	Privileged bool
}

// TurnHolder returns the identity whose turn it is, or "".
func (t *Table) TurnHolder() string {
	if t.Turn < 0 || t.Turn >= len(t.Seats) {
		return ""
	}
	return t.Seats[t.Turn]
}

// RemoveSeat drops an identity from the seat list, shifting the turn pointer
// so it keeps pointing at the same player, or rotating to 0 when it would
// fall off the end of the shrunk list.
func (t *Table) RemoveSeat(identity string) {
	idx := -1
	for i, s := range t.Seats {
		if s == identity {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	t.Seats = append(t.Seats[:idx], t.Seats[idx+1:]...)
	switch {
	case t.Turn < 0:
	case idx < t.Turn:
		t.Turn--
	case t.Turn >= len(t.Seats):
		t.Turn = 0
	}
	if len(t.Seats) == 0 {
		t.Turn = -1
	}
}

// Game is one playable variant. Implementations own the variant payload and
// drive phase transitions through the Table; they never touch the roster or
// the version counter.
type Game interface {
	Name() string
	MinPlayers() int

	// Begin deals a fresh game for t.Seats. The engine has already checked
	// the player count and seeded t.Rand.
	Begin(t *Table) error

	// Apply handles a variant action from actor. Rejections are returned as
	// errors and must leave the payload untouched.
	Apply(t *Table, actor string, act Action) error

	// DropSeat discards the payload state of a player the engine removed
	// mid-game. The seat list has already shrunk.
	DropSeat(t *Table, identity string)

	// View projects the payload for one recipient. It must be a pure
	// function of the payload: same recipient and role, same view.
	View(recipient string, role Role) any
}

// GameFactory builds a fresh variant payload by name.
type GameFactory func(name string) (Game, error)

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("invariant: "+format, args...))
	}
}
