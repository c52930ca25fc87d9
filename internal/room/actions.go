package room

import "strings"

// Normalize collapses a display name to the identity key used for
// reconnect-by-name. Two names that normalize equally are the same player.
func Normalize(displayName string) string {
	return strings.ToLower(strings.TrimSpace(displayName))
}

type Role string

const (
	RoleParticipant Role = "participant"
	RoleController  Role = "controller"
)

// Action is the closed set of room mutations. Every state change goes through
// exactly one Action; the engine switches exhaustively over the variants.
type Action interface {
	Actor() string
	isAction()
}

// ActorRef carries the normalized identity of the acting player. Embed it in
// every action variant.
type ActorRef struct {
	ID string `json:"actor"`
}

func (a ActorRef) Actor() string { return a.ID }
func (ActorRef) isAction()       {}

// Actor builds an ActorRef from a raw display name.
func Actor(displayName string) ActorRef {
	return ActorRef{ID: Normalize(displayName)}
}

// Join adds a new player or rebinds an existing one to a new connection.
// ConnRef is empty for chat-only players, who have no device connection.
type Join struct {
	ActorRef
	DisplayName string
	ConnRef     string
}

// Disconnect nulls the player's connection ref. The seat is kept so the same
// display name can reconnect later. ConnRef must match the player's current
// binding, otherwise a takeover already happened and this is a stale close.
type Disconnect struct {
	ActorRef
	ConnRef string
}

// Leave removes the player from the roster entirely, including their seat in
// a running game.
type Leave struct {
	ActorRef
}

// SwitchRole toggles between participant and controller.
type SwitchRole struct {
	ActorRef
	Role Role
}

// SelectGame swaps the room's game variant while in the waiting phase.
// Controller only.
type SelectGame struct {
	ActorRef
	Game string
}

// Start begins a game with the currently joined participants. Seed fixes the
// deal for reproducible games; zero means "pick one".
type Start struct {
	ActorRef
	Seed int64
}

// PlayCards plays the cards at the given hand positions (1-based), claimed as
// the table rank. Turn holder only.
type PlayCards struct {
	ActorRef
	Positions []int
}

// ChallengeLastPlay accuses the previous play of lying. Turn holder only.
type ChallengeLastPlay struct {
	ActorRef
}

// ResolveElimination pulls the trigger for the recorded elimination subject,
// or, after an elimination, starts the next round.
type ResolveElimination struct {
	ActorRef
}

// AdvanceTurn is the controller's unstick lever: skip the current turn holder
// or move past a finished elimination.
type AdvanceTurn struct {
	ActorRef
}

// SubmitGuess carries either a numeric or a word guess, depending on the open
// round's mode.
type SubmitGuess struct {
	ActorRef
	Number int
	Word   string
}

// StartRound opens a guessing round. Controller only.
type StartRound struct {
	ActorRef
	Mode string
}

// CloseRound closes the open guessing round and awards the closest guess.
// Controller only.
type CloseRound struct {
	ActorRef
}

// Kick removes another player from the room. Controller only.
type Kick struct {
	ActorRef
	Target string
}

// ResetRoom returns the room to the waiting phase. Round-scoped state is
// cleared; the roster is retained unless ClearRoster is set. Controller only.
type ResetRoom struct {
	ActorRef
	ClearRoster bool
}

// TimeoutElapsed is injected by an external timer, never by the engine itself.
// Kind names the timer that fired ("turn", "round").
type TimeoutElapsed struct {
	ActorRef
	Kind string
}
