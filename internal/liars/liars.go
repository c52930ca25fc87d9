// Package liars implements the table-talk elimination game: everyone is
// dealt a secret hand, plays face-down cards claimed to be the table rank,
// and a successful challenge sends the liar (or the failed challenger) to
// the revolver.
package liars

import (
	"errors"
	"fmt"
	"slices"

	"showdown-server/internal/room"
)

const maxPlayCount = 3

// maxAttempt caps the consecutive-attempt counter: survival odds bottom out
// at 1/2 and never reach certain elimination.
const maxAttempt = 4

type Game struct {
	TableRank Rank
	Hands     map[string][]Rank
	LastPlay  *Play
	Revealed  *Play
	Subject   string // player facing the revolver
	Attempts  int    // consecutive attempts by Subject
	Outcome   *Outcome
}

// Play is a face-down claim: Count cards asserted to all be the table rank.
type Play struct {
	By    string
	Count int
	Cards []Rank
}

// Outcome records one pull of the trigger.
type Outcome struct {
	Subject  string `json:"subject"`
	Attempt  int    `json:"attempt"`
	Survived bool   `json:"survived"`
}

func New() *Game {
	return &Game{Hands: make(map[string][]Rank)}
}

func (g *Game) Name() string    { return "liars" }
func (g *Game) MinPlayers() int { return 2 }

func (g *Game) Begin(t *room.Table) error {
	g.deal(t)
	t.Phase = room.PhasePlaying
	t.Turn = 0
	return nil
}

func (g *Game) Apply(t *room.Table, actor string, act room.Action) error {
	switch a := act.(type) {
	case room.PlayCards:
		return g.applyPlay(t, actor, a)
	case room.ChallengeLastPlay:
		return g.applyChallenge(t, actor)
	case room.ResolveElimination:
		return g.applyResolve(t, actor)
	case room.AdvanceTurn:
		return g.applyAdvance(t, actor)
	case room.TimeoutElapsed:
		return g.applyTimeout(t, actor)
	default:
		return fmt.Errorf("WRONG_GAME: %T is not a liars action", act)
	}
}

func (g *Game) applyPlay(t *room.Table, actor string, a room.PlayCards) error {
	if t.Phase != room.PhasePlaying {
		return errors.New("WRONG_PHASE: no play expected right now")
	}
	if actor != t.TurnHolder() {
		return errors.New("NOT_YOUR_TURN: wait for your turn")
	}
	hand := g.Hands[actor]
	if len(a.Positions) < 1 || len(a.Positions) > maxPlayCount {
		return fmt.Errorf("INVALID_PLAY: play between 1 and %d cards", maxPlayCount)
	}
	seen := make(map[int]bool, len(a.Positions))
	for _, pos := range a.Positions {
		if pos < 1 || pos > len(hand) {
			return fmt.Errorf("INVALID_PLAY: no card at position %d", pos)
		}
		if seen[pos] {
			return fmt.Errorf("INVALID_PLAY: position %d repeated", pos)
		}
		seen[pos] = true
	}

	played := make([]Rank, 0, len(a.Positions))
	kept := make([]Rank, 0, len(hand))
	for i, card := range hand {
		if seen[i+1] {
			played = append(played, card)
		} else {
			kept = append(kept, card)
		}
	}
	g.Hands[actor] = kept
	g.LastPlay = &Play{By: actor, Count: len(played), Cards: played}
	g.Outcome = nil
	g.advanceTurn(t)
	return nil
}

func (g *Game) applyChallenge(t *room.Table, actor string) error {
	if t.Phase != room.PhasePlaying {
		return errors.New("WRONG_PHASE: nothing to challenge right now")
	}
	if actor != t.TurnHolder() {
		return errors.New("NOT_YOUR_TURN: only the next player may challenge")
	}
	if g.LastPlay == nil || g.LastPlay.By == actor {
		return errors.New("NO_PENDING_PLAY: there is no play to challenge")
	}
	lied := slices.ContainsFunc(g.LastPlay.Cards, func(r Rank) bool {
		return !r.matches(g.TableRank)
	})
	loser := actor
	if lied {
		loser = g.LastPlay.By
	}
	g.Revealed = g.LastPlay
	g.LastPlay = nil
	if loser != g.Subject {
		// New subject, fresh cylinder.
		g.Subject = loser
		g.Attempts = 0
	}
	t.Phase = room.PhaseChallenge
	t.Turn = seatIndex(t, loser)
	return nil
}

func (g *Game) applyResolve(t *room.Table, actor string) error {
	switch t.Phase {
	case room.PhaseChallenge:
		if actor != g.Subject && !t.Privileged {
			return errors.New("NOT_SUBJECT: only the player at the revolver may pull the trigger")
		}
		g.pullTrigger(t)
		return nil
	case room.PhaseElimination:
		if seatIndex(t, actor) < 0 && !t.Privileged {
			return errors.New("NOT_SEATED: eliminated players cannot continue the round")
		}
		g.nextRound(t, t.TurnHolder())
		return nil
	default:
		return errors.New("WRONG_PHASE: nobody is at the revolver")
	}
}

func (g *Game) applyAdvance(t *room.Table, actor string) error {
	switch t.Phase {
	case room.PhasePlaying:
		if !t.Privileged {
			return errors.New("NOT_CONTROLLER: only the controller may skip a turn")
		}
		g.advanceTurn(t)
		return nil
	case room.PhaseElimination:
		if seatIndex(t, actor) < 0 && !t.Privileged {
			return errors.New("NOT_SEATED: eliminated players cannot continue the round")
		}
		g.nextRound(t, t.TurnHolder())
		return nil
	default:
		return errors.New("WRONG_PHASE: cannot advance the turn now")
	}
}

// applyTimeout handles timer actions injected by the controller UI: a stalled
// turn is skipped, a stalled trigger pull is forced.
func (g *Game) applyTimeout(t *room.Table, actor string) error {
	if !t.Privileged {
		return errors.New("NOT_CONTROLLER: timers are controller-injected")
	}
	switch t.Phase {
	case room.PhasePlaying:
		g.advanceTurn(t)
	case room.PhaseChallenge:
		g.pullTrigger(t)
	case room.PhaseElimination:
		g.nextRound(t, t.TurnHolder())
	default:
		return errors.New("WRONG_PHASE: no timer applies now")
	}
	return nil
}

// pullTrigger rolls the revolver for the recorded subject. Elimination odds
// are exactly 1/(6-N) for the Nth consecutive attempt, N clamped to 0..4.
func (g *Game) pullTrigger(t *room.Table) {
	n := min(g.Attempts, maxAttempt)
	survived := t.Rand.Intn(6-n) != 0
	g.Outcome = &Outcome{Subject: g.Subject, Attempt: n, Survived: survived}
	g.Revealed = nil
	if survived {
		g.Attempts++
		g.nextRound(t, g.Subject)
		return
	}
	subject := g.Subject
	g.Subject = ""
	g.Attempts = 0
	delete(g.Hands, subject)
	t.RemoveSeat(subject)
	if len(t.Seats) == 1 {
		t.Winner = t.Seats[0]
		t.Phase = room.PhaseGameOver
		t.Turn = -1
		return
	}
	// Turn already points at the next live seat; the round restarts once
	// someone resolves the elimination.
	t.Phase = room.PhaseElimination
}

func (g *Game) DropSeat(t *room.Table, identity string) {
	delete(g.Hands, identity)
	if g.LastPlay != nil && g.LastPlay.By == identity {
		g.LastPlay = nil
	}
	if g.Subject == identity {
		// Forfeit: the subject left mid-challenge, round restarts.
		g.Subject = ""
		g.Attempts = 0
		if t.Phase == room.PhaseChallenge && len(t.Seats) > 1 {
			g.nextRound(t, t.TurnHolder())
		}
	}
}

// advanceTurn rotates to the next seat that still holds cards; when every
// hand is empty the round escaped unchallenged and a new one is dealt.
func (g *Game) advanceTurn(t *room.Table) {
	n := len(t.Seats)
	for i := 1; i <= n; i++ {
		cand := (t.Turn + i) % n
		if len(g.Hands[t.Seats[cand]]) > 0 {
			t.Turn = cand
			return
		}
	}
	// Surviving a full round clears the revolver: the next time anyone is
	// sent to it, the cylinder starts fresh.
	g.Subject = ""
	g.Attempts = 0
	g.nextRound(t, t.Seats[(t.Turn+1)%n])
}

// nextRound redeals every live seat and picks a fresh table rank. The given
// identity leads; seat 0 when it is no longer seated.
func (g *Game) nextRound(t *room.Table, lead string) {
	g.deal(t)
	g.LastPlay = nil
	g.Revealed = nil
	t.Phase = room.PhasePlaying
	t.Turn = 0
	if idx := seatIndex(t, lead); idx >= 0 {
		t.Turn = idx
	}
}

func (g *Game) deal(t *room.Table) {
	deck := newDeck(len(t.Seats))
	shuffle(deck, t.Rand)
	g.Hands = make(map[string][]Rank, len(t.Seats))
	g.TableRank = tableRanks[t.Rand.Intn(len(tableRanks))]
	for i, seat := range t.Seats {
		hand := make([]Rank, handSize)
		copy(hand, deck[i*handSize:(i+1)*handSize])
		g.Hands[seat] = hand
	}
}

func seatIndex(t *room.Table, identity string) int {
	return slices.Index(t.Seats, identity)
}
