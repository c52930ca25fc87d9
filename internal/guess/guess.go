// Package guess implements the free-for-all guessing game: the controller
// opens a round with a secret number or a secret fruit, the audience fires
// guesses at it, and the first player to reach the target score wins. There
// is no turn order; the room's turn pointer stays null throughout.
package guess

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"showdown-server/internal/room"
)

const (
	ModeNumber = "number"
	ModeWord   = "word"
)

// NumberMax bounds numeric secrets and guesses (1..NumberMax).
const NumberMax = 100

// TargetScore many round wins take the game.
const TargetScore = 3

// Fruits is the word-round vocabulary, in declaration order. The chat
// interpreter matches guesses against the same list, so order is the
// documented tie-break.
var Fruits = []string{
	"apple", "banana", "cherry", "grape", "kiwi",
	"lemon", "mango", "melon", "orange", "peach", "pear",
}

type Game struct {
	Scores     map[string]int
	Round      *Round
	LastResult *RoundResult
}

// Round is one open secret. Guesses keeps each player's latest guess; Seq
// preserves arrival order for the closest-guess tie-break.
type Round struct {
	Mode         string
	SecretNumber int
	SecretWord   string
	Guesses      map[string]Guess
	nextSeq      int
}

type Guess struct {
	Number int    `json:"number,omitempty"`
	Word   string `json:"word,omitempty"`
	Seq    int    `json:"-"`
}

// RoundResult is published once a round closes, secret included.
type RoundResult struct {
	Mode         string `json:"mode"`
	SecretNumber int    `json:"secretNumber,omitempty"`
	SecretWord   string `json:"secretWord,omitempty"`
	Winner       string `json:"winner,omitempty"`
	Exact        bool   `json:"exact"`
}

func New() *Game {
	return &Game{Scores: make(map[string]int)}
}

func (g *Game) Name() string    { return "guess" }
func (g *Game) MinPlayers() int { return 2 }

func (g *Game) Begin(t *room.Table) error {
	g.Scores = make(map[string]int, len(t.Seats))
	for _, seat := range t.Seats {
		g.Scores[seat] = 0
	}
	t.Phase = room.PhasePlaying
	t.Turn = -1
	return nil
}

func (g *Game) Apply(t *room.Table, actor string, act room.Action) error {
	switch a := act.(type) {
	case room.StartRound:
		return g.applyStartRound(t, a)
	case room.SubmitGuess:
		return g.applySubmitGuess(t, actor, a)
	case room.CloseRound:
		if !t.Privileged {
			return errors.New("NOT_CONTROLLER: only the controller closes rounds")
		}
		return g.closeRound(t)
	case room.TimeoutElapsed:
		if !t.Privileged {
			return errors.New("NOT_CONTROLLER: timers are controller-injected")
		}
		return g.closeRound(t)
	default:
		return fmt.Errorf("WRONG_GAME: %T is not a guessing action", act)
	}
}

func (g *Game) applyStartRound(t *room.Table, a room.StartRound) error {
	if !t.Privileged {
		return errors.New("NOT_CONTROLLER: only the controller opens rounds")
	}
	if t.Phase != room.PhasePlaying {
		return errors.New("WRONG_PHASE: the game is over")
	}
	if g.Round != nil {
		return errors.New("ROUND_OPEN: close the current round first")
	}
	round := &Round{Mode: a.Mode, Guesses: make(map[string]Guess)}
	switch a.Mode {
	case ModeNumber:
		round.SecretNumber = 1 + t.Rand.Intn(NumberMax)
	case ModeWord:
		round.SecretWord = Fruits[t.Rand.Intn(len(Fruits))]
	default:
		return fmt.Errorf("INVALID_MODE: %q", a.Mode)
	}
	g.Round = round
	return nil
}

func (g *Game) applySubmitGuess(t *room.Table, actor string, a room.SubmitGuess) error {
	if t.Phase != room.PhasePlaying || g.Round == nil {
		return errors.New("WRONG_PHASE: no round is open")
	}
	if !slices.Contains(t.Seats, actor) {
		return errors.New("NOT_SEATED: spectators cannot guess")
	}
	round := g.Round
	var exact bool
	word := strings.ToLower(strings.TrimSpace(a.Word))
	switch round.Mode {
	case ModeNumber:
		if a.Number < 1 || a.Number > NumberMax {
			return fmt.Errorf("INVALID_GUESS: guess a number between 1 and %d", NumberMax)
		}
		exact = a.Number == round.SecretNumber
	case ModeWord:
		if word == "" {
			return errors.New("INVALID_GUESS: name a fruit")
		}
		exact = word == round.SecretWord
	}
	round.nextSeq++
	round.Guesses[actor] = Guess{Number: a.Number, Word: word, Seq: round.nextSeq}
	if exact {
		g.winRound(t, actor, true)
	}
	return nil
}

// closeRound ends the open round without an exact hit. Number rounds award
// the closest guess, earliest arrival breaking ties; word rounds go unwon.
func (g *Game) closeRound(t *room.Table) error {
	if g.Round == nil {
		return errors.New("NO_ROUND: nothing to close")
	}
	round := g.Round
	if round.Mode == ModeWord {
		g.finishRound("", false)
		return nil
	}
	winner, best, bestSeq := "", -1, 0
	for id, guess := range round.Guesses {
		diff := round.SecretNumber - guess.Number
		if diff < 0 {
			diff = -diff
		}
		if winner == "" || diff < best || (diff == best && guess.Seq < bestSeq) {
			winner, best, bestSeq = id, diff, guess.Seq
		}
	}
	if winner == "" {
		g.finishRound("", false)
		return nil
	}
	g.winRound(t, winner, false)
	return nil
}

func (g *Game) winRound(t *room.Table, winner string, exact bool) {
	g.Scores[winner]++
	g.finishRound(winner, exact)
	if g.Scores[winner] >= TargetScore {
		t.Winner = winner
		t.Phase = room.PhaseGameOver
		t.Turn = -1
	}
}

func (g *Game) finishRound(winner string, exact bool) {
	round := g.Round
	g.LastResult = &RoundResult{
		Mode:         round.Mode,
		SecretNumber: round.SecretNumber,
		SecretWord:   round.SecretWord,
		Winner:       winner,
		Exact:        exact,
	}
	g.Round = nil
}

func (g *Game) DropSeat(t *room.Table, identity string) {
	delete(g.Scores, identity)
	if g.Round != nil {
		delete(g.Round.Guesses, identity)
	}
}
