package chat

import (
	"strconv"
	"strings"

	"showdown-server/internal/guess"
	"showdown-server/internal/room"
)

// Interpreter maps chat events to room actions. It is a pure function of the
// event and the author's redacted view of the room: same inputs, same result,
// no side effects. Unrecognized or out-of-phase text yields no action at all;
// that is ordinary chat noise, not an error.
type Interpreter struct {
	fruits Vocabulary
}

func NewInterpreter(fruits Vocabulary) *Interpreter {
	return &Interpreter{fruits: fruits}
}

// DefaultInterpreter matches word-round guesses against the guessing game's
// own fruit list.
func DefaultInterpreter() *Interpreter {
	return NewInterpreter(NewVocabulary(guess.Fruits...))
}

func (it *Interpreter) Interpret(ev Event, view room.Snapshot) (room.Action, bool) {
	text := strings.ToLower(strings.TrimSpace(ev.Text))
	if text == "" {
		return nil, false
	}
	identity := room.Normalize(ev.Author)
	if identity == "" {
		return nil, false
	}
	actor := room.ActorRef{ID: identity}
	player, joined := view.Player(identity)

	fields := strings.Fields(text)
	switch fields[0] {
	case "!join":
		// The one command allowed before joining; re-issuing it is a no-op
		// action downstream, never an error.
		return room.Join{ActorRef: actor, DisplayName: strings.TrimSpace(ev.Author)}, true
	}
	if !joined {
		return nil, false
	}

	switch fields[0] {
	case "!leave":
		return room.Leave{ActorRef: actor}, true
	case "!role":
		if len(fields) != 2 {
			return nil, false
		}
		role := room.Role(fields[1])
		if role != room.RoleParticipant && role != room.RoleController {
			return nil, false
		}
		return room.SwitchRole{ActorRef: actor, Role: role}, true
	case "!start":
		return room.Start{ActorRef: actor}, true
	case "!reset":
		return room.ResetRoom{ActorRef: actor}, true
	case "!liar", "!challenge":
		return room.ChallengeLastPlay{ActorRef: actor}, true
	case "!spin", "!pull":
		return room.ResolveElimination{ActorRef: actor}, true
	case "!next":
		return room.AdvanceTurn{ActorRef: actor}, true
	case "!play":
		positions := make([]int, 0, len(fields)-1)
		for _, f := range fields[1:] {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, false
			}
			positions = append(positions, n)
		}
		if len(positions) == 0 {
			return nil, false
		}
		return room.PlayCards{ActorRef: actor, Positions: positions}, true
	}

	return it.interpretGuess(actor, player, text, view)
}

// interpretGuess recognizes free-form guesses, but only while a guessing
// round is open and only from registered participants.
func (it *Interpreter) interpretGuess(actor room.ActorRef, player room.PlayerView, text string, view room.Snapshot) (room.Action, bool) {
	if player.Role != room.RoleParticipant {
		return nil, false
	}
	if view.Phase != room.PhasePlaying {
		return nil, false
	}
	payload, ok := view.Payload.(guess.View)
	if !ok || payload.Round == nil || !payload.Round.Open {
		return nil, false
	}
	switch payload.Round.Mode {
	case guess.ModeNumber:
		n, err := strconv.Atoi(text)
		if err != nil {
			return nil, false
		}
		return room.SubmitGuess{ActorRef: actor, Number: n}, true
	case guess.ModeWord:
		word, ok := it.fruits.Match(text)
		if !ok {
			return nil, false
		}
		return room.SubmitGuess{ActorRef: actor, Word: word}, true
	}
	return nil, false
}
