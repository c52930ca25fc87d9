package guess

import "showdown-server/internal/room"

// RoundView hides the secret from everyone but the controller. Other
// players' guesses appear only as a count until the round closes.
type RoundView struct {
	Mode         string `json:"mode"`
	Open         bool   `json:"open"`
	GuessCount   int    `json:"guessCount"`
	YourGuess    *Guess `json:"yourGuess,omitempty"`
	SecretNumber int    `json:"secretNumber,omitempty"`
	SecretWord   string `json:"secretWord,omitempty"`
}

type View struct {
	Scores     map[string]int `json:"scores"`
	Target     int            `json:"target"`
	Round      *RoundView     `json:"round,omitempty"`
	LastResult *RoundResult   `json:"lastResult,omitempty"`
}

func (g *Game) View(recipient string, role room.Role) any {
	v := View{
		Scores: make(map[string]int, len(g.Scores)),
		Target: TargetScore,
	}
	for id, score := range g.Scores {
		v.Scores[id] = score
	}
	if g.Round != nil {
		rv := &RoundView{
			Mode:       g.Round.Mode,
			Open:       true,
			GuessCount: len(g.Round.Guesses),
		}
		if guess, ok := g.Round.Guesses[recipient]; ok {
			own := guess
			rv.YourGuess = &own
		}
		if role == room.RoleController {
			rv.SecretNumber = g.Round.SecretNumber
			rv.SecretWord = g.Round.SecretWord
		}
		v.Round = rv
	}
	if g.LastResult != nil {
		res := *g.LastResult
		v.LastResult = &res
	}
	return v
}
