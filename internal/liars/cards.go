package liars

import "math/rand"

type Rank string

const (
	RankAce   Rank = "ace"
	RankKing  Rank = "king"
	RankQueen Rank = "queen"
	RankJoker Rank = "joker"
)

// tableRanks are the ranks a round can be played for. Jokers are wild and
// never the table rank.
var tableRanks = []Rank{RankAce, RankKing, RankQueen}

const handSize = 5

// newDeck builds the liar's deck: six of each table rank plus two jokers for
// every four seats, so larger rooms still get full hands.
func newDeck(seatCount int) []Rank {
	copies := (seatCount + 3) / 4
	deck := make([]Rank, 0, copies*20)
	for c := 0; c < copies; c++ {
		for _, r := range tableRanks {
			for n := 0; n < 6; n++ {
				deck = append(deck, r)
			}
		}
		deck = append(deck, RankJoker, RankJoker)
	}
	return deck
}

func shuffle(deck []Rank, rng *rand.Rand) {
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
}

// matches reports whether a card backs up a claim for the table rank.
func (r Rank) matches(table Rank) bool {
	return r == table || r == RankJoker
}
