package liars

import "showdown-server/internal/room"

// PlayView is a claim as recipients see it: the card faces only once the
// play has been revealed by a challenge.
type PlayView struct {
	By    string `json:"by"`
	Count int    `json:"count"`
	Cards []Rank `json:"cards,omitempty"`
}

// View is the per-recipient projection of the payload. Participants see
// their own hand and everyone's counts; the controller sees every hand.
type View struct {
	TableRank  Rank              `json:"tableRank"`
	HandCounts map[string]int    `json:"handCounts"`
	YourHand   []Rank            `json:"yourHand,omitempty"`
	Hands      map[string][]Rank `json:"hands,omitempty"`
	LastPlay   *PlayView         `json:"lastPlay,omitempty"`
	Revealed   *PlayView         `json:"revealed,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Attempts   int               `json:"attempts"`
	Outcome    *Outcome          `json:"outcome,omitempty"`
}

func (g *Game) View(recipient string, role room.Role) any {
	v := View{
		TableRank:  g.TableRank,
		HandCounts: make(map[string]int, len(g.Hands)),
		Subject:    g.Subject,
		Attempts:   g.Attempts,
	}
	for id, hand := range g.Hands {
		v.HandCounts[id] = len(hand)
	}
	if hand, ok := g.Hands[recipient]; ok {
		v.YourHand = copyRanks(hand)
	}
	if role == room.RoleController {
		v.Hands = make(map[string][]Rank, len(g.Hands))
		for id, hand := range g.Hands {
			v.Hands[id] = copyRanks(hand)
		}
	}
	if g.LastPlay != nil {
		v.LastPlay = &PlayView{By: g.LastPlay.By, Count: g.LastPlay.Count}
		if role == room.RoleController {
			v.LastPlay.Cards = copyRanks(g.LastPlay.Cards)
		}
	}
	if g.Revealed != nil {
		v.Revealed = &PlayView{
			By:    g.Revealed.By,
			Count: g.Revealed.Count,
			Cards: copyRanks(g.Revealed.Cards),
		}
	}
	if g.Outcome != nil {
		out := *g.Outcome
		v.Outcome = &out
	}
	return v
}

func copyRanks(in []Rank) []Rank {
	out := make([]Rank, len(in))
	copy(out, in)
	return out
}
