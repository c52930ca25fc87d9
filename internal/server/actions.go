package server

import (
	"fmt"

	"showdown-server/internal/room"
)

// parseAction translates a device ActionRequest into the room action it
// names. identity is the normalized identity of the requesting session.
func parseAction(identity string, req ActionRequest) (room.Action, error) {
	ref := room.ActorRef{ID: identity}

	switch req.Type {
	case "switch_role":
		role := room.Role(req.Role)
		if role != room.RoleParticipant && role != room.RoleController {
			return nil, fmt.Errorf("INVALID_ROLE: Unknown role '%s'", req.Role)
		}
		return room.SwitchRole{ActorRef: ref, Role: role}, nil
	case "select_game":
		if req.Game == "" {
			return nil, fmt.Errorf("INVALID_ACTION: select_game requires a game name")
		}
		return room.SelectGame{ActorRef: ref, Game: req.Game}, nil
	case "start":
		return room.Start{ActorRef: ref, Seed: req.Seed}, nil
	case "play_cards":
		if len(req.Positions) == 0 {
			return nil, fmt.Errorf("INVALID_ACTION: play_cards requires positions")
		}
		return room.PlayCards{ActorRef: ref, Positions: req.Positions}, nil
	case "challenge":
		return room.ChallengeLastPlay{ActorRef: ref}, nil
	case "resolve_elimination":
		return room.ResolveElimination{ActorRef: ref}, nil
	case "advance_turn":
		return room.AdvanceTurn{ActorRef: ref}, nil
	case "submit_guess":
		return room.SubmitGuess{ActorRef: ref, Number: req.Number, Word: req.Word}, nil
	case "start_round":
		return room.StartRound{ActorRef: ref, Mode: req.Mode}, nil
	case "close_round":
		return room.CloseRound{ActorRef: ref}, nil
	case "kick":
		if req.Target == "" {
			return nil, fmt.Errorf("INVALID_ACTION: kick requires a target")
		}
		return room.Kick{ActorRef: ref, Target: room.Normalize(req.Target)}, nil
	case "reset":
		return room.ResetRoom{ActorRef: ref, ClearRoster: req.ClearRoster}, nil
	case "timeout":
		return room.TimeoutElapsed{ActorRef: ref, Kind: req.Kind}, nil
	default:
		return nil, fmt.Errorf("INVALID_ACTION: Unknown action type '%s'", req.Type)
	}
}
