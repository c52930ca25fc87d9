package server

// ErrorMessage is sent to the client when a request fails.
// Code carries the stable machine-readable prefix from the error string.
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type JoinRoomRequest struct {
	RoomKey     string `json:"room_key"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
}

type JoinRoomResponse struct {
	RoomKey  string `json:"room_key"`
	Token    string `json:"token"`
	Identity string `json:"identity"`
}

type ReconnectRequest struct {
	Token string `json:"token"`
}

type ReconnectResponse struct {
	RoomKey     string `json:"room_key"`
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
}

// ActionRequest is the generic in-room action frame. Type selects the
// action and the remaining fields are read as that action requires.
type ActionRequest struct {
	Type        string `json:"type"`
	Positions   []int  `json:"positions,omitempty"`
	Number      int    `json:"number,omitempty"`
	Word        string `json:"word,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Target      string `json:"target,omitempty"`
	Game        string `json:"game,omitempty"`
	Role        string `json:"role,omitempty"`
	Seed        int64  `json:"seed,omitempty"`
	ClearRoster bool   `json:"clear_roster,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

type ActionResultResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}
