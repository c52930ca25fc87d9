package server

import "encoding/json"

// ClientMessage is the envelope for all frames received over the websocket.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage is the envelope for all frames sent to clients.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
