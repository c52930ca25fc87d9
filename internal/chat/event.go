// Package chat turns lines from a streaming chat feed into room actions. The
// upstream transport (IRC, websocket bridge, replay file) is someone else's
// problem: this package consumes ordered ChatEvents and nothing more.
package chat

// Event is one chat line as delivered by the upstream bridge. IDs identify
// events for at-most-once handling; Timestamp is producer time in unix
// milliseconds.
type Event struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}
