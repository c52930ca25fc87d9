package chat

import (
	"context"
	"log"
	"sync"

	"github.com/samber/lo"

	"showdown-server/internal/room"
)

// seenCap bounds the dedupe window. Upstream IDs repeat only on redelivery,
// which happens close to the original, so a sliding window is enough.
const seenCap = 2048

// Limiter throttles per-author event bursts. The server wires in its
// sliding-window rate limiter.
type Limiter interface {
	Allow(key string) bool
}

// Feed pumps one room's chat events through the interpreter. Duplicate event
// IDs are dropped (at-most-once), floods are rate limited per author, and
// rejected actions are swallowed: chat has no backchannel for errors.
type Feed struct {
	room    *room.Room
	interp  *Interpreter
	limiter Limiter

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func NewFeed(rm *room.Room, interp *Interpreter, limiter Limiter) *Feed {
	return &Feed{
		room:    rm,
		interp:  interp,
		limiter: limiter,
		seen:    make(map[string]struct{}),
	}
}

// Handle processes one event end to end: dedupe, rate limit, interpret
// against the author's current view, submit.
func (f *Feed) Handle(ctx context.Context, ev Event) {
	if ev.ID != "" && f.duplicate(ev.ID) {
		return
	}
	author := room.Normalize(ev.Author)
	if author == "" {
		return
	}
	if f.limiter != nil && !f.limiter.Allow(f.room.Key()+"/"+author) {
		return
	}
	view, err := f.room.View(ctx, ev.Author)
	if err != nil {
		return
	}
	act, ok := f.interp.Interpret(ev, view)
	if !ok {
		return
	}
	if err := f.room.Submit(ctx, act); err != nil {
		// Out-of-phase commands from chat are normal; drop them quietly.
		log.Printf("chat %s: dropped %T from %s: %v", f.room.Key(), act, author, err)
	}
}

func (f *Feed) duplicate(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[id]; ok {
		return true
	}
	f.seen[id] = struct{}{}
	f.order = append(f.order, id)
	if len(f.order) > seenCap {
		delete(f.seen, f.order[0])
		f.order = lo.Drop(f.order, 1)
	}
	return false
}
