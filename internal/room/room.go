package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned by Submit/Subscribe/View once the room's action loop
// has shut down.
var ErrClosed = errors.New("ROOM_CLOSED: room is closed")

// subscriberBuffer bounds how far a single recipient may fall behind. A
// recipient must never observe a gap in versions, so when its buffer fills
// the subscriber is evicted (and may resubscribe) instead of skipping.
const subscriberBuffer = 64

// Player is one seat-holder known to a room. ConnRef is the id of the bound
// device connection; empty means known but currently disconnected, which
// preserves the seat for reconnect-by-name.
type Player struct {
	Identity    string
	DisplayName string
	Role        Role
	ConnRef     string
	JoinedAt    time.Time
}

type subscriber struct {
	id       string
	identity string
	ch       chan Snapshot
}

type viewReq struct {
	identity string
	reply    chan Snapshot
}

type envelope struct {
	act   Action
	reply chan error

	sub   *subscriber
	ack   chan struct{}
	unsub string

	view *viewReq
}

// Room is the authoritative state machine for one game session. All state is
// owned by the room's action loop goroutine; other goroutines interact only
// through Submit, Subscribe, Unsubscribe and View.
type Room struct {
	key      string
	game     Game
	gameName string
	factory  GameFactory
	hook     func(Result)

	players map[string]*Player
	order   []string // roster in join order
	seats   []string // active game seats, nil until a game starts
	phase   Phase
	turn    int // -1 when no active turn
	winner  string
	version uint64
	rng     *rand.Rand

	inbox chan envelope
	subs  map[string]*subscriber

	done      chan struct{}
	closeOnce sync.Once
}

func newRoom(key string, game Game, gameName string, factory GameFactory, hook func(Result)) *Room {
	return &Room{
		key:      key,
		game:     game,
		gameName: gameName,
		factory:  factory,
		hook:     hook,
		players:  make(map[string]*Player),
		phase:    PhaseWaiting,
		turn:     -1,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		inbox:    make(chan envelope, 64),
		subs:     make(map[string]*subscriber),
		done:     make(chan struct{}),
	}
}

func (r *Room) Key() string { return r.key }

// Close stops the action loop and closes every subscriber channel.
func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Submit queues one action and waits for the engine's verdict. A nil return
// means the action was accepted (possibly as a no-op); an error is a private
// rejection that never reaches the room broadcast.
func (r *Room) Submit(ctx context.Context, act Action) error {
	reply := make(chan error, 1)
	select {
	case r.inbox <- envelope{act: act, reply: reply}:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a snapshot recipient. The returned channel immediately
// yields the current snapshot, then every subsequent version in order.
func (r *Room) Subscribe(ctx context.Context, id, identity string) (<-chan Snapshot, error) {
	sub := &subscriber{id: id, identity: Normalize(identity), ch: make(chan Snapshot, subscriberBuffer)}
	ack := make(chan struct{})
	select {
	case r.inbox <- envelope{sub: sub, ack: ack}:
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case <-ack:
		return sub.ch, nil
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes a recipient and closes its channel. Safe to call for
// ids that were never subscribed or were already evicted.
func (r *Room) Unsubscribe(id string) {
	select {
	case r.inbox <- envelope{unsub: id}:
	case <-r.done:
	}
}

// View returns the current snapshot redacted for the given identity without
// mutating anything.
func (r *Room) View(ctx context.Context, identity string) (Snapshot, error) {
	req := &viewReq{identity: Normalize(identity), reply: make(chan Snapshot, 1)}
	select {
	case r.inbox <- envelope{view: req}:
	case <-r.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-r.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// run is the room's action loop. Exactly one instance per room; it is the
// only goroutine that ever touches room state.
func (r *Room) run() {
	for {
		select {
		case <-r.done:
			for id, sub := range r.subs {
				delete(r.subs, id)
				close(sub.ch)
			}
			return
		case env := <-r.inbox:
			r.handle(env)
		}
	}
}

func (r *Room) handle(env envelope) {
	switch {
	case env.sub != nil:
		// Replace any previous subscription under the same id.
		if old, ok := r.subs[env.sub.id]; ok {
			close(old.ch)
		}
		r.subs[env.sub.id] = env.sub
		env.sub.ch <- r.snapshotFor(env.sub.identity)
		if env.ack != nil {
			close(env.ack)
		}
	case env.unsub != "":
		if sub, ok := r.subs[env.unsub]; ok {
			delete(r.subs, env.unsub)
			close(sub.ch)
		}
	case env.view != nil:
		env.view.reply <- r.snapshotFor(env.view.identity)
	case env.act != nil:
		prev := r.phase
		changed, err := r.applyGuarded(env.act)
		if env.reply != nil {
			env.reply <- err
		}
		if err != nil || !changed {
			return
		}
		r.version++
		r.broadcast()
		if prev != PhaseGameOver && r.phase == PhaseGameOver && r.hook != nil {
			go r.hook(r.result())
		}
	}
}

// applyGuarded converts engine invariant panics into rejections so one bad
// action can never kill the loop for everyone else.
func (r *Room) applyGuarded(act Action) (changed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("room %s: INVARIANT VIOLATION applying %T: %v", r.key, act, rec)
			changed = false
			err = fmt.Errorf("INTERNAL: %v", rec)
		}
	}()
	return r.apply(act)
}

// apply mutates room state for one action. It returns changed=false for
// accepted no-ops (e.g. a duplicate join), which do not bump the version.
func (r *Room) apply(act Action) (bool, error) {
	switch a := act.(type) {
	case Join:
		return r.applyJoin(a)
	case Disconnect:
		return r.applyDisconnect(a)
	case Leave:
		return r.removePlayer(a.ID)
	case Kick:
		if err := r.requireController(a.ID); err != nil {
			return false, err
		}
		return r.removePlayer(Normalize(a.Target))
	case SwitchRole:
		return r.applySwitchRole(a)
	case SelectGame:
		return r.applySelectGame(a)
	case Start:
		return r.applyStart(a)
	case ResetRoom:
		return r.applyReset(a)
	case PlayCards, ChallengeLastPlay, ResolveElimination, AdvanceTurn,
		SubmitGuess, StartRound, CloseRound, TimeoutElapsed:
		return r.applyGame(act)
	default:
		return false, fmt.Errorf("UNKNOWN_ACTION: %T", act)
	}
}

func (r *Room) applyJoin(a Join) (bool, error) {
	if a.ID == "" {
		return false, errors.New("INVALID_NAME: display name cannot be empty")
	}
	if len(a.ID) > 30 {
		return false, errors.New("INVALID_NAME: display name too long (max 30 characters)")
	}
	p, exists := r.players[a.ID]
	if !exists {
		display := strings.TrimSpace(a.DisplayName)
		if display == "" {
			display = a.ID
		}
		r.players[a.ID] = &Player{
			Identity:    a.ID,
			DisplayName: display,
			Role:        RoleParticipant,
			ConnRef:     a.ConnRef,
			JoinedAt:    time.Now(),
		}
		r.order = append(r.order, a.ID)
		return true, nil
	}
	// Same identity again: rebind the connection ref, never a second player.
	changed := false
	if a.ConnRef != "" && p.ConnRef != a.ConnRef {
		p.ConnRef = a.ConnRef
		changed = true
	}
	return changed, nil
}

func (r *Room) applyDisconnect(a Disconnect) (bool, error) {
	p, ok := r.players[a.ID]
	if !ok {
		return false, nil
	}
	// A takeover may already have rebound the seat to a newer connection; a
	// stale close from the old one must not null the new binding.
	if p.ConnRef == "" || (a.ConnRef != "" && p.ConnRef != a.ConnRef) {
		return false, nil
	}
	p.ConnRef = ""
	return true, nil
}

func (r *Room) removePlayer(identity string) (bool, error) {
	if _, ok := r.players[identity]; !ok {
		return false, errors.New("NOT_IN_ROOM: no such player")
	}
	delete(r.players, identity)
	for i, id := range r.order {
		if id == identity {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.seatIndex(identity) >= 0 {
		t := r.table(false)
		t.RemoveSeat(identity)
		r.game.DropSeat(t, identity)
		r.commit(t)
		r.settleShrunkGame()
	}
	return true, nil
}

func (r *Room) applySwitchRole(a SwitchRole) (bool, error) {
	p, ok := r.players[a.ID]
	if !ok {
		return false, errors.New("NOT_IN_ROOM: join before switching roles")
	}
	if a.Role != RoleParticipant && a.Role != RoleController {
		return false, fmt.Errorf("INVALID_ROLE: %q", a.Role)
	}
	if p.Role == a.Role {
		return false, nil
	}
	p.Role = a.Role
	return true, nil
}

func (r *Room) applySelectGame(a SelectGame) (bool, error) {
	if err := r.requireController(a.ID); err != nil {
		return false, err
	}
	if r.phase != PhaseWaiting {
		return false, errors.New("WRONG_PHASE: cannot switch games mid-game")
	}
	game, err := r.factory(a.Game)
	if err != nil {
		return false, fmt.Errorf("UNKNOWN_GAME: %q", a.Game)
	}
	if r.gameName == game.Name() {
		return false, nil
	}
	r.game = game
	r.gameName = game.Name()
	return true, nil
}

func (r *Room) applyStart(a Start) (bool, error) {
	if _, ok := r.players[a.ID]; !ok {
		return false, errors.New("NOT_IN_ROOM: join before starting")
	}
	if r.phase != PhaseWaiting {
		return false, errors.New("WRONG_PHASE: game already started")
	}
	var seats []string
	for _, id := range r.order {
		if r.players[id].Role == RoleParticipant {
			seats = append(seats, id)
		}
	}
	if len(seats) < r.game.MinPlayers() {
		return false, fmt.Errorf("NOT_ENOUGH_PLAYERS: need at least %d, have %d",
			r.game.MinPlayers(), len(seats))
	}
	seed := a.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r.rng = rand.New(rand.NewSource(seed))
	t := &Table{Phase: PhasePlaying, Seats: seats, Turn: 0, Rand: r.rng}
	if err := r.game.Begin(t); err != nil {
		return false, err
	}
	r.commit(t)
	return true, nil
}

func (r *Room) applyReset(a ResetRoom) (bool, error) {
	if err := r.requireController(a.ID); err != nil {
		return false, err
	}
	game, err := r.factory(r.gameName)
	if err != nil {
		return false, fmt.Errorf("INTERNAL: rebuilding game %q: %v", r.gameName, err)
	}
	r.game = game
	r.phase = PhaseWaiting
	r.seats = nil
	r.turn = -1
	r.winner = ""
	if a.ClearRoster {
		r.players = make(map[string]*Player)
		r.order = nil
	}
	return true, nil
}

func (r *Room) applyGame(act Action) (bool, error) {
	p, ok := r.players[act.Actor()]
	if !ok {
		return false, errors.New("NOT_IN_ROOM: join first")
	}
	if r.seats == nil || r.phase == PhaseWaiting {
		return false, errors.New("WRONG_PHASE: game has not started")
	}
	if r.phase == PhaseGameOver {
		return false, errors.New("WRONG_PHASE: game is over")
	}
	t := r.table(p.Role == RoleController)
	if err := r.game.Apply(t, act.Actor(), act); err != nil {
		return false, err
	}
	r.commit(t)
	return true, nil
}

func (r *Room) requireController(identity string) error {
	p, ok := r.players[identity]
	if !ok {
		return errors.New("NOT_IN_ROOM: join first")
	}
	if p.Role != RoleController {
		return errors.New("NOT_CONTROLLER: controller role required")
	}
	return nil
}

func (r *Room) seatIndex(identity string) int {
	for i, s := range r.seats {
		if s == identity {
			return i
		}
	}
	return -1
}

// table copies the engine-owned fields a variant may mutate. Rejected actions
// throw the copy away, so they cannot leave partial state behind.
func (r *Room) table(privileged bool) *Table {
	seats := make([]string, len(r.seats))
	copy(seats, r.seats)
	return &Table{
		Phase:      r.phase,
		Seats:      seats,
		Turn:       r.turn,
		Winner:     r.winner,
		Rand:       r.rng,
		Privileged: privileged,
	}
}

func (r *Room) commit(t *Table) {
	r.phase = t.Phase
	r.seats = t.Seats
	r.turn = t.Turn
	r.winner = t.Winner
	assertf(r.turn == -1 || (r.turn >= 0 && r.turn < len(r.seats)),
		"turn pointer %d out of range for %d seats", r.turn, len(r.seats))
}

// settleShrunkGame ends the game when a roster removal leaves fewer than two
// active seats. Variants usually do this themselves on elimination; this
// covers leaves and kicks mid-game.
func (r *Room) settleShrunkGame() {
	if r.phase == PhaseWaiting || r.phase == PhaseGameOver {
		return
	}
	if len(r.seats) > 1 {
		return
	}
	if len(r.seats) == 1 {
		r.winner = r.seats[0]
	}
	r.phase = PhaseGameOver
	r.turn = -1
}

func (r *Room) broadcast() {
	for id, sub := range r.subs {
		snap := r.snapshotFor(sub.identity)
		select {
		case sub.ch <- snap:
		default:
			// The recipient fell too far behind. Skipping versions is not
			// allowed, so evict it; the session will notice and reconnect.
			log.Printf("room %s: evicting slow subscriber %s at version %d", r.key, id, r.version)
			delete(r.subs, id)
			close(sub.ch)
		}
	}
}

// snapshotFor is the redaction point: the only place a per-recipient view of
// canonical state is produced.
func (r *Room) snapshotFor(identity string) Snapshot {
	players := make([]PlayerView, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		players = append(players, PlayerView{
			Identity:    p.Identity,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			Connected:   p.ConnRef != "",
			IsYou:       p.Identity == identity,
		})
	}
	var turn *int
	if r.turn >= 0 {
		v := r.turn
		turn = &v
	}
	var seats []string
	if r.seats != nil {
		seats = make([]string, len(r.seats))
		copy(seats, r.seats)
	}
	role := RoleParticipant
	if p, ok := r.players[identity]; ok {
		role = p.Role
	}
	var payload any
	if r.seats != nil {
		payload = r.game.View(identity, role)
	}
	return Snapshot{
		Version:     r.version,
		Room:        r.key,
		Game:        r.gameName,
		Phase:       r.phase,
		Turn:        turn,
		Seats:       seats,
		Players:     players,
		Payload:     payload,
		Winner:      r.winner,
		RedactedFor: identity,
	}
}

func (r *Room) result() Result {
	players := make([]string, len(r.order))
	copy(players, r.order)
	return Result{
		RoomKey:    r.key,
		Game:       r.gameName,
		Winner:     r.winner,
		Players:    players,
		Version:    r.version,
		FinishedAt: time.Now(),
	}
}
