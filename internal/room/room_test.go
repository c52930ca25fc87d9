package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// stubGame is a minimal variant for exercising the engine: any PlayCards by
// the turn holder advances the turn, anything else is rejected.
type stubGame struct{}

func (stubGame) Name() string                       { return "stub" }
func (stubGame) MinPlayers() int                    { return 2 }
func (stubGame) Begin(t *Table) error               { return nil }
func (stubGame) DropSeat(t *Table, identity string) {}

func (stubGame) Apply(t *Table, actor string, act Action) error {
	switch act.(type) {
	case PlayCards:
		if actor != t.TurnHolder() {
			return errors.New("NOT_YOUR_TURN: wait for your turn")
		}
		t.Turn = (t.Turn + 1) % len(t.Seats)
		return nil
	default:
		return errors.New("INVALID_ACTION: stub only plays cards")
	}
}

func (stubGame) View(recipient string, role Role) any {
	return map[string]string{"secret": "for-" + recipient}
}

func stubFactory(name string) (Game, error) {
	if name != "stub" {
		return nil, fmt.Errorf("unknown game %q", name)
	}
	return stubGame{}, nil
}

func setupTestRoom(t *testing.T) (*Registry, *Room) {
	t.Helper()
	reg, err := NewRegistry(stubFactory, "stub")
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	rm := reg.GetOrCreate("abc123")
	t.Cleanup(reg.CloseAll)
	return reg, rm
}

func mustSubmit(t *testing.T, rm *Room, act Action) {
	t.Helper()
	if err := rm.Submit(context.Background(), act); err != nil {
		t.Fatalf("Submit(%T) failed: %v", act, err)
	}
}

func expectSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("snapshot channel closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func expectNoSnapshot(t *testing.T, ch <-chan Snapshot) {
	t.Helper()
	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot version %d", snap.Version)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRoom_JoinIsIdempotent(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	ch, err := rm.Subscribe(ctx, "watcher", "watcher")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	first := expectSnapshot(t, ch) // current state on subscribe
	if first.Version != 0 {
		t.Fatalf("expected version 0 on subscribe, got %d", first.Version)
	}

	mustSubmit(t, rm, Join{ActorRef: Actor("Alice"), DisplayName: "Alice", ConnRef: "c1"})
	snap := expectSnapshot(t, ch)
	if snap.Version != 1 {
		t.Fatalf("expected version 1 after join, got %d", snap.Version)
	}
	if len(snap.Players) != 1 || snap.Players[0].Identity != "alice" {
		t.Fatalf("expected single player alice, got %+v", snap.Players)
	}

	// Same identity, same connection: accepted no-op. No broadcast, no
	// version bump, still exactly one alice.
	mustSubmit(t, rm, Join{ActorRef: Actor("alice"), DisplayName: "alice", ConnRef: "c1"})
	expectNoSnapshot(t, ch)

	view, err := rm.View(ctx, "alice")
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if view.Version != 1 {
		t.Fatalf("duplicate join bumped version to %d", view.Version)
	}
	if len(view.Players) != 1 {
		t.Fatalf("duplicate join created a second player: %+v", view.Players)
	}
}

func TestRoom_JoinRebindsConnection(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	mustSubmit(t, rm, Join{ActorRef: Actor("alice"), DisplayName: "alice", ConnRef: "c1"})
	mustSubmit(t, rm, Disconnect{ActorRef: Actor("alice"), ConnRef: "c1"})

	view, _ := rm.View(ctx, "alice")
	if view.Players[0].Connected {
		t.Fatal("expected alice disconnected after Disconnect")
	}

	// Rejoin under a differently-cased name binds the same seat.
	mustSubmit(t, rm, Join{ActorRef: Actor("  ALICE "), DisplayName: "ALICE", ConnRef: "c2"})
	view, _ = rm.View(ctx, "alice")
	if len(view.Players) != 1 {
		t.Fatalf("rejoin created a second player: %+v", view.Players)
	}
	if !view.Players[0].Connected {
		t.Fatal("expected alice connected after rebind")
	}
}

func TestRoom_StaleDisconnectIgnored(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	mustSubmit(t, rm, Join{ActorRef: Actor("alice"), DisplayName: "alice", ConnRef: "c1"})
	// Takeover: a second device binds the seat.
	mustSubmit(t, rm, Join{ActorRef: Actor("alice"), DisplayName: "alice", ConnRef: "c2"})
	// The old device's close arrives late. It must not null the new binding.
	mustSubmit(t, rm, Disconnect{ActorRef: Actor("alice"), ConnRef: "c1"})

	view, _ := rm.View(ctx, "alice")
	if !view.Players[0].Connected {
		t.Fatal("stale disconnect unbound the new connection")
	}
}

func TestRoom_RejectedActionDoesNotBroadcast(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	mustSubmit(t, rm, Join{ActorRef: Actor("alice"), DisplayName: "alice", ConnRef: "c1"})

	ch, err := rm.Subscribe(ctx, "watcher", "alice")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	before := expectSnapshot(t, ch)

	// Only one participant: Start must be rejected and nothing broadcast.
	err = rm.Submit(ctx, Start{ActorRef: Actor("alice")})
	if err == nil || !strings.HasPrefix(err.Error(), "NOT_ENOUGH_PLAYERS") {
		t.Fatalf("expected NOT_ENOUGH_PLAYERS, got %v", err)
	}
	expectNoSnapshot(t, ch)

	after, _ := rm.View(ctx, "alice")
	if after.Version != before.Version {
		t.Fatalf("rejected action bumped version %d -> %d", before.Version, after.Version)
	}
}

func TestRoom_StartAndTurnRotation(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	mustSubmit(t, rm, Join{ActorRef: Actor("alice"), DisplayName: "alice", ConnRef: "c1"})
	mustSubmit(t, rm, Join{ActorRef: Actor("bob"), DisplayName: "bob", ConnRef: "c2"})
	mustSubmit(t, rm, Start{ActorRef: Actor("alice")})

	view, _ := rm.View(ctx, "alice")
	if view.Phase != PhasePlaying {
		t.Fatalf("expected playing phase, got %s", view.Phase)
	}
	if view.Turn == nil || *view.Turn != 0 {
		t.Fatalf("expected turn pointer 0, got %v", view.Turn)
	}

	// Out of turn: bob acts while the pointer is on alice.
	err := rm.Submit(ctx, PlayCards{ActorRef: Actor("bob"), Positions: []int{1}})
	if err == nil || !strings.HasPrefix(err.Error(), "NOT_YOUR_TURN") {
		t.Fatalf("expected NOT_YOUR_TURN, got %v", err)
	}
	after, _ := rm.View(ctx, "alice")
	if after.Version != view.Version {
		t.Fatal("rejected out-of-turn action bumped version")
	}

	// In turn: alice acts, version bumps, pointer advances to 1.
	mustSubmit(t, rm, PlayCards{ActorRef: Actor("alice"), Positions: []int{1}})
	after, _ = rm.View(ctx, "alice")
	if after.Version != view.Version+1 {
		t.Fatalf("expected version %d, got %d", view.Version+1, after.Version)
	}
	if after.Turn == nil || *after.Turn != 1 {
		t.Fatalf("expected turn pointer 1, got %v", after.Turn)
	}
}

func TestRoom_TurnPointerValidAfterLeave(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol"} {
		mustSubmit(t, rm, Join{ActorRef: Actor(name), DisplayName: name, ConnRef: "c-" + name})
	}
	mustSubmit(t, rm, Start{ActorRef: Actor("alice")})
	mustSubmit(t, rm, PlayCards{ActorRef: Actor("alice"), Positions: []int{1}})
	mustSubmit(t, rm, PlayCards{ActorRef: Actor("bob"), Positions: []int{1}})

	// Pointer is on carol (index 2). Carol leaves mid-turn; the pointer must
	// land on a still-active seat, never past the end of the shrunk list.
	mustSubmit(t, rm, Leave{ActorRef: Actor("carol")})

	view, _ := rm.View(ctx, "alice")
	if len(view.Seats) != 2 {
		t.Fatalf("expected 2 seats after leave, got %v", view.Seats)
	}
	if view.Turn == nil || *view.Turn < 0 || *view.Turn >= len(view.Seats) {
		t.Fatalf("turn pointer %v invalid for seats %v", view.Turn, view.Seats)
	}
}

func TestRoom_LeaveShrinksToWinner(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	mustSubmit(t, rm, Join{ActorRef: Actor("alice"), DisplayName: "alice", ConnRef: "c1"})
	mustSubmit(t, rm, Join{ActorRef: Actor("bob"), DisplayName: "bob", ConnRef: "c2"})
	mustSubmit(t, rm, Start{ActorRef: Actor("alice")})
	mustSubmit(t, rm, Leave{ActorRef: Actor("bob")})

	view, _ := rm.View(ctx, "alice")
	if view.Phase != PhaseGameOver {
		t.Fatalf("expected gameover after shrink to one seat, got %s", view.Phase)
	}
	if view.Winner != "alice" {
		t.Fatalf("expected alice to win by default, got %q", view.Winner)
	}
}

func TestRoom_ControllerGates(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	mustSubmit(t, rm, Join{ActorRef: Actor("alice"), DisplayName: "alice", ConnRef: "c1"})

	err := rm.Submit(ctx, SelectGame{ActorRef: Actor("alice"), Game: "stub"})
	if err == nil || !strings.HasPrefix(err.Error(), "NOT_CONTROLLER") {
		t.Fatalf("expected NOT_CONTROLLER, got %v", err)
	}

	mustSubmit(t, rm, SwitchRole{ActorRef: Actor("alice"), Role: RoleController})
	// Selecting the same game as controller is an accepted no-op.
	if err := rm.Submit(ctx, SelectGame{ActorRef: Actor("alice"), Game: "stub"}); err != nil {
		t.Fatalf("controller SelectGame failed: %v", err)
	}
}

func TestRoom_ResetReturnsToWaiting(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	mustSubmit(t, rm, Join{ActorRef: Actor("alice"), DisplayName: "alice", ConnRef: "c1"})
	mustSubmit(t, rm, Join{ActorRef: Actor("bob"), DisplayName: "bob", ConnRef: "c2"})
	mustSubmit(t, rm, Join{ActorRef: Actor("streamer"), DisplayName: "streamer", ConnRef: "c3"})
	mustSubmit(t, rm, SwitchRole{ActorRef: Actor("streamer"), Role: RoleController})
	mustSubmit(t, rm, Start{ActorRef: Actor("alice")})
	mustSubmit(t, rm, ResetRoom{ActorRef: Actor("streamer")})

	view, _ := rm.View(ctx, "alice")
	if view.Phase != PhaseWaiting {
		t.Fatalf("expected waiting after reset, got %s", view.Phase)
	}
	if view.Seats != nil {
		t.Fatalf("expected no seats after reset, got %v", view.Seats)
	}
	if len(view.Players) != 3 {
		t.Fatalf("reset without ClearRoster dropped players: %+v", view.Players)
	}

	mustSubmit(t, rm, ResetRoom{ActorRef: Actor("streamer"), ClearRoster: true})
	view, _ = rm.View(ctx, "alice")
	if len(view.Players) != 0 {
		t.Fatalf("expected empty roster after ClearRoster, got %+v", view.Players)
	}
}

func TestRoom_SnapshotVersionsAreContiguous(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	ch, err := rm.Subscribe(ctx, "watcher", "watcher")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	const joins = 40
	var wg sync.WaitGroup
	for i := 0; i < joins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("player%02d", i)
			if err := rm.Submit(ctx, Join{ActorRef: Actor(name), DisplayName: name, ConnRef: "c-" + name}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	last := expectSnapshot(t, ch).Version
	for i := 0; i < joins; i++ {
		snap := expectSnapshot(t, ch)
		if snap.Version != last+1 {
			t.Fatalf("version gap: %d followed %d", snap.Version, last)
		}
		last = snap.Version
	}
	if last != joins {
		t.Fatalf("expected final version %d, got %d", joins, last)
	}
}

func TestRoom_SlowSubscriberEvictedNotSkipped(t *testing.T) {
	_, rm := setupTestRoom(t)
	ctx := context.Background()

	ch, err := rm.Subscribe(ctx, "slow", "slow")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Never read while far more versions than the buffer are produced.
	for i := 0; i < subscriberBuffer+20; i++ {
		name := fmt.Sprintf("p%03d", i)
		mustSubmit(t, rm, Join{ActorRef: Actor(name), DisplayName: name, ConnRef: "c"})
	}

	// The channel must be closed (eviction), and everything buffered before
	// the eviction must still be a contiguous prefix.
	var versions []uint64
	for snap := range ch {
		versions = append(versions, snap.Version)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least the subscribe-time snapshot")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] != versions[i-1]+1 {
			t.Fatalf("gap in delivered versions: %v", versions)
		}
	}
}

func TestRoom_SubmitAfterClose(t *testing.T) {
	_, rm := setupTestRoom(t)
	rm.Close()

	err := rm.Submit(context.Background(), Join{ActorRef: Actor("alice"), DisplayName: "alice"})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	reg, err := NewRegistry(stubFactory, "stub")
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	t.Cleanup(reg.CloseAll)

	const callers = 50
	rooms := make([]*Room, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = reg.GetOrCreate("Shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if rooms[i] != rooms[0] {
			t.Fatal("concurrent GetOrCreate returned distinct rooms for one key")
		}
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 room, got %d", reg.Len())
	}
	// Key lookup is case-insensitive.
	if _, ok := reg.Get("shared"); !ok {
		t.Fatal("normalized key lookup failed")
	}
}

func TestRegistry_UnknownDefaultGame(t *testing.T) {
	if _, err := NewRegistry(stubFactory, "nope"); err == nil {
		t.Fatal("expected error for unknown default game")
	}
}
