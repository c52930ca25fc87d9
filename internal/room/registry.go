package room

import (
	"fmt"
	"sync"
)

// Registry owns the set of live rooms. It is constructed once at process
// start and injected into the transport layer; rooms live until Remove or
// CloseAll, never garbage-collected implicitly.
type Registry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	factory     GameFactory
	defaultGame string
	hook        func(Result)
}

func NewRegistry(factory GameFactory, defaultGame string) (*Registry, error) {
	// Fail fast if the default variant cannot be built.
	if _, err := factory(defaultGame); err != nil {
		return nil, fmt.Errorf("default game %q: %w", defaultGame, err)
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		factory:     factory,
		defaultGame: defaultGame,
	}, nil
}

// OnGameOver installs a hook invoked (on its own goroutine) whenever any room
// reaches the gameover phase. Set it before the registry starts serving.
func (reg *Registry) OnGameOver(h func(Result)) {
	reg.hook = h
}

// GetOrCreate returns the room for key, creating and starting it on first
// use. Creation is idempotent: concurrent calls for the same unseen key yield
// exactly one room.
func (reg *Registry) GetOrCreate(key string) *Room {
	key = Normalize(key)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[key]; ok {
		return r
	}
	game, err := reg.factory(reg.defaultGame)
	if err != nil {
		// NewRegistry verified the default factory; this cannot fail.
		panic(fmt.Sprintf("registry: default game %q: %v", reg.defaultGame, err))
	}
	r := newRoom(key, game, reg.defaultGame, reg.factory, reg.hook)
	reg.rooms[key] = r
	go r.run()
	return r
}

func (reg *Registry) Get(key string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[Normalize(key)]
	return r, ok
}

// Remove evicts and closes a room. Explicit administrative action only.
func (reg *Registry) Remove(key string) bool {
	key = Normalize(key)
	reg.mu.Lock()
	r, ok := reg.rooms[key]
	delete(reg.rooms, key)
	reg.mu.Unlock()
	if ok {
		r.Close()
	}
	return ok
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// CloseAll shuts down every room. Used during graceful shutdown.
func (reg *Registry) CloseAll() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()
	for _, r := range rooms {
		r.Close()
	}
}
