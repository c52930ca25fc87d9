package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"showdown-server/internal/chat"
	"showdown-server/internal/config"
	"showdown-server/internal/guess"
	"showdown-server/internal/history"
	"showdown-server/internal/liars"
	"showdown-server/internal/room"
)

// Server holds all shared state for the websocket API: the room registry,
// connection and session tracking, and the per-room chat feeds.
type Server struct {
	cfg      config.Config
	registry *room.Registry

	connections *ConnectionManager
	sessions    *SessionManager
	history     *history.Store
	interp      *chat.Interpreter

	connLimiter *RateLimiter
	chatLimiter *RateLimiter

	feedsMu sync.Mutex
	feeds   map[string]*chat.Feed
}

// gameFactory builds the variant a room asked for.
func gameFactory(name string) (room.Game, error) {
	switch name {
	case "liars":
		return liars.New(), nil
	case "guess":
		return guess.New(), nil
	default:
		return nil, fmt.Errorf("unknown game %q", name)
	}
}

// NewServer wires the application together and returns both the Server and
// the http.Server ready to listen.
func NewServer(ctx context.Context, cfg config.Config) (*Server, *http.Server, error) {
	registry, err := room.NewRegistry(gameFactory, cfg.DefaultGame)
	if err != nil {
		return nil, nil, fmt.Errorf("creating registry: %w", err)
	}

	var store *history.Store
	if cfg.DatabaseURL != "" {
		store, err = history.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening history store: %w", err)
		}
		log.Println("Match history archive enabled")
	} else {
		log.Println("DATABASE_URL not set, match history disabled")
	}

	s := &Server{
		cfg:         cfg,
		registry:    registry,
		connections: NewConnectionManager(),
		sessions:    NewSessionManager(),
		history:     store,
		interp:      chat.DefaultInterpreter(),
		connLimiter: NewRateLimiter(cfg.ConnRateLimit, time.Second),
		chatLimiter: NewRateLimiter(cfg.ChatRateLimit, time.Duration(cfg.ChatRateWindow)*time.Second),
		feeds:       make(map[string]*chat.Feed),
	}

	// Disconnected clients leave stale rate limit entries behind.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.connLimiter.Cleanup()
				s.chatLimiter.Cleanup()
			}
		}
	}()

	registry.OnGameOver(func(res room.Result) {
		if s.history == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.history.SaveResult(ctx, res); err != nil {
			log.Printf("Failed to archive match for room %s: %v", res.RoomKey, err)
		}
	})

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.corsMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}
	return s, httpServer, nil
}

// feedFor returns the chat feed for a room, creating it on first use. Feeds
// share one interpreter; each binds the room it routes into.
func (s *Server) feedFor(rm *room.Room) *chat.Feed {
	s.feedsMu.Lock()
	defer s.feedsMu.Unlock()
	if f, ok := s.feeds[rm.Key()]; ok {
		return f
	}
	f := chat.NewFeed(rm, s.interp, s.chatLimiter)
	s.feeds[rm.Key()] = f
	return f
}

// Shutdown closes every room and the history store. The http.Server is shut
// down by the caller first so no new websockets arrive mid-close.
func (s *Server) Shutdown() {
	s.registry.CloseAll()
	if s.history != nil {
		s.history.Close()
	}
}
