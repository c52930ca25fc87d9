// Package history archives finished matches to PostgreSQL. It is an optional
// sidecar: a nil *Store is a valid no-op, and live room state stays purely in
// memory either way.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"showdown-server/internal/room"
)

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id          BIGSERIAL PRIMARY KEY,
	room_key    TEXT        NOT NULL,
	game        TEXT        NOT NULL,
	winner      TEXT        NOT NULL,
	players     TEXT[]      NOT NULL,
	version     BIGINT      NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS matches_room_key_idx ON matches (room_key, finished_at DESC);
`

type Store struct {
	pool *pgxpool.Pool
}

// Match is one archived game.
type Match struct {
	RoomKey    string    `json:"roomKey"`
	Game       string    `json:"game"`
	Winner     string    `json:"winner,omitempty"`
	Players    []string  `json:"players"`
	Version    uint64    `json:"version"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Open connects, verifies the connection and ensures the schema.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to history database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging history database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring history schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s == nil {
		return
	}
	s.pool.Close()
}

// SaveResult archives the outcome of a finished room.
func (s *Store) SaveResult(ctx context.Context, res room.Result) error {
	if s == nil {
		return nil
	}
	return s.SaveMatch(ctx, Match{
		RoomKey:    res.RoomKey,
		Game:       res.Game,
		Winner:     res.Winner,
		Players:    res.Players,
		Version:    res.Version,
		FinishedAt: res.FinishedAt,
	})
}

func (s *Store) SaveMatch(ctx context.Context, m Match) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO matches (room_key, game, winner, players, version, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.RoomKey, m.Game, m.Winner, m.Players, int64(m.Version), m.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("saving match for room %s: %w", m.RoomKey, err)
	}
	return nil
}

// RecentMatches returns the latest archived matches for one room, newest
// first.
func (s *Store) RecentMatches(ctx context.Context, roomKey string, limit int) ([]Match, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT room_key, game, winner, players, version, finished_at
		 FROM matches WHERE room_key = $1
		 ORDER BY finished_at DESC LIMIT $2`,
		roomKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying matches for room %s: %w", roomKey, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var version int64
		if err := rows.Scan(&m.RoomKey, &m.Game, &m.Winner, &m.Players, &version, &m.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		m.Version = uint64(version)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match rows: %w", err)
	}
	return matches, nil
}
