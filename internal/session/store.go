// Package session tracks per-upload session state (template image, CSV,
// generated certificate paths) in Redis with an explicit TTL. Keeping
// this out of process memory lets multiple instances serve the same
// session and lets expiry clean up abandoned uploads.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound means the session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// DefaultTTL bounds how long an idle upload session survives.
const DefaultTTL = 30 * time.Minute

// State is everything tracked for one upload session.
type State struct {
	ID               string    `json:"id"`
	TemplatePath     string    `json:"templatePath,omitempty"`
	RecipientsCSV    string    `json:"recipientsCsv,omitempty"`
	CertificatesDir  string    `json:"certificatesDir,omitempty"`
	CertificatePaths []string  `json:"certificatePaths,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Store is a Redis-backed session registry.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a session store. ttl <= 0 uses DefaultTTL.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func key(id string) string { return "certmailer:session:" + id }

// Create registers a new session and returns its state.
func (s *Store) Create(ctx context.Context) (*State, error) {
	st := &State{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.write(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Get loads a session, refreshing nothing; the TTL keeps counting from
// the last write.
func (s *Store) Get(ctx context.Context, id string) (*State, error) {
	data, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &st, nil
}

// Save persists the state and resets the TTL.
func (s *Store) Save(ctx context.Context, st *State) error {
	if st.ID == "" {
		return errors.New("session id is empty")
	}
	return s.write(ctx, st)
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.rdb.Set(ctx, key(st.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}
