package killswitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spendgate/spendgate/internal/db"
)

// store is the consumer interface for flag persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// Flag is the persisted kill-switch record for one scope.
type Flag struct {
	Scope       string    `json:"scope"`
	Reason      string    `json:"reason"`
	ActivatedAt time.Time `json:"activated_at"`
}

// Store persists kill-switch flags at {prefix}kill:{scope}. Flags have no
// TTL: only an explicit administrative reset clears them.
type Store struct {
	store  store
	prefix string
}

// New creates a kill-switch flag store.
func New(s store, prefix string) *Store {
	return &Store{store: s, prefix: prefix}
}

// Get loads the flag for scope. Returns (zero, false, nil) when absent.
func (s *Store) Get(ctx context.Context, scope string) (Flag, bool, error) {
	data, err := s.store.Get(ctx, s.key(scope))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Flag{}, false, nil
		}
		return Flag{}, false, fmt.Errorf("killswitch get %s: %w", scope, err)
	}

	var f Flag
	if err := json.Unmarshal(data, &f); err != nil {
		return Flag{}, false, fmt.Errorf("killswitch get %s decode: %w", scope, err)
	}
	return f, true, nil
}

// Put persists the flag for its scope.
func (s *Store) Put(ctx context.Context, f Flag) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("killswitch put %s encode: %w", f.Scope, err)
	}
	if err := s.store.Set(ctx, s.key(f.Scope), data); err != nil {
		return fmt.Errorf("killswitch put %s: %w", f.Scope, err)
	}
	return nil
}

// Delete removes the flag for scope.
func (s *Store) Delete(ctx context.Context, scope string) error {
	if err := s.store.Del(ctx, s.key(scope)); err != nil {
		return fmt.Errorf("killswitch delete %s: %w", scope, err)
	}
	return nil
}

func (s *Store) key(scope string) string {
	return s.prefix + "kill:" + scope
}
