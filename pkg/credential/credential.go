// Package credential keeps the single API key the client authenticates
// with and decides which key a session starts from.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/guide/pkg/kv"
)

var (
	// ErrInitialization is returned when a key is rejected by the backend
	// or a client cannot be built from it.
	ErrInitialization = errors.New("credential: initialization failed")

	// ErrNoKey is returned when no source provides a key.
	ErrNoKey = errors.New("credential: no api key")
)

// DefaultKey is the slot the Gemini key is stored under.
var DefaultKey = kv.Key{"credential", "gemini"}

// Record is the stored form of a key.
type Record struct {
	Key     string    `msgpack:"key"`
	SavedAt time.Time `msgpack:"saved_at"`
}

// Store persists one key in a kv slot.
type Store struct {
	kv  kv.Store
	key kv.Key
	now func() time.Time
}

func NewStore(s kv.Store) *Store {
	return &Store{kv: s, key: DefaultKey, now: time.Now}
}

// Load returns the stored record, or kv.ErrNotFound.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("credential: decode %s: %w", s.key, err)
	}
	if rec.Key == "" {
		return nil, kv.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) Save(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrNoKey
	}
	data, err := msgpack.Marshal(&Record{Key: key, SavedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("credential: encode: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("credential: save: %w", err)
	}
	return nil
}

// Forget removes the stored key. Forgetting an empty slot is not an error.
func (s *Store) Forget(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("credential: forget: %w", err)
	}
	return nil
}

// Mask hides all but the last four characters of key.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}
