// Package kv provides the small durable key-value slot store the client
// keeps its secrets in.
//
// Keys are hierarchical paths such as Key{"credential", "gemini"}, stored
// as "credential:gemini". Badger backs the on-disk store; Memory serves
// ephemeral sessions and tests.
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// ErrInvalidKey is returned for empty keys or segments containing the
// separator.
var ErrInvalidKey = errors.New("kv: invalid key")

const separator = ":"

type Key []string

func (k Key) String() string {
	return strings.Join(k, separator)
}

func (k Key) encode() ([]byte, error) {
	if len(k) == 0 {
		return nil, ErrInvalidKey
	}
	for _, seg := range k {
		if seg == "" || strings.Contains(seg, separator) {
			return nil, ErrInvalidKey
		}
	}
	return []byte(k.String()), nil
}

type Store interface {
	// Get returns the value of key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	Close() error
}
