// Package storage defines where letter records live. Memory is the in-process
// fallback; SQLite and Pebble are durable. The backend is chosen once at
// startup.
package storage

import (
	"context"

	"github.com/starford/openme/internal/models"
)

// Backend is the persistence interface used by the letter store.
type Backend interface {
	// All returns every stored letter, ordered by id.
	All(ctx context.Context) ([]models.Letter, error)
	// Get returns the letter with id or apperr.ErrNotFound.
	Get(ctx context.Context, id string) (models.Letter, error)
	// Put inserts or replaces a letter by id.
	Put(ctx context.Context, letter models.Letter) error
	// PutAll writes letters as one batch.
	PutAll(ctx context.Context, letters []models.Letter) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Durable reports whether letters written to b survive a restart.
func Durable(b Backend) bool {
	_, inMemory := b.(*Memory)
	return !inMemory
}
