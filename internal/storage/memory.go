package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/models"
)

// Memory keeps letters in process memory. Writes are lost on restart and are
// not shared between instances.
type Memory struct {
	mu      sync.RWMutex
	letters map[string]models.Letter
	seed    []models.Letter
}

var _ Backend = (*Memory)(nil)

// NewMemory creates a Memory backend holding seed.
func NewMemory(seed []models.Letter) *Memory {
	m := &Memory{seed: cloneAll(seed)}
	m.Reset()
	return m
}

// Reset restores the seed letters, discarding every write.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = make(map[string]models.Letter, len(m.seed))
	for _, l := range m.seed {
		m.letters[l.ID] = l.Clone()
	}
}

func (m *Memory) All(_ context.Context) ([]models.Letter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Letter, 0, len(m.letters))
	for _, l := range m.letters {
		out = append(out, l.Clone())
	}
	slices.SortFunc(out, func(a, b models.Letter) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (models.Letter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.letters[id]
	if !ok {
		return models.Letter{}, fmt.Errorf("storage: letter %s: %w", id, apperr.ErrNotFound)
	}
	return l.Clone(), nil
}

func (m *Memory) Put(_ context.Context, letter models.Letter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters[letter.ID] = letter.Clone()
	return nil
}

func (m *Memory) PutAll(_ context.Context, letters []models.Letter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range letters {
		m.letters[l.ID] = l.Clone()
	}
	return nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func cloneAll(letters []models.Letter) []models.Letter {
	out := make([]models.Letter, len(letters))
	for i, l := range letters {
		out[i] = l.Clone()
	}
	return out
}
