// Package letters is the letter store: it lists and upserts letter records on
// top of a storage.Backend, seeding an empty backend with default letters.
package letters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/models"
	"github.com/starford/openme/internal/storage"
)

// DefaultTimeout bounds each backend call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Service coordinates letter reads and writes.
type Service struct {
	backend  storage.Backend
	defaults []models.Letter
	now      func() time.Time
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTimeout sets the per-call backend timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a letter store. defaults are written to the backend the
// first time it is listed while empty.
func NewService(backend storage.Backend, defaults []models.Letter, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		defaults: cloneAll(defaults),
		now:      time.Now,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Durable reports whether writes survive a restart.
func (s *Service) Durable() bool {
	return storage.Durable(s.backend)
}

// List returns every letter sorted by id. An empty backend is seeded with the
// defaults, which are returned. Malformed stored records are skipped.
func (s *Service) List(ctx context.Context) ([]models.Letter, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	all, err := s.backend.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("letters: list: %w: %w", apperr.ErrUnavailable, err)
	}

	if len(all) == 0 {
		if err := s.backend.PutAll(ctx, s.defaults); err != nil {
			return nil, fmt.Errorf("letters: seed: %w: %w", apperr.ErrUnavailable, err)
		}
		s.logger.Info("letters: seeded empty store", slog.Int("count", len(s.defaults)))
		return sortByID(cloneAll(s.defaults)), nil
	}

	out := make([]models.Letter, 0, len(all))
	for _, l := range all {
		if !wellFormed(l) {
			s.logger.Warn("letters: skipping malformed record", slog.String("id", l.ID))
			continue
		}
		out = append(out, l)
	}
	return sortByID(out), nil
}

// Get returns a single letter or apperr.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (models.Letter, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	l, err := s.backend.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.Letter{}, err
		}
		return models.Letter{}, fmt.Errorf("letters: get: %w: %w", apperr.ErrUnavailable, err)
	}
	return l, nil
}

// Upsert inserts letter or replaces the letter with the same id. UpdatedAt is
// always stamped; UpdatedBy is set to updatedBy, or kept from the previous
// version when updatedBy is empty.
func (s *Service) Upsert(ctx context.Context, letter models.Letter, updatedBy string) (models.Letter, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	saved := Normalize(letter)
	saved.UpdatedAt = FormatTimestamp(s.now())
	saved.UpdatedBy = updatedBy
	if updatedBy == "" {
		existing, err := s.backend.Get(ctx, saved.ID)
		switch {
		case err == nil:
			saved.UpdatedBy = existing.UpdatedBy
		case !errors.Is(err, apperr.ErrNotFound):
			return models.Letter{}, fmt.Errorf("letters: upsert: %w: %w", apperr.ErrUnavailable, err)
		}
	}

	if err := s.backend.Put(ctx, saved); err != nil {
		return models.Letter{}, fmt.Errorf("letters: upsert: %w: %w", apperr.ErrUnavailable, err)
	}
	return saved.Clone(), nil
}

// Ping reports whether the backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.backend.Ping(ctx)
}

func sortByID(letters []models.Letter) []models.Letter {
	slices.SortFunc(letters, func(a, b models.Letter) int { return strings.Compare(a.ID, b.ID) })
	return letters
}

func cloneAll(letters []models.Letter) []models.Letter {
	out := make([]models.Letter, len(letters))
	for i, l := range letters {
		out[i] = l.Clone()
	}
	return out
}
