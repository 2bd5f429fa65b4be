package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	pebble "github.com/cockroachdb/pebble"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/models"
)

// Pebble stores letters as JSON values in a Pebble key-value store. Keys are
// "<collection>/<id>", so iteration yields letters ordered by id.
type Pebble struct {
	db     *pebble.DB
	prefix []byte
}

var _ Backend = (*Pebble)(nil)

// OpenPebble opens (or creates) a Pebble store in dir. An empty collection
// uses DefaultCollection.
func OpenPebble(dir, collection string) (*Pebble, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("storage: invalid collection name %q", collection)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
		return nil, fmt.Errorf("storage: create pebble dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: open pebble: %w", err)
	}
	return &Pebble{db: db, prefix: []byte(collection + "/")}, nil
}

// Collection returns the key prefix letters are stored under, without the
// separator.
func (p *Pebble) Collection() string {
	return string(p.prefix[:len(p.prefix)-1])
}

func (p *Pebble) key(id string) []byte {
	return append(append([]byte{}, p.prefix...), id...)
}

// upperBound is the smallest key greater than every key under prefix.
func (p *Pebble) upperBound() []byte {
	end := append([]byte{}, p.prefix...)
	end[len(end)-1]++
	return end
}

func (p *Pebble) All(_ context.Context) ([]models.Letter, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: p.prefix,
		UpperBound: p.upperBound(),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list letters: %w", err)
	}
	defer it.Close()

	var out []models.Letter
	for ok := it.First(); ok; ok = it.Next() {
		var l models.Letter
		if err := json.Unmarshal(it.Value(), &l); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", it.Key(), err)
		}
		out = append(out, l)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("storage: list letters: %w", err)
	}
	return out, nil
}

func (p *Pebble) Get(_ context.Context, id string) (models.Letter, error) {
	v, closer, err := p.db.Get(p.key(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return models.Letter{}, fmt.Errorf("storage: letter %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Letter{}, fmt.Errorf("storage: get letter %s: %w", id, err)
	}
	defer closer.Close()

	var l models.Letter
	if err := json.Unmarshal(v, &l); err != nil {
		return models.Letter{}, fmt.Errorf("storage: decode letter %s: %w", id, err)
	}
	return l, nil
}

func (p *Pebble) Put(ctx context.Context, letter models.Letter) error {
	return p.PutAll(ctx, []models.Letter{letter})
}

// PutAll writes letters in one synced batch.
func (p *Pebble) PutAll(_ context.Context, letters []models.Letter) error {
	b := p.db.NewBatch()
	defer b.Close()

	for _, l := range letters {
		raw, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("storage: encode letter %s: %w", l.ID, err)
		}
		if err := b.Set(p.key(l.ID), raw, nil); err != nil {
			return fmt.Errorf("storage: stage letter %s: %w", l.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("storage: commit letters: %w", err)
	}
	return nil
}

// Ping performs a point read; a missing key still proves the store answers.
func (p *Pebble) Ping(_ context.Context) error {
	_, closer, err := p.db.Get(p.prefix)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return closer.Close()
}

// Close flushes and closes the store.
func (p *Pebble) Close() error {
	return p.db.Close()
}
