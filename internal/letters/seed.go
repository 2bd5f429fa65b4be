package letters

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/openme/internal/models"
	"github.com/starford/openme/internal/parser"
)

// LoadSeed returns the seed letters: the Markdown documents in dir when dir
// is set, otherwise the built-in Defaults.
func LoadSeed(dir string, now time.Time) ([]models.Letter, error) {
	if dir == "" {
		return Defaults(now), nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("letters: read seed dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	out := make([]models.Letter, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("letters: read seed %s: %w", name, err)
		}
		l, err := parser.ParseLetter(name, data)
		if err != nil {
			return nil, err
		}
		if err := Validate(l); err != nil {
			return nil, fmt.Errorf("letters: seed %s: %w", name, err)
		}
		if prev, dup := seen[l.ID]; dup {
			return nil, fmt.Errorf("letters: seed %s: duplicate id %q (also in %s)", name, l.ID, prev)
		}
		seen[l.ID] = name
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("letters: seed dir %s has no letters", dir)
	}
	return out, nil
}
