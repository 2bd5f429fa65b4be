// Package parser reads letters written as Markdown documents with a YAML
// frontmatter block. The frontmatter carries the letter metadata and the
// Markdown body becomes the letter content.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/openme/internal/models"
)

// ErrNoFrontmatter is returned for documents without a leading --- block.
var ErrNoFrontmatter = errors.New("parser: missing frontmatter")

type frontmatter struct {
	ID       string              `yaml:"id"`
	Title    string              `yaml:"title"`
	Preview  string              `yaml:"preview"`
	LockType models.LockType     `yaml:"lock_type"`
	UnlockAt string              `yaml:"unlock_at"`
	Media    []models.MediaBlock `yaml:"media"`
}

// ParseLetter decodes a letter document. name is the source file name; its
// stem is used as the id when the frontmatter has none. The title falls back
// to the first H1 heading of the body.
func ParseLetter(name string, data []byte) (models.Letter, error) {
	block, body, err := splitFrontmatter(data)
	if err != nil {
		return models.Letter{}, fmt.Errorf("%s: %w", name, err)
	}

	var fm frontmatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return models.Letter{}, fmt.Errorf("parser: %s: invalid frontmatter: %w", name, err)
	}

	id := fm.ID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	title := fm.Title
	if title == "" {
		title = firstHeading(body)
	}

	return models.Letter{
		ID:       id,
		Title:    title,
		Preview:  fm.Preview,
		Content:  strings.TrimSpace(body),
		LockType: fm.LockType,
		UnlockAt: fm.UnlockAt,
		Media:    fm.Media,
	}, nil
}

// splitFrontmatter separates the YAML block between the leading --- delimiters
// from the Markdown body.
func splitFrontmatter(data []byte) ([]byte, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, "", ErrNoFrontmatter
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, "", ErrNoFrontmatter
	}

	block := rest[:idx]
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return block, body, nil
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
