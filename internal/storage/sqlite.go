package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/models"
)

// DefaultCollection is the letters table name when none is configured.
const DefaultCollection = "open_me_letters"

var collectionRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidCollection reports whether name can be used as a table name.
func ValidCollection(name string) bool {
	return collectionRe.MatchString(name)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	preview    TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	lock_type  TEXT NOT NULL DEFAULT '',
	unlock_at  TEXT NOT NULL DEFAULT '',
	media      TEXT NOT NULL DEFAULT '[]',
	updated_at TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT ''
);
`

const letterColumns = `id, title, preview, content, lock_type, unlock_at, media, updated_at, updated_by`

// letterRow is the table representation of a letter. Media is kept as a JSON
// array.
type letterRow struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	Preview   string `db:"preview"`
	Content   string `db:"content"`
	LockType  string `db:"lock_type"`
	UnlockAt  string `db:"unlock_at"`
	Media     string `db:"media"`
	UpdatedAt string `db:"updated_at"`
	UpdatedBy string `db:"updated_by"`
}

func toRow(l models.Letter) (letterRow, error) {
	media := "[]"
	if len(l.Media) > 0 {
		raw, err := json.Marshal(l.Media)
		if err != nil {
			return letterRow{}, fmt.Errorf("storage: encode media for %s: %w", l.ID, err)
		}
		media = string(raw)
	}
	return letterRow{
		ID:        l.ID,
		Title:     l.Title,
		Preview:   l.Preview,
		Content:   l.Content,
		LockType:  string(l.LockType),
		UnlockAt:  l.UnlockAt,
		Media:     media,
		UpdatedAt: l.UpdatedAt,
		UpdatedBy: l.UpdatedBy,
	}, nil
}

func (r letterRow) letter() (models.Letter, error) {
	l := models.Letter{
		ID:        r.ID,
		Title:     r.Title,
		Preview:   r.Preview,
		Content:   r.Content,
		LockType:  models.LockType(r.LockType),
		UnlockAt:  r.UnlockAt,
		UpdatedAt: r.UpdatedAt,
		UpdatedBy: r.UpdatedBy,
	}
	if r.Media != "" && r.Media != "[]" && r.Media != "null" {
		if err := json.Unmarshal([]byte(r.Media), &l.Media); err != nil {
			return models.Letter{}, fmt.Errorf("storage: decode media for %s: %w", r.ID, err)
		}
	}
	return l, nil
}

// SQLite stores letters in a single table of a SQLite database.
type SQLite struct {
	conn  *sqlx.DB
	table string

	selectAll string
	selectOne string
	upsert    string
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at dsn and ensures the
// collection table exists.
func OpenSQLite(dsn, collection string) (*SQLite, error) {
	conn, err := sqlx.Open("sqlite3", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	s, err := NewSQLite(conn, collection)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// withPragmas appends the WAL and busy-timeout settings, keeping any query
// parameters already present in dsn.
func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

// NewSQLite wraps an open connection and applies the schema for collection.
// An empty collection uses DefaultCollection.
func NewSQLite(conn *sqlx.DB, collection string) (*SQLite, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("storage: invalid collection name %q", collection)
	}
	if _, err := conn.Exec(fmt.Sprintf(schemaSQL, collection)); err != nil {
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	return &SQLite{
		conn:      conn,
		table:     collection,
		selectAll: fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, letterColumns, collection),
		selectOne: fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, letterColumns, collection),
		upsert: fmt.Sprintf(`
			INSERT INTO %s (%s)
			VALUES (:id, :title, :preview, :content, :lock_type, :unlock_at, :media, :updated_at, :updated_by)
			ON CONFLICT(id) DO UPDATE SET
				title      = excluded.title,
				preview    = excluded.preview,
				content    = excluded.content,
				lock_type  = excluded.lock_type,
				unlock_at  = excluded.unlock_at,
				media      = excluded.media,
				updated_at = excluded.updated_at,
				updated_by = excluded.updated_by
		`, collection, letterColumns),
	}, nil
}

// Collection returns the table name letters are stored in.
func (s *SQLite) Collection() string {
	return s.table
}

func (s *SQLite) All(ctx context.Context) ([]models.Letter, error) {
	var rows []letterRow
	if err := s.conn.SelectContext(ctx, &rows, s.selectAll); err != nil {
		return nil, fmt.Errorf("storage: list letters: %w", err)
	}

	out := make([]models.Letter, 0, len(rows))
	for _, r := range rows {
		l, err := r.letter()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (models.Letter, error) {
	var row letterRow
	err := s.conn.GetContext(ctx, &row, s.selectOne, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Letter{}, fmt.Errorf("storage: letter %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Letter{}, fmt.Errorf("storage: get letter %s: %w", id, err)
	}
	return row.letter()
}

func (s *SQLite) Put(ctx context.Context, letter models.Letter) error {
	return s.PutAll(ctx, []models.Letter{letter})
}

// PutAll upserts letters within one transaction.
func (s *SQLite) PutAll(ctx context.Context, letters []models.Letter) error {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareNamedContext(ctx, s.upsert)
	if err != nil {
		return fmt.Errorf("storage: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, l := range letters {
		row, err := toRow(l)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("storage: upsert letter %s: %w", l.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}
