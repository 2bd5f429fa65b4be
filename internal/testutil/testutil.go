// Package testutil provides shared test helpers for letter backends and services.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/openme/internal/models"
	"github.com/starford/openme/internal/storage"
)

// Epoch is the fixed clock used across tests.
var Epoch = time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

// Clock returns a clock function frozen at Epoch.
func Clock() func() time.Time {
	return func() time.Time { return Epoch }
}

// TestSQLite creates a temporary SQLite backend that is automatically cleaned up.
func TestSQLite(t *testing.T, collection string) *storage.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "openme-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := storage.OpenSQLite(dbFile.Name(), collection)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestPebble creates a Pebble backend in a per-test directory.
func TestPebble(t *testing.T, collection string) *storage.Pebble {
	t.Helper()
	db, err := storage.OpenPebble(filepath.Join(t.TempDir(), "letters"), collection)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// HonorLetter returns a valid honor-locked letter with the given id.
func HonorLetter(id string) models.Letter {
	return models.Letter{
		ID:       id,
		Title:    "Open when you feel sad",
		Preview:  "A reminder that you are deeply loved.",
		Content:  "You are stronger than this moment.",
		LockType: models.LockHonor,
		Media:    []models.MediaBlock{{Kind: models.MediaImage, Src: "https://example.com/a.jpg", Alt: "a"}},
	}
}

// TimeLetter returns a valid time-locked letter opening at unlockAt.
func TimeLetter(id string, unlockAt time.Time) models.Letter {
	return models.Letter{
		ID:       id,
		Title:    "Open on our anniversary",
		Preview:  "A letter for our special day.",
		Content:  "Happy anniversary.",
		LockType: models.LockTime,
		UnlockAt: unlockAt.UTC().Format(time.RFC3339),
	}
}
