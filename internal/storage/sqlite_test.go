package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/models"
	"github.com/starford/openme/internal/storage"
	"github.com/starford/openme/internal/testutil"
)

var columns = []string{"id", "title", "preview", "content", "lock_type", "unlock_at", "media", "updated_at", "updated_by"}

func mockSQLite(t *testing.T) (*storage.SQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS letters").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := storage.NewSQLite(sqlx.NewDb(db, "sqlite3"), "letters")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	return s, mock
}

func TestSQLite_AllDecodesRows(t *testing.T) {
	s, mock := mockSQLite(t)
	mock.ExpectQuery("SELECT (.+) FROM letters ORDER BY id").WillReturnRows(
		sqlmock.NewRows(columns).
			AddRow("sad-day", "t", "p", "c", "honor", "", `[{"kind":"audio","src":"a.mp3"}]`, "", "").
			AddRow("zz", "t", "p", "c", "time", "2026-02-14T12:00:00Z", "[]", "2026-01-01T00:00:00Z", "cms"))

	letters, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(letters) != 2 {
		t.Fatalf("expected 2 letters, got %d", len(letters))
	}
	if len(letters[0].Media) != 1 || letters[0].Media[0].Src != "a.mp3" {
		t.Errorf("media = %+v", letters[0].Media)
	}
	if letters[1].Media != nil || letters[1].UpdatedBy != "cms" {
		t.Errorf("second letter = %+v", letters[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestSQLite_AllQueryFailure(t *testing.T) {
	s, mock := mockSQLite(t)
	boom := errors.New("disk I/O error")
	mock.ExpectQuery("SELECT (.+) FROM letters").WillReturnError(boom)

	if _, err := s.All(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestSQLite_AllCorruptMedia(t *testing.T) {
	s, mock := mockSQLite(t)
	mock.ExpectQuery("SELECT (.+) FROM letters").WillReturnRows(
		sqlmock.NewRows(columns).AddRow("sad-day", "t", "p", "c", "honor", "", "{not json", "", ""))

	if _, err := s.All(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSQLite_GetMissing(t *testing.T) {
	s, mock := mockSQLite(t)
	mock.ExpectQuery("SELECT (.+) FROM letters WHERE id = ?").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLite_PutAllRollsBackOnFailure(t *testing.T) {
	s, mock := mockSQLite(t)
	boom := errors.New("constraint failed")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO letters")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(boom)
	mock.ExpectRollback()

	err := s.PutAll(context.Background(), []models.Letter{testutil.HonorLetter("a"), testutil.HonorLetter("b")})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestSQLite_PutAllCommits(t *testing.T) {
	s, mock := mockSQLite(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO letters").
		ExpectExec().
		WithArgs("sad-day", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "honor", "", sqlmock.AnyArg(), "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := s.Put(context.Background(), testutil.HonorLetter("sad-day")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
