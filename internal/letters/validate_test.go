package letters

import (
	"net/http"
	"strings"
	"testing"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/models"
	"github.com/starford/openme/internal/testutil"
)

func TestValidate_Valid(t *testing.T) {
	if err := Validate(testutil.HonorLetter("sad-day")); err != nil {
		t.Fatalf("honor letter: %v", err)
	}
	if err := Validate(testutil.TimeLetter("anniversary-2", testutil.Epoch)); err != nil {
		t.Fatalf("time letter: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Letter)
		want   string
	}{
		{"missing id", func(l *models.Letter) { l.ID = "  " }, "id is required"},
		{"bad id", func(l *models.Letter) { l.ID = "Sad Day" }, "id must contain only lowercase letters, digits and hyphens"},
		{"missing title", func(l *models.Letter) { l.Title = "" }, "title is required"},
		{"long title", func(l *models.Letter) { l.Title = strings.Repeat("é", MaxTitleLen+1) }, "title must be at most 120 characters"},
		{"missing preview", func(l *models.Letter) { l.Preview = " " }, "preview is required"},
		{"long preview", func(l *models.Letter) { l.Preview = strings.Repeat("p", MaxPreviewLen+1) }, "preview must be at most 240 characters"},
		{"missing content", func(l *models.Letter) { l.Content = "" }, "content is required"},
		{"long content", func(l *models.Letter) { l.Content = strings.Repeat("c", MaxContentLen+1) }, "content must be at most 6000 characters"},
		{"missing lock", func(l *models.Letter) { l.LockType = "" }, "lockType must be honor or time"},
		{"unknown lock", func(l *models.Letter) { l.LockType = "secret" }, "lockType must be honor or time"},
		{"time without unlockAt", func(l *models.Letter) { l.LockType = models.LockTime }, "unlockAt must be a valid ISO datetime for time lock"},
		{"time with date only", func(l *models.Letter) { l.LockType = models.LockTime; l.UnlockAt = "2026-02-14" }, "unlockAt must be a valid ISO datetime for time lock"},
		{"honor with unlockAt", func(l *models.Letter) { l.UnlockAt = "2026-02-14T00:00:00Z" }, "unlockAt is not allowed for honor lock"},
		{"media bad kind", func(l *models.Letter) { l.Media[0].Kind = "gif" }, "media items must include valid kind and src"},
		{"media missing src", func(l *models.Letter) { l.Media[0].Src = "" }, "media items must include valid kind and src"},
		{"media bad scheme", func(l *models.Letter) { l.Media[0].Src = "javascript:alert(1)" }, "media items must include valid kind and src"},
		{"media long alt", func(l *models.Letter) { l.Media[0].Alt = strings.Repeat("a", MaxAltLen+1) }, "media alt text must be at most 240 characters"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := testutil.HonorLetter("sad-day")
			tc.mutate(&l)
			err := Validate(l)
			ce, ok := apperr.AsClientError(err)
			if !ok {
				t.Fatalf("err = %v, want client error", err)
			}
			if ce.Status != http.StatusBadRequest || ce.Message != tc.want {
				t.Errorf("got %d %q, want 400 %q", ce.Status, ce.Message, tc.want)
			}
		})
	}
}

func TestValidate_ExactCeilingsPass(t *testing.T) {
	l := testutil.HonorLetter("edge")
	l.Title = strings.Repeat("t", MaxTitleLen)
	l.Preview = strings.Repeat("p", MaxPreviewLen)
	l.Content = strings.Repeat("c", MaxContentLen)
	if err := Validate(l); err != nil {
		t.Fatalf("letter at ceilings rejected: %v", err)
	}
}

func TestNormalize_TrimsIdentifyingFields(t *testing.T) {
	l := testutil.HonorLetter(" sad-day\t")
	l.Media[0].Src = " https://example.com/a.jpg "
	l.LockType = models.LockTime
	l.UnlockAt = " 2026-03-01T09:00:00.000Z "

	got := Normalize(l)
	if got.ID != "sad-day" || got.UnlockAt != "2026-03-01T09:00:00.000Z" || got.Media[0].Src != "https://example.com/a.jpg" {
		t.Fatalf("normalized = %+v", got)
	}
	if l.Media[0].Src != " https://example.com/a.jpg " {
		t.Error("Normalize must not modify the caller's media slice")
	}
	if got.Title != l.Title || got.Media[0].Alt != "a" {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if err := Validate(got); err != nil {
		t.Errorf("normalized letter should validate: %v", err)
	}
}
