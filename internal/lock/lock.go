// Package lock decides whether a letter is readable.
//
// Honor locks depend only on the reader's confirmation. Time locks depend only
// on the current time and the letter's unlock timestamp. Nothing is stored
// between calls.
package lock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/openme/internal/models"
)

var (
	ErrUnknownLockType  = errors.New("lockType must be honor or time")
	ErrInvalidUnlockAt  = errors.New("valid unlockAt is required for time lock")
	ErrInvalidTimestamp = errors.New("invalid ISO datetime")
)

// Layouts without a zone are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 datetime. A date without a time
// component is rejected.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if !strings.Contains(value, "T") {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
}

// IsTimestamp reports whether value parses with ParseTimestamp.
func IsTimestamp(value string) bool {
	_, err := ParseTimestamp(value)
	return err == nil
}

// Input is the evaluation request. A zero Now means the wall clock.
type Input struct {
	LockType       models.LockType
	Now            time.Time
	UnlockAt       string
	HonorConfirmed bool
}

// Evaluate returns whether the letter described by in is unlocked.
func Evaluate(in Input) (bool, error) {
	switch in.LockType {
	case models.LockHonor:
		return in.HonorConfirmed, nil
	case models.LockTime:
		if in.UnlockAt == "" {
			return false, ErrInvalidUnlockAt
		}
		unlockAt, err := ParseTimestamp(in.UnlockAt)
		if err != nil {
			return false, ErrInvalidUnlockAt
		}
		now := in.Now
		if now.IsZero() {
			now = time.Now()
		}
		return !now.Before(unlockAt), nil
	default:
		return false, ErrUnknownLockType
	}
}

// IsUnlocked reports whether a stored letter can be read at now without any
// reader confirmation. Honor letters are always readable; a time letter with
// a broken timestamp stays locked.
func IsUnlocked(l models.Letter, now time.Time) bool {
	if l.LockType == models.LockHonor {
		return true
	}
	ok, err := Evaluate(Input{LockType: l.LockType, Now: now, UnlockAt: l.UnlockAt})
	return err == nil && ok
}

// Label is the short lock status shown next to a letter.
func Label(l models.Letter, now time.Time) string {
	if l.LockType == models.LockHonor {
		return "Honor lock"
	}
	unlockAt, err := ParseTimestamp(l.UnlockAt)
	if err != nil {
		return "Time lock"
	}
	if !now.Before(unlockAt) {
		return "Unlocked"
	}
	return "Unlocks " + unlockAt.UTC().Format("Jan 2, 2006 3:04 PM MST")
}

// Countdown describes the time left on a time lock. It is empty for honor
// letters and for time letters without a usable timestamp.
func Countdown(l models.Letter, now time.Time) string {
	if l.LockType != models.LockTime {
		return ""
	}
	unlockAt, err := ParseTimestamp(l.UnlockAt)
	if err != nil {
		return ""
	}
	remaining := unlockAt.Sub(now)
	if remaining <= 0 {
		return "Ready to open"
	}

	totalMinutes := int((remaining + time.Minute - 1) / time.Minute)
	hours, minutes := totalMinutes/60, totalMinutes%60
	if hours > 0 {
		return fmt.Sprintf("Opens in %dh %dm", hours, minutes)
	}
	return fmt.Sprintf("Opens in %dm", minutes)
}
