package letters

import (
	"time"

	"github.com/starford/openme/internal/models"
)

// Defaults returns the built-in letters used to seed an empty store. The
// anniversary letter unlocks 24 hours after now.
func Defaults(now time.Time) []models.Letter {
	return []models.Letter{
		{
			ID:      "sad-day",
			Title:   "Open when you feel sad",
			Preview: "A reminder that you are deeply loved.",
			Content: "Hey love, this feeling will pass. Drink some water, breathe, and remember how strong you are. " +
				"I am always cheering for you.",
			LockType: models.LockHonor,
			Media: []models.MediaBlock{{
				Kind: models.MediaImage,
				Src:  "https://images.unsplash.com/photo-1494790108377-be9c29b29330?auto=format&fit=crop&w=1100&q=70",
				Alt:  "Warm memory",
			}},
		},
		{
			ID:      "anniversary",
			Title:   "Open on our anniversary",
			Preview: "A letter for our special day.",
			Content: "Happy anniversary, my favorite person. Thank you for every laugh, every lesson, " +
				"and every little moment.",
			LockType: models.LockTime,
			UnlockAt: FormatTimestamp(now.Add(24 * time.Hour)),
			Media: []models.MediaBlock{{
				Kind: models.MediaAudio,
				Src:  "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3",
			}},
		},
		{
			ID:      "cant-sleep",
			Title:   "Open when you can't sleep",
			Preview: "Slow down and breathe with me.",
			Content: "Close your eyes. Inhale for four, hold for four, exhale for four. " +
				"You are safe, and tomorrow can wait.",
			LockType: models.LockHonor,
			Media: []models.MediaBlock{{
				Kind: models.MediaVideo,
				Src:  "https://samplelib.com/lib/preview/mp4/sample-5s.mp4",
			}},
		},
	}
}

// FormatTimestamp renders t as a UTC ISO-8601 timestamp with milliseconds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
