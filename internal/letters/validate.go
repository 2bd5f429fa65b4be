package letters

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/lock"
	"github.com/starford/openme/internal/models"
)

// Field ceilings, in characters.
const (
	MaxTitleLen   = 120
	MaxPreviewLen = 240
	MaxContentLen = 6000
	MaxAltLen     = 240
)

var (
	idRe       = regexp.MustCompile(`^[a-z0-9-]+$`)
	mediaSrcRe = regexp.MustCompile(`^https?://\S+$`)
)

const (
	msgUnlockAtTime   = "unlockAt must be a valid ISO datetime for time lock"
	msgUnlockAtHonor  = "unlockAt is not allowed for honor lock"
	msgLockType       = "lockType must be honor or time"
	msgMediaItem      = "media items must include valid kind and src"
	msgMediaAltLength = "media alt text must be at most 240 characters"
)

type check struct {
	value any
	rules []validation.Rule
}

var isTimestamp = validation.By(func(value any) error {
	s, _ := value.(string)
	if !lock.IsTimestamp(s) {
		return errors.New(msgUnlockAtTime)
	}
	return nil
})

// Normalize trims the identifying fields of a letter so the stored id and
// media sources match what Validate checked.
func Normalize(l models.Letter) models.Letter {
	out := l.Clone()
	out.ID = strings.TrimSpace(out.ID)
	out.UnlockAt = strings.TrimSpace(out.UnlockAt)
	for i := range out.Media {
		out.Media[i].Src = strings.TrimSpace(out.Media[i].Src)
	}
	return out
}

// Validate checks a letter written through the CMS. The first failing rule
// is returned as a 400 *apperr.ClientError.
func Validate(l models.Letter) error {
	checks := []check{
		{strings.TrimSpace(l.ID), []validation.Rule{
			validation.Required.Error("id is required"),
			validation.Match(idRe).Error("id must contain only lowercase letters, digits and hyphens"),
		}},
		{strings.TrimSpace(l.Title), []validation.Rule{
			validation.Required.Error("title is required"),
			validation.RuneLength(0, MaxTitleLen).Error(fmt.Sprintf("title must be at most %d characters", MaxTitleLen)),
		}},
		{strings.TrimSpace(l.Preview), []validation.Rule{
			validation.Required.Error("preview is required"),
			validation.RuneLength(0, MaxPreviewLen).Error(fmt.Sprintf("preview must be at most %d characters", MaxPreviewLen)),
		}},
		{strings.TrimSpace(l.Content), []validation.Rule{
			validation.Required.Error("content is required"),
			validation.RuneLength(0, MaxContentLen).Error(fmt.Sprintf("content must be at most %d characters", MaxContentLen)),
		}},
		{l.LockType, []validation.Rule{
			validation.Required.Error(msgLockType),
			validation.In(models.LockHonor, models.LockTime).Error(msgLockType),
		}},
		{l.UnlockAt, []validation.Rule{
			validation.When(l.LockType == models.LockTime,
				validation.Required.Error(msgUnlockAtTime), isTimestamp),
			validation.When(l.LockType == models.LockHonor,
				validation.Empty.Error(msgUnlockAtHonor)),
		}},
	}
	for _, m := range l.Media {
		checks = append(checks,
			check{m.Kind, []validation.Rule{
				validation.Required.Error(msgMediaItem),
				validation.In(models.MediaImage, models.MediaAudio, models.MediaVideo).Error(msgMediaItem),
			}},
			check{strings.TrimSpace(m.Src), []validation.Rule{
				validation.Required.Error(msgMediaItem),
				validation.Match(mediaSrcRe).Error(msgMediaItem),
			}},
			check{m.Alt, []validation.Rule{
				validation.RuneLength(0, MaxAltLen).Error(msgMediaAltLength),
			}},
		)
	}

	for _, c := range checks {
		if err := validation.Validate(c.value, c.rules...); err != nil {
			return apperr.BadRequest(err.Error())
		}
	}
	return nil
}

// wellFormed is the lenient shape check applied to records read back from a
// backend: required fields present and a known lock type.
func wellFormed(l models.Letter) bool {
	return l.ID != "" && l.Title != "" && l.Preview != "" && l.Content != "" && l.LockType.Valid()
}
