package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/letters"
	"github.com/starford/openme/internal/lock"
	"github.com/starford/openme/internal/models"
)

// Device types accepted by read receipts.
const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
	DeviceTablet  = "tablet"
	DeviceUnknown = "unknown"
)

const anonymous = "anonymous"

// MaxEmergencyTextLen caps the emergency message and context, in characters.
const MaxEmergencyTextLen = 1000

// rule pairs a value with the ozzo rules checked against it. Rules run in
// order and the first failure wins.
type rule struct {
	value any
	rules []validation.Rule
}

func firstFailure(rules ...rule) *apperr.ClientError {
	for _, r := range rules {
		if err := validation.Validate(r.value, r.rules...); err != nil {
			return apperr.BadRequest(err.Error())
		}
	}
	return nil
}

func isoDate(msg string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if !lock.IsTimestamp(s) {
			return errors.New(msg)
		}
		return nil
	})
}

// LetterView is a letter as returned by the list endpoint.
type LetterView struct {
	models.Letter
	LockLabel string `json:"lockLabel" example:"Honor lock"`
	Countdown string `json:"countdown,omitempty" example:"Opens in 3h 20m"`
}

// LetterListResponse wraps the letter catalog.
type LetterListResponse struct {
	Letters []LetterView `json:"letters" validate:"required"`
}

// LetterOpenRequest is the body of POST /api/letter-open.
type LetterOpenRequest struct {
	LetterID string          `json:"letterId" example:"sad-day" validate:"required"`
	OpenedAt string          `json:"openedAt" example:"2026-02-14T12:00:00.000Z" validate:"required"`
	LockType models.LockType `json:"lockType" example:"honor" validate:"required"`
	Unlocked any             `json:"unlocked" swaggertype:"boolean" validate:"required"`
	UserID   string          `json:"userId,omitempty" example:"user-123"`
}

// Validate checks the open event fields.
func (r *LetterOpenRequest) Validate() *apperr.ClientError {
	const msgOpenedAt = "openedAt must be a valid ISO datetime"
	if cerr := firstFailure(
		rule{strings.TrimSpace(r.LetterID), []validation.Rule{validation.Required.Error("letterId is required")}},
		rule{strings.TrimSpace(r.OpenedAt), []validation.Rule{validation.Required.Error(msgOpenedAt), isoDate(msgOpenedAt)}},
		rule{r.LockType, []validation.Rule{
			validation.Required.Error(lock.ErrUnknownLockType.Error()),
			validation.In(models.LockHonor, models.LockTime).Error(lock.ErrUnknownLockType.Error()),
		}},
	); cerr != nil {
		return cerr
	}
	if _, ok := r.Unlocked.(bool); !ok {
		return apperr.BadRequest("unlocked must be provided")
	}
	return nil
}

// IsUnlocked reports the unlocked flag. It is only meaningful after Validate.
func (r *LetterOpenRequest) IsUnlocked() bool {
	b, _ := r.Unlocked.(bool)
	return b
}

// LetterOpenEvent is the accepted open event echoed back.
type LetterOpenEvent struct {
	Type     string          `json:"type" example:"letter-open"`
	LetterID string          `json:"letterId"`
	OpenedAt string          `json:"openedAt"`
	LockType models.LockType `json:"lockType"`
	Unlocked bool            `json:"unlocked"`
	UserID   string          `json:"userId"`
}

// LetterOpenResponse is the 202 body of POST /api/letter-open.
type LetterOpenResponse struct {
	Accepted bool            `json:"accepted"`
	Event    LetterOpenEvent `json:"event"`
}

// ReadReceiptRequest is the body of POST /api/read-receipt.
type ReadReceiptRequest struct {
	LetterID    string `json:"letterId" example:"sad-day" validate:"required"`
	OpenedAt    string `json:"openedAt" example:"2026-02-14T12:00:00.000Z" validate:"required"`
	RecipientID string `json:"recipientId,omitempty" example:"partner"`
	DeviceType  string `json:"deviceType,omitempty" example:"mobile" enums:"mobile,desktop,tablet,unknown"`
}

// Validate checks the receipt fields.
func (r *ReadReceiptRequest) Validate() *apperr.ClientError {
	return firstFailure(
		rule{strings.TrimSpace(r.LetterID), []validation.Rule{validation.Required.Error("letterId is required")}},
		rule{strings.TrimSpace(r.OpenedAt), []validation.Rule{validation.Required.Error("openedAt is required")}},
		rule{r.OpenedAt, []validation.Rule{isoDate("openedAt must be a valid ISO datetime")}},
		rule{r.DeviceType, []validation.Rule{
			validation.In(DeviceMobile, DeviceDesktop, DeviceTablet, DeviceUnknown).
				Error("deviceType must be mobile, desktop, tablet or unknown"),
		}},
	)
}

// ReadReceiptEvent is the accepted receipt echoed back.
type ReadReceiptEvent struct {
	Type        string `json:"type" example:"read-receipt"`
	LetterID    string `json:"letterId"`
	OpenedAt    string `json:"openedAt"`
	RecipientID string `json:"recipientId"`
	DeviceType  string `json:"deviceType"`
}

// ReadReceiptResponse is the 202 body of POST /api/read-receipt.
type ReadReceiptResponse struct {
	Accepted bool             `json:"accepted"`
	Event    ReadReceiptEvent `json:"event"`
}

// LetterUpdateRequest is the body of POST /api/letter-update.
type LetterUpdateRequest struct {
	ID       string              `json:"id" example:"sad-day" validate:"required"`
	Title    string              `json:"title" validate:"required"`
	Preview  string              `json:"preview" validate:"required"`
	Content  string              `json:"content" validate:"required"`
	LockType models.LockType     `json:"lockType" example:"honor" validate:"required"`
	UnlockAt string              `json:"unlockAt,omitempty" example:"2026-03-01T09:00:00.000Z"`
	Media    []models.MediaBlock `json:"media,omitempty"`
}

// Letter converts the request into a normalized letter record.
func (r *LetterUpdateRequest) Letter() models.Letter {
	return letters.Normalize(models.Letter{
		ID:       r.ID,
		Title:    r.Title,
		Preview:  r.Preview,
		Content:  r.Content,
		LockType: r.LockType,
		UnlockAt: r.UnlockAt,
		Media:    r.Media,
	})
}

// LetterUpdateResponse is the 202 body of POST /api/letter-update.
type LetterUpdateResponse struct {
	Accepted bool          `json:"accepted"`
	Letter   models.Letter `json:"letter"`
}

// EmergencyNotifyRequest is the body of POST /api/emergency-notify.
type EmergencyNotifyRequest struct {
	Message        string `json:"message" example:"I need to talk." validate:"required"`
	RecipientEmail string `json:"recipientEmail,omitempty" example:"partner@example.com"`
	Context        string `json:"context,omitempty"`
}

// Validate checks the fields and resolves the recipient, using fallback when
// the request names none.
func (r *EmergencyNotifyRequest) Validate(fallback string) (string, *apperr.ClientError) {
	tooLong := func(field string) string {
		return fmt.Sprintf("%s must be at most %d characters", field, MaxEmergencyTextLen)
	}
	if cerr := firstFailure(
		rule{strings.TrimSpace(r.Message), []validation.Rule{
			validation.Required.Error("message is required"),
			validation.RuneLength(0, MaxEmergencyTextLen).Error(tooLong("message")),
		}},
		rule{r.Context, []validation.Rule{validation.RuneLength(0, MaxEmergencyTextLen).Error(tooLong("context"))}},
	); cerr != nil {
		return "", cerr
	}

	recipient := strings.TrimSpace(r.RecipientEmail)
	if recipient == "" {
		recipient = strings.TrimSpace(fallback)
	}
	if cerr := firstFailure(rule{recipient, []validation.Rule{
		validation.Required.Error("recipientEmail or EMERGENCY_RECIPIENT_EMAIL is required"),
		is.EmailFormat.Error("recipientEmail must be a valid email address"),
	}}); cerr != nil {
		return "", cerr
	}
	return recipient, nil
}

// Text renders the email body.
func (r *EmergencyNotifyRequest) Text() string {
	if r.Context == "" {
		return r.Message
	}
	return r.Message + "\n\nContext: " + r.Context
}

// EmergencyNotifyResponse reports the delivery outcome.
type EmergencyNotifyResponse struct {
	Accepted  bool   `json:"accepted"`
	Delivered bool   `json:"delivered"`
	Provider  string `json:"provider" example:"gmail-api"`
	Message   string `json:"message"`
}

// Truthy decodes any JSON value by truthiness: false, null, 0 and "" are
// false, everything else is true.
type Truthy bool

func (t *Truthy) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*t = false
	case bool:
		*t = Truthy(x)
	case float64:
		*t = x != 0
	case string:
		*t = x != ""
	default:
		*t = true
	}
	return nil
}

// UnlockRequest is the body of POST /api/unlock-evaluator.
type UnlockRequest struct {
	LockType       models.LockType `json:"lockType" example:"time" validate:"required"`
	Now            string          `json:"now,omitempty" example:"2026-02-14T12:00:00.000Z"`
	UnlockAt       string          `json:"unlockAt,omitempty" example:"2026-02-15T12:00:00.000Z"`
	HonorConfirmed Truthy          `json:"honorConfirmed,omitempty" swaggertype:"boolean"`
}

// Input validates the request and converts it for lock.Evaluate.
func (r *UnlockRequest) Input() (lock.Input, *apperr.ClientError) {
	if cerr := firstFailure(rule{r.LockType, []validation.Rule{
		validation.Required.Error("lockType is required"),
		validation.In(models.LockHonor, models.LockTime).Error(lock.ErrUnknownLockType.Error()),
	}}); cerr != nil {
		return lock.Input{}, cerr
	}

	in := lock.Input{LockType: r.LockType, UnlockAt: r.UnlockAt, HonorConfirmed: bool(r.HonorConfirmed)}
	if r.Now != "" {
		now, err := lock.ParseTimestamp(r.Now)
		if err != nil {
			return lock.Input{}, apperr.BadRequest("now must be a valid ISO datetime")
		}
		in.Now = now
	}
	return in, nil
}

// UnlockResponse is the 200 body of POST /api/unlock-evaluator.
type UnlockResponse struct {
	Unlocked bool `json:"unlocked"`
}
