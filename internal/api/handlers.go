package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/guard"
	"github.com/starford/openme/internal/letters"
	"github.com/starford/openme/internal/lock"
	"github.com/starford/openme/internal/mailer"
	"github.com/starford/openme/internal/metrics"
	"github.com/starford/openme/internal/sse"
)

// EmergencySubject is the subject line of emergency notifications.
const EmergencySubject = "Open Me emergency support request"

// Publisher receives telemetry for accepted requests.
type Publisher interface {
	PublishLetterEvent(kind, id string, data map[string]any)
}

type nopPublisher struct{}

func (nopPublisher) PublishLetterEvent(string, string, map[string]any) {}

// Handler holds API route handlers.
type Handler struct {
	letters   *letters.Service
	guard     *guard.Guard
	mailer    mailer.Sender
	events    Publisher
	limits    Limits
	recipient string
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithPublisher sets the telemetry sink.
func WithPublisher(p Publisher) Option {
	return func(h *Handler) {
		if p != nil {
			h.events = p
		}
	}
}

// WithLimits overrides per-scope rate limits.
func WithLimits(l Limits) Option {
	return func(h *Handler) { h.limits = l }
}

// WithEmergencyRecipient sets the address used when a request names none.
func WithEmergencyRecipient(email string) Option {
	return func(h *Handler) { h.recipient = email }
}

// WithClock sets the clock used for lock labels.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a new Handler.
func NewHandler(svc *letters.Service, g *guard.Guard, sender mailer.Sender, opts ...Option) *Handler {
	h := &Handler{
		letters: svc,
		guard:   g,
		mailer:  sender,
		events:  nopPublisher{},
		limits:  DefaultLimits(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.mailer == nil {
		h.mailer = mailer.None{}
	}
	return h
}

func (h *Handler) storeFailure(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", slog.String("error", err.Error()))
	if errors.Is(err, apperr.ErrUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("Letter store unavailable"))
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// ListLetters handles GET /api/letter-list.
//
//	@Summary	List all letters with their lock status
//	@Tags		letters
//	@Produce	json
//	@Success	200	{object}	LetterListResponse
//	@Failure	403	{object}	errResponse
//	@Failure	503	{object}	errResponse
//	@Router		/letter-list [get]
func (h *Handler) ListLetters(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, epLetterList, nil) {
		return
	}

	all, err := h.letters.List(r.Context())
	if err != nil {
		h.storeFailure(w, "list letters", err)
		return
	}

	now := h.now()
	views := make([]LetterView, 0, len(all))
	for _, l := range all {
		views = append(views, LetterView{
			Letter:    l,
			LockLabel: lock.Label(l, now),
			Countdown: lock.Countdown(l, now),
		})
	}
	writeJSON(w, http.StatusOK, LetterListResponse{Letters: views})
}

// OpenLetter handles POST /api/letter-open.
//
//	@Summary	Record that a letter was opened
//	@Tags		telemetry
//	@Accept		json
//	@Produce	json
//	@Param		body	body		LetterOpenRequest	true	"Open event"
//	@Success	202		{object}	LetterOpenResponse
//	@Failure	400		{object}	errResponse
//	@Failure	429		{object}	errResponse
//	@Router		/letter-open [post]
func (h *Handler) OpenLetter(w http.ResponseWriter, r *http.Request) {
	var req LetterOpenRequest
	if !h.admit(w, r, epLetterOpen, &req) {
		return
	}
	if cerr := req.Validate(); cerr != nil {
		h.reject(w, epLetterOpen, cerr)
		return
	}

	event := LetterOpenEvent{
		Type:     "letter-open",
		LetterID: req.LetterID,
		OpenedAt: req.OpenedAt,
		LockType: req.LockType,
		Unlocked: req.IsUnlocked(),
		UserID:   orDefault(req.UserID, anonymous),
	}
	metrics.RecordLetterEvent(sse.KindOpened)
	h.events.PublishLetterEvent(sse.KindOpened, event.LetterID, map[string]any{
		"openedAt": event.OpenedAt,
		"lockType": event.LockType,
		"unlocked": event.Unlocked,
		"userId":   event.UserID,
	})
	writeJSON(w, http.StatusAccepted, LetterOpenResponse{Accepted: true, Event: event})
}

// ReadReceipt handles POST /api/read-receipt.
//
//	@Summary	Record a read receipt
//	@Tags		telemetry
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ReadReceiptRequest	true	"Receipt"
//	@Success	202		{object}	ReadReceiptResponse
//	@Failure	400		{object}	errResponse
//	@Failure	429		{object}	errResponse
//	@Router		/read-receipt [post]
func (h *Handler) ReadReceipt(w http.ResponseWriter, r *http.Request) {
	var req ReadReceiptRequest
	if !h.admit(w, r, epReadReceipt, &req) {
		return
	}
	if cerr := req.Validate(); cerr != nil {
		h.reject(w, epReadReceipt, cerr)
		return
	}

	event := ReadReceiptEvent{
		Type:        "read-receipt",
		LetterID:    req.LetterID,
		OpenedAt:    req.OpenedAt,
		RecipientID: orDefault(req.RecipientID, anonymous),
		DeviceType:  orDefault(req.DeviceType, DeviceUnknown),
	}
	metrics.RecordLetterEvent(sse.KindRead)
	h.events.PublishLetterEvent(sse.KindRead, event.LetterID, map[string]any{
		"openedAt":    event.OpenedAt,
		"recipientId": event.RecipientID,
		"deviceType":  event.DeviceType,
	})
	writeJSON(w, http.StatusAccepted, ReadReceiptResponse{Accepted: true, Event: event})
}

// UpdateLetter handles POST /api/letter-update.
//
//	@Summary	Create or replace a letter (CMS)
//	@Tags		letters
//	@Accept		json
//	@Produce	json
//	@Param		X-Admin-Token	header		string				true	"CMS admin token"
//	@Param		X-Actor-Id		header		string				true	"Acting editor"
//	@Param		body			body		LetterUpdateRequest	true	"Letter"
//	@Success	202				{object}	LetterUpdateResponse
//	@Failure	400				{object}	errResponse
//	@Failure	401				{object}	errResponse
//	@Failure	503				{object}	errResponse
//	@Router		/letter-update [post]
func (h *Handler) UpdateLetter(w http.ResponseWriter, r *http.Request) {
	var req LetterUpdateRequest
	if !h.admit(w, r, epLetterUpdate, &req) {
		return
	}

	letter := req.Letter()
	if err := letters.Validate(letter); err != nil {
		if cerr, ok := apperr.AsClientError(err); ok {
			h.reject(w, epLetterUpdate, cerr)
			return
		}
		h.reject(w, epLetterUpdate, apperr.BadRequest(err.Error()))
		return
	}

	actor, cerr := h.guard.Authorize(r)
	if cerr != nil {
		h.reject(w, epLetterUpdate, cerr)
		return
	}

	saved, err := h.letters.Upsert(r.Context(), letter, actor)
	if err != nil {
		h.storeFailure(w, "update letter", err)
		return
	}
	if !h.letters.Durable() {
		h.logger.Warn("letter update held in memory only", slog.String("id", saved.ID))
	}

	h.logger.Info("letter updated", slog.String("id", saved.ID), slog.String("actor", actor))
	metrics.RecordLetterEvent(sse.KindUpdated)
	h.events.PublishLetterEvent(sse.KindUpdated, saved.ID, map[string]any{
		"updatedAt": saved.UpdatedAt,
		"updatedBy": saved.UpdatedBy,
	})
	writeJSON(w, http.StatusAccepted, LetterUpdateResponse{Accepted: true, Letter: saved})
}

// EmergencyNotify handles POST /api/emergency-notify.
//
//	@Summary	Email an emergency support request
//	@Tags		emergency
//	@Accept		json
//	@Produce	json
//	@Param		body	body		EmergencyNotifyRequest	true	"Request"
//	@Success	200		{object}	EmergencyNotifyResponse
//	@Failure	400		{object}	errResponse
//	@Failure	429		{object}	errResponse
//	@Failure	503		{object}	EmergencyNotifyResponse
//	@Router		/emergency-notify [post]
func (h *Handler) EmergencyNotify(w http.ResponseWriter, r *http.Request) {
	var req EmergencyNotifyRequest
	if !h.admit(w, r, epEmergencyNotify, &req) {
		return
	}
	to, cerr := req.Validate(h.recipient)
	if cerr != nil {
		h.reject(w, epEmergencyNotify, cerr)
		return
	}

	// Delivery outlives a client disconnect.
	ctx := context.WithoutCancel(r.Context())
	result := h.mailer.Send(ctx, mailer.Message{To: to, Subject: EmergencySubject, Text: req.Text()})
	metrics.RecordEmergency(result.Provider, result.Delivered)
	if !result.Delivered {
		h.logger.Error("emergency notification not delivered",
			slog.String("provider", result.Provider),
			slog.String("details", result.Details))
		writeJSON(w, http.StatusServiceUnavailable, EmergencyNotifyResponse{
			Provider: result.Provider,
			Message:  result.Details,
		})
		return
	}

	h.logger.Info("emergency notification delivered", slog.String("provider", result.Provider))
	writeJSON(w, http.StatusOK, EmergencyNotifyResponse{
		Accepted:  true,
		Delivered: true,
		Provider:  result.Provider,
		Message:   "Emergency notification delivered",
	})
}

// EvaluateUnlock handles POST /api/unlock-evaluator.
//
//	@Summary	Evaluate whether a lock is open
//	@Tags		letters
//	@Accept		json
//	@Produce	json
//	@Param		body	body		UnlockRequest	true	"Lock state"
//	@Success	200		{object}	UnlockResponse
//	@Failure	400		{object}	errResponse
//	@Router		/unlock-evaluator [post]
func (h *Handler) EvaluateUnlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if !h.admit(w, r, epUnlockEvaluator, &req) {
		return
	}
	in, cerr := req.Input()
	if cerr != nil {
		h.reject(w, epUnlockEvaluator, cerr)
		return
	}
	unlocked, err := lock.Evaluate(in)
	if err != nil {
		h.reject(w, epUnlockEvaluator, apperr.BadRequest(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, UnlockResponse{Unlocked: unlocked})
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
