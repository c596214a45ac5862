// Package openinghours applies opening-hours changes received from Kafka to the calendar.
package openinghours

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agenda/internal/calendar"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/kafka"
	"agenda/pkg/logger"
)

const (
	EventType     = "opening-hours.changed"
	SchemaVersion = "1"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	// ActionExtend adds the default opening hours for Days days starting at From.
	ActionExtend Action = "extend"
)

// Change is the payload of an opening-hours message.
type Change struct {
	Action Action    `json:"action"`
	Start  time.Time `json:"start,omitempty"`
	End    time.Time `json:"end,omitempty"`
	From   time.Time `json:"from,omitempty"`
	Days   int       `json:"days,omitempty"`
}

var errInvalidChange = errors.New("invalid opening hours change")

func (c Change) Validate() error {
	switch c.Action {
	case ActionAdd, ActionRemove:
		if c.Start.IsZero() || c.End.IsZero() || !c.End.After(c.Start) {
			return fmt.Errorf("%w: %s needs start before end", errInvalidChange, c.Action)
		}
	case ActionExtend:
		if c.From.IsZero() || c.Days <= 0 {
			return fmt.Errorf("%w: extend needs from and a positive day count", errInvalidChange)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", errInvalidChange, c.Action)
	}
	return nil
}

// Key groups changes of the same day on one partition so they apply in order.
func (c Change) Key() string {
	if c.Action == ActionExtend {
		return c.From.Format(time.DateOnly)
	}
	return c.Start.Format(time.DateOnly)
}

// rejected reports whether retrying err can never succeed.
func rejected(err error) bool {
	if errors.Is(err, calendar.ErrSlotBusy) {
		return false
	}
	return apperrors.HasCode(err, apperrors.CodeInvalidInput) ||
		apperrors.HasCode(err, apperrors.CodeValidation) ||
		apperrors.HasCode(err, apperrors.CodeConflict)
}

// NewMessage wraps a change for publishing.
func NewMessage(c Change, source string) kafka.Message {
	return kafka.NewMessage().
		WithKey(c.Key()).
		WithValue(c).
		WithEventType(EventType).
		WithSchemaVersion(SchemaVersion).
		WithSource(source).
		Build()
}

// Calendar is the part of the reservation service that edits opening hours.
type Calendar interface {
	AddOpeningWindow(ctx context.Context, start, end time.Time) error
	RemoveOpeningWindow(ctx context.Context, start, end time.Time) error
	ExtendOpeningHours(ctx context.Context, from time.Time, days int) error
}

type Handler struct {
	cal Calendar
	log *logger.Logger
}

func NewHandler(cal Calendar, log *logger.Logger) *Handler {
	return &Handler{cal: cal, log: log}
}

// Handle applies one change. Malformed payloads and changes the calendar rejects are permanent
// failures. Only a window whose slots are locked by an in-flight reservation, or an unexpected
// failure, is retried by the consumer.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	if t := msg.GetEventType(); t != "" && t != EventType {
		h.log.Debug("Skipping message of another type", "event_type", t, "offset", msg.Offset)
		return nil
	}

	var c Change
	if err := msg.DecodeValue(&c); err != nil {
		return kafka.NewPermanentError("undecodable opening hours change", err)
	}
	if err := c.Validate(); err != nil {
		return kafka.NewPermanentError("rejected opening hours change", err)
	}

	var err error
	switch c.Action {
	case ActionAdd:
		err = h.cal.AddOpeningWindow(ctx, c.Start, c.End)
	case ActionRemove:
		err = h.cal.RemoveOpeningWindow(ctx, c.Start, c.End)
	case ActionExtend:
		err = h.cal.ExtendOpeningHours(ctx, c.From, c.Days)
	}
	if err != nil {
		if rejected(err) {
			return kafka.NewPermanentError("calendar rejected opening hours change", err)
		}
		return err
	}

	h.log.Info("Opening hours change applied",
		"action", c.Action,
		"event_id", msg.GetEventID(),
		"key", c.Key(),
	)
	return nil
}
