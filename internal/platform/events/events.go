// Package events publishes domain events after successful writes. Delivery
// is best effort: a failed publish is logged and never fails the request.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EncounterCreated   = "encounter.created"
	PredictionCreated  = "prediction.created"
	AttachmentUploaded = "attachment.uploaded"
)

// Event is the envelope written to every backend.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Subject    string          `json:"subject"`
	Data       json.RawMessage `json:"data"`
}

// New wraps data in an envelope. subject is the id of the affected entity.
func New(eventType, subject string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Subject:    subject,
		Data:       raw,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Emitter builds and publishes events, logging failures.
type Emitter struct {
	pub    Publisher
	logger zerolog.Logger
}

func NewEmitter(pub Publisher, logger zerolog.Logger) *Emitter {
	return &Emitter{pub: pub, logger: logger}
}

// Emit never returns an error; the write it reports has already committed.
func (e *Emitter) Emit(ctx context.Context, eventType, subject string, data interface{}) {
	if e == nil || e.pub == nil {
		return
	}
	evt, err := New(eventType, subject, data)
	if err != nil {
		e.logger.Error().Err(err).Str("type", eventType).Msg("build event")
		return
	}
	if err := e.pub.Publish(ctx, evt); err != nil {
		e.logger.Warn().Err(err).
			Str("type", eventType).
			Str("subject", subject).
			Str("event_id", evt.ID).
			Msg("publish event failed")
	}
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event_id", evt.ID).
		Str("type", evt.Type).
		Str("subject", evt.Subject).
		RawJSON("data", evt.Data).
		Msg("event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Fanout publishes every event to each backend in order. All backends are
// tried; their errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	evts := r.Events()
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.Type
	}
	return out
}
