package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/mediflow/triage-engine/internal/model"
)

const (
	// StreamName is the name of the triage events stream.
	StreamName = "TRIAGE"

	// SubjectPrefix is the prefix for all triage subjects.
	SubjectPrefix = "triage"
)

// Publisher writes transition audit events and booking handoffs to
// JetStream. Publishing is best-effort from the request path: a commit
// to the session store never depends on it.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher on an established client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream creates the triage stream if it does not exist yet.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Triage session transitions and booking handoffs",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// TransitionSubject returns the subject for a session's transition events.
func TransitionSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.transition", SubjectPrefix, sessionID)
}

// HandoffSubject returns the subject for a session's booking handoff.
func HandoffSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.handoff", SubjectPrefix, sessionID)
}

// PublishTransition publishes a committed phase transition.
func (p *Publisher) PublishTransition(ctx context.Context, ev *model.TransitionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}
	if _, err := p.client.JetStream().Publish(ctx, TransitionSubject(ev.SessionID), data); err != nil {
		return fmt.Errorf("failed to publish transition: %w", err)
	}
	return nil
}

// PublishHandoff publishes the final booking request for the external
// appointment API once a session completes.
func (p *Publisher) PublishHandoff(ctx context.Context, h *model.BookingHandoff) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal handoff: %w", err)
	}
	if _, err := p.client.JetStream().Publish(ctx, HandoffSubject(h.SessionID), data); err != nil {
		return fmt.Errorf("failed to publish handoff: %w", err)
	}
	return nil
}
