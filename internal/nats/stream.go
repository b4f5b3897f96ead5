package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
	"github.com/capitalize-ai/agent-conversations/pkg/metrics"
)

const (
	// StreamName is the name of the conversation events stream.
	StreamName = "CONVERSATION_EVENTS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"
)

// EventPublisher writes conversation events to JetStream.
type EventPublisher struct {
	js     jetstream.JetStream
	logger *logger.Logger
}

// NewEventPublisher creates an EventPublisher on the client's JetStream
// context.
func NewEventPublisher(client *Client, log *logger.Logger) *EventPublisher {
	return &EventPublisher{js: client.JetStream(), logger: log}
}

// EnsureStream ensures the events stream exists with proper configuration.
func (p *EventPublisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		Description: "Conversation change events (messages, agent state, context, participants)",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	p.logger.Info("created JetStream stream", zap.String("stream", StreamName))
	return nil
}

// token makes s safe for use as a single subject token.
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// EventSubject returns the subject for an event.
func EventSubject(organizationID string, conversationID int64, kind model.EventKind) string {
	return fmt.Sprintf("%s.%s.%d.%s", SubjectPrefix, token(organizationID), conversationID, kind)
}

// ConversationFilter returns the filter subject for all events of a conversation.
func ConversationFilter(organizationID string, conversationID int64) string {
	return fmt.Sprintf("%s.%s.%d.>", SubjectPrefix, token(organizationID), conversationID)
}

// Publish implements service.EventPublisher.
func (p *EventPublisher) Publish(ctx context.Context, event *model.ConversationEvent) error {
	subject := EventSubject(event.OrganizationID, event.ConversationID, event.Kind)

	data, err := json.Marshal(event)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(event.Kind), "error").Inc()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID)); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(event.Kind), "error").Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(event.Kind), "success").Inc()
	return nil
}

// RecentEvents reads up to limit events of one conversation, oldest first,
// starting after the given stream sequence.
func (p *EventPublisher) RecentEvents(ctx context.Context, organizationID string, conversationID int64, afterSequence uint64, limit int) ([]model.ConversationEvent, uint64, error) {
	if limit <= 0 {
		limit = 50
	}

	consumerConfig := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ConversationFilter(organizationID, conversationID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := p.js.OrderedConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch events: %w", err)
	}

	var (
		events       []model.ConversationEvent
		lastSequence = afterSequence
	)
	for msg := range batch.Messages() {
		if meta, err := msg.Metadata(); err == nil {
			lastSequence = meta.Sequence.Stream
		}
		var event model.ConversationEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			p.logger.Debug("skipping malformed event", zap.String("subject", msg.Subject()), zap.Error(err))
			continue
		}
		// Subjects are sanitized; the payload is the authority on tenancy.
		if event.OrganizationID != organizationID {
			continue
		}
		events = append(events, event)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, 0, fmt.Errorf("batch error: %w", err)
	}
	return events, lastSequence, nil
}
