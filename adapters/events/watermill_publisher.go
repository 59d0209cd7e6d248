package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/ports"
)

const (
	TopicRequestCreated  = "credgate.requests.created"
	TopicRequestResolved = "credgate.requests.resolved"
	TopicLogout          = "credgate.sessions.logout"
)

// RequestEvent is published when a request is raised or decided
type RequestEvent struct {
	RequestID       string             `json:"request_id"`
	StudentWallet   string             `json:"student_wallet"`
	RecipientWallet string             `json:"recipient_wallet"`
	Status          core.RequestStatus `json:"status"`
	TranscriptIDs   []string           `json:"transcript_ids,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", topic, err)
	}

	return nil
}

// PublishRequestCreated publishes a newly raised request
func (p *WatermillPublisher) PublishRequestCreated(ctx context.Context, request *core.AccessRequest) error {
	return p.publish(ctx, TopicRequestCreated, RequestEvent{
		RequestID:       request.ID,
		StudentWallet:   request.StudentWallet,
		RecipientWallet: request.RecipientWallet,
		Status:          request.Status,
		OccurredAt:      request.CreatedAt,
	})
}

// PublishRequestResolved publishes the student's decision
func (p *WatermillPublisher) PublishRequestResolved(ctx context.Context, request *core.AccessRequest, decision core.Decision) error {
	return p.publish(ctx, TopicRequestResolved, RequestEvent{
		RequestID:       request.ID,
		StudentWallet:   request.StudentWallet,
		RecipientWallet: request.RecipientWallet,
		Status:          request.Status,
		TranscriptIDs:   decision.TranscriptIDs,
		Reason:          decision.Reason,
		OccurredAt:      time.Now().UTC(),
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, sessionID string) error {
	return p.publish(ctx, TopicLogout, LogoutEvent{
		Address:   address,
		SessionID: sessionID,
	})
}
