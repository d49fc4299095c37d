// Package events publishes committed review decisions on Redis pub/sub so
// graph views can refresh their projection.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// Event types carried in GraphChangeEvent.Event.
const (
	EventProposalApproved = "proposal_approved"
	EventProposalRejected = "proposal_rejected"
)

// GraphChangeEvent is the message published for every decided proposal.
// GraphChanged is false for rejections and no-op approvals without new
// properties, which leave the projection as it was.
type GraphChangeEvent struct {
	Event        string              `json:"event"`
	ProposalID   uuid.UUID           `json:"proposal_id"`
	ProposalType models.ProposalType `json:"proposal_type"`
	Action       models.MergeAction  `json:"action,omitempty"`
	TargetKind   models.TargetKind   `json:"target_kind,omitempty"`
	TargetID     *uuid.UUID          `json:"target_id,omitempty"`
	ReviewedBy   string              `json:"reviewed_by,omitempty"`
	GraphChanged bool                `json:"graph_changed"`
	DecidedAt    time.Time           `json:"decided_at"`
}

// RedisPublisher is the subset of the go-redis client the publisher needs.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Publisher sends GraphChangeEvents after each committed decision.
type Publisher struct {
	client  RedisPublisher
	channel string
	logger  *zap.Logger
}

// NewPublisher creates a Publisher on the given channel.
func NewPublisher(client RedisPublisher, channel string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.Named("events"),
	}
}

func (p *Publisher) Name() string { return "redis_publisher" }

// ProposalDecided publishes the decision. It satisfies services.ReviewListener.
func (p *Publisher) ProposalDecided(ctx context.Context, event *models.ReviewEvent) error {
	msg := NewGraphChangeEvent(event)
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode graph change event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, raw).Result()
	if err != nil {
		return fmt.Errorf("failed to publish graph change event: %w", err)
	}

	p.logger.Debug("Published graph change",
		zap.String("event", msg.Event),
		zap.String("proposal_id", msg.ProposalID.String()),
		zap.Bool("graph_changed", msg.GraphChanged),
		zap.Int64("receivers", receivers))
	return nil
}

// NewGraphChangeEvent converts a review event into its wire form.
func NewGraphChangeEvent(event *models.ReviewEvent) GraphChangeEvent {
	proposal := event.Proposal
	msg := GraphChangeEvent{
		Event:        EventProposalRejected,
		ProposalID:   proposal.ID,
		ProposalType: proposal.Type,
		DecidedAt:    time.Now().UTC(),
	}
	if proposal.ReviewedBy != nil {
		msg.ReviewedBy = *proposal.ReviewedBy
	}
	if proposal.ReviewedAt != nil {
		msg.DecidedAt = proposal.ReviewedAt.UTC()
	}

	if event.Result == nil || event.Result.Decision == nil {
		return msg
	}

	decision := event.Result.Decision
	msg.Event = EventProposalApproved
	msg.Action = decision.Action
	msg.TargetKind = decision.TargetKind
	msg.TargetID = decision.TargetID
	msg.GraphChanged = decision.Action != models.MergeActionNoop || noopMerged(event.Result)
	return msg
}

// noopMerged reports whether a no-op approval still added properties.
func noopMerged(result *models.ApplyResult) bool {
	payload, err := result.Proposal.DecodedPayload()
	if err != nil {
		return true
	}
	switch p := payload.(type) {
	case *models.EntityPayload:
		return len(p.Properties) > 0
	case *models.RelationPayload:
		return len(p.Properties) > 0
	case *models.InstancePayload:
		return len(p.Properties) > 0
	}
	return true
}
