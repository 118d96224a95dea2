// Package events publishes user lifecycle notifications to the message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teamboard/apiserver/types"
)

const (
	ChannelUserRegistered = "users.registered"
	ChannelUserLoggedIn   = "users.logged_in"
)

// UserEvent is the JSON payload published for user lifecycle events.
type UserEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Team       string    `json:"team,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Broker is the subset of mq.MQ the publisher needs.
type Broker interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Publisher emits user events.
type Publisher interface {
	UserRegistered(ctx context.Context, user types.User) error
	UserLoggedIn(ctx context.Context, user types.User) error
}

// BrokerPublisher publishes events through a Broker.
type BrokerPublisher struct {
	broker Broker
	now    func() time.Time
}

func NewBrokerPublisher(broker Broker) *BrokerPublisher {
	return &BrokerPublisher{broker: broker, now: time.Now}
}

func (p *BrokerPublisher) UserRegistered(ctx context.Context, user types.User) error {
	return p.publish(ctx, ChannelUserRegistered, user)
}

func (p *BrokerPublisher) UserLoggedIn(ctx context.Context, user types.User) error {
	return p.publish(ctx, ChannelUserLoggedIn, user)
}

func (p *BrokerPublisher) publish(ctx context.Context, channel string, user types.User) error {
	payload, err := json.Marshal(UserEvent{
		Type:       channel,
		UserID:     user.ID,
		Email:      user.Email,
		Team:       user.Team,
		OccurredAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", channel, err)
	}

	attrs := map[string]string{
		"event_type": channel,
		"user_id":    user.ID,
	}
	if _, err := p.broker.Publish(ctx, channel, payload, attrs); err != nil {
		return fmt.Errorf("publish %s event: %w", channel, err)
	}
	return nil
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) UserRegistered(context.Context, types.User) error { return nil }
func (NopPublisher) UserLoggedIn(context.Context, types.User) error { return nil }

// Decode parses a UserEvent payload.
func Decode(data []byte) (UserEvent, error) {
	var event UserEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return UserEvent{}, fmt.Errorf("decode user event: %w", err)
	}
	return event, nil
}
