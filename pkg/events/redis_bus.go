// Package events carries reading notifications from ingestion to the API.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"cowly/internal/util"
	"cowly/pkg/domain"
)

const DefaultChannel = "cowly:readings"

// ReadingEvent announces a reading stored at users/{user}/cows/{cow}/readings/{key}.
type ReadingEvent struct {
	UserID  string         `json:"user_id"`
	CowID   string         `json:"cow_id"`
	Key     string         `json:"key"`
	Reading domain.Reading `json:"reading"`
}

type RedisBusConfig struct {
	Addr     string
	Password string
	Channel  string
}

// RedisBus publishes and subscribes to reading events on a Redis channel.
type RedisBus struct {
	client  *redis.Client
	channel string
}

func NewRedisBus(cfg RedisBusConfig) (*RedisBus, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
		}),
		channel: channel,
	}, nil
}

// Publish sends ev to every current subscriber.
func (b *RedisBus) Publish(ctx context.Context, ev ReadingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode reading event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish reading event: %w", err)
	}
	return nil
}

// Subscribe registers on the channel and returns once Redis confirms.
func (b *RedisBus) Subscribe(ctx context.Context) (*Subscription, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	return &Subscription{sub: sub}, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Subscription delivers decoded reading events.
type Subscription struct {
	sub *redis.PubSub
}

// Run calls handle for each event until ctx is done or the subscription is
// closed. Undecodable messages are logged and skipped.
func (s *Subscription) Run(ctx context.Context, handle func(ReadingEvent)) error {
	logger := util.LoggerFromContext(ctx)
	ch := s.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev ReadingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("reading event decode failed", "channel", msg.Channel, "err", err)
				continue
			}
			handle(ev)
		}
	}
}

func (s *Subscription) Close() error {
	return s.sub.Close()
}
