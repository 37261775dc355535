package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BillK181/wedding-website/internal/util"
	"github.com/BillK181/wedding-website/pkg/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream RSVP changes are appended to.
const DefaultStream = "portal:rsvp"

// RSVPEvent records one accepted RSVP submission.
type RSVPEvent struct {
	ID         string
	GuestID    string
	GuestName  string
	Status     domain.RSVPStatus
	RecordedAt time.Time
}

// RSVPPublisher is the write side used by the app layer.
type RSVPPublisher interface {
	Publish(ctx context.Context, ev RSVPEvent) (string, error)
}

type RSVPStreamConfig struct {
	Stream     string
	Group      string
	Consumer   string
	Block      time.Duration
	ClaimIdle  time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

// RSVPStream appends RSVP events to a capped Redis stream and lets
// consumer groups follow it.
type RSVPStream struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	block        time.Duration
	claimIdle    time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
	groupErr     error
}

func NewRSVPStream(client *redis.Client, cfg RSVPStreamConfig) (*RSVPStream, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = DefaultStream
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "portal"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}
	return &RSVPStream{
		client:       client,
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		block:        block,
		claimIdle:    claimIdle,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

// Publish appends ev and returns the stream entry id.
func (q *RSVPStream) Publish(ctx context.Context, ev RSVPEvent) (string, error) {
	if strings.TrimSpace(ev.GuestID) == "" {
		return "", errors.New("guestId required")
	}
	if ev.ID == "" {
		ev.ID = util.NewID()
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: encodeEvent(ev),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish rsvp event: %w", err)
	}
	return id, nil
}

// Start runs concurrency consumers until ctx is done. Entries whose handler
// fails stay pending and are reclaimed after claimIdle.
func (q *RSVPStream) Start(ctx context.Context, concurrency int, handler func(context.Context, RSVPEvent) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
	return nil
}

func (q *RSVPStream) ensureGroup(ctx context.Context) error {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			q.groupErr = fmt.Errorf("create consumer group: %w", err)
		}
	})
	return q.groupErr
}

func (q *RSVPStream) consumeLoop(ctx context.Context, consumer string, handler func(context.Context, RSVPEvent) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				slog.Warn("rsvp stream read failed", "stream", q.stream, "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RSVPStream) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RSVPStream) handleMessage(ctx context.Context, msg redis.XMessage, handler func(context.Context, RSVPEvent) error) {
	ev, ok := decodeEvent(msg.Values)
	if !ok {
		slog.Warn("dropping malformed rsvp event", "stream", q.stream, "entry", msg.ID)
		q.ack(ctx, msg.ID)
		return
	}
	if err := handler(ctx, ev); err != nil {
		slog.Warn("rsvp event handler failed", "entry", msg.ID, "guestId", ev.GuestID, "err", err)
		return
	}
	q.ack(ctx, msg.ID)
}

func (q *RSVPStream) ack(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
}

func encodeEvent(ev RSVPEvent) map[string]any {
	return map[string]any{
		"event_id":    ev.ID,
		"guest_id":    ev.GuestID,
		"guest_name":  ev.GuestName,
		"status":      string(ev.Status),
		"recorded_at": ev.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeEvent(values map[string]any) (RSVPEvent, bool) {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}
	ev := RSVPEvent{
		ID:        str("event_id"),
		GuestID:   str("guest_id"),
		GuestName: str("guest_name"),
		Status:    domain.RSVPStatus(str("status")),
	}
	if ev.GuestID == "" {
		return RSVPEvent{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, str("recorded_at")); err == nil {
		ev.RecordedAt = t
	}
	return ev, true
}
