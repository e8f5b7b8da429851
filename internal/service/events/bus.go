package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/placement-gpt/backend/internal/config"
	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
)

const subscriberBuffer = 64

// Bus carries session events over watermill. It satisfies the chat
// service's Publisher and feeds the SSE and websocket handlers.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	prefix     string
	redis      redis.UniversalClient
	closers    []func() error
}

// New builds a bus for the configured backend.
func New(cfg config.EventsConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	switch cfg.Backend {
	case config.EventsBackendMemory:
		return NewMemoryBus(cfg.TopicPrefix, logger), nil
	case config.EventsBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		bus, err := NewRedisBus(client, cfg.TopicPrefix, cfg.StreamMaxLen, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return bus, nil
	default:
		return nil, errors.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// NewMemoryBus keeps events inside the process. Publish waits for every
// subscriber to ack, which keeps per-session ordering intact.
func NewMemoryBus(prefix string, logger watermill.LoggerAdapter) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            subscriberBuffer,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return &Bus{
		publisher:  ch,
		subscriber: ch,
		prefix:     prefix,
		closers:    []func() error{ch.Close},
	}
}

// NewRedisBus fans events out through Redis Streams. Subscribers read
// without a consumer group so each one sees every event. Each session
// stream is trimmed to roughly maxLen entries. The bus takes ownership of
// client and closes it in Close.
func NewRedisBus(client redis.UniversalClient, prefix string, maxLen int64, logger watermill.LoggerAdapter) (*Bus, error) {
	if maxLen <= 0 {
		maxLen = config.DefaultStreamMaxLen
	}
	marshaler := redisstream.DefaultMarshallerUnmarshaller{}

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:        client,
		Marshaller:    marshaler,
		DefaultMaxlen: maxLen,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "create redis stream publisher")
	}

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:       client,
		Unmarshaller: marshaler,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "create redis stream subscriber")
	}

	return &Bus{
		publisher:  pub,
		subscriber: sub,
		prefix:     prefix,
		redis:      client,
		// closing the client first unblocks subscribers still waiting on
		// their first XREAD.
		closers: []func() error{client.Close, sub.Close, pub.Close},
	}, nil
}

// Topic returns the topic carrying events of sessionID.
func (b *Bus) Topic(sessionID string) string {
	return b.prefix + sessionID
}

// Publish implements chat.Publisher.
func (b *Bus) Publish(ctx context.Context, event chat.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal session event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(event.Type))

	if err := b.publisher.Publish(b.Topic(event.SessionID), msg); err != nil {
		return errors.Wrapf(err, "publish %s", event.Type)
	}
	return nil
}

// Forget drops the retained stream of sessionID. The in-memory backend
// keeps nothing, so it is a no-op there.
func (b *Bus) Forget(ctx context.Context, sessionID string) error {
	if b.redis == nil {
		return nil
	}
	if err := b.redis.Del(ctx, b.Topic(sessionID)).Err(); err != nil {
		return errors.Wrapf(err, "drop stream of session %s", sessionID)
	}
	return nil
}

// Subscribe streams the events of one session until ctx is done. Events are
// dropped for a subscriber that stops draining its channel.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (<-chan chat.Event, error) {
	msgs, err := b.subscriber.Subscribe(ctx, b.Topic(sessionID))
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe session %s", sessionID)
	}

	out := make(chan chat.Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			var event chat.Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Warn().Err(err).Str("session_id", sessionID).Msg("dropping malformed session event")
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- event:
			case <-ctx.Done():
				return
			default:
				log.Warn().Str("session_id", sessionID).Str("event", string(event.Type)).Msg("subscriber lagging, event dropped")
			}
		}
	}()
	return out, nil
}

// Close releases the underlying publisher and subscriber.
func (b *Bus) Close() error {
	var firstErr error
	for _, c := range b.closers {
		// publisher and subscriber both close the shared redis client
		if err := c(); err != nil && !errors.Is(err, redis.ErrClosed) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
