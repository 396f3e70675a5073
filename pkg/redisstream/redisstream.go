// Package redisstream builds Watermill publishers and subscribers on Redis Streams.
package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cattail/pkg/logging"
)

// Settings holds the Redis Streams transport configuration.
type Settings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Stream  string `mapstructure:"stream" yaml:"stream"`
	// MaxLen caps the stream length with approximate trimming; 0 leaves it unbounded.
	MaxLen   int64  `mapstructure:"max-len" yaml:"max-len"`
	Group    string `mapstructure:"group" yaml:"group"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Stream:   "cattail.envelopes",
		MaxLen:   10000,
		Group:    "cattail-tap",
		Consumer: "tap-1",
	}
}

func NewClient(s Settings) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: s.Addr})
}

// BuildPublisher returns a publisher writing to Redis Streams. The client is owned by the
// caller and must outlive the publisher.
func BuildPublisher(client redis.UniversalClient, s Settings) (message.Publisher, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:        client,
		Marshaller:    rstream.DefaultMarshallerUnmarshaller{},
		DefaultMaxlen: s.MaxLen,
	}, logging.NewWatermill(log.With().Str("component", "redisstream").Logger()))
	if err != nil {
		return nil, errors.Wrap(err, "create redis stream publisher")
	}
	return pub, nil
}

// BuildGroupSubscriber returns a subscriber bound to the configured consumer group and name.
func BuildGroupSubscriber(client redis.UniversalClient, s Settings) (message.Subscriber, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logging.NewWatermill(log.With().Str("component", "redisstream").Logger()))
	if err != nil {
		return nil, errors.Wrap(err, "create redis stream subscriber")
	}
	return sub, nil
}

// EnsureGroupAtTail creates the consumer group at the tail ($) if it does not exist yet,
// so a new observer does not replay the whole stream.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", group, stream)
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
