// Package tap mirrors every envelope crossing a container onto a Watermill topic.
// A router handler logs each record; when enabled, records are also appended to a
// capped Redis stream for external observers.
package tap

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cattail/pkg/envelope"
	"github.com/go-go-golems/cattail/pkg/logging"
	"github.com/go-go-golems/cattail/pkg/redisstream"
)

const Topic = "cattail.envelopes"

// closeTimeout bounds how long Close waits for in-flight handlers, the Redis mirror included.
const closeTimeout = 5 * time.Second

type Direction string

const (
	ViewToHost Direction = "view->host"
	HostToView Direction = "host->view"
)

// Record is the payload published for one envelope.
type Record struct {
	ContainerID string            `json:"container_id"`
	ViewID      string            `json:"view_id,omitempty"`
	Direction   Direction         `json:"direction"`
	Envelope    envelope.Envelope `json:"envelope"`
	At          time.Time         `json:"at"`
}

type Settings struct {
	Enabled bool                 `mapstructure:"enabled" yaml:"enabled"`
	Redis   redisstream.Settings `mapstructure:"redis" yaml:"redis"`
}

func DefaultSettings() Settings {
	return Settings{Enabled: true, Redis: redisstream.DefaultSettings()}
}

// Tap owns an in-memory pub/sub, the router consuming it and the optional Redis publisher.
type Tap struct {
	settings Settings
	logger   zerolog.Logger
	pubsub   *gochannel.GoChannel
	router   *message.Router
	redis    redis.UniversalClient
	external message.Publisher

	seen   atomic.Uint64
	closed atomic.Bool
	once   sync.Once
}

// New builds the tap. With Enabled false it returns a tap whose Record is a no-op.
func New(s Settings) (*Tap, error) {
	logger := log.With().Str("component", "tap").Logger()
	t := &Tap{settings: s, logger: logger}
	if !s.Enabled {
		return t, nil
	}
	wlog := logging.NewWatermill(logger)

	t.pubsub = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wlog)
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: closeTimeout}, wlog)
	if err != nil {
		return nil, errors.Wrap(err, "create tap router")
	}
	router.AddNoPublisherHandler("tap-log", Topic, t.pubsub, t.handle)
	t.router = router

	if s.Redis.Enabled {
		t.redis = redisstream.NewClient(s.Redis)
		pub, err := redisstream.BuildPublisher(t.redis, s.Redis)
		if err != nil {
			_ = t.redis.Close()
			return nil, err
		}
		t.external = pub
		router.AddNoPublisherHandler("tap-redis", Topic, t.pubsub, t.mirror)
	}
	return t, nil
}

func (t *Tap) Enabled() bool { return t != nil && t.settings.Enabled }

// Run blocks running the router until ctx is cancelled.
func (t *Tap) Run(ctx context.Context) error {
	if !t.Enabled() {
		<-ctx.Done()
		return nil
	}
	if err := t.router.Run(ctx); err != nil {
		return errors.Wrap(err, "run tap router")
	}
	return nil
}

// Running is closed once the router handlers are subscribed.
func (t *Tap) Running() <-chan struct{} {
	if !t.Enabled() {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.router.Running()
}

// Subscribe returns the raw record stream, for observers inside the process.
func (t *Tap) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if !t.Enabled() {
		return nil, errors.New("tap is disabled")
	}
	return t.pubsub.Subscribe(ctx, Topic)
}

// Record publishes one envelope to the in-process channel. The Redis mirror runs on its
// own router handler, so Record never waits on the network.
func (t *Tap) Record(r Record) {
	if !t.Enabled() || t.closed.Load() {
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	payload, err := json.Marshal(r)
	if err != nil {
		t.logger.Debug().Err(err).Msg("encode tap record")
		return
	}
	if err := t.pubsub.Publish(Topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		t.logger.Debug().Err(err).Msg("publish tap record")
	}
}

// Seen counts records handled by the router.
func (t *Tap) Seen() uint64 { return t.seen.Load() }

func (t *Tap) handle(msg *message.Message) error {
	var r Record
	if err := json.Unmarshal(msg.Payload, &r); err != nil {
		t.logger.Debug().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable tap record")
		return nil
	}
	t.seen.Add(1)
	t.logger.Debug().
		Str("container_id", r.ContainerID).
		Str("view_id", r.ViewID).
		Str("direction", string(r.Direction)).
		Str("kind", string(r.Envelope.Kind)).
		Str("text", r.Envelope.Text).
		Msg("envelope")
	return nil
}

// mirror copies a record onto the Redis stream. Publish failures drop the record rather
// than nack it, otherwise an unreachable server would be retried forever.
func (t *Tap) mirror(msg *message.Message) error {
	if err := t.external.Publish(t.settings.Redis.Stream, message.NewMessage(watermill.NewUUID(), msg.Payload)); err != nil {
		t.logger.Warn().Err(err).Str("stream", t.settings.Redis.Stream).Msg("publish tap record to redis")
	}
	return nil
}

func (t *Tap) Close() error {
	if !t.Enabled() {
		return nil
	}
	var err error
	t.once.Do(func() {
		t.closed.Store(true)
		if cerr := t.router.Close(); cerr != nil {
			err = errors.Wrap(cerr, "close tap router")
		}
		if cerr := t.pubsub.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close tap pubsub")
		}
		if t.external != nil {
			if cerr := t.external.Close(); cerr != nil && err == nil {
				err = errors.Wrap(cerr, "close redis publisher")
			}
			_ = t.redis.Close()
		}
	})
	return err
}
