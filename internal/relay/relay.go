package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/qabrowser/pkg/protocol"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/qabrowser/internal/relay")

// DefaultSendTimeout bounds a single subscriber write during a broadcast.
const DefaultSendTimeout = 10 * time.Second

// Relay fans events out to the subscribers of a test session.
type Relay struct {
	registry    *Registry
	logger      *slog.Logger
	now         func() time.Time
	sendTimeout time.Duration
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSendTimeout bounds each subscriber write (default 10s).
func WithSendTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

// New creates a relay over registry. A nil registry gets a fresh one.
func New(registry *Registry, opts ...Option) *Relay {
	if registry == nil {
		registry = NewRegistry()
	}
	r := &Relay{
		registry:    registry,
		logger:      slog.Default(),
		now:         time.Now,
		sendTimeout: DefaultSendTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry returns the session registry backing the relay.
func (r *Relay) Registry() *Registry { return r.registry }

// Subscribe sends ch the connection confirmation and then registers it for
// testID, so the confirmation is always the first frame a subscriber sees.
// If the confirmation cannot be delivered the channel is closed and never
// registered.
func (r *Relay) Subscribe(ctx context.Context, testID string, ch Channel) error {
	data, err := json.Marshal(protocol.NewConnectionEvent(testID, r.now()))
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("marshal connection event: %w", err)
	}
	if err := r.send(ctx, ch, data); err != nil {
		_ = ch.Close()
		return fmt.Errorf("send connection event: %w", err)
	}

	r.registry.Register(testID, ch)
	r.syncGauges()
	metricConnections.Inc()
	r.logger.Info("subscriber connected", "test_id", testID, "channel", ch.ID())
	return nil
}

// Unsubscribe removes ch from testID. The caller owns closing the channel.
func (r *Relay) Unsubscribe(testID string, ch Channel) {
	if r.registry.Unregister(testID, ch) {
		r.syncGauges()
		r.logger.Info("subscriber disconnected", "test_id", testID, "channel", ch.ID())
	}
}

// Broadcast sends ev to every subscriber of testID. The timestamp is filled
// in when empty and the payload is encoded once. Subscribers whose send fails
// are unregistered and closed; those failures are logged, not returned.
// Broadcast returns after every send has finished, so successive broadcasts
// reach each subscriber in order. Only encoding errors are returned.
func (r *Relay) Broadcast(ctx context.Context, testID string, ev protocol.Event) error {
	if ev == nil {
		return errors.New("broadcast: nil event")
	}
	if raw, ok := ev.(protocol.Raw); ok && raw == nil {
		return errors.New("broadcast: nil event")
	}
	ev.StampIfUnset(r.now())

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.EventType(), err)
	}

	channels := r.registry.ChannelsFor(testID)
	if len(channels) == 0 {
		r.logger.Debug("no subscribers for event", "test_id", testID, "type", ev.EventType())
		return nil
	}

	ctx, span := tracer.Start(ctx, "relay.broadcast", trace.WithAttributes(
		attribute.String("relay.test_id", testID),
		attribute.String("relay.event_type", ev.EventType()),
		attribute.Int("relay.subscribers", len(channels)),
	))
	defer span.End()

	var g errgroup.Group
	for _, ch := range channels {
		g.Go(func() error {
			if err := r.send(ctx, ch, data); err != nil {
				r.logger.Warn("dropping subscriber after failed send",
					"test_id", testID, "channel", ch.ID(), "type", ev.EventType(), "error", err)
				r.drop(testID, ch)
				metricPruned.Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	metricBroadcasts.WithLabelValues(ev.EventType()).Inc()
	return nil
}

// BroadcastTestStatus sends a test_status event.
func (r *Relay) BroadcastTestStatus(ctx context.Context, testID, status, message string) error {
	return r.Broadcast(ctx, testID, protocol.NewTestStatusEvent(status, message))
}

// BroadcastObservation sends a browser_observation event.
func (r *Relay) BroadcastObservation(ctx context.Context, testID string, ev *protocol.BrowserObservationEvent) error {
	if ev == nil {
		return errors.New("broadcast: nil observation")
	}
	return r.Broadcast(ctx, testID, ev)
}

// Close closes every subscriber channel.
func (r *Relay) Close() {
	r.registry.Clear()
	r.syncGauges()
}

// send writes data to ch under the relay's own deadline. Cancellation of the
// caller's ctx does not reach the write: a failed send must mean the channel
// itself is gone.
func (r *Relay) send(ctx context.Context, ch Channel, data []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sendTimeout)
	defer cancel()
	return ch.Send(ctx, data)
}

func (r *Relay) drop(testID string, ch Channel) {
	r.registry.Unregister(testID, ch)
	_ = ch.Close()
	r.syncGauges()
}

func (r *Relay) syncGauges() {
	metricSessions.Set(float64(r.registry.SessionCount()))
	metricSubscribers.Set(float64(r.registry.SubscriberCount()))
}
