package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/estateops/pkg/async"
	"github.com/platinummonkey/estateops/pkg/observability"
)

// Handler reacts to an event. Returned errors and panics are logged by the
// bus and go no further.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Publisher is the narrow interface handed to services that emit events
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	PublishAsync(ctx context.Context, evt Event) error
}

type subscription struct {
	name    string
	handler Handler
}

// Config configures a Bus
type Config struct {
	// Workers and QueueSize size the post-response dispatcher
	Workers   int
	QueueSize int
	// MaxConcurrency bounds the subscribers run at once for one publish;
	// zero means unbounded
	MaxConcurrency int
	// HandlerTimeout bounds each subscriber invocation
	HandlerTimeout time.Duration
}

// DefaultConfig returns the bus defaults
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueSize:      1024,
		HandlerTimeout: 10 * time.Second,
	}
}

// Bus is an in-process publish/subscribe dispatcher
type Bus struct {
	cfg     Config
	log     *logrus.Logger
	metrics *observability.Metrics

	mu   sync.RWMutex
	subs map[Type][]subscription

	pool *async.WorkerPool

	overflowMu sync.Mutex
	closed     bool
	overflow   sync.WaitGroup
}

// NewBus creates a bus with an empty registry and starts its dispatcher
func NewBus(cfg Config, log *logrus.Logger, metrics *observability.Metrics) *Bus {
	d := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = d.HandlerTimeout
	}
	if log == nil {
		log = logrus.New()
	}

	b := &Bus{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		subs:    make(map[Type][]subscription),
	}
	b.pool = async.NewWorkerPool(context.Background(), async.PoolConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		TaskName:  "event dispatch",
		Logger:    log,
	})
	return b
}

// Subscribe registers handler under name for an event type. A subscriber's
// identity is its name, not its handler: registering a name that is already
// subscribed to the type is a no-op and returns false, while the same handler
// under two names is invoked twice per publish.
func (b *Bus) Subscribe(t Type, name string, handler Handler) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs[t] {
		if s.name == name {
			b.log.WithFields(logrus.Fields{
				"event_type": t,
				"subscriber": name,
			}).Warn("Subscriber already registered, ignoring")
			return false
		}
	}

	// copy-on-write so in-flight dispatches keep their snapshot
	next := make([]subscription, len(b.subs[t]), len(b.subs[t])+1)
	copy(next, b.subs[t])
	b.subs[t] = append(next, subscription{name: name, handler: handler})
	return true
}

// SubscribeFunc registers a plain function
func (b *Bus) SubscribeFunc(t Type, name string, fn func(ctx context.Context, evt Event) error) bool {
	return b.Subscribe(t, name, HandlerFunc(fn))
}

// SubscribeAll registers handler for every type in the catalogue
func (b *Bus) SubscribeAll(name string, handler Handler, types ...Type) {
	if len(types) == 0 {
		types = Catalogue
	}
	for _, t := range types {
		b.Subscribe(t, name, handler)
	}
}

// Unsubscribe removes the named subscriber from an event type. It reports
// whether anything was removed.
func (b *Bus) Unsubscribe(t Type, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subs[t]
	for i, s := range current {
		if s.name != name {
			continue
		}
		next := make([]subscription, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, t)
		} else {
			b.subs[t] = next
		}
		return true
	}
	return false
}

// Subscribers returns the names subscribed to an event type
func (b *Bus) Subscribers(t Type) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, len(b.subs[t]))
	for i, s := range b.subs[t] {
		names[i] = s.name
	}
	return names
}

// Publish delivers evt to every current subscriber of its type and waits
// for all of them. Subscriber failures are logged and swallowed; the only
// error returned is for an event that breaks the payload contract.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if err := evt.Validate(); err != nil {
		b.log.WithError(err).WithField("event_type", evt.Type).Error("Refusing to publish invalid event")
		return err
	}
	b.metrics.RecordPublish(string(evt.Type))

	ctx, span := observability.Tracer().Start(ctx, "events.publish", trace.WithAttributes(
		attribute.String("event.type", string(evt.Type)),
		attribute.String("event.id", evt.ID),
	))
	defer span.End()

	b.mu.RLock()
	subs := b.subs[evt.Type]
	b.mu.RUnlock()

	span.SetAttributes(attribute.Int("event.subscribers", len(subs)))
	if len(subs) == 0 {
		return nil
	}

	var g errgroup.Group
	if b.cfg.MaxConcurrency > 0 {
		g.SetLimit(b.cfg.MaxConcurrency)
	}
	for _, s := range subs {
		g.Go(func() error {
			b.deliver(ctx, s, evt)
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

// PublishAsync queues evt for delivery after the caller returns. The
// event is detached from ctx cancellation so a finished request does not
// cancel its subscribers. When the queue is saturated the publish moves to
// its own goroutine; the caller never waits on subscribers.
func (b *Bus) PublishAsync(ctx context.Context, evt Event) error {
	if err := evt.Validate(); err != nil {
		b.log.WithError(err).WithField("event_type", evt.Type).Error("Refusing to publish invalid event")
		return err
	}

	detached := context.WithoutCancel(ctx)
	task := func(context.Context) error {
		return b.Publish(detached, evt)
	}

	err := b.pool.TrySubmit(task)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, async.ErrQueueFull):
		b.overflowMu.Lock()
		if b.closed {
			b.overflowMu.Unlock()
			b.metrics.RecordAsyncRejected()
			return fmt.Errorf("publish %s: %w", evt.Type, async.ErrPoolClosed)
		}
		b.overflow.Add(1)
		b.overflowMu.Unlock()

		b.log.WithField("event_type", evt.Type).Warn("Event queue full, dispatching outside the pool")
		b.metrics.RecordAsyncOverflow()
		async.SafeGo(detached, b.log, 0, "event dispatch overflow", func(ctx context.Context) error {
			defer b.overflow.Done()
			return b.Publish(ctx, evt)
		})
		return nil
	default:
		b.metrics.RecordAsyncRejected()
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
}

// Close stops the dispatcher after draining queued and overflow events
func (b *Bus) Close(ctx context.Context) error {
	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = max(time.Until(deadline), 0)
	}
	start := time.Now()
	err := b.pool.Shutdown(timeout)

	b.overflowMu.Lock()
	b.closed = true
	b.overflowMu.Unlock()
	if err != nil {
		return err
	}

	drained := make(chan struct{})
	go func() {
		b.overflow.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-time.After(max(timeout-time.Since(start), 0)):
		return fmt.Errorf("event bus close timed out after %v", timeout)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, evt Event) {
	start := time.Now()
	err := async.Run(ctx, b.cfg.HandlerTimeout, s.name, func(ctx context.Context) error {
		return s.handler.Handle(ctx, evt)
	})

	result := "ok"
	if err != nil {
		entry := b.log.WithFields(logrus.Fields{
			"event_id":   evt.ID,
			"event_type": evt.Type,
			"subscriber": s.name,
			"tenant_id":  evt.TenantID.String(),
		})
		var pe *async.PanicError
		if errors.As(err, &pe) {
			result = "panic"
			entry.WithField("panic", fmt.Sprint(pe.Value)).
				WithField("stack", string(pe.Stack)).
				Error("Subscriber panicked")
		} else {
			result = "error"
			entry.WithError(err).Error("Subscriber failed")
		}
	}
	b.metrics.RecordDelivery(string(evt.Type), s.name, result, time.Since(start))
}
