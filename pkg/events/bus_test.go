package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/estateops/pkg/tenant"
)

func newTestBus(t *testing.T) (*Bus, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	bus := NewBus(Config{Workers: 2, QueueSize: 8}, logger, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Close(ctx)
	})
	return bus, hook
}

func testEvent(t *testing.T, typ Type) Event {
	t.Helper()
	scope, err := tenant.FromID(uuid.New())
	require.NoError(t, err)
	return New(typ, scope, "task-1", "user-1", map[string]interface{}{"status": "open"})
}

func TestBus_FailingSubscriberIsIsolated(t *testing.T) {
	bus, hook := newTestBus(t)

	var delivered atomic.Int32
	bus.SubscribeFunc(TaskCreated, "broken", func(ctx context.Context, evt Event) error {
		return errors.New("automation exploded")
	})
	bus.SubscribeFunc(TaskCreated, "panicky", func(ctx context.Context, evt Event) error {
		panic("nil map")
	})
	bus.SubscribeFunc(TaskCreated, "activity", func(ctx context.Context, evt Event) error {
		delivered.Add(1)
		return nil
	})

	err := bus.Publish(context.Background(), testEvent(t, TaskCreated))
	require.NoError(t, err)
	assert.Equal(t, int32(1), delivered.Load())

	var failures int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			failures++
		}
	}
	assert.Equal(t, 2, failures)
}

func TestBus_SubscribeIsIdempotent(t *testing.T) {
	bus, hook := newTestBus(t)

	var calls atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, evt Event) error {
		calls.Add(1)
		return nil
	})

	assert.True(t, bus.Subscribe(TaskAssigned, "notify", handler))
	assert.False(t, bus.Subscribe(TaskAssigned, "notify", handler))
	assert.Equal(t, []string{"notify"}, bus.Subscribers(TaskAssigned))

	require.NoError(t, bus.Publish(context.Background(), testEvent(t, TaskAssigned)))
	assert.Equal(t, int32(1), calls.Load())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestBus_SameNameDifferentTypes(t *testing.T) {
	bus, _ := newTestBus(t)
	h := HandlerFunc(func(ctx context.Context, evt Event) error { return nil })

	assert.True(t, bus.Subscribe(TaskCreated, "activity", h))
	assert.True(t, bus.Subscribe(TaskAssigned, "activity", h))
}

func TestBus_IdentityIsTheName(t *testing.T) {
	bus, _ := newTestBus(t)

	var calls atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, evt Event) error {
		calls.Add(1)
		return nil
	})

	assert.True(t, bus.Subscribe(TaskAssigned, "notify", handler))
	assert.True(t, bus.Subscribe(TaskAssigned, "notify-copy", handler))

	require.NoError(t, bus.Publish(context.Background(), testEvent(t, TaskAssigned)))
	assert.Equal(t, int32(2), calls.Load())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus, _ := newTestBus(t)

	var calls atomic.Int32
	bus.SubscribeFunc(ContactCreated, "a", func(ctx context.Context, evt Event) error {
		calls.Add(1)
		return nil
	})
	bus.SubscribeFunc(ContactCreated, "b", func(ctx context.Context, evt Event) error {
		calls.Add(10)
		return nil
	})

	assert.True(t, bus.Unsubscribe(ContactCreated, "b"))
	assert.False(t, bus.Unsubscribe(ContactCreated, "b"))
	assert.False(t, bus.Unsubscribe(ContactDeleted, "a"))

	require.NoError(t, bus.Publish(context.Background(), testEvent(t, ContactCreated)))
	assert.Equal(t, int32(1), calls.Load())

	assert.True(t, bus.Unsubscribe(ContactCreated, "a"))
	assert.Empty(t, bus.Subscribers(ContactCreated))
}

func TestBus_SubscribersRunConcurrently(t *testing.T) {
	bus, _ := newTestBus(t)

	// each subscriber waits for the other; sequential dispatch would deadlock
	var wg sync.WaitGroup
	wg.Add(2)
	for _, name := range []string{"left", "right"} {
		bus.SubscribeFunc(PropertyUpdated, name, func(ctx context.Context, evt Event) error {
			wg.Done()
			wg.Wait()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), testEvent(t, PropertyUpdated))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not complete; subscribers were not run concurrently")
	}
}

func TestBus_MutationDuringPublish(t *testing.T) {
	bus, _ := newTestBus(t)

	var calls atomic.Int32
	bus.SubscribeFunc(TaskCreated, "mutator", func(ctx context.Context, evt Event) error {
		calls.Add(1)
		bus.SubscribeFunc(TaskCreated, fmt.Sprintf("late-%s", evt.ID), func(ctx context.Context, evt Event) error {
			return nil
		})
		bus.Unsubscribe(TaskCreated, "mutator")
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent(t, TaskCreated)))
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, bus.Subscribers(TaskCreated), 1)
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus, _ := newTestBus(t)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			bus.SubscribeFunc(TaskCreated, fmt.Sprintf("sub-%d", i), func(ctx context.Context, evt Event) error {
				return nil
			})
		}(i)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), testEvent(t, TaskCreated))
		}()
	}
	wg.Wait()
	assert.Len(t, bus.Subscribers(TaskCreated), 50)
}

func TestBus_PublishRejectsInvalidEvent(t *testing.T) {
	bus, _ := newTestBus(t)

	err := bus.Publish(context.Background(), Event{Type: TaskCreated, ResourceID: "x"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	evt := testEvent(t, TaskCreated)
	evt.ResourceID = ""
	assert.ErrorIs(t, bus.PublishAsync(context.Background(), evt), ErrInvalidEvent)
}

func TestBus_PublishAsync(t *testing.T) {
	bus, _ := newTestBus(t)

	received := make(chan Event, 1)
	bus.SubscribeFunc(TaskStatusChanged, "recorder", func(ctx context.Context, evt Event) error {
		assert.NoError(t, ctx.Err(), "subscriber context must survive the request")
		received <- evt
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	evt := testEvent(t, TaskStatusChanged)
	require.NoError(t, bus.PublishAsync(ctx, evt))
	cancel()

	select {
	case got := <-received:
		assert.Equal(t, evt.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBus_PublishAsyncAfterClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := NewBus(Config{}, logger, nil)
	require.NoError(t, bus.Close(context.Background()))

	err := bus.PublishAsync(context.Background(), testEvent(t, TaskCreated))
	assert.Error(t, err)
}

func TestBus_PublishAsyncDoesNotBlockWhenQueueIsFull(t *testing.T) {
	logger, hook := test.NewNullLogger()
	bus := NewBus(Config{Workers: 1, QueueSize: 1, HandlerTimeout: 5 * time.Second}, logger, nil)

	release := make(chan struct{})
	var delivered atomic.Int32
	bus.SubscribeFunc(TaskCreated, "slow", func(ctx context.Context, evt Event) error {
		<-release
		delivered.Add(1)
		return nil
	})

	// one event occupies the worker, one fills the queue, the rest overflow
	for i := 0; i < 4; i++ {
		start := time.Now()
		require.NoError(t, bus.PublishAsync(context.Background(), testEvent(t, TaskCreated)))
		assert.Less(t, time.Since(start), 100*time.Millisecond, "publish %d waited on subscribers", i)
	}

	close(release)
	assert.Eventually(t, func() bool { return delivered.Load() == 4 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))

	var overflowed bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Event queue full, dispatching outside the pool" {
			overflowed = true
		}
	}
	assert.True(t, overflowed)
}

func TestBus_CloseWaitsForOverflow(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := NewBus(Config{Workers: 1, QueueSize: 1}, logger, nil)

	release := make(chan struct{})
	var delivered atomic.Int32
	bus.SubscribeFunc(TaskCreated, "slow", func(ctx context.Context, evt Event) error {
		<-release
		delivered.Add(1)
		return nil
	})
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.PublishAsync(context.Background(), testEvent(t, TaskCreated)))
	}

	time.AfterFunc(50*time.Millisecond, func() { close(release) })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))
	assert.Equal(t, int32(3), delivered.Load())
}

func TestBus_CloseWithExpiredContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := NewBus(Config{Workers: 1, QueueSize: 1}, logger, nil)

	release := make(chan struct{})
	defer close(release)
	bus.SubscribeFunc(TaskCreated, "stuck", func(ctx context.Context, evt Event) error {
		<-release
		return nil
	})
	require.NoError(t, bus.PublishAsync(context.Background(), testEvent(t, TaskCreated)))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- bus.Close(ctx) }()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not honour the expired deadline")
	}

	go func() { done <- bus.Close(ctx) }()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("second Close blocked")
	}
}

func TestBus_HandlerTimeout(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := NewBus(Config{HandlerTimeout: 20 * time.Millisecond}, logger, nil)
	defer bus.Close(context.Background())

	var sawDeadline atomic.Bool
	bus.SubscribeFunc(TaskCreated, "slow", func(ctx context.Context, evt Event) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent(t, TaskCreated)))
	assert.True(t, sawDeadline.Load())
}

func TestBus_SubscribeAll(t *testing.T) {
	bus, _ := newTestBus(t)
	h := HandlerFunc(func(ctx context.Context, evt Event) error { return nil })

	bus.SubscribeAll("audit", h)
	for _, typ := range Catalogue {
		assert.Equal(t, []string{"audit"}, bus.Subscribers(typ))
	}

	bus.SubscribeAll("tasks", h, TaskCreated, TaskAssigned)
	assert.Equal(t, []string{"audit", "tasks"}, bus.Subscribers(TaskCreated))
	assert.Equal(t, []string{"audit"}, bus.Subscribers(ContactCreated))
}
