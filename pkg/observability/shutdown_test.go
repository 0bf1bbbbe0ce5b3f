package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), nil, time.Second)

	var order []string
	sm.Register("database", func(ctx context.Context) error {
		order = append(order, "database")
		return nil
	})
	sm.Register("event bus", func(ctx context.Context) error {
		order = append(order, "event bus")
		return nil
	})

	assert.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"event bus", "database"}, order)
}

func TestShutdownManager_Errors(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), nil, 0)
	assert.Equal(t, 30*time.Second, sm.timeout)

	ran := false
	sm.Register("first", func(ctx context.Context) error {
		ran = true
		return nil
	})
	sm.Register("broken", func(ctx context.Context) error {
		return errors.New("boom")
	})

	err := sm.Shutdown()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken: boom")
	assert.True(t, ran, "a failing hook must not stop the others")
}

func TestShutdownManager_Server(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.NotFoundHandler())
	srv.Start()
	defer srv.Close()

	sm := NewShutdownManager(quietLogger(), srv.Config, time.Second)
	assert.NoError(t, sm.Shutdown())
}
