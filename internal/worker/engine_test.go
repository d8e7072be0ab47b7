package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/messaging"
)

// replayClient hands its messages to the handler once, then blocks until cancelled.
type replayClient struct {
	messages []messaging.Message

	mu   sync.Mutex
	errs []error
	once sync.Once
}

func (c *replayClient) Publish(context.Context, []byte, []byte, ...messaging.Header) error {
	return nil
}

func (c *replayClient) Consume(ctx context.Context, handler messaging.Handler) error {
	c.once.Do(func() {
		for _, msg := range c.messages {
			err := handler(ctx, msg)
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
		}
	})
	<-ctx.Done()
	return ctx.Err()
}

func (c *replayClient) Topic() string { return "orders.lifecycle" }

func (c *replayClient) results() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

func enabledConfig() config.Config {
	return config.Config{Messaging: config.Messaging{
		Enabled: true,
		Workers: config.Worker{Enabled: true, Concurrency: 1},
	}}
}

func TestEngine_DispatchesByTopic(t *testing.T) {
	boom := errors.New("boom")
	var mu sync.Mutex
	var seen []string
	client := &replayClient{messages: []messaging.Message{
		{Topic: "orders.lifecycle", Key: []byte("order-1")},
		{Topic: "payments", Key: []byte("order-2")},
		{Topic: "orders.lifecycle", Key: []byte("order-3")},
	}}
	engine := NewEngine(Params{
		Client: client,
		Logger: zap.NewNop(),
		Config: enabledConfig(),
		Registrations: []HandlerRegistration{
			{Topic: "orders.lifecycle", Handler: func(_ context.Context, msg messaging.Message) error {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, string(msg.Key))
				if string(msg.Key) == "order-3" {
					return boom
				}
				return nil
			}},
			{Topic: "", Handler: func(context.Context, messaging.Message) error { return nil }},
		},
	})

	require.NoError(t, engine.start(context.Background()))
	require.Eventually(t, func() bool { return len(client.results()) == 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, engine.stop(context.Background()))

	results := client.results()
	require.Len(t, results, 3)
	assert.NoError(t, results[0])
	assert.NoError(t, results[1])
	assert.ErrorIs(t, results[2], boom)
	assert.Equal(t, []string{"order-1", "order-3"}, seen)
}

func TestEngine_FansOutToEveryHandler(t *testing.T) {
	boom := errors.New("cache down")
	var calls []string
	engine := NewEngine(Params{
		Client: &replayClient{},
		Logger: zap.NewNop(),
		Config: enabledConfig(),
		Registrations: []HandlerRegistration{
			{Name: "evict", Topic: "orders.lifecycle", Handler: func(context.Context, messaging.Message) error {
				calls = append(calls, "evict")
				return boom
			}},
			{Name: "audit", Topic: "orders.lifecycle", Handler: func(context.Context, messaging.Message) error {
				calls = append(calls, "audit")
				return nil
			}},
		},
	})

	err := engine.dispatch(context.Background(), 0, messaging.Message{Topic: "orders.lifecycle"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"evict", "audit"}, calls)

	assert.NoError(t, engine.dispatch(context.Background(), 0, messaging.Message{Topic: "payments"}))
}

func TestEngine_DisabledDoesNotConsume(t *testing.T) {
	client := &replayClient{messages: []messaging.Message{{Topic: "orders.lifecycle"}}}
	cfg := enabledConfig()
	cfg.Messaging.Workers.Enabled = false
	engine := NewEngine(Params{
		Client: client,
		Logger: zap.NewNop(),
		Config: cfg,
		Registrations: []HandlerRegistration{
			{Topic: "orders.lifecycle", Handler: func(context.Context, messaging.Message) error { return nil }},
		},
	})

	require.NoError(t, engine.start(context.Background()))
	require.NoError(t, engine.stop(context.Background()))
	assert.Empty(t, client.results())
}
