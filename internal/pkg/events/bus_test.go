package events

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(newTestLogger(), 8)

	var mu sync.Mutex
	var got []string
	var wg sync.WaitGroup
	wg.Add(2)

	for i := 0; i < 2; i++ {
		bus.Subscribe(func(event OrderCreated) {
			mu.Lock()
			got = append(got, event.OrderNumber)
			mu.Unlock()
			wg.Done()
		})
	}

	bus.Start()
	bus.Publish(OrderCreated{OrderNumber: "A1B2C3D4", TotalAmount: 200000})

	waitDone(t, &wg)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A1B2C3D4", "A1B2C3D4"}, got)
}

func TestBusPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(newTestLogger(), 8)

	var wg sync.WaitGroup
	wg.Add(1)

	bus.Subscribe(func(event OrderCreated) {
		panic("boom")
	})
	bus.Subscribe(func(event OrderCreated) {
		wg.Done()
	})

	bus.Start()
	bus.Publish(OrderCreated{OrderNumber: "E5F6G7H8"})

	waitDone(t, &wg)
	bus.Close()
}

func TestBusPublishNeverBlocksWhenBufferFull(t *testing.T) {
	// No Start call, so nothing drains the buffer.
	bus := NewBus(newTestLogger(), 1)

	done := make(chan struct{})
	go func() {
		bus.Publish(OrderCreated{OrderNumber: "X1"})
		bus.Publish(OrderCreated{OrderNumber: "X2"})
		bus.Publish(OrderCreated{OrderNumber: "X3"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on full buffer")
	}
}

func waitDone(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "timed out waiting for event delivery")
	}
}
