package telemetry_test

import (
	"sync"
	"testing"

	"github.com/rohmanhakim/newscrawl/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestEmitInvokesSubscribers(t *testing.T) {
	bus := telemetry.NewBus()
	var got telemetry.Event
	bus.On("url:visited", func(e telemetry.Event) { got = e })

	bus.Emit("url:visited", map[string]any{"url": "https://a.test/"})

	assert.Equal(t, "url:visited", got.Name)
	assert.Equal(t, "https://a.test/", got.Payload["url"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := telemetry.NewBus()
	calls := 0
	unsub := bus.On("domain:throttled", func(telemetry.Event) { calls++ })

	bus.Emit("domain:throttled", nil)
	unsub()
	bus.Emit("domain:throttled", nil)

	assert.Equal(t, 1, calls)
}

func TestEmitWithNoSubscribersDoesNotPanic(t *testing.T) {
	bus := telemetry.NewBus()
	bus.Emit("nobody:listening", nil)
}

func TestListenerPanicDoesNotAbortEmission(t *testing.T) {
	bus := telemetry.NewBus()
	secondCalled := false

	bus.On("step:error", func(telemetry.Event) { panic("boom") })
	bus.On("step:error", func(telemetry.Event) { secondCalled = true })

	assert.NotPanics(t, func() { bus.Emit("step:error", nil) })
	assert.True(t, secondCalled)
}

func TestConcurrentSubscribeAndEmit(t *testing.T) {
	bus := telemetry.NewBus()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := bus.On("queue:enqueue", func(telemetry.Event) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			bus.Emit("queue:enqueue", map[string]any{"n": 1})
		}()
	}
	wg.Wait()
}

func TestListenerCount(t *testing.T) {
	bus := telemetry.NewBus()
	assert.Equal(t, 0, bus.ListenerCount("sequence:complete"))
	bus.On("sequence:complete", func(telemetry.Event) {})
	bus.On("sequence:complete", func(telemetry.Event) {})
	assert.Equal(t, 2, bus.ListenerCount("sequence:complete"))
}
