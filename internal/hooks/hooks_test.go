package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/depot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestEmitRunsHandler(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventPluginAdded, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventPluginAdded, p.Event)
		assert.False(t, p.Time.IsZero())
		return nil
	})

	m.Emit(context.Background(), EventPluginAdded, nil)
	assert.True(t, called)
}

func TestEmitHandlerOrder(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventDiscoveryFinished, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventDiscoveryFinished, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventDiscoveryFinished, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEmitCarriesData(t *testing.T) {
	m := testManager()

	var gotData map[string]any
	m.On(EventPluginLoadFailed, "test", func(_ context.Context, p Payload) error {
		gotData = p.Data
		return nil
	})

	m.Emit(context.Background(), EventPluginLoadFailed, map[string]any{
		"kind":      "importer",
		"candidate": "/srv/plugins/importers/yum",
	})

	assert.Equal(t, "importer", gotData["kind"])
	assert.Equal(t, "/srv/plugins/importers/yum", gotData["candidate"])
}

func TestEmitContinuesAfterHandlerError(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventServerStart, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventServerStart, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	m.Emit(context.Background(), EventServerStart, nil)
	assert.True(t, secondCalled)
}

func TestEmitWithoutHandlers(t *testing.T) {
	m := testManager()
	m.Emit(context.Background(), EventServerStop, nil)
}

func TestEmitSequence(t *testing.T) {
	m := testManager()

	var seqs []int64
	m.On(EventPluginAdded, "seq", func(_ context.Context, p Payload) error {
		seqs = append(seqs, p.Seq)
		return nil
	})
	m.On(EventPluginRemoved, "seq", func(_ context.Context, p Payload) error {
		seqs = append(seqs, p.Seq)
		return nil
	})

	m.Emit(context.Background(), EventPluginAdded, nil)
	m.Emit(context.Background(), EventPluginRemoved, nil)
	m.Emit(context.Background(), EventPluginAdded, nil)
	assert.Equal(t, []int64{1, 2, 3}, seqs)
}

func TestOffRemovesHandler(t *testing.T) {
	m := testManager()

	var callCount int
	m.On(EventPluginRemoved, "removable", func(_ context.Context, _ Payload) error {
		callCount++
		return nil
	})

	m.Emit(context.Background(), EventPluginRemoved, nil)
	assert.Equal(t, 1, callCount)

	m.Off(EventPluginRemoved, "removable")
	m.Emit(context.Background(), EventPluginRemoved, nil)
	assert.Equal(t, 1, callCount)
}

func TestOffKeepsOtherNames(t *testing.T) {
	m := testManager()

	var keepCalled int
	m.On(EventPluginSkipped, "remove-me", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventPluginSkipped, "keep-me", func(_ context.Context, _ Payload) error {
		keepCalled++
		return nil
	})

	m.Off(EventPluginSkipped, "remove-me")
	m.Emit(context.Background(), EventPluginSkipped, nil)
	assert.Equal(t, 1, keepCalled)
	assert.Equal(t, 1, m.Count(EventPluginSkipped))
}

func TestSubscribeReceivesEvents(t *testing.T) {
	m := testManager()

	ch, cancel := m.Subscribe(4)
	defer cancel()
	assert.Equal(t, 1, m.Subscribers())

	m.Emit(context.Background(), EventDiscoveryStarted, map[string]any{"kind": "distributor"})
	m.Emit(context.Background(), EventDiscoveryFinished, nil)

	select {
	case p := <-ch:
		assert.Equal(t, EventDiscoveryStarted, p.Event)
		assert.Equal(t, "distributor", p.Data["kind"])
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	p := <-ch
	assert.Equal(t, EventDiscoveryFinished, p.Event)
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	m := testManager()

	ch, cancel := m.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Emit(context.Background(), EventPluginAdded, nil)
		m.Emit(context.Background(), EventPluginAdded, nil)
		m.Emit(context.Background(), EventPluginAdded, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a full subscriber")
	}

	p := <-ch
	assert.Equal(t, int64(1), p.Seq)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered event %d", extra.Seq)
	default:
	}
}

func TestSubscribeCancel(t *testing.T) {
	m := testManager()

	ch, cancel := m.Subscribe(0)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, m.Subscribers())

	m.Emit(context.Background(), EventServerStop, nil)
}

func TestConcurrentEmitAndSubscribe(t *testing.T) {
	m := testManager()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Emit(context.Background(), EventPluginAdded, nil)
			}
		}()
		go func() {
			defer wg.Done()
			_, cancel := m.Subscribe(4)
			cancel()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Subscribers())
}

func TestCount(t *testing.T) {
	m := testManager()

	assert.Equal(t, 0, m.Count(EventServerStart))

	m.On(EventServerStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 1, m.Count(EventServerStart))

	m.On(EventServerStart, "h2", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 2, m.Count(EventServerStart))
}

func TestEventsSorted(t *testing.T) {
	m := testManager()

	m.On(EventServerStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventPluginAdded, "h2", func(_ context.Context, _ Payload) error { return nil })

	m.On(EventPluginRemoved, "h3", func(_ context.Context, _ Payload) error { return nil })
	m.Off(EventPluginRemoved, "h3")

	assert.Equal(t, []string{EventPluginAdded, EventServerStart}, m.Events())
}

func TestAllEventsListed(t *testing.T) {
	require.Len(t, AllEvents, 8)
	assert.Equal(t, EventPluginAdded, AllEvents[0])
	assert.Equal(t, EventServerStop, AllEvents[len(AllEvents)-1])
}

func TestOffDuringEmit(t *testing.T) {
	m := testManager()

	var calls []string
	m.On(EventPluginAdded, "first", func(_ context.Context, _ Payload) error {
		calls = append(calls, "first")
		m.Off(EventPluginAdded, "second")
		return nil
	})
	m.On(EventPluginAdded, "second", func(_ context.Context, _ Payload) error {
		calls = append(calls, "second")
		return nil
	})

	m.Emit(context.Background(), EventPluginAdded, nil)
	m.Emit(context.Background(), EventPluginAdded, nil)
	assert.Equal(t, []string{"first", "second", "first"}, calls)
}
