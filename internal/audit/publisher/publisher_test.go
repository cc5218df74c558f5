package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landledger/internal/audit"
	"landledger/internal/audit/store/memory"
)

func TestPublisherSyncMode(t *testing.T) {
	store := memory.NewStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Action:     audit.ActionPropertyRegistered,
		Actor:      "registrar1",
		PropertyID: "PROP-001",
	})
	require.NoError(t, err)

	events, err := store.ListByProperty(context.Background(), "PROP-001")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionPropertyRegistered, events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category, "category derived from action")
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisherAsyncDrainsOnClose(t *testing.T) {
	store := memory.NewStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Action:     audit.ActionOwnershipTransferred,
			PropertyID: "PROP-001",
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByProperty(context.Background(), "PROP-001")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisherBufferFullDropsEvent(t *testing.T) {
	store := memory.NewStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{
				Action:     audit.ActionPropertyRegistered,
				PropertyID: "PROP-001",
			})
		}()
	}
	wg.Wait()
	// The publisher must stay usable after drops.
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionConfigReloaded}))
}

func TestPublisherFansOutToSinks(t *testing.T) {
	store := memory.NewStore()
	sink := &captureSink{}
	pub := NewPublisher(store, WithSink(sink))
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Action:     audit.ActionPropertyDeleted,
		PropertyID: "PROP-007",
	}))

	require.Len(t, sink.events, 1)
	assert.Equal(t, "PROP-007", sink.events[0].PropertyID)
}

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
	closed bool
}

func (c *captureSink) Append(_ context.Context, event audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func TestPublisherRecentTrail(t *testing.T) {
	store := memory.NewStore()
	pub := NewPublisher(store)
	defer pub.Close()

	base := time.Now()
	for i, action := range []audit.Action{
		audit.ActionPropertyRegistered,
		audit.ActionOwnershipTransferred,
		audit.ActionDocumentLinked,
	} {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			Action:     action,
			PropertyID: "PROP-001",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := store.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionDocumentLinked, events[0].Action, "newest first")
}
