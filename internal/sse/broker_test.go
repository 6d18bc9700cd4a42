package sse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/staybook/hotel-server-go/internal/redis"
)

// fakePubSub stands in for Redis subscriptions. Each channel gets a message
// feed the test can write to; opens block until release is closed.
type fakePubSub struct {
	mu      sync.Mutex
	feeds   map[string]chan *redis.Message
	opened  int
	closed  int
	err     error
	release chan struct{}
}

func newFakePubSub() *fakePubSub {
	release := make(chan struct{})
	close(release)
	return &fakePubSub{feeds: make(map[string]chan *redis.Message), release: release}
}

func (f *fakePubSub) open(ctx context.Context, channel string) (<-chan *redis.Message, func() error, error) {
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	f.opened++
	feed := make(chan *redis.Message, 4)
	f.feeds[channel] = feed
	return feed, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closed++
		return nil
	}, nil
}

func (f *fakePubSub) counts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

func (f *fakePubSub) send(channel, payload string) {
	f.mu.Lock()
	feed := f.feeds[channel]
	f.mu.Unlock()
	feed <- &redis.Message{Channel: channel, Payload: payload}
}

func offlineBroker(t *testing.T) (*Broker, *fakePubSub) {
	t.Helper()
	client := &redisclient.Client{Client: redis.NewClient(&redis.Options{Addr: "localhost:9999"})}
	b := NewBroker(client)
	fake := newFakePubSub()
	b.open = fake.open
	t.Cleanup(func() {
		b.Close()
		client.Close()
	})
	return b, fake
}

func subscribe(t *testing.T, b *Broker, collection, ownerID string) *Client {
	t.Helper()
	c, err := b.Subscribe(context.Background(), collection, ownerID)
	require.NoError(t, err)
	return c
}

func TestBroker_Bookkeeping(t *testing.T) {
	b, fake := offlineBroker(t)

	c1 := subscribe(t, b, "favorites", "u1")
	c2 := subscribe(t, b, "favorites", "u1")
	c3 := subscribe(t, b, "reservations", "u1")

	assert.Equal(t, 2, b.ClientCount("favorites", "u1"))
	assert.Equal(t, 1, b.ClientCount("reservations", "u1"))
	assert.Equal(t, 3, b.TotalClients())

	opened, _ := fake.counts()
	assert.Equal(t, 2, opened, "one subscription per topic")

	b.Unsubscribe(c1)
	b.Unsubscribe(c1)
	assert.Equal(t, 1, b.ClientCount("favorites", "u1"))

	select {
	case <-c1.Done:
	default:
		t.Fatal("unsubscribed client should be done")
	}

	b.Close()
	assert.Equal(t, 0, b.TotalClients())
	for _, c := range []*Client{c2, c3} {
		select {
		case <-c.Done:
		default:
			t.Fatal("client should be done after Close")
		}
	}
}

func TestBroker_LastUnsubscribeClosesSubscription(t *testing.T) {
	b, fake := offlineBroker(t)

	c := subscribe(t, b, "favorites", "u1")
	b.Unsubscribe(c)

	assert.Eventually(t, func() bool {
		_, closed := fake.counts()
		return closed == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBroker_SubscribeWaitsForConfirmation(t *testing.T) {
	b, fake := offlineBroker(t)
	fake.release = make(chan struct{})

	done := make(chan *Client, 1)
	go func() {
		c, err := b.Subscribe(context.Background(), "favorites", "u1")
		assert.NoError(t, err)
		done <- c
	}()

	select {
	case <-done:
		t.Fatal("Subscribe returned before the subscription was confirmed")
	case <-time.After(50 * time.Millisecond):
	}

	close(fake.release)

	var c *Client
	select {
	case c = <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not return after confirmation")
	}

	// Anything published once Subscribe returned reaches the client.
	fake.send("relations:favorites:u1", `{"collection":"favorites","ownerId":"u1"}`)
	select {
	case change := <-c.Changes:
		assert.Equal(t, "u1", change.OwnerID)
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}
}

func TestBroker_SubscribeFailure(t *testing.T) {
	b, fake := offlineBroker(t)
	fake.err = errors.New("connection refused")

	c, err := b.Subscribe(context.Background(), "favorites", "u1")

	assert.Nil(t, c)
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, 0, b.TotalClients())
}

func TestBroker_SubscribeCancelled(t *testing.T) {
	b, fake := offlineBroker(t)
	fake.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := b.Subscribe(ctx, "favorites", "u1")

	assert.Nil(t, c)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.TotalClients())
}

func TestBroker_BroadcastCoalesces(t *testing.T) {
	b, _ := offlineBroker(t)
	c := subscribe(t, b, "favorites", "u1")
	other := subscribe(t, b, "favorites", "u2")

	change := Change{Collection: "favorites", OwnerID: "u1"}
	b.broadcast("relations:favorites:u1", change)
	b.broadcast("relations:favorites:u1", change)

	assert.Len(t, c.Changes, 1)
	assert.Equal(t, change, <-c.Changes)
	assert.Len(t, other.Changes, 0)
}

func testRedisClient(t *testing.T) *redisclient.Client {
	t.Helper()
	opts, err := redis.ParseURL("redis://localhost:6379/15")
	require.NoError(t, err)
	client := &redisclient.Client{Client: redis.NewClient(opts)}
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available for testing")
	}
	return client
}

func TestBroker_RedisFanOut(t *testing.T) {
	b := NewBroker(testRedisClient(t))
	defer b.Close()

	c := subscribe(t, b, "favorites", "u1")

	assert.Eventually(t, func() bool {
		if err := b.Publish(context.Background(), "favorites", "u1"); err != nil {
			return false
		}
		select {
		case change := <-c.Changes:
			return change.OwnerID == "u1"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBroker_RedisPublishRightAfterSubscribe(t *testing.T) {
	b := NewBroker(testRedisClient(t))
	defer b.Close()

	c := subscribe(t, b, "favorites", "u-immediate")
	require.NoError(t, b.Publish(context.Background(), "favorites", "u-immediate"))

	select {
	case change := <-c.Changes:
		assert.Equal(t, "u-immediate", change.OwnerID)
	case <-time.After(2 * time.Second):
		t.Fatal("change published right after Subscribe was lost")
	}
}
