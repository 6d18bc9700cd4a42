// Package sse fans relation change notifications out to live query streams.
package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/staybook/hotel-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

// Change says that an owner's rows in a collection were written. Streams
// re-query on receipt, so only the latest pending change matters.
type Change struct {
	Collection string `json:"collection"`
	OwnerID    string `json:"ownerId"`
}

type Client struct {
	Collection string
	OwnerID    string
	Changes    chan Change
	Done       chan struct{}

	once sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.Done) })
}

// openFunc subscribes to channel and returns once Redis has confirmed the
// subscription. Messages arrive on the returned channel until closeFn runs.
type openFunc func(ctx context.Context, channel string) (msgs <-chan *redis.Message, closeFn func() error, err error)

type topic struct {
	clients map[*Client]struct{}
	cancel  context.CancelFunc

	// ready is closed once the Redis subscription is confirmed or has failed.
	ready chan struct{}
	err   error
}

// Broker keeps one Redis subscription per (collection, owner) with at least one
// stream attached.
type Broker struct {
	open   openFunc
	redis  *redisclient.Client
	topics map[string]*topic
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		redis:  redisClient,
		topics: make(map[string]*topic),
		ctx:    ctx,
		cancel: cancel,
	}
	b.open = b.openRedis
	return b
}

func (b *Broker) openRedis(ctx context.Context, channel string) (<-chan *redis.Message, func() error, error) {
	pubsub := b.redis.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}
	return pubsub.Channel(), pubsub.Close, nil
}

// Subscribe attaches a stream to the owner's changes in collection. It returns
// only after the Redis subscription is live, so a snapshot queried afterwards
// cannot miss a change published in between.
func (b *Broker) Subscribe(ctx context.Context, collection, ownerID string) (*Client, error) {
	client := &Client{
		Collection: collection,
		OwnerID:    ownerID,
		Changes:    make(chan Change, 1),
		Done:       make(chan struct{}),
	}
	channel := redisclient.RelationChannel(collection, ownerID)

	b.mu.Lock()
	t, ok := b.topics[channel]
	if !ok {
		topicCtx, cancel := context.WithCancel(b.ctx)
		t = &topic{clients: make(map[*Client]struct{}), cancel: cancel, ready: make(chan struct{})}
		b.topics[channel] = t
		go b.listen(topicCtx, channel, t)
	}
	t.clients[client] = struct{}{}
	clientCount := len(t.clients)
	b.mu.Unlock()

	select {
	case <-t.ready:
	case <-ctx.Done():
		b.Unsubscribe(client)
		return nil, ctx.Err()
	}
	if t.err != nil {
		b.Unsubscribe(client)
		return nil, t.err
	}

	log.Info().
		Str("collection", collection).
		Str("ownerId", ownerID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client, nil
}

func (b *Broker) Unsubscribe(client *Client) {
	channel := redisclient.RelationChannel(client.Collection, client.OwnerID)

	b.mu.Lock()
	defer b.mu.Unlock()

	client.close()

	t, ok := b.topics[channel]
	if !ok {
		return
	}
	if _, ok := t.clients[client]; !ok {
		return
	}
	delete(t.clients, client)

	if len(t.clients) == 0 {
		t.cancel()
		delete(b.topics, channel)
	}

	log.Info().
		Str("collection", client.Collection).
		Str("ownerId", client.OwnerID).
		Int("clientCount", len(t.clients)).
		Msg("sse client unsubscribed")
}

// Publish announces a change to every replica's streams for the owner.
func (b *Broker) Publish(ctx context.Context, collection, ownerID string) error {
	data, err := json.Marshal(Change{Collection: collection, OwnerID: ownerID})
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.RelationChannel(collection, ownerID), data).Err()
}

// listen owns the topic's Redis subscription until ctx is cancelled.
func (b *Broker) listen(ctx context.Context, channel string, t *topic) {
	msgs, closeFn, err := b.open(ctx, channel)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("redis subscribe failed")
		b.mu.Lock()
		if b.topics[channel] == t {
			delete(b.topics, channel)
		}
		b.mu.Unlock()
		t.err = err
		close(t.ready)
		return
	}
	defer closeFn()
	close(t.ready)

	log.Debug().Str("channel", channel).Msg("redis pubsub subscribed")

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("failed to unmarshal change")
				continue
			}

			b.broadcast(channel, change)
		}
	}
}

func (b *Broker) broadcast(channel string, change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[channel]
	if !ok {
		return
	}
	for client := range t.clients {
		select {
		case client.Changes <- change:
		default:
			// a change is already pending; the stream re-queries once for both
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.topics {
		for client := range t.clients {
			client.close()
		}
	}
	b.topics = make(map[string]*topic)
}

func (b *Broker) ClientCount(collection, ownerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[redisclient.RelationChannel(collection, ownerID)]; ok {
		return len(t.clients)
	}
	return 0
}

func (b *Broker) TotalClients() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, t := range b.topics {
		total += len(t.clients)
	}
	return total
}
