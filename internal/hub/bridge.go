package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func randomInstanceID() string {
	return uuid.NewString()
}

// bridgedFrame is what travels over redis between server instances. The
// origin instance is tagged so an instance skips its own publications.
type bridgedFrame struct {
	Instance string `json:"instance"`
	Exclude  string `json:"exclude"`
	Data     []byte `json:"data"`
}

// Bridge mirrors room broadcasts through redis pub/sub so participants
// connected to different server instances still see each other's edits.
type Bridge struct {
	client   *redis.Client
	hub      *Hub
	instance string

	mu   sync.Mutex
	subs map[string]*redis.PubSub

	log *logrus.Entry
}

func newBridge(client *redis.Client, h *Hub) *Bridge {
	return &Bridge{
		client:   client,
		hub:      h,
		instance: randomInstanceID(),
		subs:     make(map[string]*redis.PubSub),
		log:      logrus.WithField("component", "hub-bridge"),
	}
}

func channelKey(roomKey string) string {
	return "room:" + roomKey
}

func (b *Bridge) publish(ctx context.Context, roomKey, excludeID string, data []byte) {
	frame, err := json.Marshal(bridgedFrame{
		Instance: b.instance,
		Exclude:  excludeID,
		Data:     data,
	})
	if err != nil {
		return
	}
	if err := b.client.Publish(ctx, channelKey(roomKey), frame).Err(); err != nil {
		b.log.Warnf("publish to %s failed: %v", roomKey, err)
	}
}

func (b *Bridge) subscribe(roomKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[roomKey]; exists {
		return
	}

	pubsub := b.client.Subscribe(context.Background(), channelKey(roomKey))
	b.subs[roomKey] = pubsub

	go func() {
		for msg := range pubsub.Channel() {
			var frame bridgedFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.log.Warnf("dropping malformed bridged frame: %v", err)
				continue
			}
			if frame.Instance == b.instance {
				continue
			}
			b.hub.deliver(roomKey, frame.Exclude, frame.Data)
		}
	}()
}

func (b *Bridge) unsubscribe(roomKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pubsub, exists := b.subs[roomKey]; exists {
		pubsub.Close()
		delete(b.subs, roomKey)
	}
}
