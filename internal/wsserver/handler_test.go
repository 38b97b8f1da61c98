package wsserver

import (
	"sync"
	"testing"

	"artflow-sync/internal/domain"
	"artflow-sync/internal/hub"
	"artflow-sync/internal/protocol"

	"github.com/stretchr/testify/assert"
)

type stubConn struct {
	id   string
	room string

	mu       sync.Mutex
	received [][]byte
}

func (c *stubConn) ID() string   { return c.id }
func (c *stubConn) Room() string { return c.room }

func (c *stubConn) Send(data []byte) error {
	c.mu.Lock()
	c.received = append(c.received, data)
	c.mu.Unlock()
	return nil
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.received...)
}

func setup(t *testing.T) (*Handler, *stubConn, *stubConn) {
	t.Helper()
	h := hub.New()
	sender := &stubConn{id: "u1", room: "canvas/p1/f1"}
	peer := &stubConn{id: "u2", room: "canvas/p1/f1"}
	h.Register(sender)
	h.Register(peer)
	return NewHandler(h), sender, peer
}

func encodeOp(t *testing.T, userID string, ts int64) []byte {
	t.Helper()
	raw, err := protocol.NewCodec().EncodeOperation(domain.Operation{
		Kind:         string(protocol.TypeDraw),
		OriginUserID: userID,
		Timestamp:    ts,
	})
	assert.NoError(t, err)
	return raw
}

func TestInitAnsweredWithConnected(t *testing.T) {
	handler, sender, peer := setup(t)

	init, err := protocol.NewCodec().EncodeInit("u1", "p1", "f1")
	assert.NoError(t, err)
	handler.Handle(sender, init)

	frames := sender.frames()
	if assert.Len(t, frames, 1) {
		msg, err := protocol.NewCodec().Decode(frames[0])
		assert.NoError(t, err)
		assert.Equal(t, protocol.TypeConnected, msg.Type)
	}
	assert.Empty(t, peer.frames(), "handshake is not relayed")
}

func TestOperationRelayedVerbatimToPeers(t *testing.T) {
	handler, sender, peer := setup(t)

	raw := encodeOp(t, "u1", 100)
	handler.Handle(sender, raw)

	frames := peer.frames()
	if assert.Len(t, frames, 1) {
		assert.Equal(t, raw, frames[0], "relay must not re-encode the frame")
	}
	assert.Empty(t, sender.frames(), "sender does not get its operation back")
}

func TestMalformedFrameDroppedSilently(t *testing.T) {
	handler, sender, peer := setup(t)

	handler.Handle(sender, []byte(`{{{garbage`))
	handler.Handle(sender, []byte(`{"type":"teleport","data":{}}`))
	handler.Handle(sender, []byte(`{"type":"draw","data":{"timestamp":0,"userId":""}}`))

	assert.Empty(t, peer.frames())
	assert.Empty(t, sender.frames())
}

func TestConnectedFromClientIsIgnored(t *testing.T) {
	handler, sender, peer := setup(t)

	handler.Handle(sender, protocol.NewCodec().EncodeConnected())
	assert.Empty(t, peer.frames())
	assert.Empty(t, sender.frames())
}

func TestRoomKeyRoundTrip(t *testing.T) {
	key := RoomKey(domain.KindCanvas, "p1", "f1")
	assert.Equal(t, "canvas/p1/f1", key)

	kind, artifactID := SplitRoom(key)
	assert.Equal(t, domain.KindCanvas, kind)
	assert.Equal(t, "p1/f1", artifactID)
}
