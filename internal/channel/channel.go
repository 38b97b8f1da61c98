package channel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"artflow-sync/internal/domain"
	"artflow-sync/internal/protocol"

	"github.com/sirupsen/logrus"
)

// RemoteHandler consumes operations produced by other participants. A
// channel has at most one; registering again replaces the previous one.
type RemoteHandler func(domain.Operation)

// Options tune a channel. WSRoot is the transport root the endpoint path
// is appended to.
type Options struct {
	WSRoot           string
	MaxAttempts      int
	ReconnectBackoff time.Duration
	HandshakeTimeout time.Duration
}

// Channel is one session on one artifact: the convergence and
// anti-feedback logic shared by canvas, document and image editing.
//
// Sends are fire-and-forget: the operation is stamped with the local clock
// and user, encoded, and handed to the transport with no acknowledgement.
// Receives pass a three-stage filter (shape, self-echo, staleness) before
// reaching the subscriber.
type Channel struct {
	kind      domain.ArtifactKind
	identity  Identity
	codec     *protocol.Codec
	transport *Transport

	mu          sync.Mutex
	lastApplied int64
	onRemote    RemoteHandler

	echoDropped  atomic.Int64
	staleDropped atomic.Int64

	log *logrus.Entry
}

// Endpoint builds the socket path for an artifact domain:
// <root>/ws/<domain>/<projectID>/<fileID>/<userID>.
func Endpoint(root string, kind domain.ArtifactKind, identity Identity) string {
	return fmt.Sprintf("%s/ws/%s/%s/%s/%s",
		root, kind, identity.ProjectID, identity.FileID, identity.UserID)
}

// New builds a channel for one (project, file, user) triple. A missing
// identity is the only fatal condition: everything after construction is
// surfaced through state, never thrown.
func New(kind domain.ArtifactKind, identity Identity, opts Options) (*Channel, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}

	transport, err := NewTransport(Endpoint(opts.WSRoot, kind, identity), identity, TransportOptions{
		MaxAttempts:      opts.MaxAttempts,
		ReconnectBackoff: opts.ReconnectBackoff,
		HandshakeTimeout: opts.HandshakeTimeout,
	})
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		kind:      kind,
		identity:  identity,
		codec:     protocol.NewCodec(),
		transport: transport,
		log: logrus.WithFields(logrus.Fields{
			"artifact": kind,
			"file":     identity.FileID,
			"userId":   identity.UserID,
		}),
	}

	transport.onFrame = ch.handleFrame
	transport.onOpen = ch.initFrame
	return ch, nil
}

// Open connects the underlying transport. Safe to call repeatedly.
func (ch *Channel) Open() {
	ch.transport.Open()
}

func (ch *Channel) initFrame() []byte {
	frame, err := ch.codec.EncodeInit(ch.identity.UserID, ch.identity.ProjectID, ch.identity.FileID)
	if err != nil {
		ch.log.Warnf("encoding init: %v", err)
		return nil
	}
	return frame
}

// Send stamps op with the local clock and user and forwards it. It never
// blocks and never fails the caller: a dead transport drops the frame.
// The stamped operation is returned so callers can log or mirror it.
func (ch *Channel) Send(op domain.Operation) domain.Operation {
	op.OriginUserID = ch.identity.UserID
	op.Timestamp = domain.Now()

	// Own edits advance the watermark too: a remote operation older than
	// what we just applied locally must not roll the artifact back.
	ch.mu.Lock()
	if op.Timestamp > ch.lastApplied {
		ch.lastApplied = op.Timestamp
	}
	ch.mu.Unlock()

	frame, err := ch.codec.EncodeOperation(op)
	if err != nil {
		ch.log.Warnf("encoding %s operation: %v", op.Kind, err)
		return op
	}
	ch.transport.Send(frame)
	return op
}

func (ch *Channel) handleFrame(raw []byte) {
	msg, err := ch.codec.Decode(raw)
	if err != nil {
		ch.log.Warnf("dropping malformed frame: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeConnected:
		ch.log.Debug("handshake acknowledged")
		return
	case protocol.TypeInit:
		// Servers never send init to clients; tolerate and ignore.
		return
	}

	op := msg.Operation

	// Self-echo suppression: our own operations must never come back
	// through the remote path, even when the server reflects them.
	if op.OriginUserID == ch.identity.UserID {
		ch.echoDropped.Add(1)
		return
	}

	ch.mu.Lock()
	// Staleness rejection: the watermark only ever moves forward, so a
	// duplicate or out-of-order delivery is discarded here.
	if op.Timestamp <= ch.lastApplied {
		ch.mu.Unlock()
		ch.staleDropped.Add(1)
		return
	}
	ch.lastApplied = op.Timestamp
	handler := ch.onRemote
	ch.mu.Unlock()

	if handler != nil {
		handler(*op)
	}
}

// Subscribe registers the remote-operation callback, replacing any
// previous registration.
func (ch *Channel) Subscribe(handler RemoteHandler) {
	ch.mu.Lock()
	ch.onRemote = handler
	ch.mu.Unlock()
}

// Unsubscribe removes the registered callback.
func (ch *Channel) Unsubscribe() {
	ch.Subscribe(nil)
}

// BeginClose suppresses reconnection while the socket stays usable, so
// the binding can flush a pending rate-limited send before Close.
func (ch *Channel) BeginClose() {
	ch.transport.BeginClose()
}

// Close tears the session down: the transport sets its cleanup flag and
// cancels any in-flight reconnect before the callback is unregistered.
// Flushing pending rate-limited sends is the binding's job and happens
// before this is called.
func (ch *Channel) Close() {
	ch.transport.Close()
	ch.Unsubscribe()
}

// State reports the transport state for status UI.
func (ch *Channel) State() domain.ConnectionState {
	return ch.transport.State()
}

// ConnectionError reports the last terminal error, or nil.
func (ch *Channel) ConnectionError() error {
	return ch.transport.Err()
}

// LastAppliedTimestamp returns the staleness watermark.
func (ch *Channel) LastAppliedTimestamp() int64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.lastApplied
}

// Dropped returns diagnostic counters for discarded self-echo and stale
// operations.
func (ch *Channel) Dropped() (echo, stale int64) {
	return ch.echoDropped.Load(), ch.staleDropped.Load()
}
