package channel

import (
	"testing"
	"time"

	"artflow-sync/internal/domain"
	"artflow-sync/internal/errors"

	"github.com/stretchr/testify/assert"
)

func fastOpts() TransportOptions {
	return TransportOptions{
		MaxAttempts:      5,
		ReconnectBackoff: 10 * time.Millisecond,
		HandshakeTimeout: time.Second,
	}
}

func TestTransportOpensAndSendsInit(t *testing.T) {
	fs := newFakeServer(t)
	tr, err := NewTransport(fs.wsRoot()+"/ws/canvas/p1/f1/u1", testIdentity, fastOpts())
	assert.NoError(t, err)
	tr.onOpen = func() []byte { return []byte("hello") }
	t.Cleanup(tr.Close)

	tr.Open()
	assert.Eventually(t, func() bool { return tr.State() == domain.StateOpen }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("hello"), fs.nextFrame(t))
	assert.Equal(t, 0, tr.Attempts())
}

func TestTransportFailsAfterBoundedAttempts(t *testing.T) {
	// A server that existed only long enough to hand out an address.
	fs := newFakeServer(t)
	endpoint := fs.wsRoot() + "/ws/canvas/p1/f1/u1"
	fs.srv.Close()

	tr, err := NewTransport(endpoint, testIdentity, fastOpts())
	assert.NoError(t, err)
	t.Cleanup(tr.Close)

	tr.Open()
	assert.Eventually(t, func() bool { return tr.State() == domain.StateFailed }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 5, tr.Attempts())
	assert.ErrorIs(t, tr.Err(), errors.ErrMaxReconnects)

	// Failed is terminal for this transport instance: no timer keeps
	// running and the state holds.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.StateFailed, tr.State())
}

func TestTransportReconnectsAfterUnexpectedDrop(t *testing.T) {
	fs := newFakeServer(t)
	tr, err := NewTransport(fs.wsRoot()+"/ws/canvas/p1/f1/u1", testIdentity, fastOpts())
	assert.NoError(t, err)
	t.Cleanup(tr.Close)

	tr.Open()
	assert.Eventually(t, func() bool { return tr.State() == domain.StateOpen }, 2*time.Second, 5*time.Millisecond)

	fs.dropAll()
	assert.Eventually(t, func() bool {
		return tr.State() == domain.StateOpen && fs.connCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// A successful reconnect resets the attempt counter.
	assert.Equal(t, 0, tr.Attempts())
}

func TestCloseSuppressesReconnect(t *testing.T) {
	fs := newFakeServer(t)
	tr, err := NewTransport(fs.wsRoot()+"/ws/canvas/p1/f1/u1", testIdentity, fastOpts())
	assert.NoError(t, err)

	tr.Open()
	assert.Eventually(t, func() bool { return tr.State() == domain.StateOpen }, 2*time.Second, 5*time.Millisecond)

	tr.Close()
	assert.Equal(t, domain.StateClosed, tr.State())

	// Long past several backoff intervals: no redial happens.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, domain.StateClosed, tr.State())
	assert.Equal(t, 1, fs.connCount(), "closed transport must not redial")
}

func TestBeginCloseKeepsSocketUsableForFinalFlush(t *testing.T) {
	fs := newFakeServer(t)
	tr, err := NewTransport(fs.wsRoot()+"/ws/canvas/p1/f1/u1", testIdentity, fastOpts())
	assert.NoError(t, err)
	t.Cleanup(tr.Close)

	tr.Open()
	assert.Eventually(t, func() bool { return tr.State() == domain.StateOpen }, 2*time.Second, 5*time.Millisecond)

	tr.BeginClose()
	assert.Equal(t, domain.StateOpen, tr.State())

	tr.Send([]byte("last-edit"))
	assert.Equal(t, []byte("last-edit"), fs.nextFrame(t))
}

func TestOpenIsIdempotentWhileConnected(t *testing.T) {
	fs := newFakeServer(t)
	tr, err := NewTransport(fs.wsRoot()+"/ws/canvas/p1/f1/u1", testIdentity, fastOpts())
	assert.NoError(t, err)
	t.Cleanup(tr.Close)

	tr.Open()
	assert.Eventually(t, func() bool { return tr.State() == domain.StateOpen }, 2*time.Second, 5*time.Millisecond)

	tr.Open()
	tr.Open()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, fs.connCount())
}

func TestIdentityValidation(t *testing.T) {
	_, err := NewTransport("ws://x", Identity{ProjectID: "p", FileID: "f"}, TransportOptions{})
	assert.ErrorIs(t, err, errors.ErrMissingUser)

	_, err = NewTransport("ws://x", Identity{UserID: "u", FileID: "f"}, TransportOptions{})
	assert.ErrorIs(t, err, errors.ErrMissingProject)
}
