package binding

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"artflow-sync/internal/channel"
	"artflow-sync/internal/domain"
	"artflow-sync/internal/reconcile"
	"artflow-sync/internal/store"
)

// Channel is the slice of the operation channel a binding drives.
// *channel.Channel satisfies it; tests substitute fakes.
type Channel interface {
	Open()
	Send(op domain.Operation) domain.Operation
	Subscribe(handler channel.RemoteHandler)
	Unsubscribe()
	BeginClose()
	Close()
	State() domain.ConnectionState
	ConnectionError() error
}

// session is the state every binding shares: one channel, the store
// adapter, the loop-prevention flag, and the save-status indicator.
//
// The applying flag gates local-change handlers while a remote operation
// mutates local state, so a remote edit can never bounce straight back
// into the send path.
type session struct {
	kind       domain.ArtifactKind
	artifactID string
	identity   channel.Identity

	ch    Channel
	store *store.Adapter

	poller *reconcile.Poller

	applying atomic.Bool

	mu         sync.Mutex
	saveStatus domain.SaveStatus
}

func newSession(kind domain.ArtifactKind, identity channel.Identity, ch Channel, adapter *store.Adapter) session {
	return session{
		kind:       kind,
		artifactID: identity.ProjectID + "/" + identity.FileID,
		identity:   identity,
		ch:         ch,
		store:      adapter,
		saveStatus: domain.SaveIdle,
	}
}

// ConnectionState is exposed for status UI.
func (s *session) ConnectionState() domain.ConnectionState {
	return s.ch.State()
}

// ConnectionError is the last terminal transport error, or nil.
func (s *session) ConnectionError() error {
	return s.ch.ConnectionError()
}

// SaveStatus reports the outcome of the latest explicit save.
func (s *session) SaveStatus() domain.SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveStatus
}

// ApplyingRemote reports whether a remote operation is being applied
// right now. Local-change handlers must not send while this holds.
func (s *session) ApplyingRemote() bool {
	return s.applying.Load()
}

// Save persists the whole-artifact blob through the adapter's fallback
// chain and records the outcome. It never returns an error; failure is a
// status, not an exception.
func (s *session) Save(ctx context.Context, blob []byte) bool {
	ok := s.store.Save(ctx, s.artifactID, blob, store.SaveMeta{
		LastModifiedBy: s.identity.UserID,
		Timestamp:      domain.Now(),
	})

	s.mu.Lock()
	if ok {
		s.saveStatus = domain.SaveSuccess
	} else {
		s.saveStatus = domain.SaveError
	}
	s.mu.Unlock()
	return ok
}

// Load fetches the artifact's starting state, memoized by the adapter.
func (s *session) Load(ctx context.Context) *store.LoadResult {
	return s.store.Load(ctx, s.kind, s.artifactID)
}

// startReconcile arms the push-delivery safety net: a poller that re-reads
// the persisted snapshot and feeds drift through the same loop-prevented
// path remote operations take. A zero interval disables it.
func (s *session) startReconcile(interval time.Duration, seed []byte, apply func(blob []byte)) {
	if interval <= 0 || s.store == nil {
		return
	}
	s.poller = reconcile.NewPoller(s.store.Backend(), s.artifactID, interval, func(blob []byte) {
		s.applyRemote(func() { apply(blob) })
	})
	s.poller.Seed(seed)
	s.poller.Start()
}

func (s *session) stopReconcile() {
	if s.poller != nil {
		s.poller.Stop()
	}
}

// applyRemote runs fn with the loop-prevention flag held.
func (s *session) applyRemote(fn func()) {
	s.applying.Store(true)
	defer s.applying.Store(false)
	if fn != nil {
		fn()
	}
}
