package reconcile

import (
	"bytes"
	"context"
	"sync"
	"time"

	"artflow-sync/internal/store"

	"github.com/sirupsen/logrus"
)

// Poller is the push-delivery safety net: a rate-limited task that
// re-reads the persisted snapshot and hands over the blob only when it
// differs from what was last seen. Diff-before-apply keeps missed-push
// recovery from flickering state that has not actually changed.
type Poller struct {
	backend    store.Backend
	artifactID string
	interval   time.Duration
	apply      func(blob []byte)

	mu       sync.Mutex
	lastSeen []byte
	stop     chan struct{}

	log *logrus.Entry
}

func NewPoller(backend store.Backend, artifactID string, interval time.Duration, apply func(blob []byte)) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		backend:    backend,
		artifactID: artifactID,
		interval:   interval,
		apply:      apply,
		log:        logrus.WithField("poller", artifactID),
	}
}

// Seed records the blob the local editor currently holds, so the first
// poll does not re-apply state we already have.
func (p *Poller) Seed(blob []byte) {
	p.mu.Lock()
	p.lastSeen = blob
	p.mu.Unlock()
}

// Start launches the polling loop. Stop ends it.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return
	}
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	go p.loop(stop)
}

func (p *Poller) loop(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	snap, err := p.backend.Read(ctx, p.artifactID)
	if err != nil {
		p.log.Warnf("reconcile read failed: %v", err)
		return
	}
	if snap == nil {
		return
	}

	p.mu.Lock()
	changed := !bytes.Equal(snap.Blob, p.lastSeen)
	if changed {
		p.lastSeen = snap.Blob
	}
	p.mu.Unlock()

	if changed && p.apply != nil {
		p.log.Debug("reconciled drifted snapshot")
		p.apply(snap.Blob)
	}
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.mu.Unlock()
}
