package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"artflow-sync/internal/domain"
	"artflow-sync/internal/worker"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoadResult is what opening an artifact starts from. Blob is the snapshot
// when one exists; Log carries the replayable canvas operations when only
// the operation log survives. A nil result means "start blank".
type LoadResult struct {
	Blob []byte
	Log  []domain.Operation
}

// Adapter fronts a Backend with the engine's persistence contract: the
// ordered save fallback chain, memoized loads, the canvas op-log fallback,
// and post-save read-back verification. Nothing it does panics or errors
// past its boundary; Save reports plain success or failure.
type Adapter struct {
	backend Backend
	oplog   OperationLog
	pool    *worker.Pool

	verifyDelay time.Duration

	mu     sync.Mutex
	loaded map[string]*LoadResult
	done   map[string]bool

	log *logrus.Entry
}

// NewAdapter builds the adapter. oplog may be nil when no operation log is
// configured (document and image artifacts never read one).
func NewAdapter(backend Backend, oplog OperationLog, pool *worker.Pool) *Adapter {
	a := &Adapter{
		backend:     backend,
		oplog:       oplog,
		pool:        pool,
		verifyDelay: 500 * time.Millisecond,
		loaded:      make(map[string]*LoadResult),
		done:        make(map[string]bool),
		log:         logrus.WithField("component", "store"),
	}
	return a
}

// Save writes the whole-artifact blob, falling through the strategy chain
// until one write lands. Only total exhaustion returns false.
func (a *Adapter) Save(ctx context.Context, artifactID string, blob []byte, meta SaveMeta) bool {
	log := a.log.WithField("artifact", artifactID)

	ok := runStrategies(ctx, log, []SaveStrategy{
		{Name: "structured", Run: func(ctx context.Context) error {
			return a.backend.UpdateStructured(ctx, artifactID, blob, meta)
		}},
		{Name: "partial", Run: func(ctx context.Context) error {
			return a.backend.UpdatePartial(ctx, artifactID, blob)
		}},
		{Name: "raw", Run: func(ctx context.Context) error {
			return a.backend.WriteRaw(ctx, artifactID, blob, meta)
		}},
	})

	if ok {
		a.scheduleVerify(artifactID, blob)
	}
	return ok
}

// scheduleVerify reads the snapshot back after a short delay and logs a
// discrepancy. Observability only; a mismatch never fails the save.
func (a *Adapter) scheduleVerify(artifactID string, expected []byte) {
	if a.pool == nil {
		return
	}
	a.pool.Submit(func(ctx context.Context) error {
		time.Sleep(a.verifyDelay)
		snap, err := a.backend.Read(ctx, artifactID)
		if err != nil {
			a.log.Warnf("read-back of %s failed: %v", artifactID, err)
			return nil
		}
		if snap == nil || !bytes.Equal(snap.Blob, expected) {
			a.log.Warnf("read-back of %s does not match the written blob", artifactID)
		}
		return nil
	})
}

// Load fetches the artifact's starting state. The result is memoized per
// artifact for the adapter's lifetime: once a load completes, calling Load
// again returns the same result without touching the store.
func (a *Adapter) Load(ctx context.Context, kind domain.ArtifactKind, artifactID string) *LoadResult {
	a.mu.Lock()
	if a.done[artifactID] {
		res := a.loaded[artifactID]
		a.mu.Unlock()
		return res
	}
	a.mu.Unlock()

	res := a.load(ctx, kind, artifactID)

	a.mu.Lock()
	a.loaded[artifactID] = res
	a.done[artifactID] = true
	a.mu.Unlock()
	return res
}

// Fetch is the un-memoized read path for callers that must always see
// the latest persisted state (the REST surface, the reconciler's seed).
func (a *Adapter) Fetch(ctx context.Context, kind domain.ArtifactKind, artifactID string) *LoadResult {
	return a.load(ctx, kind, artifactID)
}

func (a *Adapter) load(ctx context.Context, kind domain.ArtifactKind, artifactID string) *LoadResult {
	log := a.log.WithField("artifact", artifactID)

	snap, err := a.backend.Read(ctx, artifactID)
	if err != nil {
		log.Warnf("snapshot load failed: %v", err)
	} else if snap != nil {
		return &LoadResult{Blob: snap.Blob}
	}

	// No snapshot. Canvas artifacts can still be rebuilt from the log.
	if kind != domain.KindCanvas || a.oplog == nil {
		return nil
	}

	entries, err := a.oplog.Read(ctx, artifactID)
	if err != nil {
		log.Warnf("operation log load failed: %v", err)
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Operation.Timestamp < entries[j].Operation.Timestamp
	})

	ops := make([]domain.Operation, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, e.Operation)
	}
	log.Infof("rebuilt canvas from %d logged operations", len(ops))
	return &LoadResult{Log: ops}
}

// AppendLogEntry records a canvas operation, best effort and off the hot
// path. The sender never waits on it.
func (a *Adapter) AppendLogEntry(artifactID string, op domain.Operation) {
	if a.oplog == nil {
		return
	}
	entry := domain.LogEntry{
		ID:         uuid.NewString(),
		ArtifactID: artifactID,
		Operation:  op,
		CreatedAt:  time.Now().UTC(),
	}

	task := func(ctx context.Context) error {
		if err := a.oplog.Append(ctx, artifactID, entry); err != nil {
			a.log.Warnf("log append for %s failed: %v", artifactID, err)
		}
		return nil
	}

	if a.pool != nil {
		a.pool.Submit(task)
		return
	}
	task(context.Background())
}

// ReadLog exposes the raw operation log, newest last.
func (a *Adapter) ReadLog(ctx context.Context, artifactID string) []domain.LogEntry {
	if a.oplog == nil {
		return nil
	}
	entries, err := a.oplog.Read(ctx, artifactID)
	if err != nil {
		a.log.Warnf("log read for %s failed: %v", artifactID, err)
		return nil
	}
	return entries
}

// Backend exposes the raw snapshot reader for the reconciling poller.
func (a *Adapter) Backend() Backend {
	return a.backend
}

// SetVerifyDelay adjusts the read-back delay (tests shrink it).
func (a *Adapter) SetVerifyDelay(d time.Duration) {
	a.verifyDelay = d
}
