package binding

import (
	"context"
	"encoding/json"
	"time"

	"artflow-sync/internal/channel"
	"artflow-sync/internal/domain"
	"artflow-sync/internal/protocol"
	"artflow-sync/internal/ratelimit"
	"artflow-sync/internal/store"
)

// CanvasEvents is the editor surface above a canvas binding. Operations
// composite; nothing here replaces whole state.
type CanvasEvents struct {
	// ApplyRemote composites a remote stroke or clear onto local pixels.
	ApplyRemote func(op domain.Operation)
	// Restore redraws the canvas from a persisted snapshot blob.
	Restore func(blob []byte)
}

// Canvas binds a freehand drawing editor to its channel. Strokes are
// throttled to roughly one send per animation frame and mirrored into the
// append-only operation log for snapshot-less recovery.
type Canvas struct {
	session
	throttle  *ratelimit.Throttle
	events    CanvasEvents
	reconcile time.Duration
}

// CanvasOptions carries the tunables a canvas binding needs.
type CanvasOptions struct {
	ThrottleInterval time.Duration
	// ReconcileInterval enables periodic snapshot polling as a safety
	// net for missed pushes. Zero disables it.
	ReconcileInterval time.Duration
}

func NewCanvas(identity channel.Identity, ch Channel, adapter *store.Adapter, events CanvasEvents, opts CanvasOptions) *Canvas {
	if opts.ThrottleInterval == 0 {
		opts.ThrottleInterval = 16 * time.Millisecond
	}

	c := &Canvas{
		session:   newSession(domain.KindCanvas, identity, ch, adapter),
		events:    events,
		reconcile: opts.ReconcileInterval,
	}
	c.throttle = ratelimit.NewThrottle(opts.ThrottleInterval, func(op domain.Operation) {
		stamped := ch.Send(op)
		adapter.AppendLogEntry(c.artifactID, stamped)
	})

	ch.Subscribe(c.handleRemote)
	return c
}

// Open connects the channel and restores local state: snapshot first,
// otherwise a replay of the logged operations, otherwise blank.
func (c *Canvas) Open(ctx context.Context) {
	c.ch.Open()

	var seed []byte
	if result := c.Load(ctx); result != nil {
		if result.Blob != nil {
			seed = result.Blob
			if c.events.Restore != nil {
				c.events.Restore(result.Blob)
			}
		} else {
			for _, op := range result.Log {
				c.applyRemote(func() {
					if c.events.ApplyRemote != nil {
						c.events.ApplyRemote(op)
					}
				})
			}
		}
	}

	c.startReconcile(c.reconcile, seed, func(blob []byte) {
		if c.events.Restore != nil {
			c.events.Restore(blob)
		}
	})
}

// Draw sends one stroke segment. Pointer movement calls this at input
// rate; the throttle collapses it to the wire rate.
func (c *Canvas) Draw(payload json.RawMessage) {
	if c.ApplyingRemote() {
		return
	}
	c.throttle.Send(domain.Operation{
		Kind:    string(protocol.TypeDraw),
		Payload: payload,
	})
}

// Clear wipes the canvas for every participant. It flushes any pending
// stroke first so clear cannot be overtaken by a stale trailing draw.
func (c *Canvas) Clear() {
	if c.ApplyingRemote() {
		return
	}
	c.throttle.Flush()
	stamped := c.ch.Send(domain.Operation{Kind: string(protocol.TypeClear)})
	c.store.AppendLogEntry(c.artifactID, stamped)
}

func (c *Canvas) handleRemote(op domain.Operation) {
	c.applyRemote(func() {
		if c.events.ApplyRemote != nil {
			c.events.ApplyRemote(op)
		}
	})
}

// Close tears the binding down in the safe order: suppress reconnects,
// flush the pending stroke, then release transport and subscription.
func (c *Canvas) Close() {
	c.stopReconcile()
	c.ch.BeginClose()
	c.throttle.Stop()
	c.ch.Close()
}
