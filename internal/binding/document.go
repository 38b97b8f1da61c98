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

// DocumentEvents is the editor surface above a document binding. Remote
// text operations carry the full replacement content: last write wins at
// whole-document granularity, no field-by-field merging.
type DocumentEvents struct {
	ReplaceContent func(op domain.Operation)
	CursorMoved    func(op domain.Operation)
	Restore        func(blob []byte)
}

// Document binds a rich-text editor to its channel. Content sync is
// debounced so a burst of keystrokes becomes one whole-content send after
// the quiet period; cursor updates are throttled at frame rate.
type Document struct {
	session
	debounce  *ratelimit.Debounce
	cursor    *ratelimit.Throttle
	events    DocumentEvents
	reconcile time.Duration
}

type DocumentOptions struct {
	DebounceInterval time.Duration
	CursorInterval   time.Duration
	// ReconcileInterval enables periodic snapshot polling as a safety
	// net for missed pushes. Zero disables it.
	ReconcileInterval time.Duration
}

func NewDocument(identity channel.Identity, ch Channel, adapter *store.Adapter, events DocumentEvents, opts DocumentOptions) *Document {
	if opts.DebounceInterval == 0 {
		opts.DebounceInterval = 500 * time.Millisecond
	}
	if opts.CursorInterval == 0 {
		opts.CursorInterval = 16 * time.Millisecond
	}

	d := &Document{
		session:   newSession(domain.KindDocument, identity, ch, adapter),
		events:    events,
		reconcile: opts.ReconcileInterval,
	}
	d.debounce = ratelimit.NewDebounce(opts.DebounceInterval, func(op domain.Operation) {
		ch.Send(op)
	})
	d.cursor = ratelimit.NewThrottle(opts.CursorInterval, func(op domain.Operation) {
		ch.Send(op)
	})

	ch.Subscribe(d.handleRemote)
	return d
}

// Open connects the channel and restores the last persisted content.
func (d *Document) Open(ctx context.Context) {
	d.ch.Open()

	var seed []byte
	if result := d.Load(ctx); result != nil && result.Blob != nil {
		seed = result.Blob
		if d.events.Restore != nil {
			d.events.Restore(result.Blob)
		}
	}

	d.startReconcile(d.reconcile, seed, func(blob []byte) {
		if d.events.Restore != nil {
			d.events.Restore(blob)
		}
	})
}

// ContentChanged queues a whole-content sync. Called on every local edit;
// only the latest content survives the quiet period.
func (d *Document) ContentChanged(payload json.RawMessage) {
	if d.ApplyingRemote() {
		return
	}
	d.debounce.Send(domain.Operation{
		Kind:    string(protocol.TypeTextOperation),
		Payload: payload,
	})
}

// CursorMoved shares the local caret position.
func (d *Document) CursorMoved(payload json.RawMessage) {
	if d.ApplyingRemote() {
		return
	}
	d.cursor.Send(domain.Operation{
		Kind:    string(protocol.TypeCursorUpdate),
		Payload: payload,
	})
}

func (d *Document) handleRemote(op domain.Operation) {
	switch protocol.MessageType(op.Kind) {
	case protocol.TypeCursorUpdate:
		// Cursor positions never touch document state; no flag needed.
		if d.events.CursorMoved != nil {
			d.events.CursorMoved(op)
		}
	case protocol.TypeTextOperation:
		d.applyRemote(func() {
			if d.events.ReplaceContent != nil {
				d.events.ReplaceContent(op)
			}
		})
	}
}

// Close flushes the pending content sync before the channel is released,
// so the last edit is never silently dropped.
func (d *Document) Close() {
	d.stopReconcile()
	d.ch.BeginClose()
	d.debounce.Stop()
	d.cursor.Stop()
	d.ch.Close()
}
