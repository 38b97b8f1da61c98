package binding

import (
	"context"
	"encoding/json"
	"time"

	"artflow-sync/internal/channel"
	"artflow-sync/internal/domain"
	"artflow-sync/internal/protocol"
	"artflow-sync/internal/store"
)

// ImageEvents is the editor surface above an image binding. Every remote
// operation replaces the whole image state (filter map, crop, upload):
// last write wins.
type ImageEvents struct {
	ApplyRemote func(op domain.Operation)
	Restore     func(blob []byte)
}

// Image binds the filtered-image editor to its channel. Filter changes,
// crops and uploads are rare enough to go out unthrottled.
type Image struct {
	session
	events    ImageEvents
	reconcile time.Duration
}

type ImageOptions struct {
	// ReconcileInterval enables periodic snapshot polling as a safety
	// net for missed pushes. Zero disables it.
	ReconcileInterval time.Duration
}

func NewImage(identity channel.Identity, ch Channel, adapter *store.Adapter, events ImageEvents, opts ImageOptions) *Image {
	i := &Image{
		session:   newSession(domain.KindImage, identity, ch, adapter),
		events:    events,
		reconcile: opts.ReconcileInterval,
	}
	ch.Subscribe(i.handleRemote)
	return i
}

// Open connects the channel and restores the last persisted image.
func (i *Image) Open(ctx context.Context) {
	i.ch.Open()

	var seed []byte
	if result := i.Load(ctx); result != nil && result.Blob != nil {
		seed = result.Blob
		if i.events.Restore != nil {
			i.events.Restore(result.Blob)
		}
	}

	i.startReconcile(i.reconcile, seed, func(blob []byte) {
		if i.events.Restore != nil {
			i.events.Restore(blob)
		}
	})
}

// Changed sends the full replacement image state.
func (i *Image) Changed(payload json.RawMessage) {
	if i.ApplyingRemote() {
		return
	}
	i.ch.Send(domain.Operation{
		Kind:    string(protocol.TypeImageOperation),
		Payload: payload,
	})
}

func (i *Image) handleRemote(op domain.Operation) {
	i.applyRemote(func() {
		if i.events.ApplyRemote != nil {
			i.events.ApplyRemote(op)
		}
	})
}

// Close releases the channel. No rate controller, so nothing to flush.
func (i *Image) Close() {
	i.stopReconcile()
	i.ch.BeginClose()
	i.ch.Close()
}
