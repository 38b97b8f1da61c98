package store

import (
	"context"

	"artflow-sync/internal/domain"

	"github.com/sirupsen/logrus"
)

// SaveMeta is the snapshot metadata recorded next to the blob.
type SaveMeta struct {
	LastModifiedBy string
	Timestamp      int64
}

// Backend is the raw persistence the adapter drives. The three write verbs
// map onto the adapter's fallback chain: a structured update with full
// metadata, the same update omitting optional metadata, and a low-level
// write bypassing the structured interface.
type Backend interface {
	UpdateStructured(ctx context.Context, artifactID string, blob []byte, meta SaveMeta) error
	UpdatePartial(ctx context.Context, artifactID string, blob []byte) error
	WriteRaw(ctx context.Context, artifactID string, blob []byte, meta SaveMeta) error

	// Read returns nil with no error when the artifact has no snapshot.
	Read(ctx context.Context, artifactID string) (*domain.Snapshot, error)
}

// OperationLog is the append-only record backing canvas state recovery
// when no snapshot exists yet.
type OperationLog interface {
	Append(ctx context.Context, artifactID string, entry domain.LogEntry) error
	Read(ctx context.Context, artifactID string) ([]domain.LogEntry, error)
}

// SaveStrategy is one named step of the fallback chain.
type SaveStrategy struct {
	Name string
	Run  func(ctx context.Context) error
}

// runStrategies tries each strategy in order and reports whether any
// succeeded. Every failure is logged; nothing propagates.
func runStrategies(ctx context.Context, log *logrus.Entry, strategies []SaveStrategy) bool {
	for _, s := range strategies {
		if err := s.Run(ctx); err != nil {
			log.Warnf("save strategy %s failed: %v", s.Name, err)
			continue
		}
		if s.Name != "structured" {
			log.Infof("save recovered via %s strategy", s.Name)
		}
		return true
	}
	log.Error("all save strategies exhausted")
	return false
}
