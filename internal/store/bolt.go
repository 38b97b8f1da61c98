package store

import (
	"context"
	"encoding/json"
	"time"

	"artflow-sync/internal/domain"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketRaw       = []byte("raw")
)

// BoltBackend is the local single-node store used when no database is
// configured. Same fallback-chain contract as the SQL backend.
type BoltBackend struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSnapshots, bucketRaw} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func (b *BoltBackend) UpdateStructured(ctx context.Context, artifactID string, blob []byte, meta SaveMeta) error {
	snap := domain.Snapshot{
		ArtifactID:     artifactID,
		Blob:           blob,
		LastModifiedBy: meta.LastModifiedBy,
		Timestamp:      meta.Timestamp,
		UpdatedAt:      time.Now().UTC(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(artifactID), raw)
	})
}

// UpdatePartial replaces the blob while keeping whatever metadata the
// stored record already has.
func (b *BoltBackend) UpdatePartial(ctx context.Context, artifactID string, blob []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)

		snap := domain.Snapshot{ArtifactID: artifactID}
		if existing := bucket.Get([]byte(artifactID)); existing != nil {
			if err := json.Unmarshal(existing, &snap); err != nil {
				snap = domain.Snapshot{ArtifactID: artifactID}
			}
		}
		snap.Blob = blob
		snap.UpdatedAt = time.Now().UTC()

		raw, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(artifactID), raw)
	})
}

// WriteRaw drops the blob into a side bucket without any record framing.
func (b *BoltBackend) WriteRaw(ctx context.Context, artifactID string, blob []byte, meta SaveMeta) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRaw).Put([]byte(artifactID), blob)
	})
}

func (b *BoltBackend) Read(ctx context.Context, artifactID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := b.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketSnapshots).Get([]byte(artifactID)); raw != nil {
			var s domain.Snapshot
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			snap = &s
			return nil
		}
		if blob := tx.Bucket(bucketRaw).Get([]byte(artifactID)); blob != nil {
			copied := make([]byte, len(blob))
			copy(copied, blob)
			snap = &domain.Snapshot{ArtifactID: artifactID, Blob: copied}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
