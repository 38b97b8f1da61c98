package store

import (
	"context"
	"errors"
	"time"

	"artflow-sync/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRecord is the persisted whole-artifact blob plus metadata.
type SnapshotRecord struct {
	ArtifactID     string `gorm:"primaryKey"`
	Blob           []byte
	LastModifiedBy string
	Timestamp      int64
	UpdatedAt      time.Time
}

func (SnapshotRecord) TableName() string {
	return "artifact_snapshots"
}

// GormBackend persists snapshots through the ORM. The raw write verb
// bypasses it with plain SQL, which is the chain's last resort.
type GormBackend struct {
	db *gorm.DB
}

func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

// Migrate creates the snapshot table.
func (b *GormBackend) Migrate() error {
	return b.db.AutoMigrate(&SnapshotRecord{})
}

func (b *GormBackend) UpdateStructured(ctx context.Context, artifactID string, blob []byte, meta SaveMeta) error {
	record := SnapshotRecord{
		ArtifactID:     artifactID,
		Blob:           blob,
		LastModifiedBy: meta.LastModifiedBy,
		Timestamp:      meta.Timestamp,
		UpdatedAt:      time.Now().UTC(),
	}
	return b.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "artifact_id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
}

// UpdatePartial writes the blob only, leaving metadata columns alone. Used
// when the structured update fails on an optional field.
func (b *GormBackend) UpdatePartial(ctx context.Context, artifactID string, blob []byte) error {
	now := time.Now().UTC()
	res := b.db.WithContext(ctx).
		Model(&SnapshotRecord{}).
		Where("artifact_id = ?", artifactID).
		Updates(map[string]interface{}{"blob": blob, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return b.db.WithContext(ctx).Create(&SnapshotRecord{
			ArtifactID: artifactID,
			Blob:       blob,
			UpdatedAt:  now,
		}).Error
	}
	return nil
}

func (b *GormBackend) WriteRaw(ctx context.Context, artifactID string, blob []byte, meta SaveMeta) error {
	return b.db.WithContext(ctx).Exec(`
		INSERT INTO artifact_snapshots (artifact_id, blob, last_modified_by, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (artifact_id) DO UPDATE
		SET blob = EXCLUDED.blob,
		    last_modified_by = EXCLUDED.last_modified_by,
		    timestamp = EXCLUDED.timestamp,
		    updated_at = EXCLUDED.updated_at
	`, artifactID, blob, meta.LastModifiedBy, meta.Timestamp, time.Now().UTC()).Error
}

func (b *GormBackend) Read(ctx context.Context, artifactID string) (*domain.Snapshot, error) {
	var record SnapshotRecord
	err := b.db.WithContext(ctx).First(&record, "artifact_id = ?", artifactID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Snapshot{
		ArtifactID:     record.ArtifactID,
		Blob:           record.Blob,
		LastModifiedBy: record.LastModifiedBy,
		Timestamp:      record.Timestamp,
		UpdatedAt:      record.UpdatedAt,
	}, nil
}
