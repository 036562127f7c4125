// Package store persists root fingerprints of ingested descriptors.
package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/dataagent/internal/model"
	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/utils/id"
)

// FingerprintStore defines the fingerprint storage interface.
type FingerprintStore interface {
	Upsert(ctx context.Context, fp *model.Fingerprint) error
	DeleteByDescriptor(ctx context.Context, ref descriptor.Ref) (int64, error)
	Get(ctx context.Context, ref descriptor.Ref) (*model.Fingerprint, error)
}

type fingerprints struct {
	db *gorm.DB
}

var _ FingerprintStore = (*fingerprints)(nil)

// NewFingerprints creates a gorm backed FingerprintStore.
func NewFingerprints(db *gorm.DB) FingerprintStore {
	return &fingerprints{db: db}
}

// AutoMigrate creates or updates the fingerprints table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Fingerprint{})
}

// Upsert 以 (dd_namespace, dd_name) 唯一索引为冲突键写入指纹，冲突时只更新内容列。
// 返回后 fp 携带库中实际的 fid 与 created_at。
func (f *fingerprints) Upsert(ctx context.Context, fp *model.Fingerprint) error {
	if fp.FID == "" {
		fp.FID = id.NewUUID()
	}
	db := f.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dd_namespace"}, {Name: "dd_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"fingerprint_id", "fingerprint_summary", "agent_info_name", "agent_info_description", "updated_at",
		}),
	}).Create(fp).Error
	if err != nil {
		return err
	}

	var stored model.Fingerprint
	if err := db.Where("dd_namespace = ? AND dd_name = ?", fp.DDNamespace, fp.DDName).First(&stored).Error; err != nil {
		return err
	}
	fp.FID = stored.FID
	fp.CreatedAt = stored.CreatedAt
	return nil
}

// DeleteByDescriptor removes every fingerprint of ref and returns the number of rows deleted.
func (f *fingerprints) DeleteByDescriptor(ctx context.Context, ref descriptor.Ref) (int64, error) {
	res := f.db.WithContext(ctx).
		Where("dd_namespace = ? AND dd_name = ?", ref.Namespace, ref.Name).
		Delete(&model.Fingerprint{})
	return res.RowsAffected, res.Error
}

// Get retrieves the fingerprint of ref.
func (f *fingerprints) Get(ctx context.Context, ref descriptor.Ref) (*model.Fingerprint, error) {
	var fp model.Fingerprint
	if err := f.db.WithContext(ctx).
		Where("dd_namespace = ? AND dd_name = ?", ref.Namespace, ref.Name).
		First(&fp).Error; err != nil {
		return nil, err
	}
	return &fp, nil
}
