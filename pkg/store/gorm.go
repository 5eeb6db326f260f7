package store

import (
	"errors"

	"gorm.io/gorm"

	"rollguard/pkg/model"
)

// GormStore persists supervisor state in a relational database through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an initialized gorm handle (see pkg/db).
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) SaveSnapshot(s *model.Snapshot) error {
	return g.db.Create(s).Error
}

func (g *GormStore) UpdateSnapshot(s *model.Snapshot) error {
	res := g.db.Save(s)
	if res.Error != nil {
		return res.Error
	}
	return nil
}

func (g *GormStore) GetSnapshot(id uint) (model.Snapshot, bool, error) {
	var s model.Snapshot
	err := g.db.First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Snapshot{}, false, nil
	}
	if err != nil {
		return model.Snapshot{}, false, err
	}
	return s, true, nil
}

func (g *GormStore) ListSnapshots(limit int) ([]model.Snapshot, error) {
	var out []model.Snapshot
	q := g.db.Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return out, q.Find(&out).Error
}

func (g *GormStore) ListSnapshotsByCategory(category string) ([]model.Snapshot, error) {
	var out []model.Snapshot
	err := g.db.Where("category = ?", category).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

func (g *GormStore) DeleteSnapshot(id uint) error {
	res := g.db.Delete(&model.Snapshot{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormStore) AppendRestore(r *model.RestoreRecord) error {
	return g.db.Create(r).Error
}

func (g *GormStore) ListRestores(limit int) ([]model.RestoreRecord, error) {
	var out []model.RestoreRecord
	return out, g.limited(limit).Find(&out).Error
}

func (g *GormStore) AppendCorrection(c *model.CorrectionAttempt) error {
	return g.db.Create(c).Error
}

func (g *GormStore) ListCorrections(limit int) ([]model.CorrectionAttempt, error) {
	var out []model.CorrectionAttempt
	return out, g.limited(limit).Find(&out).Error
}

func (g *GormStore) AppendRun(r *model.VerificationRun) error {
	return g.db.Create(r).Error
}

func (g *GormStore) ListRuns(limit int) ([]model.VerificationRun, error) {
	var out []model.VerificationRun
	return out, g.limited(limit).Find(&out).Error
}

// GetVerifierConfig returns the single config row, seeding the default on
// first read.
func (g *GormStore) GetVerifierConfig() (model.VerifierConfig, error) {
	var cfg model.VerifierConfig
	err := g.db.First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = model.DefaultVerifierConfig()
		return cfg, g.db.Create(&cfg).Error
	}
	return cfg, err
}

func (g *GormStore) SaveVerifierConfig(cfg model.VerifierConfig) error {
	existing, err := g.GetVerifierConfig()
	if err != nil {
		return err
	}
	cfg.ID = existing.ID
	return g.db.Save(&cfg).Error
}

func (g *GormStore) GetSnapshotPolicy() (model.SnapshotPolicy, error) {
	var p model.SnapshotPolicy
	err := g.db.First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = model.DefaultSnapshotPolicy()
		return p, g.db.Create(&p).Error
	}
	return p, err
}

func (g *GormStore) SaveSnapshotPolicy(p model.SnapshotPolicy) error {
	existing, err := g.GetSnapshotPolicy()
	if err != nil {
		return err
	}
	p.ID = existing.ID
	return g.db.Save(&p).Error
}

func (g *GormStore) AppendAudit(e model.AuditEntry) error {
	return g.db.Create(&e).Error
}

func (g *GormStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	return out, g.limited(limit).Find(&out).Error
}

// Ping reports readiness for health/info endpoints.
func (g *GormStore) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (g *GormStore) limited(limit int) *gorm.DB {
	q := g.db.Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}
