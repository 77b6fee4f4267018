// Package store holds the persistence collaborators of the stock ledger.
package store

import (
	"context"
	"errors"
	"strings"

	"stockledger/internal/ledger"
	"stockledger/internal/models"

	"gorm.io/gorm"
)

// GormStore persists snapshots through GORM (postgres, mysql or sqlite).
// The db handle should be opened with TranslateError so unique violations
// surface as gorm.ErrDuplicatedKey.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(ctx context.Context, snap *models.StockSnapshot) error {
	snap.ID = 0
	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		if isDuplicate(err) {
			return ledger.ErrSeqConflict
		}
		return err
	}
	return nil
}

func (s *GormStore) Latest(ctx context.Context, key models.ProductKey) (models.StockSnapshot, error) {
	var snap models.StockSnapshot
	err := s.db.WithContext(ctx).
		Where("name = ? AND unit = ?", key.Name, key.Unit).
		Order("seq DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StockSnapshot{}, ledger.ErrProductNotFound
	}
	if err != nil {
		return models.StockSnapshot{}, err
	}
	return snap, nil
}

func (s *GormStore) List(ctx context.Context, key models.ProductKey, opts ledger.ListOptions) ([]models.StockSnapshot, error) {
	dbq := s.db.WithContext(ctx).Where("name = ? AND unit = ?", key.Name, key.Unit)
	if opts.Order == ledger.Descending {
		if opts.AfterSeq > 0 {
			dbq = dbq.Where("seq < ?", opts.AfterSeq)
		}
		dbq = dbq.Order("seq DESC")
	} else {
		dbq = dbq.Where("seq > ?", opts.AfterSeq).Order("seq ASC")
	}
	if opts.Limit > 0 {
		dbq = dbq.Limit(opts.Limit)
	}

	var snaps []models.StockSnapshot
	if err := dbq.Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}

func (s *GormStore) Delete(ctx context.Context, id uint) (models.StockSnapshot, error) {
	var snap models.StockSnapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&snap, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.StockSnapshot{}, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StockSnapshot{}, ledger.ErrSnapshotNotFound
	}
	if err != nil {
		return models.StockSnapshot{}, err
	}
	return snap, nil
}

func (s *GormStore) Keys(ctx context.Context, name string) ([]models.ProductKey, error) {
	dbq := s.db.WithContext(ctx).Model(&models.StockSnapshot{}).Distinct("name", "unit")
	if name != "" {
		dbq = dbq.Where("name = ?", name)
	}

	var keys []models.ProductKey
	if err := dbq.Order("name ASC, unit ASC").Scan(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// isDuplicate also recognizes raw driver messages in case the dialector
// does not translate errors.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
