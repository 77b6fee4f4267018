package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stockledger/internal/ledger"
	"stockledger/internal/models"

	"gorm.io/gorm"
)

var (
	ErrLogNotFound   = errors.New("log bulunamadı")
	ErrAlreadyUndone = errors.New("bu işlem zaten geri alınmış")
	ErrNotUndoable   = errors.New("bu işlem türü geri alınamaz")
)

type LogOptions struct {
	UserID      string
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// SnapshotDeleter is the part of the ledger undo needs.
type SnapshotDeleter interface {
	DeleteSnapshot(ctx context.Context, id uint) (models.StockSnapshot, error)
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) WriteLog(ctx context.Context, opts LogOptions) error {
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	log := models.AuditLog{
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		return fmt.Errorf("audit log kaydedilemedi: %w", err)
	}
	return nil
}

type ListFilter struct {
	EntityType string
	EntityID   uint
	Limit      int
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.AuditLog, error) {
	dbq := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		dbq = dbq.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		dbq = dbq.Where("entity_id = ?", f.EntityID)
	}
	if f.Limit > 0 {
		dbq = dbq.Limit(f.Limit)
	}

	var logs []models.AuditLog
	if err := dbq.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit loglar listelenemedi: %w", err)
	}
	return logs, nil
}

// UndoLog reverts a snapshot create by deleting that snapshot from the ledger.
// Only snapshot creates are undoable.
func (s *Service) UndoLog(ctx context.Context, ledgerSvc SnapshotDeleter, logID uint, userID, userName string) (models.AuditLog, error) {
	var log models.AuditLog
	if err := s.db.WithContext(ctx).First(&log, "id = ?", logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AuditLog{}, ErrLogNotFound
		}
		return models.AuditLog{}, fmt.Errorf("log okunamadı: %w", err)
	}

	if log.IsUndone {
		return models.AuditLog{}, ErrAlreadyUndone
	}
	if log.Action != models.AuditActionCreate || log.EntityType != models.EntityStockSnapshot {
		return models.AuditLog{}, ErrNotUndoable
	}

	deleted, err := ledgerSvc.DeleteSnapshot(ctx, log.EntityID)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotNotFound) {
		return models.AuditLog{}, fmt.Errorf("stok kaydı silinemedi: %w", err)
	}

	now := time.Now().UTC()
	undoLog := models.AuditLog{
		UserID:      userID,
		UserName:    userName,
		EntityType:  log.EntityType,
		EntityID:    log.EntityID,
		Action:      models.AuditActionUndo,
		Description: fmt.Sprintf("Geri alındı: %s", log.Description),
		BeforeData:  log.AfterData,
		AfterData:   "null",
		Undone:      true,
	}
	if err != nil {
		// kayıt daha önce elle silinmiş, yine de log'u kapat
		undoLog.BeforeData = "null"
	} else if b, mErr := json.Marshal(deleted); mErr == nil {
		undoLog.BeforeData = string(b)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&log).Updates(map[string]any{
			"is_undone": true,
			"undone_by": userID,
			"undone_at": now,
		}).Error; err != nil {
			return fmt.Errorf("log güncellenemedi: %w", err)
		}
		if err := tx.Create(&undoLog).Error; err != nil {
			return fmt.Errorf("undo log kaydedilemedi: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return models.AuditLog{}, txErr
	}
	return undoLog, nil
}
