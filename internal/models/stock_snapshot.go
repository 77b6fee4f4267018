package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductKey: bir stok hattının kimliği (normalize edilmiş isim + birim)
type ProductKey struct {
	Name string
	Unit string
}

func (k ProductKey) String() string {
	return k.Name + "/" + k.Unit
}

// StockSnapshot: her stok hareketi için bir kez yazılan, hiç güncellenmeyen kayıt.
// (name, unit, seq) tekil indeksi aynı zincire iki yazarın aynı anda eklemesini engeller.
type StockSnapshot struct {
	ID          uint            `gorm:"primaryKey"`
	Name        string          `gorm:"size:100;not null;uniqueIndex:idx_snapshot_key_seq,priority:1;index:idx_snapshot_key,priority:1"`
	Unit        string          `gorm:"size:20;not null;uniqueIndex:idx_snapshot_key_seq,priority:2;index:idx_snapshot_key,priority:2"`
	Seq         uint            `gorm:"not null;uniqueIndex:idx_snapshot_key_seq,priority:3"`
	PriorStock  decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	Replenished decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	Consumed    decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	OnHand      decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	Category    string          `gorm:"size:100"`
	RecordedAt  time.Time       `gorm:"index;not null;precision:6"`
}

func (s StockSnapshot) Key() ProductKey {
	return ProductKey{Name: s.Name, Unit: s.Unit}
}
