package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation             = errors.New("geçersiz istek")
	ErrDuplicateProduct       = errors.New("ürün zaten kayıtlı")
	ErrProductNotFound        = errors.New("ürün bulunamadı")
	ErrSnapshotNotFound       = errors.New("stok kaydı bulunamadı")
	ErrNoChange               = errors.New("değişiklik yok: replenished ve consumed ikisi de sıfır")
	ErrInsufficientStock      = errors.New("yetersiz stok")
	ErrConcurrentModification = errors.New("eşzamanlı güncelleme, tekrar deneyin")

	// ErrSeqConflict is returned by a Store when the (name, unit, seq) slot is taken.
	ErrSeqConflict = errors.New("seq çakışması")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type InsufficientStockError struct {
	Available decimal.Decimal // prior + replenished
	Requested decimal.Decimal // consumed
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("yetersiz stok: mevcut %s, istenen %s", e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
