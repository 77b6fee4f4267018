// Package ledger keeps the append-only stock history of every product key and
// enforces on-hand = prior + replenished - consumed >= 0 on each append.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"stockledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetries = 3
	DefaultPageSize   = 100

	// decimal(20,6) kolonlarının ondalık basamak sayısı
	QuantityScale = 6
)

// MaxQuantity is the exclusive upper bound of any quantity or on-hand value.
var MaxQuantity = decimal.New(1, 20-QuantityScale)

type Config struct {
	Classifier Classifier // opsiyonel
	Logger     *zap.Logger
	MaxRetries int
	PageSize   int
	Now        func() time.Time
}

type Ledger struct {
	store      Store
	classifier Classifier
	log        *zap.Logger
	maxRetries int
	pageSize   int
	now        func() time.Time
	locks      *keyedMutex
}

func New(store Store, cfg Config) *Ledger {
	l := &Ledger{
		store:      store,
		classifier: cfg.Classifier,
		log:        cfg.Logger,
		maxRetries: cfg.MaxRetries,
		pageSize:   cfg.PageSize,
		now:        cfg.Now,
		locks:      newKeyedMutex(),
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.maxRetries < 0 {
		l.maxRetries = 0
	} else if l.maxRetries == 0 {
		l.maxRetries = DefaultMaxRetries
	}
	if l.pageSize <= 0 {
		l.pageSize = DefaultPageSize
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// RecordInitialStock opens the chain of a new product key.
// An existing key is rejected with ErrDuplicateProduct; stock is never chained silently.
func (l *Ledger) RecordInitialStock(ctx context.Context, key models.ProductKey, replenished decimal.Decimal, category string) (models.StockSnapshot, error) {
	key, err := NewProductKey(key.Name, key.Unit)
	if err != nil {
		return models.StockSnapshot{}, err
	}
	if err := checkQuantity("replenished", replenished); err != nil {
		return models.StockSnapshot{}, err
	}

	unlock := l.locks.Lock(key)
	defer unlock()

	_, err = l.store.Latest(ctx, key)
	switch {
	case err == nil:
		return models.StockSnapshot{}, fmt.Errorf("%w: %s", ErrDuplicateProduct, key)
	case !errors.Is(err, ErrProductNotFound):
		return models.StockSnapshot{}, fmt.Errorf("son stok kaydı okunamadı: %w", err)
	}

	category = strings.TrimSpace(category)
	if category == "" && l.classifier != nil {
		category = l.classifier.Classify(key.Name)
	}

	snap := models.StockSnapshot{
		Name:        key.Name,
		Unit:        key.Unit,
		Seq:         1,
		PriorStock:  decimal.Zero,
		Replenished: replenished,
		Consumed:    decimal.Zero,
		OnHand:      replenished,
		Category:    category,
		RecordedAt:  l.recordedAt(time.Time{}),
	}
	if err := l.store.Insert(ctx, &snap); err != nil {
		if errors.Is(err, ErrSeqConflict) {
			// başka bir süreç aynı anda oluşturdu
			return models.StockSnapshot{}, fmt.Errorf("%w: %s", ErrDuplicateProduct, key)
		}
		return models.StockSnapshot{}, fmt.Errorf("stok kaydı eklenemedi: %w", err)
	}

	l.log.Debug("initial stock recorded",
		zap.String("product", key.String()),
		zap.Uint("id", snap.ID),
		zap.String("on_hand", snap.OnHand.String()))
	return snap, nil
}

// RecordConsumptionAndReplenishment appends the next snapshot of an existing key.
// Validation happens before the insert, so a rejected call appends nothing.
func (l *Ledger) RecordConsumptionAndReplenishment(ctx context.Context, key models.ProductKey, replenished, consumed decimal.Decimal) (models.StockSnapshot, error) {
	key, err := NewProductKey(key.Name, key.Unit)
	if err != nil {
		return models.StockSnapshot{}, err
	}
	if err := checkQuantity("replenished", replenished); err != nil {
		return models.StockSnapshot{}, err
	}
	if err := checkQuantity("consumed", consumed); err != nil {
		return models.StockSnapshot{}, err
	}
	if replenished.IsZero() && consumed.IsZero() {
		return models.StockSnapshot{}, ErrNoChange
	}

	unlock := l.locks.Lock(key)
	defer unlock()

	for attempt := 0; ; attempt++ {
		snap, err := l.appendNext(ctx, key, replenished, consumed)
		if err == nil {
			l.log.Debug("stock updated",
				zap.String("product", key.String()),
				zap.Uint("seq", snap.Seq),
				zap.String("on_hand", snap.OnHand.String()))
			return snap, nil
		}
		if !errors.Is(err, ErrSeqConflict) {
			return models.StockSnapshot{}, err
		}
		if attempt >= l.maxRetries {
			l.log.Warn("giving up after seq conflicts",
				zap.String("product", key.String()),
				zap.Int("attempts", attempt+1))
			return models.StockSnapshot{}, fmt.Errorf("%w: %s", ErrConcurrentModification, key)
		}
		l.log.Warn("seq conflict, retrying",
			zap.String("product", key.String()),
			zap.Int("attempt", attempt+1))
	}
}

func (l *Ledger) appendNext(ctx context.Context, key models.ProductKey, replenished, consumed decimal.Decimal) (models.StockSnapshot, error) {
	prev, err := l.store.Latest(ctx, key)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return models.StockSnapshot{}, fmt.Errorf("%w: %s", ErrProductNotFound, key)
		}
		return models.StockSnapshot{}, fmt.Errorf("son stok kaydı okunamadı: %w", err)
	}

	available := prev.OnHand.Add(replenished)
	if consumed.GreaterThan(available) {
		return models.StockSnapshot{}, &InsufficientStockError{Available: available, Requested: consumed}
	}
	if onHand := available.Sub(consumed); onHand.GreaterThanOrEqual(MaxQuantity) {
		return models.StockSnapshot{}, &ValidationError{Field: "replenished", Reason: "stok üst sınırı aşılıyor: " + onHand.String()}
	}

	snap := models.StockSnapshot{
		Name:        key.Name,
		Unit:        key.Unit,
		Seq:         prev.Seq + 1,
		PriorStock:  prev.OnHand,
		Replenished: replenished,
		Consumed:    consumed,
		OnHand:      available.Sub(consumed),
		Category:    prev.Category,
		RecordedAt:  l.recordedAt(prev.RecordedAt),
	}
	if err := l.store.Insert(ctx, &snap); err != nil {
		if errors.Is(err, ErrSeqConflict) {
			return models.StockSnapshot{}, err
		}
		return models.StockSnapshot{}, fmt.Errorf("stok kaydı eklenemedi: %w", err)
	}
	return snap, nil
}

// CurrentState returns the latest snapshot of the key.
func (l *Ledger) CurrentState(ctx context.Context, key models.ProductKey) (models.StockSnapshot, error) {
	key, err := NewProductKey(key.Name, key.Unit)
	if err != nil {
		return models.StockSnapshot{}, err
	}
	snap, err := l.store.Latest(ctx, key)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return models.StockSnapshot{}, fmt.Errorf("%w: %s", ErrProductNotFound, key)
		}
		return models.StockSnapshot{}, fmt.Errorf("son stok kaydı okunamadı: %w", err)
	}
	return snap, nil
}

// History yields every snapshot of the key, fetched page by page.
// Each range over the returned sequence queries the store again.
func (l *Ledger) History(ctx context.Context, key models.ProductKey, order Order) iter.Seq2[models.StockSnapshot, error] {
	return func(yield func(models.StockSnapshot, error) bool) {
		k, err := NewProductKey(key.Name, key.Unit)
		if err != nil {
			yield(models.StockSnapshot{}, err)
			return
		}
		var after uint
		for {
			page, err := l.store.List(ctx, k, ListOptions{Order: order, AfterSeq: after, Limit: l.pageSize})
			if err != nil {
				yield(models.StockSnapshot{}, fmt.Errorf("stok geçmişi okunamadı: %w", err))
				return
			}
			for _, s := range page {
				if !yield(s, nil) {
					return
				}
			}
			if len(page) < l.pageSize {
				return
			}
			after = page[len(page)-1].Seq
		}
	}
}

// DeleteSnapshot removes one snapshot. Neighbouring snapshots are not recomputed.
func (l *Ledger) DeleteSnapshot(ctx context.Context, id uint) (models.StockSnapshot, error) {
	snap, err := l.store.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return models.StockSnapshot{}, fmt.Errorf("%w: id %d", ErrSnapshotNotFound, id)
		}
		return models.StockSnapshot{}, fmt.Errorf("stok kaydı silinemedi: %w", err)
	}
	l.log.Info("snapshot deleted",
		zap.String("product", snap.Key().String()),
		zap.Uint("id", id),
		zap.Uint("seq", snap.Seq))
	return snap, nil
}

// Products returns the current snapshot of every key, or of every unit of one name.
func (l *Ledger) Products(ctx context.Context, name string) ([]models.StockSnapshot, error) {
	if name != "" {
		n, err := NormalizeName(name)
		if err != nil {
			return nil, err
		}
		name = n
	}
	keys, err := l.store.Keys(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("ürünler listelenemedi: %w", err)
	}
	res := make([]models.StockSnapshot, 0, len(keys))
	for _, k := range keys {
		snap, err := l.store.Latest(ctx, k)
		if errors.Is(err, ErrProductNotFound) {
			// listeleme ile okuma arasında silinmiş
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("son stok kaydı okunamadı: %w", err)
		}
		res = append(res, snap)
	}
	return res, nil
}

// recordedAt keeps timestamps strictly increasing within a key.
func (l *Ledger) recordedAt(prev time.Time) time.Time {
	t := l.now().UTC().Truncate(time.Microsecond)
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

// checkQuantity rejects values the snapshot columns cannot hold exactly.
func checkQuantity(field string, q decimal.Decimal) error {
	if q.IsNegative() {
		return &ValidationError{Field: field, Reason: "negatif olamaz"}
	}
	if !q.Truncate(QuantityScale).Equal(q) {
		return &ValidationError{Field: field, Reason: "en fazla 6 ondalık basamak olabilir"}
	}
	if q.GreaterThanOrEqual(MaxQuantity) {
		return &ValidationError{Field: field, Reason: "çok büyük, üst sınır " + MaxQuantity.String()}
	}
	return nil
}
