package ledger

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/models"

	"github.com/shopspring/decimal"
)

// Usage: bir zaman aralığındaki stok hareketi özeti.
// Başlangıç + Gelen - Harcanan = Son
type Usage struct {
	Key         models.ProductKey
	From        time.Time
	To          time.Time
	Start       decimal.Decimal
	Replenished decimal.Decimal
	Consumed    decimal.Decimal
	End         decimal.Decimal
	Snapshots   int
}

// Usage summarizes the snapshots recorded in [from, to).
func (l *Ledger) Usage(ctx context.Context, key models.ProductKey, from, to time.Time) (Usage, error) {
	key, err := NewProductKey(key.Name, key.Unit)
	if err != nil {
		return Usage{}, err
	}
	if !from.Before(to) {
		return Usage{}, &ValidationError{Field: "from", Reason: "from, to'dan önce olmalı"}
	}

	u := Usage{
		Key:         key,
		From:        from,
		To:          to,
		Start:       decimal.Zero,
		Replenished: decimal.Zero,
		Consumed:    decimal.Zero,
	}
	seen := false
	for s, err := range l.History(ctx, key, Ascending) {
		if err != nil {
			return Usage{}, err
		}
		seen = true
		if s.RecordedAt.Before(from) {
			u.Start = s.OnHand
			continue
		}
		if !s.RecordedAt.Before(to) {
			break
		}
		u.Replenished = u.Replenished.Add(s.Replenished)
		u.Consumed = u.Consumed.Add(s.Consumed)
		u.End = s.OnHand
		u.Snapshots++
	}
	if !seen {
		return Usage{}, fmt.Errorf("%w: %s", ErrProductNotFound, key)
	}
	if u.Snapshots == 0 {
		u.End = u.Start
	}
	return u, nil
}
