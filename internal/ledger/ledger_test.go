package ledger_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"stockledger/internal/classifier"
	"stockledger/internal/ledger"
	"stockledger/internal/models"
	"stockledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var rice = models.ProductKey{Name: "rice", Unit: "kg"}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newLedger(t *testing.T, cfg ledger.Config) (*ledger.Ledger, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return ledger.New(st, cfg), st
}

func historyOf(t *testing.T, l *ledger.Ledger, key models.ProductKey, order ledger.Order) []models.StockSnapshot {
	t.Helper()
	var res []models.StockSnapshot
	for s, err := range l.History(context.Background(), key, order) {
		require.NoError(t, err)
		res = append(res, s)
	}
	return res
}

func TestRiceScenario(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	first, err := l.RecordInitialStock(ctx, rice, d(50), "")
	require.NoError(t, err)
	assert.True(t, first.OnHand.Equal(d(50)))
	assert.True(t, first.PriorStock.IsZero())
	assert.True(t, first.Consumed.IsZero())
	assert.Equal(t, uint(1), first.Seq)

	second, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(20), d(30))
	require.NoError(t, err)
	assert.True(t, second.PriorStock.Equal(d(50)))
	assert.True(t, second.OnHand.Equal(d(40)))

	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(100))
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	var ise *ledger.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.True(t, ise.Available.Equal(d(40)))
	assert.True(t, ise.Requested.Equal(d(100)))

	cur, err := l.CurrentState(ctx, rice)
	require.NoError(t, err)
	assert.True(t, cur.OnHand.Equal(d(40)))
	assert.Len(t, historyOf(t, l, rice, ledger.Ascending), 2)
}

func TestOnHandIsRunningSum(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	steps := []struct{ rep, con int64 }{
		{10, 0}, {0, 25}, {5, 5}, {100, 40}, {0, 50}, {3, 0}, {0, 3},
	}
	_, err := l.RecordInitialStock(ctx, rice, d(30), "")
	require.NoError(t, err)

	want := d(30)
	for i, s := range steps {
		snap, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(s.rep), d(s.con))
		require.NoError(t, err, "step %d", i)
		assert.True(t, snap.PriorStock.Equal(want), "step %d prior", i)
		want = want.Add(d(s.rep)).Sub(d(s.con))
		assert.True(t, snap.OnHand.Equal(want), "step %d: got %s want %s", i, snap.OnHand, want)
		assert.False(t, snap.OnHand.IsNegative())
	}
}

func TestFractionalQuantitiesAreExact(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})
	milk := models.ProductKey{Name: "milk", Unit: "liter"}

	_, err := l.RecordInitialStock(ctx, milk, decimal.RequireFromString("0.3"), "")
	require.NoError(t, err)
	snap, err := l.RecordConsumptionAndReplenishment(ctx, milk, decimal.Zero, decimal.RequireFromString("0.1"))
	require.NoError(t, err)
	snap, err = l.RecordConsumptionAndReplenishment(ctx, milk, decimal.Zero, decimal.RequireFromString("0.2"))
	require.NoError(t, err)
	assert.True(t, snap.OnHand.IsZero(), "got %s", snap.OnHand)
}

func TestOverConsumptionAppendsNothing(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	_, err := l.RecordInitialStock(ctx, rice, d(5), "")
	require.NoError(t, err)
	before := historyOf(t, l, rice, ledger.Ascending)

	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, d(1), d(7))
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	assert.Equal(t, before, historyOf(t, l, rice, ledger.Ascending))
}

func TestConsumeEverything(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	_, err := l.RecordInitialStock(ctx, rice, d(5), "")
	require.NoError(t, err)
	snap, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(1), d(6))
	require.NoError(t, err)
	assert.True(t, snap.OnHand.IsZero())
}

func TestDuplicateInitialStock(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	_, err := l.RecordInitialStock(ctx, rice, d(5), "")
	require.NoError(t, err)

	_, err = l.RecordInitialStock(ctx, models.ProductKey{Name: " RICE ", Unit: "kgs"}, d(7), "")
	require.ErrorIs(t, err, ledger.ErrDuplicateProduct)

	// aynı isim, farklı birim ayrı bir ürün
	_, err = l.RecordInitialStock(ctx, models.ProductKey{Name: "rice", Unit: "g"}, d(7), "")
	require.NoError(t, err)
}

func TestValidationErrors(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	_, err := l.RecordInitialStock(ctx, rice, d(-1), "")
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.RecordInitialStock(ctx, models.ProductKey{Name: "rice", Unit: "barrel"}, d(1), "")
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.RecordInitialStock(ctx, rice, d(3), "")
	require.NoError(t, err)

	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, d(-1), d(0))
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(-2))
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(0))
	require.ErrorIs(t, err, ledger.ErrNoChange)

	assert.Len(t, historyOf(t, l, rice, ledger.Ascending), 1)
}

func TestQuantityPrecisionAndRange(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})
	q := decimal.RequireFromString

	for _, v := range []string{"0.0000001", "1.1234567", "100000000000000", "123456789012345.5"} {
		_, err := l.RecordInitialStock(ctx, rice, q(v), "")
		require.ErrorIs(t, err, ledger.ErrValidation, v)
	}
	assert.Empty(t, historyOf(t, l, rice, ledger.Ascending))

	largest := q("99999999999999.999999")
	snap, err := l.RecordInitialStock(ctx, rice, largest, "")
	require.NoError(t, err)
	assert.True(t, snap.OnHand.Equal(largest))

	// sondaki sıfırlar ölçeği büyütmez
	snap, err = l.RecordConsumptionAndReplenishment(ctx, rice, decimal.Zero, q("0.500000000"))
	require.NoError(t, err)
	assert.True(t, snap.OnHand.Equal(q("99999999999999.499999")))

	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, decimal.Zero, q("0.0000001"))
	require.ErrorIs(t, err, ledger.ErrValidation, "sub-scale request is not rounded to a no-op")

	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, q("1"), decimal.Zero)
	require.ErrorIs(t, err, ledger.ErrValidation, "on-hand would leave the column range")

	// tüketim aynı istekte sınırın altına indiriyorsa kabul
	snap, err = l.RecordConsumptionAndReplenishment(ctx, rice, q("1"), q("2"))
	require.NoError(t, err)
	assert.True(t, snap.OnHand.Equal(q("99999999999998.499999")))
	assert.Len(t, historyOf(t, l, rice, ledger.Ascending), 3)
}

func TestUnknownProduct(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	_, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(1), d(0))
	require.ErrorIs(t, err, ledger.ErrProductNotFound)

	_, err = l.CurrentState(ctx, rice)
	require.ErrorIs(t, err, ledger.ErrProductNotFound)

	assert.Empty(t, historyOf(t, l, rice, ledger.Ascending))
}

func TestRecordedAtStrictlyIncreasesWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2025, 12, 9, 10, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, ledger.Config{Now: func() time.Time { return frozen }})

	_, err := l.RecordInitialStock(ctx, rice, d(10), "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(1))
		require.NoError(t, err)
	}

	hist := historyOf(t, l, rice, ledger.Ascending)
	require.Len(t, hist, 6)
	for i := 1; i < len(hist); i++ {
		assert.True(t, hist[i].RecordedAt.After(hist[i-1].RecordedAt), "snapshot %d", i)
	}

	cur, err := l.CurrentState(ctx, rice)
	require.NoError(t, err)
	assert.Equal(t, hist[len(hist)-1], cur, "current state is the max recordedAt snapshot")
}

func TestCategory(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{Classifier: classifier.New(nil)})

	snap, err := l.RecordInitialStock(ctx, models.ProductKey{Name: "Basmati Rice", Unit: "kg"}, d(10), "")
	require.NoError(t, err)
	assert.Equal(t, "grains", snap.Category)

	snap, err = l.RecordInitialStock(ctx, models.ProductKey{Name: "whole milk", Unit: "liter"}, d(10), " frozen ")
	require.NoError(t, err)
	assert.Equal(t, "frozen", snap.Category, "explicit category wins over classifier")

	snap, err = l.RecordConsumptionAndReplenishment(ctx, models.ProductKey{Name: "whole milk", Unit: "liter"}, d(0), d(4))
	require.NoError(t, err)
	assert.Equal(t, "frozen", snap.Category, "category is carried forward")
}

func TestHistoryOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: store.NewMemoryStore()}
	l := ledger.New(st, ledger.Config{PageSize: 2})

	_, err := l.RecordInitialStock(ctx, rice, d(100), "")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(10))
		require.NoError(t, err)
	}

	st.lists.Store(0)
	asc := historyOf(t, l, rice, ledger.Ascending)
	require.Len(t, asc, 5)
	assert.EqualValues(t, 3, st.lists.Load(), "5 snapshots in pages of 2")
	for i, s := range asc {
		assert.Equal(t, uint(i+1), s.Seq)
	}

	desc := historyOf(t, l, rice, ledger.Descending)
	require.Len(t, desc, 5)
	for i, s := range desc {
		assert.Equal(t, asc[len(asc)-1-i], s)
	}

	// yeniden başlatılabilir: ikinci tur aynı sonucu verir
	assert.Equal(t, asc, historyOf(t, l, rice, ledger.Ascending))

	// erken çıkış sonraki sayfaları çekmez
	st.lists.Store(0)
	for range l.History(ctx, rice, ledger.Ascending) {
		break
	}
	assert.EqualValues(t, 1, st.lists.Load())
}

func TestDeleteSnapshotDoesNotRecompute(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	first, err := l.RecordInitialStock(ctx, rice, d(50), "")
	require.NoError(t, err)
	second, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(20), d(30))
	require.NoError(t, err)
	third, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(10))
	require.NoError(t, err)

	deleted, err := l.DeleteSnapshot(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, deleted.ID)

	hist := historyOf(t, l, rice, ledger.Ascending)
	require.Len(t, hist, 2)
	assert.Equal(t, first, hist[0])
	assert.Equal(t, third, hist[1], "later snapshots keep their values")

	_, err = l.DeleteSnapshot(ctx, second.ID)
	require.ErrorIs(t, err, ledger.ErrSnapshotNotFound)

	// en son kaydı silince bir öncekine dönülür
	_, err = l.DeleteSnapshot(ctx, third.ID)
	require.NoError(t, err)
	cur, err := l.CurrentState(ctx, rice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, cur.ID)

	next, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(1), d(0))
	require.NoError(t, err)
	assert.True(t, next.PriorStock.Equal(d(50)))
}

func TestProducts(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	for _, k := range []models.ProductKey{
		{Name: "sugar", Unit: "kg"},
		{Name: "rice", Unit: "kg"},
		{Name: "rice", Unit: "package"},
	} {
		_, err := l.RecordInitialStock(ctx, k, d(1), "")
		require.NoError(t, err)
	}
	_, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(4), d(0))
	require.NoError(t, err)

	all, err := l.Products(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, rice, all[0].Key())
	assert.True(t, all[0].OnHand.Equal(d(5)))
	assert.Equal(t, "package", all[1].Unit)
	assert.Equal(t, "sugar", all[2].Name)

	rices, err := l.Products(ctx, "  RICE ")
	require.NoError(t, err)
	assert.Len(t, rices, 2)

	_, err = l.Products(ctx, "ri?ce")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestConcurrentConsumptionsNeverBothSucceed(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	for round := 0; round < 50; round++ {
		key := models.ProductKey{Name: fmt.Sprintf("rice %d", round), Unit: "kg"}
		_, err := l.RecordInitialStock(ctx, key, d(50), "")
		require.NoError(t, err)

		var g errgroup.Group
		results := make([]error, 2)
		for i := range results {
			g.Go(func() error {
				_, results[i] = l.RecordConsumptionAndReplenishment(ctx, key, d(0), d(30))
				return nil
			})
		}
		require.NoError(t, g.Wait())

		successes := 0
		for _, err := range results {
			if err == nil {
				successes++
				continue
			}
			assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
		}
		assert.Equal(t, 1, successes, "round %d", round)

		cur, err := l.CurrentState(ctx, key)
		require.NoError(t, err)
		assert.True(t, cur.OnHand.Equal(d(20)))
	}
}

func TestManyConcurrentWritersDrainExactly(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, ledger.Config{})

	_, err := l.RecordInitialStock(ctx, rice, d(30), "")
	require.NoError(t, err)

	var ok atomic.Int64
	var g errgroup.Group
	for i := 0; i < 60; i++ {
		g.Go(func() error {
			if _, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(1)); err == nil {
				ok.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 30, ok.Load())
	cur, err := l.CurrentState(ctx, rice)
	require.NoError(t, err)
	assert.True(t, cur.OnHand.IsZero())
	assert.Len(t, historyOf(t, l, rice, ledger.Ascending), 31)
}

func TestSeqConflictIsRetried(t *testing.T) {
	ctx := context.Background()
	st := &conflictStore{Store: store.NewMemoryStore()}
	l := ledger.New(st, ledger.Config{MaxRetries: 3})

	_, err := l.RecordInitialStock(ctx, rice, d(10), "")
	require.NoError(t, err)

	st.conflicts.Store(3)
	snap, err := l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(4))
	require.NoError(t, err)
	assert.True(t, snap.OnHand.Equal(d(6)))
	assert.Equal(t, uint(2), snap.Seq)
}

func TestSeqConflictGivesUp(t *testing.T) {
	ctx := context.Background()
	st := &conflictStore{Store: store.NewMemoryStore()}
	l := ledger.New(st, ledger.Config{MaxRetries: 3})

	_, err := l.RecordInitialStock(ctx, rice, d(10), "")
	require.NoError(t, err)

	st.conflicts.Store(4)
	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(4))
	require.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.Len(t, historyOf(t, l, rice, ledger.Ascending), 1)
}

func TestInitialInsertConflictIsDuplicate(t *testing.T) {
	ctx := context.Background()
	st := &conflictStore{Store: store.NewMemoryStore()}
	l := ledger.New(st, ledger.Config{})

	st.conflicts.Store(1)
	_, err := l.RecordInitialStock(ctx, rice, d(10), "")
	require.ErrorIs(t, err, ledger.ErrDuplicateProduct)
}

func TestUsage(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, ledger.Config{Now: func() time.Time { return clock }})

	_, err := l.RecordInitialStock(ctx, rice, d(50), "")
	require.NoError(t, err)

	clock = time.Date(2025, 12, 3, 12, 0, 0, 0, time.UTC)
	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, d(20), d(30))
	require.NoError(t, err)
	clock = time.Date(2025, 12, 15, 12, 0, 0, 0, time.UTC)
	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, d(5), d(10))
	require.NoError(t, err)
	clock = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	_, err = l.RecordConsumptionAndReplenishment(ctx, rice, d(0), d(1))
	require.NoError(t, err)

	from := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u, err := l.Usage(ctx, rice, from, to)
	require.NoError(t, err)
	assert.True(t, u.Start.Equal(d(50)))
	assert.True(t, u.Replenished.Equal(d(25)))
	assert.True(t, u.Consumed.Equal(d(40)))
	assert.True(t, u.End.Equal(d(35)))
	assert.Equal(t, 2, u.Snapshots)
	assert.True(t, u.End.Equal(u.Start.Add(u.Replenished).Sub(u.Consumed)))

	// hareketsiz aralık: son = başlangıç
	quiet, err := l.Usage(ctx, rice, time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC), to)
	require.NoError(t, err)
	assert.True(t, quiet.End.Equal(d(35)))
	assert.Zero(t, quiet.Snapshots)

	_, err = l.Usage(ctx, rice, to, from)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.Usage(ctx, models.ProductKey{Name: "salt", Unit: "kg"}, from, to)
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)
}

// countingStore counts List calls to observe lazy paging.
type countingStore struct {
	ledger.Store
	lists atomic.Int64
}

func (s *countingStore) List(ctx context.Context, key models.ProductKey, opts ledger.ListOptions) ([]models.StockSnapshot, error) {
	s.lists.Add(1)
	return s.Store.List(ctx, key, opts)
}

// conflictStore fails the next N inserts with ErrSeqConflict, as if another
// process had won the slot.
type conflictStore struct {
	ledger.Store
	conflicts atomic.Int64
}

func (s *conflictStore) Insert(ctx context.Context, snap *models.StockSnapshot) error {
	if s.conflicts.Add(-1) >= 0 {
		return ledger.ErrSeqConflict
	}
	s.conflicts.Store(0)
	return s.Store.Insert(ctx, snap)
}
