package ledger

import (
	"context"

	"stockledger/internal/models"
)

type Order int

const (
	Ascending Order = iota
	Descending
)

// ParseOrder maps "asc"/"desc" (empty means ascending).
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "asc":
		return Ascending, nil
	case "desc":
		return Descending, nil
	}
	return Ascending, &ValidationError{Field: "order", Reason: "asc veya desc olmalı"}
}

// ListOptions: keyset sayfalama. AfterSeq sıfırsa baştan (veya sondan) başlar.
type ListOptions struct {
	Order    Order
	AfterSeq uint
	Limit    int
}

// Store is the persistence collaborator of the ledger.
//
// Insert must fail with ErrSeqConflict when a snapshot with the same
// (name, unit, seq) already exists; this is the only write guard the ledger relies on.
// Latest returns ErrProductNotFound and Delete ErrSnapshotNotFound when nothing matches.
type Store interface {
	Insert(ctx context.Context, snap *models.StockSnapshot) error
	Latest(ctx context.Context, key models.ProductKey) (models.StockSnapshot, error)
	List(ctx context.Context, key models.ProductKey, opts ListOptions) ([]models.StockSnapshot, error)
	Delete(ctx context.Context, id uint) (models.StockSnapshot, error)
	// Keys lists known product keys ordered by name, unit. Empty name means all.
	Keys(ctx context.Context, name string) ([]models.ProductKey, error)
}

// Classifier guesses a category for a product name. The output is stored as is.
type Classifier interface {
	Classify(name string) string
}
