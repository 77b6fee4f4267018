package store

import (
	"context"
	"sort"
	"sync"

	"stockledger/internal/ledger"
	"stockledger/internal/models"
)

// MemoryStore keeps snapshot chains in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint
	chains map[models.ProductKey][]models.StockSnapshot // seq sıralı
	byID   map[uint]models.ProductKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains: make(map[models.ProductKey][]models.StockSnapshot),
		byID:   make(map[uint]models.ProductKey),
	}
}

func (s *MemoryStore) Insert(_ context.Context, snap *models.StockSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := snap.Key()
	chain := s.chains[key]
	i := sort.Search(len(chain), func(i int) bool { return chain[i].Seq >= snap.Seq })
	if i < len(chain) && chain[i].Seq == snap.Seq {
		return ledger.ErrSeqConflict
	}

	s.nextID++
	snap.ID = s.nextID
	chain = append(chain, models.StockSnapshot{})
	copy(chain[i+1:], chain[i:])
	chain[i] = *snap
	s.chains[key] = chain
	s.byID[snap.ID] = key
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, key models.ProductKey) (models.StockSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[key]
	if len(chain) == 0 {
		return models.StockSnapshot{}, ledger.ErrProductNotFound
	}
	return chain[len(chain)-1], nil
}

func (s *MemoryStore) List(_ context.Context, key models.ProductKey, opts ledger.ListOptions) ([]models.StockSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[key]

	res := make([]models.StockSnapshot, 0)
	if opts.Order == ledger.Descending {
		for i := len(chain) - 1; i >= 0; i-- {
			if opts.AfterSeq > 0 && chain[i].Seq >= opts.AfterSeq {
				continue
			}
			res = append(res, chain[i])
			if opts.Limit > 0 && len(res) == opts.Limit {
				break
			}
		}
		return res, nil
	}
	for _, snap := range chain {
		if snap.Seq <= opts.AfterSeq {
			continue
		}
		res = append(res, snap)
		if opts.Limit > 0 && len(res) == opts.Limit {
			break
		}
	}
	return res, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uint) (models.StockSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return models.StockSnapshot{}, ledger.ErrSnapshotNotFound
	}
	chain := s.chains[key]
	for i, snap := range chain {
		if snap.ID != id {
			continue
		}
		chain = append(chain[:i], chain[i+1:]...)
		if len(chain) == 0 {
			delete(s.chains, key)
		} else {
			s.chains[key] = chain
		}
		delete(s.byID, id)
		return snap, nil
	}
	return models.StockSnapshot{}, ledger.ErrSnapshotNotFound
}

func (s *MemoryStore) Keys(_ context.Context, name string) ([]models.ProductKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]models.ProductKey, 0, len(s.chains))
	for k := range s.chains {
		if name != "" && k.Name != name {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Unit < keys[j].Unit
	})
	return keys, nil
}
