// Package repotest provides an in-memory ticket registry with the same
// uniqueness and status rules as the MySQL one.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/repository"
)

type Registry struct {
	mu   sync.Mutex
	recs map[string]model.TicketRecord
	seq  uint64

	// CreateErrs are returned by successive Create calls before any
	// insert happens.
	CreateErrs []error
	UpdateErr  error
}

func New() *Registry {
	return &Registry{recs: map[string]model.TicketRecord{}}
}

func (r *Registry) Create(_ context.Context, rec *model.TicketRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.CreateErrs) > 0 {
		err := r.CreateErrs[0]
		r.CreateErrs = r.CreateErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := r.recs[rec.AssetUnit]; ok {
		return fmt.Errorf("%w: %s", repository.ErrTicketExists, rec.AssetUnit)
	}
	if rec.Status == "" {
		rec.Status = model.TicketValid
	}
	r.seq++
	now := time.Now().UTC()
	rec.ID, rec.CreatedAt, rec.UpdatedAt = r.seq, now, now
	r.recs[rec.AssetUnit] = *rec
	return nil
}

func (r *Registry) FindByAssetUnit(_ context.Context, unit string) (*model.TicketRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[unit]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	return &rec, nil
}

func (r *Registry) UpdateStatus(_ context.Context, unit string, status model.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	rec, ok := r.recs[unit]
	if !ok {
		return repository.ErrTicketNotFound
	}
	if rec.Status == status {
		return nil
	}
	if rec.Status == model.TicketCancelled {
		return repository.ErrInvalidTransition
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	r.recs[unit] = rec
	return nil
}

func (r *Registry) List(_ context.Context, limit, offset int) ([]model.TicketRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.TicketRecord, 0, len(r.recs))
	for _, rec := range r.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return []model.TicketRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the stored record or false.
func (r *Registry) Get(unit string) (model.TicketRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[unit]
	return rec, ok
}
