// Package memory is a process-local record store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

type AnalysisRepository struct {
	mu      sync.Mutex
	records map[domain.Token]domain.Analysis
}

func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{records: make(map[domain.Token]domain.Analysis)}
}

func (r *AnalysisRepository) Save(_ context.Context, a *domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[a.Token]; ok {
		return fmt.Errorf("token %s already stored", a.Token)
	}
	r.records[a.Token] = clone(*a)
	return nil
}

func (r *AnalysisRepository) Get(_ context.Context, token domain.Token) (*domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[token]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	out := clone(a)
	return &out, nil
}

// Update holds the store lock while fn runs. The record is only replaced when
// fn returns nil.
func (r *AnalysisRepository) Update(_ context.Context, token domain.Token, fn func(*domain.Analysis) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[token]
	if !ok {
		return domain.ErrTokenNotFound
	}
	work := clone(a)
	if err := fn(&work); err != nil {
		return err
	}
	r.records[token] = clone(work)
	return nil
}

func (r *AnalysisRepository) Ping(context.Context) error { return nil }

// Len reports how many records are stored.
func (r *AnalysisRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func clone(a domain.Analysis) domain.Analysis {
	if a.Checkouts != nil {
		a.Checkouts = append([]domain.CheckoutAttempt(nil), a.Checkouts...)
	}
	if a.PaymentConfirmedAt != nil {
		t := *a.PaymentConfirmedAt
		a.PaymentConfirmedAt = &t
	}
	return a
}
