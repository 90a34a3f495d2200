package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

func TestSaveGet(t *testing.T) {
	ctx := context.Background()
	r := NewAnalysisRepository()

	if _, err := r.Get(ctx, "missing"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("Get missing = %v; want ErrTokenNotFound", err)
	}
	if err := r.Save(ctx, &domain.Analysis{Token: "t1", ClauseAnalysis: "ok"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Save(ctx, &domain.Analysis{Token: "t1"}); err == nil {
		t.Error("Save with a duplicate token should fail")
	}

	got, err := r.Get(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ClauseAnalysis != "ok" {
		t.Errorf("ClauseAnalysis = %q", got.ClauseAnalysis)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewAnalysisRepository()
	r.Save(ctx, &domain.Analysis{Token: "t1", Checkouts: []domain.CheckoutAttempt{{SessionID: "cs_1"}}})

	a, _ := r.Get(ctx, "t1")
	a.Paid = true
	a.Checkouts[0].SessionID = "tampered"

	b, _ := r.Get(ctx, "t1")
	if b.Paid || b.Checkouts[0].SessionID != "cs_1" {
		t.Errorf("stored record was mutated through a returned copy: %+v", b)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	r := NewAnalysisRepository()
	r.Save(ctx, &domain.Analysis{Token: "t1"})

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := r.Update(ctx, "t1", func(a *domain.Analysis) error {
		a.AttachCheckout(domain.CheckoutAttempt{SessionID: "cs_1", Provider: "stripe"}, now)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(ctx, "t1")
	if got.CheckoutSessionID != "cs_1" || got.State() != domain.StateCheckoutPending {
		t.Errorf("after update = %+v", got)
	}

	t.Run("fn error discards changes", func(t *testing.T) {
		boom := errors.New("boom")
		err := r.Update(ctx, "t1", func(a *domain.Analysis) error {
			a.Paid = true
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v", err)
		}
		got, _ := r.Get(ctx, "t1")
		if got.Paid {
			t.Error("record changed despite fn error")
		}
	})

	t.Run("missing token", func(t *testing.T) {
		err := r.Update(ctx, "nope", func(*domain.Analysis) error { return nil })
		if !errors.Is(err, domain.ErrTokenNotFound) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestUpdateIsSerialized(t *testing.T) {
	ctx := context.Background()
	r := NewAnalysisRepository()
	r.Save(ctx, &domain.Analysis{Token: "t1"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Update(ctx, "t1", func(a *domain.Analysis) error {
				a.Checkouts = append(a.Checkouts, domain.CheckoutAttempt{})
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := r.Get(ctx, "t1")
	if len(got.Checkouts) != 50 {
		t.Errorf("len(Checkouts) = %d; want 50", len(got.Checkouts))
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d", r.Len())
	}
}
