package analyses

import "context"

// Repository port, one document per token.
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	// Get returns ErrTokenNotFound when no record exists.
	Get(ctx context.Context, token Token) (*Analysis, error)
	// Update runs fn on the current record and persists the result atomically
	// for that single document.
	Update(ctx context.Context, token Token, fn func(a *Analysis) error) error
	Ping(ctx context.Context) error
}

// Extractor port (PDF text layer / OCR)
type Extractor interface {
	Extract(ctx context.Context, path, mediaType string) (Extraction, error)
}

// Requester asks the LLM for the clause risk explanation.
type Requester interface {
	RequestAnalysis(ctx context.Context, text string) (string, error)
}

// Classifier splits clause text into safe and risky lists.
type Classifier interface {
	Classify(ctx context.Context, clauses string) (ClauseSummary, error)
}

// PaymentStatus as reported by the checkout provider.
type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "paid"
	PaymentUnpaid PaymentStatus = "unpaid"
)

type CheckoutRequest struct {
	Token       Token
	AmountMinor int64
	Currency    string
	ProductName string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutGateway port for a hosted checkout provider.
type CheckoutGateway interface {
	Name() string
	CreateSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	Status(ctx context.Context, sessionID string) (PaymentStatus, error)
}

// Archive keeps a copy of the uploaded document. Optional.
type Archive interface {
	Put(ctx context.Context, localPath, key, contentType string) (string, error)
}
