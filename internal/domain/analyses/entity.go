package analyses

import (
	"strings"
	"time"
)

// Token identifies one analysis across submit, checkout, release and fetch.
type Token string

// State of a token in the payment gate.
type State string

const (
	StateCreated         State = "CREATED"
	StateCheckoutPending State = "CHECKOUT_PENDING"
	StateReleased        State = "RELEASED"
)

// ExtractionStatus records how the analyzed text was obtained.
type ExtractionStatus string

const (
	ExtractionExtracted ExtractionStatus = "extracted"
	ExtractionDegraded  ExtractionStatus = "degraded"
)

// CheckoutAttempt is one hosted checkout session created for a token.
type CheckoutAttempt struct {
	SessionID string    `json:"session_id" firestore:"session_id"`
	Provider  string    `json:"provider" firestore:"provider"`
	URL       string    `json:"url,omitempty" firestore:"url"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
}

// Analysis is the persisted record, one per token.
type Analysis struct {
	Token              Token             `json:"token" firestore:"token"`
	OwnerID            string            `json:"owner_id" firestore:"owner_id"`
	CreatedAt          time.Time         `json:"created_at" firestore:"created_at"`
	ClauseAnalysis     string            `json:"clause_analysis" firestore:"clause_analysis"`
	Recommendation     string            `json:"recommendation,omitempty" firestore:"recommendation"`
	Extraction         ExtractionStatus  `json:"extraction" firestore:"extraction"`
	Paid               bool              `json:"paid" firestore:"paid"`
	CheckoutSessionID  string            `json:"checkout_session_id,omitempty" firestore:"checkout_session_id"`
	Checkouts          []CheckoutAttempt `json:"checkouts,omitempty" firestore:"checkouts"`
	PaymentConfirmedAt *time.Time        `json:"payment_confirmed_at,omitempty" firestore:"payment_confirmed_at"`
	UpdatedAt          time.Time         `json:"updated_at" firestore:"updated_at"`
	ArchiveKey         string            `json:"archive_key,omitempty" firestore:"archive_key"`
}

// State derives the gate state from the persisted fields.
func (a *Analysis) State() State {
	switch {
	case a.Paid:
		return StateReleased
	case a.CheckoutSessionID != "":
		return StateCheckoutPending
	default:
		return StateCreated
	}
}

// AttachCheckout records a new session and makes it the active one.
// Earlier sessions stay in Checkouts but can no longer release the token.
func (a *Analysis) AttachCheckout(attempt CheckoutAttempt, now time.Time) {
	a.Checkouts = append(a.Checkouts, attempt)
	a.CheckoutSessionID = attempt.SessionID
	a.UpdatedAt = now
}

// ConfirmPayment flips the gate. Calling it on a released record refreshes
// the confirmation time and keeps Paid true.
func (a *Analysis) ConfirmPayment(now time.Time) {
	a.Paid = true
	t := now
	a.PaymentConfirmedAt = &t
	a.UpdatedAt = now
}

// SupportedMediaType reports whether uploads of this type can be analyzed.
func SupportedMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "application/pdf" || strings.HasPrefix(mt, "image/")
}

// ClauseSummary splits clauses into safe and risky groups.
type ClauseSummary struct {
	Safe []string `json:"safe"`
	Risk []string `json:"risk"`
}

// Upload is a file already written to a temporary path by the transport.
type Upload struct {
	Path      string
	Filename  string
	MediaType string
	OwnerID   string
}
