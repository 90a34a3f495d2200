// Package stripe creates hosted Stripe Checkout sessions for the analysis
// release fee and reads their payment status back.
package stripe

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

type Gateway struct {
	client     session.Client
	SuccessURL string
	CancelURL  string
}

func NewGateway(secretKey, successURL, cancelURL string) *Gateway {
	return NewGatewayWithBackend(secretKey, stripe.GetBackend(stripe.APIBackend), successURL, cancelURL)
}

// NewGatewayWithBackend lets callers point the client at another API host.
func NewGatewayWithBackend(secretKey string, b stripe.Backend, successURL, cancelURL string) *Gateway {
	return &Gateway{
		client:     session.Client{B: b, Key: secretKey},
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	}
}

func (g *Gateway) Name() string { return "stripe" }

func (g *Gateway) CreateSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
				UnitAmount: stripe.Int64(req.AmountMinor),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(successURL(g.SuccessURL, req.Token)),
		CancelURL:         stripe.String(g.CancelURL),
		ClientReferenceID: stripe.String(string(req.Token)),
	}
	params.Context = ctx

	s, err := g.client.New(params)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	if s.URL == "" {
		return domain.CheckoutSession{}, errors.New("stripe returned a session without url")
	}
	return domain.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *Gateway) Status(ctx context.Context, sessionID string) (domain.PaymentStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.client.Get(sessionID, params)
	if err != nil {
		return "", err
	}
	if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return domain.PaymentPaid, nil
	}
	return domain.PaymentUnpaid, nil
}

// successURL appends the token and Stripe's session placeholder. The
// placeholder must reach Stripe unescaped.
func successURL(base string, token domain.Token) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(string(token)) + "&session_id=" + sessionIDPlaceholder
}
