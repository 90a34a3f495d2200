// Package paypal is the alternative checkout gateway built on PayPal Orders v2.
package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

const (
	orderApproved  = "APPROVED"
	orderCompleted = "COMPLETED"
)

type Gateway struct {
	client    *paypal.Client
	ReturnURL string
	CancelURL string
}

// New authenticates against apiBase (paypal.APIBaseSandBox or
// paypal.APIBaseLive) before returning.
func New(ctx context.Context, clientID, secret, apiBase, returnURL, cancelURL string) (*Gateway, error) {
	c, err := paypal.NewClient(clientID, secret, apiBase)
	if err != nil {
		return nil, err
	}
	if _, err := c.GetAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("paypal auth: %w", err)
	}
	return &Gateway{client: c, ReturnURL: returnURL, CancelURL: cancelURL}, nil
}

func (g *Gateway) Name() string { return "paypal" }

func (g *Gateway) CreateSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: string(req.Token),
		Amount: &paypal.PurchaseUnitAmount{
			Currency: strings.ToUpper(req.Currency),
			Value:    formatAmount(req.AmountMinor),
		},
		Description: req.ProductName,
	}}
	appCtx := &paypal.ApplicationContext{
		ReturnURL: returnURL(g.ReturnURL, req.Token),
		CancelURL: g.CancelURL,
	}

	order, err := g.client.CreateOrder(ctx, "CAPTURE", units, nil, appCtx)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	link := approvalURL(order)
	if link == "" {
		return domain.CheckoutSession{}, errors.New("paypal order has no approve link")
	}
	return domain.CheckoutSession{ID: order.ID, URL: link}, nil
}

// Status captures an approved order so the buyer is charged the first time
// the release status is checked after approval.
func (g *Gateway) Status(ctx context.Context, orderID string) (domain.PaymentStatus, error) {
	order, err := g.client.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	switch order.Status {
	case orderCompleted:
		return domain.PaymentPaid, nil
	case orderApproved:
		capture, err := g.client.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
		if err != nil {
			return "", fmt.Errorf("capture order: %w", err)
		}
		if capture.Status == orderCompleted {
			return domain.PaymentPaid, nil
		}
	}
	return domain.PaymentUnpaid, nil
}

func formatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func approvalURL(order *paypal.Order) string {
	for _, link := range order.Links {
		if link.Rel == "approve" {
			return link.Href
		}
	}
	return ""
}

// PayPal appends its own token (the order id) to the return URL, so the
// analysis token travels as analysis_token.
func returnURL(base string, token domain.Token) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "analysis_token=" + url.QueryEscape(string(token))
}
