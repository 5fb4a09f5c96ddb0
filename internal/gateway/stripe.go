package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"larpledger/internal/invoice"
)

// Stripe uses hosted Checkout. A dedicated Price is created per invoice and
// its id doubles as the correlation key; the webhook re-fetches the session
// to read it back rather than trusting the event payload's amounts alone.
type Stripe struct {
	api           *client.API
	webhookSecret string
	baseURL       string
	keys          KeyStore
}

func NewStripe(secretKey, webhookSecret, baseURL string, keys KeyStore) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{
		api:           api,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		keys:          keys,
	}
}

func (s *Stripe) Method() invoice.Method { return invoice.MethodStripe }

func (s *Stripe) BuildPaymentRequest(ctx context.Context, inv *invoice.PaymentInvoice, amount decimal.Decimal) (*PaymentRequest, error) {
	price, err := s.api.Prices.New(&stripe.PriceParams{
		UnitAmount: stripe.Int64(amount.Mul(decimal.NewFromInt(100)).IntPart()),
		Currency:   stripe.String(string(stripe.CurrencyEUR)),
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(inv.Causal),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe price: %w", err)
	}

	session, err := s.api.CheckoutSessions.New(&stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price.ID), Quantity: stripe.Int64(1)},
		},
		ClientReferenceID: stripe.String(inv.Cod),
		SuccessURL:        stripe.String(s.baseURL + "/payment/done"),
		CancelURL:         stripe.String(s.baseURL + "/payment/cancelled"),
	})
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}

	if err := s.keys.SetKeyID(ctx, inv.ID, price.ID); err != nil {
		return nil, err
	}
	return &PaymentRequest{RedirectURL: session.URL}, nil
}

// VerifyAndExtractSettlement checks the webhook signature with the SDK and
// fails closed on any mismatch: Stripe retries on our error response.
func (s *Stripe) VerifyAndExtractSettlement(ctx context.Context, r *http.Request) (*Settlement, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("stripe signature: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		return nil, nil
	}

	var received stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &received); err != nil {
		return nil, fmt.Errorf("stripe event payload: %w", err)
	}

	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("line_items")
	session, err := s.api.CheckoutSessions.Get(received.ID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe session fetch: %w", err)
	}
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return nil, nil
	}
	if session.LineItems == nil || len(session.LineItems.Data) == 0 {
		return nil, fmt.Errorf("stripe session %s has no line items", session.ID)
	}

	settlement := &Settlement{Code: session.LineItems.Data[0].Price.ID}
	gross := decimal.NewFromInt(session.AmountTotal).Div(decimal.NewFromInt(100))
	settlement.Gross = &gross
	if session.PaymentIntent != nil {
		settlement.TxnID = &session.PaymentIntent.ID
	}
	return settlement, nil
}
