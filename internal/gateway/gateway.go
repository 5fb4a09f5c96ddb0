package gateway

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"larpledger/internal/invoice"
)

// Settlement is the normalized outcome of a verified gateway callback,
// ready to hand to the canonical settlement entry point. Code is either the
// invoice code or the provider correlation id stored at request time.
type Settlement struct {
	Code  string
	Gross *decimal.Decimal
	Fee   *decimal.Decimal
	TxnID *string
}

// PaymentRequest is what the payer's browser needs next: either a hosted
// checkout redirect, or a self-submitting form post.
type PaymentRequest struct {
	RedirectURL string            `json:"redirect_url,omitempty"`
	FormURL     string            `json:"form_url,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Provider is implemented once per payment gateway. BuildPaymentRequest
// prepares the outbound payment and stores the provider correlation id on
// the invoice; VerifyAndExtractSettlement validates an inbound callback.
// A (nil, nil) return means "valid delivery, nothing to settle": pending
// states, unrelated event types, or callbacks the provider policy discards.
type Provider interface {
	Method() invoice.Method
	BuildPaymentRequest(ctx context.Context, inv *invoice.PaymentInvoice, amount decimal.Decimal) (*PaymentRequest, error)
	VerifyAndExtractSettlement(ctx context.Context, r *http.Request) (*Settlement, error)
}

// KeyStore persists the provider correlation id onto the invoice.
type KeyStore interface {
	SetKeyID(ctx context.Context, invoiceID int64, keyID string) error
}

// Alerter surfaces suspicious callbacks to the organizers.
type Alerter interface {
	NotifyAdmins(ctx context.Context, subject, body string)
}

// Gateway calls never ride on the default client: a hung provider must not
// hold a webhook handler open, and a timed-out call leaves the invoice
// CREATED for retry.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// Registry resolves the provider for an invoice's payment method.
type Registry struct {
	providers map[invoice.Method]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[invoice.Method]Provider, len(providers))
	for _, p := range providers {
		m[p.Method()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(method invoice.Method) (Provider, bool) {
	p, ok := r.providers[method]
	return p, ok
}

// Methods lists the configured providers in a stable order.
func (r *Registry) Methods() []invoice.Method {
	out := make([]invoice.Method, 0, len(r.providers))
	for m := range r.providers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
