package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"larpledger/internal/invoice"
	"larpledger/internal/logger"
)

const (
	paypalLiveURL    = "https://www.paypal.com/cgi-bin/webscr"
	paypalSandboxURL = "https://www.sandbox.paypal.com/cgi-bin/webscr"
)

// PayPal settles through classic IPN: the payer is sent to a form post, and
// PayPal later pushes a notification that must be echoed back for
// validation before it is trusted.
type PayPal struct {
	business string
	baseURL  string
	endpoint string
	alerts   Alerter
	client   *http.Client
}

func NewPayPal(business string, sandbox bool, baseURL string, alerts Alerter) *PayPal {
	endpoint := paypalLiveURL
	if sandbox {
		endpoint = paypalSandboxURL
	}
	return &PayPal{
		business: business,
		baseURL:  baseURL,
		endpoint: endpoint,
		alerts:   alerts,
		client:   newHTTPClient(),
	}
}

func (p *PayPal) Method() invoice.Method { return invoice.MethodPayPal }

func (p *PayPal) BuildPaymentRequest(ctx context.Context, inv *invoice.PaymentInvoice, amount decimal.Decimal) (*PaymentRequest, error) {
	return &PaymentRequest{
		FormURL: p.endpoint,
		Fields: map[string]string{
			"cmd":           "_xclick",
			"business":      p.business,
			"item_name":     inv.Causal,
			"item_number":   inv.Cod,
			"amount":        amount.StringFixed(2),
			"currency_code": "EUR",
			"no_shipping":   "1",
			"notify_url":    p.baseURL + "/webhooks/paypal",
			"return":        p.baseURL + "/payment/done",
			"cancel_return": p.baseURL + "/payment/cancelled",
		},
	}, nil
}

// VerifyAndExtractSettlement validates the IPN by posting the payload back
// to PayPal with cmd=_notify-validate. Only VERIFIED + Completed settles;
// INVALID notifications are alerted and dropped, never settled.
func (p *PayPal) VerifyAndExtractSettlement(ctx context.Context, r *http.Request) (*Settlement, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("malformed IPN body: %w", err)
	}

	verification := "cmd=_notify-validate&" + string(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		strings.NewReader(verification))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("IPN postback: %w", err)
	}
	defer resp.Body.Close()

	verdict, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(string(verdict)) != "VERIFIED" {
		logger.Error("invalid PayPal IPN", "txn_id", values.Get("txn_id"))
		p.alerts.NotifyAdmins(ctx, "Invalid PayPal IPN",
			fmt.Sprintf("IPN failed validation (txn %q, item %q).",
				values.Get("txn_id"), values.Get("item_number")))
		return nil, nil
	}

	if values.Get("payment_status") != "Completed" {
		return nil, nil
	}

	settlement := &Settlement{Code: values.Get("item_number")}
	if gross, err := decimal.NewFromString(values.Get("mc_gross")); err == nil {
		settlement.Gross = &gross
	}
	if fee, err := decimal.NewFromString(values.Get("mc_fee")); err == nil {
		settlement.Fee = &fee
	}
	if txn := values.Get("txn_id"); txn != "" {
		settlement.TxnID = &txn
	}
	return settlement, nil
}
