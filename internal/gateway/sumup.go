package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"larpledger/internal/invoice"
	"larpledger/internal/logger"
)

const sumUpAPI = "https://api.sumup.com"

// SumUp creates a hosted checkout over a client-credentials OAuth token.
// Its webhook carries no signature; the SUCCESSFUL status field in the body
// is the only integrity signal the provider offers.
type SumUp struct {
	clientID     string
	clientSecret string
	merchantCode string
	baseURL      string
	api          string
	keys         KeyStore
	client       *http.Client
}

func NewSumUp(clientID, clientSecret, merchantCode, baseURL string, keys KeyStore) *SumUp {
	return &SumUp{
		clientID:     clientID,
		clientSecret: clientSecret,
		merchantCode: merchantCode,
		baseURL:      baseURL,
		api:          sumUpAPI,
		keys:         keys,
		client:       newHTTPClient(),
	}
}

func (s *SumUp) Method() invoice.Method { return invoice.MethodSumUp }

func (s *SumUp) token(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.api+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sumup token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sumup token: status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (s *SumUp) BuildPaymentRequest(ctx context.Context, inv *invoice.PaymentInvoice, amount decimal.Decimal) (*PaymentRequest, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"checkout_reference": inv.Cod,
		"amount":             amount.InexactFloat64(),
		"currency":           "EUR",
		"merchant_code":      s.merchantCode,
		"description":        inv.Causal,
		"return_url":         s.baseURL + "/webhooks/sumup",
		"redirect_url":       s.baseURL + "/payment/done",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.api+"/v0.1/checkouts", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sumup checkout: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("sumup checkout: status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	if err := s.keys.SetKeyID(ctx, inv.ID, out.ID); err != nil {
		return nil, err
	}
	return &PaymentRequest{RedirectURL: s.api + "/v0.1/checkouts/" + out.ID}, nil
}

// VerifyAndExtractSettlement trusts the webhook body's status field: SumUp
// signs nothing, so SUCCESSFUL is all there is to check. Anything else in
// the payload is ignored without settling.
func (s *SumUp) VerifyAndExtractSettlement(ctx context.Context, r *http.Request) (*Settlement, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Error("malformed sumup webhook", "err", err)
		return nil, nil
	}

	if payload.Status != "SUCCESSFUL" || payload.ID == "" {
		return nil, nil
	}
	return &Settlement{Code: payload.ID}, nil
}
