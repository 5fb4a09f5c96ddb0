package gateway

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"larpledger/internal/invoice"
	"larpledger/internal/logger"
)

const (
	satispayLiveHost    = "authservices.satispay.com"
	satispaySandboxHost = "staging.authservices.satispay.com"
)

// Satispay signs every outbound request with the merchant's RSA key. The
// webhook body is never trusted: it only names a payment id, which is
// re-verified synchronously against the provider before settling.
type Satispay struct {
	keyID   string
	key     *rsa.PrivateKey
	sandbox bool
	baseURL string
	keys    KeyStore
	client  *http.Client
}

func NewSatispay(keyID, privateKeyPEM string, sandbox bool, baseURL string, keys KeyStore) (*Satispay, error) {
	key, err := parseRSAKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("satispay private key: %w", err)
	}
	return &Satispay{
		keyID:   keyID,
		key:     key,
		sandbox: sandbox,
		baseURL: baseURL,
		keys:    keys,
		client:  newHTTPClient(),
	}, nil
}

func parseRSAKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return key, nil
}

func (s *Satispay) Method() invoice.Method { return invoice.MethodSatispay }

func (s *Satispay) host() string {
	if s.sandbox {
		return satispaySandboxHost
	}
	return satispayLiveHost
}

// signedRequest builds a request carrying Digest and Signature headers over
// (request-target), host, date and digest, as the provider requires.
func (s *Satispay) signedRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method,
		"https://"+s.host()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(body)
	digestHeader := "SHA-256=" + base64.StdEncoding.EncodeToString(digest[:])
	date := time.Now().UTC().Format(http.TimeFormat)

	signingString := fmt.Sprintf("(request-target): %s %s\nhost: %s\ndate: %s\ndigest: %s",
		strings.ToLower(method), path, s.host(), date, digestHeader)
	hashed := sha256.Sum256([]byte(signingString))
	signature, err := rsa.SignPKCS1v15(nil, s.key, crypto.SHA256, hashed[:])
	if err != nil {
		return nil, err
	}

	req.Header.Set("Host", s.host())
	req.Header.Set("Date", date)
	req.Header.Set("Digest", digestHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf(
		`Signature keyId="%s", algorithm="rsa-sha256", headers="(request-target) host date digest", signature="%s"`,
		s.keyID, base64.StdEncoding.EncodeToString(signature)))
	return req, nil
}

func (s *Satispay) BuildPaymentRequest(ctx context.Context, inv *invoice.PaymentInvoice, amount decimal.Decimal) (*PaymentRequest, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"flow":          "MATCH_CODE",
		"amount_unit":   amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"currency":      "EUR",
		"external_code": inv.Cod,
		"callback_url":  s.baseURL + "/webhooks/satispay?payment_id={uuid}",
	})
	if err != nil {
		return nil, err
	}

	req, err := s.signedRequest(ctx, http.MethodPost, "/g_business/v1/payments", payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("satispay create payment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("satispay create payment: status %d", resp.StatusCode)
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
	return &PaymentRequest{
		RedirectURL: "https://online.satispay.com/pay/" + out.ID,
	}, nil
}

// VerifyAndExtractSettlement never trusts the callback: the payment id it
// names is fetched back from Satispay and only ACCEPTED settles. Provider
// errors are swallowed; the invoice simply stays pending for the next
// callback.
func (s *Satispay) VerifyAndExtractSettlement(ctx context.Context, r *http.Request) (*Settlement, error) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		return nil, nil
	}

	req, err := s.signedRequest(ctx, http.MethodGet, "/g_business/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error("satispay payment lookup failed", "payment_id", paymentID, "err", err)
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Error("satispay payment lookup rejected",
			"payment_id", paymentID, "status", resp.StatusCode)
		return nil, nil
	}

	var payment struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		AmountUnit int64  `json:"amount_unit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, err
	}

	if payment.Status != "ACCEPTED" {
		return nil, nil
	}

	settlement := &Settlement{Code: payment.ID}
	gross := decimal.NewFromInt(payment.AmountUnit).Div(decimal.NewFromInt(100))
	settlement.Gross = &gross
	return settlement, nil
}
