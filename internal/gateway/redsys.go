package gateway

import (
	"context"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"larpledger/internal/invoice"
	"larpledger/internal/logger"
)

const (
	redsysLiveURL = "https://sis.redsys.es/sis/realizarPago"
	redsysTestURL = "https://sis-t.redsys.es:25443/sis/realizarPago"

	redsysSignatureVersion = "HMAC_SHA256_V1"
)

// Redsys uses a custom scheme: the merchant key 3DES-encrypts the order
// number to derive a per-order HMAC key, which signs the base64 JSON
// parameter blob. Field widths are fixed by the protocol and truncated
// accordingly.
type Redsys struct {
	merchantCode string
	terminal     string
	secretKey    string
	sandbox      bool
	// enforceSignature blocks settlement on a bad signature. Historically
	// mismatches were alerted but still settled on the decoded order id;
	// the toggle makes that policy an explicit deployment decision.
	enforceSignature bool
	baseURL          string
	alerts           Alerter
	keys             KeyStore
}

func NewRedsys(merchantCode, terminal, secretKey string, sandbox, enforceSignature bool, baseURL string, alerts Alerter, keys KeyStore) *Redsys {
	return &Redsys{
		merchantCode:     merchantCode,
		terminal:         terminal,
		secretKey:        secretKey,
		sandbox:          sandbox,
		enforceSignature: enforceSignature,
		baseURL:          baseURL,
		alerts:           alerts,
		keys:             keys,
	}
}

func (r *Redsys) Method() invoice.Method { return invoice.MethodRedsys }

func (r *Redsys) endpoint() string {
	if r.sandbox {
		return redsysTestURL
	}
	return redsysLiveURL
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// redsysOrder is the 10-character zero-padded order id derived from the
// invoice. The first 4 characters must be numeric per protocol.
func redsysOrder(invoiceID int64) string {
	return fmt.Sprintf("%010d", invoiceID%10000000000)
}

// orderKey derives the per-order signing key: 3DES-CBC of the order id
// under the decoded merchant key, zero IV, zero padding.
func (r *Redsys) orderKey(order string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(r.secretKey)
	if err != nil {
		return nil, fmt.Errorf("redsys merchant key: %w", err)
	}
	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, (len(order)+7)/8*8)
	copy(plain, order)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, make([]byte, des.BlockSize)).CryptBlocks(out, plain)
	return out, nil
}

func (r *Redsys) sign(paramsB64, order string) (string, error) {
	key, err := r.orderKey(order)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(paramsB64))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (r *Redsys) BuildPaymentRequest(ctx context.Context, inv *invoice.PaymentInvoice, amount decimal.Decimal) (*PaymentRequest, error) {
	order := redsysOrder(inv.ID)

	params := map[string]string{
		"DS_MERCHANT_AMOUNT":             strconv.FormatInt(amount.Mul(decimal.NewFromInt(100)).IntPart(), 10),
		"DS_MERCHANT_ORDER":              order,
		"DS_MERCHANT_MERCHANTCODE":       truncate(r.merchantCode, 9),
		"DS_MERCHANT_CURRENCY":           "978",
		"DS_MERCHANT_TRANSACTIONTYPE":    "0",
		"DS_MERCHANT_TERMINAL":           r.terminal,
		"DS_MERCHANT_MERCHANTURL":        truncate(r.baseURL+"/webhooks/redsys", 250),
		"DS_MERCHANT_URLOK":              truncate(r.baseURL+"/payment/done", 250),
		"DS_MERCHANT_URLKO":              truncate(r.baseURL+"/payment/cancelled", 250),
		"DS_MERCHANT_PRODUCTDESCRIPTION": truncate(inv.Causal, 125),
	}
	blob, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	paramsB64 := base64.StdEncoding.EncodeToString(blob)

	signature, err := r.sign(paramsB64, order)
	if err != nil {
		return nil, err
	}

	if err := r.keys.SetKeyID(ctx, inv.ID, order); err != nil {
		return nil, err
	}
	return &PaymentRequest{
		FormURL: r.endpoint(),
		Fields: map[string]string{
			"Ds_SignatureVersion":   redsysSignatureVersion,
			"Ds_MerchantParameters": paramsB64,
			"Ds_Signature":          signature,
		},
	}, nil
}

// VerifyAndExtractSettlement decodes the notification, re-derives the
// expected signature the same way the request was signed, and compares.
// A mismatch always alerts; whether it blocks settlement depends on the
// enforce toggle (see NewRedsys).
func (r *Redsys) VerifyAndExtractSettlement(ctx context.Context, req *http.Request) (*Settlement, error) {
	if err := req.ParseForm(); err != nil {
		return nil, err
	}
	// The server notification posts a form body; the browser return leg
	// carries the same parameters in the query string. Form covers both.
	paramsB64 := req.FormValue("Ds_MerchantParameters")
	gotSignature := req.FormValue("Ds_Signature")
	if paramsB64 == "" {
		return nil, fmt.Errorf("redsys notification without parameters")
	}

	blob, err := base64.StdEncoding.DecodeString(paramsB64)
	if err != nil {
		blob, err = base64.URLEncoding.DecodeString(paramsB64)
		if err != nil {
			return nil, fmt.Errorf("redsys parameters: %w", err)
		}
	}

	var params struct {
		Order    string `json:"Ds_Order"`
		Amount   string `json:"Ds_Amount"`
		Response string `json:"Ds_Response"`
		AuthCode string `json:"Ds_AuthorisationCode"`
	}
	if err := json.Unmarshal(blob, &params); err != nil {
		return nil, fmt.Errorf("redsys parameters: %w", err)
	}

	expected, err := r.sign(paramsB64, params.Order)
	if err != nil {
		return nil, err
	}
	if !signatureMatches(expected, gotSignature) {
		logger.Error("redsys signature mismatch", "order", params.Order)
		r.alerts.NotifyAdmins(ctx, "Redsys signature mismatch",
			fmt.Sprintf("Notification for order %s carried a bad signature.", params.Order))
		if r.enforceSignature {
			return nil, fmt.Errorf("redsys signature mismatch for order %s", params.Order)
		}
	}

	code, err := strconv.Atoi(params.Response)
	if err != nil || code < 0 || code > 99 {
		return nil, nil
	}

	settlement := &Settlement{Code: params.Order}
	if cents, err := strconv.ParseInt(params.Amount, 10, 64); err == nil {
		gross := decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
		settlement.Gross = &gross
	}
	if params.AuthCode != "" {
		settlement.TxnID = &params.AuthCode
	}
	return settlement, nil
}

// signatureMatches compares allowing for the URL-safe alphabet the
// notification leg uses.
func signatureMatches(expected, got string) bool {
	if hmac.Equal([]byte(expected), []byte(got)) {
		return true
	}
	decodedGot, err := base64.URLEncoding.DecodeString(got)
	if err != nil {
		return false
	}
	decodedExpected, err := base64.StdEncoding.DecodeString(expected)
	if err != nil {
		return false
	}
	return hmac.Equal(decodedExpected, decodedGot)
}
