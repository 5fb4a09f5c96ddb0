package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larpledger/internal/invoice"
)

func TestSumUpBuildPaymentRequest(t *testing.T) {
	var checkoutBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, "cid", r.PostForm.Get("client_id"))
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
		case "/v0.1/checkouts":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&checkoutBody))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "chk-77"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	keys := &stubKeyStore{}
	s := NewSumUp("cid", "secret", "M123", "https://larp.example.org", keys)
	s.api = srv.URL
	s.client = srv.Client()

	out, err := s.BuildPaymentRequest(context.Background(), &invoice.PaymentInvoice{
		ID:     7,
		Cod:    "ab3x9k2m",
		Causal: "Summer Chronicle registration",
	}, decimal.RequireFromString("125.5"))
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/v0.1/checkouts/chk-77", out.RedirectURL)
	assert.Equal(t, "ab3x9k2m", checkoutBody["checkout_reference"])
	assert.Equal(t, "M123", checkoutBody["merchant_code"])
	assert.InDelta(t, 125.5, checkoutBody["amount"], 0.001)

	// The checkout id is the only handle the webhook will carry.
	assert.Equal(t, int64(7), keys.lastID)
	assert.Equal(t, "chk-77", keys.lastKey)
}

func TestSumUpBuildPaymentRequest_TokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	s := NewSumUp("cid", "wrong", "M123", "https://larp.example.org", &stubKeyStore{})
	s.api = srv.URL
	s.client = srv.Client()

	_, err := s.BuildPaymentRequest(context.Background(),
		&invoice.PaymentInvoice{Cod: "ab3x9k2m"}, decimal.NewFromInt(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sumup token")
}

func TestSumUpWebhook(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		settles bool
	}{
		{"successful checkout settles", `{"id":"chk-77","status":"SUCCESSFUL"}`, true},
		{"pending is ignored", `{"id":"chk-77","status":"PENDING"}`, false},
		{"failed is ignored", `{"id":"chk-77","status":"FAILED"}`, false},
		{"missing id is ignored", `{"status":"SUCCESSFUL"}`, false},
		{"malformed body is ignored", `{"id":`, false},
	}

	s := NewSumUp("cid", "secret", "M123", "https://larp.example.org", &stubKeyStore{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/sumup",
				strings.NewReader(tt.body))
			settlement, err := s.VerifyAndExtractSettlement(context.Background(), req)
			require.NoError(t, err)
			if tt.settles {
				require.NotNil(t, settlement)
				assert.Equal(t, "chk-77", settlement.Code)
				assert.Nil(t, settlement.Gross)
			} else {
				assert.Nil(t, settlement)
			}
		})
	}
}

func TestSumUpWebhook_BodyReadError(t *testing.T) {
	s := NewSumUp("cid", "secret", "M123", "https://larp.example.org", &stubKeyStore{})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sumup", errReader{})
	settlement, err := s.VerifyAndExtractSettlement(context.Background(), req)
	assert.Error(t, err)
	assert.Nil(t, settlement)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
