package gateway

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"larpledger/internal/invoice"
)

const stripeTestWebhookSecret = "whsec_test_secret"

func stripeEventRequest(t *testing.T, payload, secret string) *http.Request {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), secret)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe",
		strings.NewReader(payload))
	req.Header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return req
}

func TestStripeWebhook_BadSignatureErrors(t *testing.T) {
	s := NewStripe("sk_test_x", stripeTestWebhookSecret, "https://larp.example.org", &stubKeyStore{})

	payload := `{"type":"checkout.session.completed","data":{"object":{}}}`
	req := stripeEventRequest(t, payload, "whsec_wrong_secret")

	settlement, err := s.VerifyAndExtractSettlement(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe signature")
	assert.Nil(t, settlement)
}

func TestStripeWebhook_MissingSignatureErrors(t *testing.T) {
	s := NewStripe("sk_test_x", stripeTestWebhookSecret, "https://larp.example.org", &stubKeyStore{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe",
		strings.NewReader(`{"type":"checkout.session.completed"}`))

	settlement, err := s.VerifyAndExtractSettlement(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, settlement)
}

func TestStripeWebhook_UnrelatedEventIsIgnored(t *testing.T) {
	s := NewStripe("sk_test_x", stripeTestWebhookSecret, "https://larp.example.org", &stubKeyStore{})

	// ConstructEvent also checks the event's API version against the SDK's.
	payload := fmt.Sprintf(`{"api_version":%q,"type":"payment_intent.created","data":{"object":{}}}`,
		stripe.APIVersion)
	req := stripeEventRequest(t, payload, stripeTestWebhookSecret)

	settlement, err := s.VerifyAndExtractSettlement(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, settlement)
}

func TestStripeMethod(t *testing.T) {
	s := NewStripe("sk_test_x", stripeTestWebhookSecret, "https://larp.example.org", &stubKeyStore{})
	assert.Equal(t, invoice.MethodStripe, s.Method())
}
