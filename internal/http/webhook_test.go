package handlers_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repos/repotest"
	"storefront/internal/services"
)

func checkoutRequest(cartID, ref string) services.CheckoutRequest {
	return services.CheckoutRequest{CartID: cartID, Shipping: repotest.Shipping("standard"), PaymentRef: ref, Email: "ann@example.com"}
}

func eventBody(id, typ, sessionID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":{"id":%q,"object":"checkout.session"}}}`,
		id, typ, sessionID))
}

func deliver(t *testing.T, s *testServer, body []byte, secret string) (*http.Response, map[string]any) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: body, Secret: secret})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func paid(s *testServer, id, cartID string) {
	ship := repotest.Shipping("standard")
	ship.Cost = 700
	s.gw.Put(payment.Session{
		ID: id, PaymentStatus: payment.StatusPaid,
		Metadata:       payment.CheckoutMetadata{CartID: cartID, Email: "ann@example.com", Shipping: ship}.Encode(),
		AmountSubtotal: 900, AmountTotal: 1600,
	})
}

func TestWebhookCreatesOrderOnce(t *testing.T) {
	s := newServer(t)
	cartID := newCart(t, s.app, map[string]any{"productId": "mug", "quantity": 1})
	paid(s, "cs_test_1", cartID)

	body := eventBody("evt_1", payment.EventSessionCompleted, "cs_test_1")
	resp, out := deliver(t, s, body, webhookSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "ORD-000001", out["order"])

	// providers redeliver; so does the async-success event for the same session
	resp, out = deliver(t, s, body, webhookSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ORD-000001", out["order"])
	resp, out = deliver(t, s, eventBody("evt_2", payment.EventAsyncPaymentSucceeded, "cs_test_1"), webhookSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ORD-000001", out["order"])

	assert.Equal(t, 1, repotest.Count(t, s.db, `SELECT COUNT(*) FROM orders`))
	n, _ := repotest.ProductStock(t, s.db, "mug").Quantity()
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.gw.Lookups())

	o, err := s.deps.Checkout.Orders.ByPaymentRef(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1600), o.Total)
	assert.Equal(t, domain.StatusPending, o.Status)
}

func TestWebhookRejectionsAreFinal(t *testing.T) {
	s := newServer(t)
	cartID := newCart(t, s.app, map[string]any{"productId": "mug", "quantity": 1})
	s.gw.Put(payment.Session{ID: "cs_unpaid", PaymentStatus: "unpaid",
		Metadata: map[string]string{"cart_id": cartID, "email": "ann@example.com"}})
	s.gw.Put(payment.Session{ID: "cs_nometa", PaymentStatus: payment.StatusPaid})
	paid(s, "cs_orphan", "cart-that-never-was")

	for _, ref := range []string{"cs_unpaid", "cs_nometa", "cs_orphan"} {
		resp, out := deliver(t, s, eventBody("evt_"+ref, payment.EventSessionCompleted, ref), webhookSecret)
		assert.Equal(t, http.StatusOK, resp.StatusCode, ref)
		assert.Equal(t, "rejected", out["status"], ref)
	}
	assert.Zero(t, repotest.Count(t, s.db, `SELECT COUNT(*) FROM orders`))
}

func TestWebhookRetryableFailureAnswers500(t *testing.T) {
	s := newServer(t)
	cartID := newCart(t, s.app, map[string]any{"productId": "mug", "quantity": 5})
	paid(s, "cs_short", cartID)

	var resp *http.Response
	entries := captureLogs(t, func() {
		resp, _ = deliver(t, s, eventBody("evt_1", payment.EventSessionCompleted, "cs_short"), webhookSecret)
	})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	e, ok := findLog(entries, "webhook.fail")
	require.True(t, ok)
	assert.Equal(t, true, e.Fields["retryable"])
}

func TestWebhookSignatureAndConfig(t *testing.T) {
	s := newServer(t)

	var resp *http.Response
	entries := captureLogs(t, func() {
		resp, _ = deliver(t, s, eventBody("evt_1", payment.EventSessionCompleted, "cs_x"), "whsec_wrong")
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e, ok := findLog(entries, "webhook.signature.fail")
	require.True(t, ok)
	assert.Equal(t, "security", e.Kind)

	resp, out := deliver(t, s, eventBody("evt_2", "invoice.paid", "cs_x"), webhookSecret)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ignored", out["status"])
	assert.Zero(t, s.gw.Lookups())

	s.deps.WebhookHandler.Secret = ""
	resp, _ = deliver(t, s, eventBody("evt_3", payment.EventSessionCompleted, "cs_x"), webhookSecret)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
