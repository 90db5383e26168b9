package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	reconcilerdomain "github.com/smallbiznis/promptly/internal/reconciler/domain"
	stripego "github.com/stripe/stripe-go/v79"
)

func TestFactoryRequiresWebhookSecret(t *testing.T) {
	factory := NewFactory()
	if _, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{}}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	adapter, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{
		"webhook_secret": "whsec_test",
		"tolerance":      time.Minute,
	}})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if got := adapter.(*Adapter).tolerance; got != time.Minute {
		t.Fatalf("expected tolerance override, got %s", got)
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","object":"event","type":"invoice.payment_succeeded","created":1735689600,"data":{"object":{}}}`)
	now := time.Now().Unix()

	adapter := &Adapter{webhookSecret: secret, tolerance: defaultTolerance}
	headers := http.Header{}
	headers.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, now))
	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	headers.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, now))
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	headers.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, now-int64(time.Hour/time.Second)))
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected stale signature to be rejected, got %v", err)
	}

	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing header to be rejected, got %v", err)
	}
}

func TestParseEvents(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Unix()
	periodEnd := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC).Unix()
	adapter := &Adapter{webhookSecret: "whsec_test", tolerance: defaultTolerance}

	t.Run("checkout.session.completed", func(t *testing.T) {
		event := mustParse(t, adapter, "evt_checkout", "checkout.session.completed", created, map[string]any{
			"id":                  "cs_1",
			"object":              "checkout.session",
			"client_reference_id": "1234",
			"customer":            "cus_1",
			"subscription":        "sub_1",
			"metadata":            map[string]any{"accountId": "1234", "planId": "pro"},
		})
		if event.Checkout == nil {
			t.Fatalf("expected checkout payload")
		}
		if event.Checkout.AccountReference() != "1234" {
			t.Fatalf("unexpected account reference %q", event.Checkout.AccountReference())
		}
		if event.Checkout.CustomerID != "cus_1" || event.Checkout.SubscriptionID != "sub_1" {
			t.Fatalf("unexpected linkage %+v", event.Checkout)
		}
	})

	t.Run("customer.subscription.updated", func(t *testing.T) {
		event := mustParse(t, adapter, "evt_sub", "customer.subscription.updated", created, map[string]any{
			"id":                   "sub_1",
			"object":               "subscription",
			"customer":             "cus_1",
			"status":               "active",
			"current_period_start": created,
			"current_period_end":   periodEnd,
			"cancel_at_period_end": true,
			"metadata":             map[string]any{"planId": "elite"},
			"items": map[string]any{
				"object": "list",
				"data": []any{
					map[string]any{"id": "si_1", "object": "subscription_item", "price": map[string]any{"id": "price_elite", "object": "price"}},
				},
			},
		})
		sub := event.Subscription
		if sub == nil {
			t.Fatalf("expected subscription payload")
		}
		if sub.CustomerID != "cus_1" || sub.Status != "active" {
			t.Fatalf("unexpected subscription %+v", sub)
		}
		if len(sub.PriceIDs) != 1 || sub.PriceIDs[0] != "price_elite" {
			t.Fatalf("unexpected price ids %v", sub.PriceIDs)
		}
		if sub.Metadata[reconcilerdomain.MetadataPlanID] != "elite" {
			t.Fatalf("unexpected metadata %v", sub.Metadata)
		}
		if sub.EndsAt == nil || sub.EndsAt.Unix() != periodEnd {
			t.Fatalf("expected ends_at to fall back to period end, got %v", sub.EndsAt)
		}
		if !sub.CancelAtPeriodEnd {
			t.Fatalf("expected cancel_at_period_end")
		}
	})

	t.Run("invoice.payment_failed", func(t *testing.T) {
		event := mustParse(t, adapter, "evt_inv", "invoice.payment_failed", created, map[string]any{
			"id":           "in_1",
			"object":       "invoice",
			"customer":     "cus_1",
			"subscription": "sub_1",
			"amount_due":   2900,
			"amount_paid":  0,
			"currency":     "usd",
			"created":      created,
		})
		inv := event.Invoice
		if inv == nil {
			t.Fatalf("expected invoice payload")
		}
		if inv.Succeeded || inv.Amount != 2900 || inv.Currency != "USD" {
			t.Fatalf("unexpected invoice %+v", inv)
		}
		if inv.SubscriptionID != "sub_1" {
			t.Fatalf("unexpected subscription id %q", inv.SubscriptionID)
		}
	})

	t.Run("ignored", func(t *testing.T) {
		payload := eventPayload(t, "evt_x", "customer.created", created, map[string]any{"id": "cus_1"})
		if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, paymentdomain.ErrEventIgnored) {
			t.Fatalf("expected ignored, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := adapter.Parse(context.Background(), []byte(`{`)); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
			t.Fatalf("expected invalid payload, got %v", err)
		}
	})
}

type fakeSessions struct {
	params *stripego.CheckoutSessionParams
}

func (f *fakeSessions) New(params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error) {
	f.params = params
	return &stripego.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.test/cs_test"}, nil
}

func TestCreateCheckoutSession(t *testing.T) {
	sessions := &fakeSessions{}
	adapter := &Adapter{webhookSecret: "whsec_test", sessions: sessions}

	session, err := adapter.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{
		AccountID:  42,
		Email:      "user@example.com",
		Plan:       "pro",
		PriceID:    "price_pro",
		SuccessURL: "https://app.test/ok",
		CancelURL:  "https://app.test/cancel",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if session.ID != "cs_test" {
		t.Fatalf("unexpected session %+v", session)
	}
	if got := stripego.StringValue(sessions.params.ClientReferenceID); got != "42" {
		t.Fatalf("expected client reference 42, got %q", got)
	}
	if got := sessions.params.SubscriptionData.Metadata[reconcilerdomain.MetadataPlanID]; got != "pro" {
		t.Fatalf("expected planId metadata, got %q", got)
	}
	if got := stripego.StringValue(sessions.params.CustomerEmail); got != "user@example.com" {
		t.Fatalf("expected customer email, got %q", got)
	}

	if _, err := (&Adapter{}).CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{PriceID: "price_pro"}); !errors.Is(err, paymentdomain.ErrCheckoutUnavailable) {
		t.Fatalf("expected checkout unavailable, got %v", err)
	}
	if _, err := adapter.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{}); !errors.Is(err, paymentdomain.ErrPriceNotConfigured) {
		t.Fatalf("expected missing price, got %v", err)
	}
}

func mustParse(t *testing.T, adapter *Adapter, id, eventType string, created int64, object map[string]any) *reconcilerdomain.Event {
	t.Helper()
	event, err := adapter.Parse(context.Background(), eventPayload(t, id, eventType, created, object))
	if err != nil {
		t.Fatalf("parse %s: %v", eventType, err)
	}
	if event.ID != id || event.Type != eventType || event.Provider != ProviderName {
		t.Fatalf("unexpected envelope %+v", event)
	}
	return event
}

func eventPayload(t *testing.T, id, eventType string, created int64, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": created,
		"data":    map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
