package adapters

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/promptly/internal/config"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	reconcilerdomain "github.com/smallbiznis/promptly/internal/reconciler/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type webhookOnly struct{}

func (webhookOnly) Verify(context.Context, []byte, http.Header) error { return nil }

func (webhookOnly) Parse(context.Context, []byte) (*reconcilerdomain.Event, error) {
	return nil, paymentdomain.ErrEventIgnored
}

type stubFactory struct {
	name string
	err  error
}

func (f stubFactory) Provider() string { return f.name }

func (f stubFactory) NewAdapter(paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return webhookOnly{}, nil
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry(
		stubFactory{name: " Stripe "},
		stubFactory{name: "paddle", err: errors.New("missing secret")},
		stubFactory{name: ""},
		nil,
	)
	assert.Equal(t, []string{"paddle", "stripe"}, r.Providers())

	set := r.Build(map[string]paymentdomain.AdapterConfig{
		"stripe":  {Provider: "stripe"},
		"paddle":  {Provider: "paddle"},
		"unknown": {Provider: "unknown"},
	}, zap.NewNop())

	adapter, err := set.Adapter("STRIPE")
	require.NoError(t, err)
	assert.NotNil(t, adapter)

	_, err = set.Adapter("paddle")
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
	_, err = set.Adapter("unknown")
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	_, ok := set.Checkout("stripe")
	assert.False(t, ok, "webhook-only adapter has no checkout")
}

func TestNilRegistryAndSet(t *testing.T) {
	var r *Registry
	assert.Nil(t, r.Providers())

	set := r.Build(nil, nil)
	_, err := set.Adapter("stripe")
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	var empty *Set
	_, err = empty.Adapter("stripe")
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
}

func TestConfigsFromCarriesStripeSecrets(t *testing.T) {
	cfgs := ConfigsFrom(configWithStripe("whsec_1", "sk_1"))
	require.Contains(t, cfgs, "stripe")
	assert.Equal(t, "whsec_1", cfgs["stripe"].Config["webhook_secret"])
	assert.Equal(t, "sk_1", cfgs["stripe"].Config["secret_key"])
}

func configWithStripe(webhookSecret, secretKey string) config.Config {
	return config.Config{Stripe: config.StripeConfig{WebhookSecret: webhookSecret, SecretKey: secretKey}}
}
