package adapters

import (
	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/payment/domain"
)

// ConfigsFrom maps application configuration to per-provider adapter config.
func ConfigsFrom(cfg config.Config) map[string]domain.AdapterConfig {
	return map[string]domain.AdapterConfig{
		"stripe": {
			Provider: "stripe",
			Config: map[string]any{
				"webhook_secret": cfg.Stripe.WebhookSecret,
				"secret_key":     cfg.Stripe.SecretKey,
				"tolerance":      cfg.Stripe.WebhookTolerance,
			},
		},
	}
}
