package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanCatalog maps plans to their per-cycle credit grant and billing
// provider price ids to plans.
type PlanCatalog struct {
	Grants map[string]int64 `mapstructure:"grants"`
	Prices []PriceMapping   `mapstructure:"prices"`
}

// PriceMapping binds a provider price id to a plan. Kept as a list so that
// case-sensitive price ids survive viper's key folding.
type PriceMapping struct {
	PriceID string `mapstructure:"priceId"`
	Plan    string `mapstructure:"plan"`
}

// PlanForPrice returns the plan bound to a price id.
func (c PlanCatalog) PlanForPrice(priceID string) (string, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return "", false
	}
	for _, m := range c.Prices {
		if m.PriceID == priceID {
			return m.Plan, true
		}
	}
	return "", false
}

// PriceForPlan returns the first price id bound to a plan.
func (c PlanCatalog) PriceForPlan(plan string) (string, bool) {
	for _, m := range c.Prices {
		if strings.EqualFold(m.Plan, plan) && m.PriceID != "" {
			return m.PriceID, true
		}
	}
	return "", false
}

// PlanCatalogHolder serves the current catalog and swaps it atomically on
// file changes.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewStaticPlanCatalogHolder returns a holder that never reloads.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

// NewPlanCatalogHolder reads plans.yml from the usual config paths, falling
// back to defaults when no file exists, and watches the file for changes.
func NewPlanCatalogHolder(cfg Config, defaults PlanCatalog, log *zap.Logger) (*PlanCatalogHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.plans")

	if cfg.Stripe.PriceIDPro != "" {
		defaults.Prices = append(defaults.Prices, PriceMapping{PriceID: cfg.Stripe.PriceIDPro, Plan: "pro"})
	}
	if cfg.Stripe.PriceIDElite != "" {
		defaults.Prices = append(defaults.Prices, PriceMapping{PriceID: cfg.Stripe.PriceIDElite, Plan: "elite"})
	}

	v := viper.New()
	if cfg.PlansFile != "" {
		v.SetConfigFile(cfg.PlansFile)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/promptly/config")
		v.AddConfigPath("/etc/promptly")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PROMPTLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
	}

	holder := &PlanCatalogHolder{}
	if !fromFile {
		holder.current.Store(defaults)
		return holder, nil
	}

	catalog, err := readCatalog(v, defaults)
	if err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readCatalog(v, defaults)
		if err != nil {
			log.Warn("plan catalog reload ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func readCatalog(v *viper.Viper, defaults PlanCatalog) (PlanCatalog, error) {
	var cfg PlanCatalog
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return PlanCatalog{}, err
	}

	merged := PlanCatalog{Grants: make(map[string]int64, len(defaults.Grants))}
	for plan, amount := range defaults.Grants {
		merged.Grants[plan] = amount
	}
	for plan, amount := range cfg.Grants {
		merged.Grants[strings.ToLower(strings.TrimSpace(plan))] = amount
	}
	merged.Prices = append(merged.Prices, cfg.Prices...)
	merged.Prices = append(merged.Prices, defaults.Prices...)

	if err := validatePlanCatalog(merged); err != nil {
		return PlanCatalog{}, err
	}
	return merged, nil
}

func validatePlanCatalog(cfg PlanCatalog) error {
	if len(cfg.Grants) == 0 {
		return errors.New("plans.grants cannot be empty")
	}
	for plan, amount := range cfg.Grants {
		if amount < 0 {
			return fmt.Errorf("plans.grants.%s must not be negative", plan)
		}
	}
	for i, m := range cfg.Prices {
		if strings.TrimSpace(m.PriceID) == "" || strings.TrimSpace(m.Plan) == "" {
			return fmt.Errorf("plans.prices[%d] requires priceId and plan", i)
		}
		if _, ok := cfg.Grants[strings.ToLower(m.Plan)]; !ok {
			return fmt.Errorf("plans.prices[%d] references unknown plan %q", i, m.Plan)
		}
	}
	return nil
}
