package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// BillingConfig is the tenant-independent billing policy: the default tier
// schedule applied when a tenant has no override, the tax rate, and invoice
// terms. Tenant-specific tier sets live in the pricing domain.
type BillingConfig struct {
	// TaxRateBps is the consumption tax rate in basis points (1000 = 10%).
	TaxRateBps int64 `mapstructure:"taxRateBps"`
	// DueDays is added to the last calendar day of the billing month.
	DueDays int `mapstructure:"dueDays"`
	// InvoiceNumberTemplate feeds the invoice number formatter.
	InvoiceNumberTemplate string `mapstructure:"invoiceNumberTemplate"`
	// DefaultTiers is the fallback schedule for tenants without overrides.
	DefaultTiers []DefaultTier `mapstructure:"defaultTiers"`
}

type DefaultTier struct {
	Name         string `mapstructure:"name"`
	MinUsers     int    `mapstructure:"minUsers"`
	MaxUsers     *int   `mapstructure:"maxUsers"`
	PricePerUser int64  `mapstructure:"pricePerUser"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		TaxRateBps:            1000,
		DueDays:               30,
		InvoiceNumberTemplate: "INV-{YYYY}-{MM}-{SEQ3}",
		DefaultTiers: []DefaultTier{
			{Name: "Starter", MinUsers: 1, MaxUsers: intPtr(10), PricePerUser: 1000},
			{Name: "Team", MinUsers: 11, MaxUsers: intPtr(50), PricePerUser: 800},
			{Name: "Enterprise", MinUsers: 51, MaxUsers: nil, PricePerUser: 600},
		},
	}
}

func intPtr(v int) *int { return &v }

// BillingConfigHolder hot-reloads billing.yml without a restart. Invalid
// configs are ignored and the previous value stays active.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

var BillingModule = fx.Provide(NewBillingConfigHolder)

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/kintai/config") // Volume-mounted config
	v.AddConfigPath("/etc/kintai")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("KINTAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("billing.taxRateBps", defaults.TaxRateBps)
		v.SetDefault("billing.dueDays", defaults.DueDays)
		v.SetDefault("billing.invoiceNumberTemplate", defaults.InvoiceNumberTemplate)
		v.SetDefault("billing.defaultTiers", defaults.DefaultTiers)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	applyBillingDefaults(&cfg, defaults)
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		applyBillingDefaults(&updated, defaults)
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config with no file
// watching. Used by tests and embedded callers.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func applyBillingDefaults(cfg *BillingConfig, defaults BillingConfig) {
	if cfg.TaxRateBps == 0 {
		cfg.TaxRateBps = defaults.TaxRateBps
	}
	if cfg.DueDays == 0 {
		cfg.DueDays = defaults.DueDays
	}
	if cfg.InvoiceNumberTemplate == "" {
		cfg.InvoiceNumberTemplate = defaults.InvoiceNumberTemplate
	}
	if len(cfg.DefaultTiers) == 0 {
		cfg.DefaultTiers = defaults.DefaultTiers
	}
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.TaxRateBps < 0 {
		return errors.New("billing.taxRateBps cannot be negative")
	}
	if cfg.DueDays <= 0 {
		return errors.New("billing.dueDays must be positive")
	}
	if len(cfg.DefaultTiers) == 0 {
		return errors.New("billing.defaultTiers cannot be empty")
	}
	if cfg.DefaultTiers[0].MinUsers != 1 {
		return errors.New("billing.defaultTiers must start at 1 user")
	}
	last := cfg.DefaultTiers[len(cfg.DefaultTiers)-1]
	if last.MaxUsers != nil {
		return errors.New("billing.defaultTiers must end with an unbounded tier")
	}
	return nil
}
