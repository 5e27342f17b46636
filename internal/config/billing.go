package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig holds operator-tunable billing behavior. It is loaded from
// billing.yml and hot-reloaded on change so dunning parameters can be
// adjusted without a restart.
type BillingConfig struct {
	// GracePeriodDays is how long a subscription may stay past_due before it expires.
	GracePeriodDays int    `mapstructure:"gracePeriodDays"`
	DefaultCurrency string `mapstructure:"defaultCurrency"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		GracePeriodDays: 14,
		DefaultCurrency: "USD",
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/licensia/config") // Volume-mounted config
	v.AddConfigPath("/etc/licensia")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("LICENSIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.gracePeriodDays", defaults.GracePeriodDays)
		v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
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
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

// NewStaticBillingConfigHolder returns a holder with a fixed config, for tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.GracePeriodDays < 0 {
		return errors.New("billing.gracePeriodDays cannot be negative")
	}
	if len(strings.TrimSpace(cfg.DefaultCurrency)) != 3 {
		return errors.New("billing.defaultCurrency must be a 3-letter code")
	}
	return nil
}
