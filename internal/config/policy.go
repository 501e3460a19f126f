package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy holds business rules that operators may tune without a redeploy.
type Policy struct {
	Notification  NotificationPolicy  `mapstructure:"notification"`
	Accreditation AccreditationPolicy `mapstructure:"accreditation"`
	Inventory     InventoryPolicy     `mapstructure:"inventory"`
	Order         OrderPolicy         `mapstructure:"order"`
}

type NotificationPolicy struct {
	MaxAttempts    int           `mapstructure:"maxAttempts"`
	RetryBackoff   time.Duration `mapstructure:"retryBackoff"`
	DefaultChannel string        `mapstructure:"defaultChannel"`
}

type AccreditationPolicy struct {
	ReapplyCooldown time.Duration `mapstructure:"reapplyCooldown"`
}

type InventoryPolicy struct {
	DefaultMinStock int `mapstructure:"defaultMinStock"`
}

type OrderPolicy struct {
	DefaultPaymentMethod string `mapstructure:"defaultPaymentMethod"`
}

func DefaultPolicy() Policy {
	return Policy{
		Notification: NotificationPolicy{
			MaxAttempts:    3,
			RetryBackoff:   5 * time.Minute,
			DefaultChannel: "email",
		},
		Accreditation: AccreditationPolicy{
			ReapplyCooldown: 15 * 24 * time.Hour,
		},
		Inventory: InventoryPolicy{
			DefaultMinStock: 5,
		},
		Order: OrderPolicy{
			DefaultPaymentMethod: "cash",
		},
	}
}

// PolicyHolder serves the current policy and swaps it when the file changes.
type PolicyHolder struct {
	current atomic.Value
}

// NewPolicyHolder returns a holder that always serves p.
func NewPolicyHolder(p Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.current.Store(p)
	return h
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	return h.current.Load().(Policy)
}

// LoadPolicy reads bistro.yml from the usual locations, falling back to defaults.
func LoadPolicy(log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("bistro")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/bistro")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BISTRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.notification.maxAttempts", defaults.Notification.MaxAttempts)
	v.SetDefault("policy.notification.retryBackoff", defaults.Notification.RetryBackoff)
	v.SetDefault("policy.notification.defaultChannel", defaults.Notification.DefaultChannel)
	v.SetDefault("policy.accreditation.reapplyCooldown", defaults.Accreditation.ReapplyCooldown)
	v.SetDefault("policy.inventory.defaultMinStock", defaults.Inventory.DefaultMinStock)
	v.SetDefault("policy.order.defaultPaymentMethod", defaults.Order.DefaultPaymentMethod)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg Policy
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := NewPolicyHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func validatePolicy(p Policy) error {
	var errs []error
	if p.Notification.MaxAttempts <= 0 {
		errs = append(errs, errors.New("policy.notification.maxAttempts must be positive"))
	}
	if p.Notification.RetryBackoff <= 0 {
		errs = append(errs, errors.New("policy.notification.retryBackoff must be positive"))
	}
	if strings.TrimSpace(p.Notification.DefaultChannel) == "" {
		errs = append(errs, errors.New("policy.notification.defaultChannel cannot be empty"))
	}
	if p.Accreditation.ReapplyCooldown < 0 {
		errs = append(errs, errors.New("policy.accreditation.reapplyCooldown cannot be negative"))
	}
	if p.Inventory.DefaultMinStock < 0 {
		errs = append(errs, errors.New("policy.inventory.defaultMinStock cannot be negative"))
	}
	switch p.Order.DefaultPaymentMethod {
	case "cash", "card", "transfer":
	default:
		errs = append(errs, errors.New("policy.order.defaultPaymentMethod must be cash, card or transfer"))
	}
	return errors.Join(errs...)
}
