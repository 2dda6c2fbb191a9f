package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CommissionPolicyHolder serves the current commission policy. Values
// start from the environment-derived defaults and can be overridden by
// a commission.yml file, which is watched and reloaded without a
// restart so operators can tune rates while orders keep flowing.
type CommissionPolicyHolder struct {
	current atomic.Value // holds CommissionConfig
}

func NewCommissionPolicyHolder(cfg Config, log *zap.Logger) (*CommissionPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("commission")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/affina/config") // Volume-mounted config
	v.AddConfigPath("/etc/affina")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("AFFINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := cfg.Commission
	v.SetDefault("commission.mlmEnabled", defaults.MLMEnabled)
	v.SetDefault("commission.maxCascadeDepth", defaults.MaxCascadeDepth)
	v.SetDefault("commission.defaultRate", defaults.DefaultRate)
	v.SetDefault("commission.lifetimeAttribution", defaults.LifetimeAttribution)
	v.SetDefault("commission.debitRatePerSecond", defaults.DebitRatePerSecond)
	v.SetDefault("commission.debitBurst", defaults.DebitBurst)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy CommissionConfig
	if err := v.UnmarshalKey("commission", &policy); err != nil {
		return nil, err
	}
	if err := validateCommissionPolicy(policy); err != nil {
		return nil, err
	}

	holder := &CommissionPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CommissionConfig
		if err := v.UnmarshalKey("commission", &updated); err != nil {
			log.Warn("commission policy reload failed", zap.Error(err))
			return
		}
		if err := validateCommissionPolicy(updated); err != nil {
			log.Warn("invalid commission policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("commission policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// Get returns the policy snapshot in effect right now.
func (h *CommissionPolicyHolder) Get() CommissionConfig {
	return h.current.Load().(CommissionConfig)
}

func validateCommissionPolicy(policy CommissionConfig) error {
	if policy.MaxCascadeDepth < 0 {
		return errors.New("commission.maxCascadeDepth cannot be negative")
	}
	if policy.DefaultRate < 0 || policy.DefaultRate > 100 {
		return errors.New("commission.defaultRate must be between 0 and 100")
	}
	return nil
}
