package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"recon-dashboard/pkg/logger"
)

// MatchingConfig tunes reconciliation without a redeploy
type MatchingConfig struct {
	AmountTolerance decimal.Decimal
	DefaultLimit    int
	MaxLimit        int
	AdminLockTTL    time.Duration
}

func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		AmountTolerance: decimal.NewFromInt(1),
		DefaultLimit:    50,
		MaxLimit:        500,
		AdminLockTTL:    60 * time.Second,
	}
}

// MatchingConfigHolder serves the latest valid matching config
type MatchingConfigHolder struct {
	current atomic.Value // holds MatchingConfig
}

func (h *MatchingConfigHolder) Get() MatchingConfig {
	return h.current.Load().(MatchingConfig)
}

// NewStaticMatchingConfig holds the given config and never reloads it
func NewStaticMatchingConfig(cfg MatchingConfig) *MatchingConfigHolder {
	h := &MatchingConfigHolder{}
	h.current.Store(cfg)
	return h
}

// LoadMatchingConfig reads reconciliation.yml from the usual paths, with
// RECON_* environment overrides. A missing file yields the defaults. Later
// edits to the file are picked up as long as they validate.
func LoadMatchingConfig(paths ...string) (*MatchingConfigHolder, error) {
	v := viper.New()
	v.SetConfigName("reconciliation")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("/etc/recon-dashboard")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMatchingConfig()
	v.SetDefault("matching.amount_tolerance", defaults.AmountTolerance.String())
	v.SetDefault("matching.default_limit", defaults.DefaultLimit)
	v.SetDefault("matching.max_limit", defaults.MaxLimit)
	v.SetDefault("matching.admin_lock_ttl", defaults.AdminLockTTL.String())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeMatching(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticMatchingConfig(cfg)
	if fileFound {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeMatching(v)
			if err != nil {
				logger.GetLogger().WithError(err).WithField("file", e.Name).Warn("Invalid matching config ignored")
				return
			}
			holder.current.Store(updated)
			logger.GetLogger().WithField("file", e.Name).Info("Matching config reloaded")
		})
		v.WatchConfig()
	}
	return holder, nil
}

func decodeMatching(v *viper.Viper) (MatchingConfig, error) {
	tolerance, err := decimal.NewFromString(v.GetString("matching.amount_tolerance"))
	if err != nil {
		return MatchingConfig{}, errors.New("matching.amount_tolerance must be a number")
	}
	cfg := MatchingConfig{
		AmountTolerance: tolerance,
		DefaultLimit:    v.GetInt("matching.default_limit"),
		MaxLimit:        v.GetInt("matching.max_limit"),
		AdminLockTTL:    v.GetDuration("matching.admin_lock_ttl"),
	}
	if err := validateMatching(cfg); err != nil {
		return MatchingConfig{}, err
	}
	return cfg, nil
}

func validateMatching(cfg MatchingConfig) error {
	if !cfg.AmountTolerance.IsPositive() {
		return errors.New("matching.amount_tolerance must be positive")
	}
	if cfg.DefaultLimit <= 0 {
		return errors.New("matching.default_limit must be positive")
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		return errors.New("matching.max_limit must be at least matching.default_limit")
	}
	if cfg.AdminLockTTL <= 0 {
		return errors.New("matching.admin_lock_ttl must be positive")
	}
	return nil
}
