package core

import (
	"fmt"
	"strings"
	"time"
)

type DiscoveryConfig struct {
	OverrideEndpoint string        `koanf:"override_endpoint" mapstructure:"override_endpoint"`
	DemoEndpoint     string        `koanf:"demo_endpoint" mapstructure:"demo_endpoint"`
	CacheTTL         time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	ProbeTimeout     time.Duration `koanf:"probe_timeout" mapstructure:"probe_timeout"`
}

type FlowConfig struct {
	PollInterval    time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	MaxPollAttempts int           `koanf:"max_poll_attempts" mapstructure:"max_poll_attempts"`
	RequestTimeout  time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type RefreshConfig struct {
	Threshold time.Duration `koanf:"threshold" mapstructure:"threshold"`
	LockTTL   time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	ClientID    string          `koanf:"client_id" mapstructure:"client_id"`
	ClientName  string          `koanf:"client_name" mapstructure:"client_name"`
	Discovery   DiscoveryConfig `koanf:"discovery" mapstructure:"discovery"`
	Flow        FlowConfig      `koanf:"flow" mapstructure:"flow"`
	Refresh     RefreshConfig   `koanf:"refresh" mapstructure:"refresh"`
}

const (
	DefaultCacheTTL         = 24 * time.Hour
	DefaultProbeTimeout     = 5 * time.Second
	DefaultPollInterval     = 2 * time.Second
	DefaultMaxPollAttempts  = 150
	DefaultRequestTimeout   = 30 * time.Second
	DefaultRefreshThreshold = 5 * time.Minute
	DefaultRefreshLockTTL   = 30 * time.Second
)

func DefaultConfig() Config {
	return Config{
		ServiceName: "customer-auth",
		ClientID:    "customer-auth-agent",
		ClientName:  "Customer Auth Agent",
		Discovery: DiscoveryConfig{
			CacheTTL:     DefaultCacheTTL,
			ProbeTimeout: DefaultProbeTimeout,
		},
		Flow: FlowConfig{
			PollInterval:    DefaultPollInterval,
			MaxPollAttempts: DefaultMaxPollAttempts,
			RequestTimeout:  DefaultRequestTimeout,
		},
		Refresh: RefreshConfig{
			Threshold: DefaultRefreshThreshold,
			LockTTL:   DefaultRefreshLockTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("core: client_id is required")
	}
	if c.Flow.MaxPollAttempts < 0 {
		return fmt.Errorf("core: flow.max_poll_attempts must be >= 0")
	}
	return nil
}
