// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the control plane.
//
// Configuration is loaded from a single file specified by:
//   - SWARMCTL_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration for the control plane binary.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	Registry     RegistryConfig     `yaml:"registry"`
	Identity     IdentityConfig     `yaml:"identity"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Lifecycle    LifecycleConfig    `yaml:"lifecycle"`
	Edge         EdgeConfig         `yaml:"edge"`
	Log          LogConfig          `yaml:"log"`

	// EnvironmentOverrides contains per-environment overrides, applied
	// after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields overridable per environment.
type ConfigOverrides struct {
	Registry     *RegistryConfig     `yaml:"registry,omitempty"`
	Identity     *IdentityConfig     `yaml:"identity,omitempty"`
	Orchestrator *OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Lifecycle    *LifecycleConfig    `yaml:"lifecycle,omitempty"`
	Edge         *EdgeConfig         `yaml:"edge,omitempty"`
	Log          *LogConfig          `yaml:"log,omitempty"`
}

// RegistryConfig configures the durable Registry (C1).
type RegistryConfig struct {
	// DatabasePath is the SQLite database file path. Use ":memory:"
	// only for tests; production deployments must set a real path so
	// state survives a restart.
	DatabasePath string `yaml:"database_path"`

	// PoolSize is the SQLite connection pool size.
	PoolSize int `yaml:"pool_size"`
}

// IdentityConfig configures the Identity Adapter (C2).
type IdentityConfig struct {
	// KeysEndpoint is the external identity service's signing-key
	// endpoint, polled on cache miss and at least every 300s.
	KeysEndpoint string `yaml:"keys_endpoint"`

	// ExpectedIssuer and ExpectedAudience are the issuer/audience
	// values every accepted bearer credential must carry.
	ExpectedIssuer   string `yaml:"expected_issuer"`
	ExpectedAudience string `yaml:"expected_audience"`
}

// OrchestratorConfig configures the Orchestrator Driver (C3).
type OrchestratorConfig struct {
	// APIBaseURL is the orchestrator API's base URL.
	APIBaseURL string `yaml:"api_base_url"`

	// RuntimeClass is the configured microVM handler applied to every
	// scheduled pod.
	RuntimeClass string `yaml:"runtime_class"`

	// PersistentClaimName is the shared persistent volume claim
	// mounted at each pod's state-dir.
	PersistentClaimName string `yaml:"persistent_claim_name"`

	// CallbackBaseURL is the control-core base URL agent pods use to
	// reach the internal heartbeat endpoint.
	CallbackBaseURL string `yaml:"callback_base_url"`
}

// LifecycleConfig configures the Control Core (C4).
type LifecycleConfig struct {
	// MaxAgentsPerOwner defaults to 10 if zero.
	MaxAgentsPerOwner int `yaml:"max_agents_per_owner"`

	// WakeTimeoutSeconds defaults to 60 if zero.
	WakeTimeoutSeconds int `yaml:"wake_timeout_seconds"`

	// IdleTimeoutSeconds defaults to 900 (15m) if zero.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
}

// WakeTimeout returns the configured wake timeout as a Duration.
func (c LifecycleConfig) WakeTimeout() time.Duration {
	return time.Duration(c.WakeTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a Duration.
func (c LifecycleConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// EdgeConfig configures the Edge Proxy (C5).
type EdgeConfig struct {
	// ListenAddress is the public HTTP/JSON + streaming listen address.
	ListenAddress string `yaml:"listen_address"`

	// InternalListenAddress is the separate listener for
	// /internal/heartbeat, reachable only from agent pods, never from
	// the public network.
	InternalListenAddress string `yaml:"internal_listen_address"`

	// MaxConnectionsPerOwner defaults to 10 if zero.
	MaxConnectionsPerOwner int `yaml:"max_connections_per_owner"`

	// HealthVersion is reported verbatim in GET /health's version
	// field. Left empty, the binary substitutes its own build version.
	HealthVersion string `yaml:"health_version"`
}

// LogConfig configures process-wide structured logging.
type LogConfig struct {
	// Format is "json" or "text". Defaults to "json" in production,
	// "text" otherwise.
	Format string `yaml:"format"`

	// Level is "debug", "info", "warn", or "error". Defaults to "info".
	Level string `yaml:"level"`
}

// Default returns the default configuration. These defaults ensure
// every field has a sensible zero-value before the config file is
// merged in; they are not a substitute for the config file, which is
// required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Registry: RegistryConfig{
			DatabasePath: "/var/lib/swarmctl/registry.db",
			PoolSize:     4,
		},
		Identity: IdentityConfig{
			ExpectedAudience: "swarmctl",
		},
		Orchestrator: OrchestratorConfig{
			RuntimeClass: "microvm",
		},
		Lifecycle: LifecycleConfig{
			MaxAgentsPerOwner:  10,
			WakeTimeoutSeconds: 60,
			IdleTimeoutSeconds: 900,
		},
		Edge: EdgeConfig{
			ListenAddress:          ":8443",
			InternalListenAddress:  ":8080",
			MaxConnectionsPerOwner: 10,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load loads configuration from the SWARMCTL_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults — if SWARMCTL_CONFIG is not
// set, this fails, ensuring deterministic, auditable configuration
// with no hidden overrides.
func Load() (*Config, error) {
	path := os.Getenv("SWARMCTL_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("SWARMCTL_CONFIG environment variable not set; " +
			"set it to the path of your swarmctl.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides
// section matching cfg.Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Registry != nil {
		mergeRegistry(&c.Registry, overrides.Registry)
	}
	if overrides.Identity != nil {
		mergeIdentity(&c.Identity, overrides.Identity)
	}
	if overrides.Orchestrator != nil {
		mergeOrchestrator(&c.Orchestrator, overrides.Orchestrator)
	}
	if overrides.Lifecycle != nil {
		mergeLifecycle(&c.Lifecycle, overrides.Lifecycle)
	}
	if overrides.Edge != nil {
		mergeEdge(&c.Edge, overrides.Edge)
	}
	if overrides.Log != nil {
		mergeLog(&c.Log, overrides.Log)
	}
}

func mergeRegistry(base *RegistryConfig, o *RegistryConfig) {
	if o.DatabasePath != "" {
		base.DatabasePath = o.DatabasePath
	}
	if o.PoolSize != 0 {
		base.PoolSize = o.PoolSize
	}
}

func mergeIdentity(base *IdentityConfig, o *IdentityConfig) {
	if o.KeysEndpoint != "" {
		base.KeysEndpoint = o.KeysEndpoint
	}
	if o.ExpectedIssuer != "" {
		base.ExpectedIssuer = o.ExpectedIssuer
	}
	if o.ExpectedAudience != "" {
		base.ExpectedAudience = o.ExpectedAudience
	}
}

func mergeOrchestrator(base *OrchestratorConfig, o *OrchestratorConfig) {
	if o.APIBaseURL != "" {
		base.APIBaseURL = o.APIBaseURL
	}
	if o.RuntimeClass != "" {
		base.RuntimeClass = o.RuntimeClass
	}
	if o.PersistentClaimName != "" {
		base.PersistentClaimName = o.PersistentClaimName
	}
	if o.CallbackBaseURL != "" {
		base.CallbackBaseURL = o.CallbackBaseURL
	}
}

func mergeLifecycle(base *LifecycleConfig, o *LifecycleConfig) {
	if o.MaxAgentsPerOwner != 0 {
		base.MaxAgentsPerOwner = o.MaxAgentsPerOwner
	}
	if o.WakeTimeoutSeconds != 0 {
		base.WakeTimeoutSeconds = o.WakeTimeoutSeconds
	}
	if o.IdleTimeoutSeconds != 0 {
		base.IdleTimeoutSeconds = o.IdleTimeoutSeconds
	}
}

func mergeEdge(base *EdgeConfig, o *EdgeConfig) {
	if o.ListenAddress != "" {
		base.ListenAddress = o.ListenAddress
	}
	if o.InternalListenAddress != "" {
		base.InternalListenAddress = o.InternalListenAddress
	}
	if o.MaxConnectionsPerOwner != 0 {
		base.MaxConnectionsPerOwner = o.MaxConnectionsPerOwner
	}
	if o.HealthVersion != "" {
		base.HealthVersion = o.HealthVersion
	}
}

func mergeLog(base *LogConfig, o *LogConfig) {
	if o.Format != "" {
		base.Format = o.Format
	}
	if o.Level != "" {
		base.Level = o.Level
	}
}

// Validate checks the configuration for missing required fields.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.Registry.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("registry.database_path is required"))
	}
	if c.Identity.KeysEndpoint == "" {
		errs = append(errs, fmt.Errorf("identity.keys_endpoint is required"))
	}
	if c.Identity.ExpectedIssuer == "" {
		errs = append(errs, fmt.Errorf("identity.expected_issuer is required"))
	}
	if c.Orchestrator.APIBaseURL == "" {
		errs = append(errs, fmt.Errorf("orchestrator.api_base_url is required"))
	}
	if c.Orchestrator.CallbackBaseURL == "" {
		errs = append(errs, fmt.Errorf("orchestrator.callback_base_url is required"))
	}
	if c.Edge.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("edge.listen_address is required"))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"json\" or \"text\", got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
