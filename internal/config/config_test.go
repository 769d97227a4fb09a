// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Lifecycle.MaxAgentsPerOwner != 10 {
		t.Errorf("expected max_agents_per_owner=10, got %d", cfg.Lifecycle.MaxAgentsPerOwner)
	}
	if cfg.Edge.MaxConnectionsPerOwner != 10 {
		t.Errorf("expected max_connections_per_owner=10, got %d", cfg.Edge.MaxConnectionsPerOwner)
	}
	if cfg.Lifecycle.WakeTimeout().Seconds() != 60 {
		t.Errorf("expected wake_timeout=60s, got %s", cfg.Lifecycle.WakeTimeout())
	}
}

func TestLoad_RequiresSwarmctlConfig(t *testing.T) {
	orig := os.Getenv("SWARMCTL_CONFIG")
	defer os.Setenv("SWARMCTL_CONFIG", orig)
	os.Unsetenv("SWARMCTL_CONFIG")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when SWARMCTL_CONFIG not set, got nil")
	}
}

func validConfigYAML() string {
	return `
environment: development
registry:
  database_path: /var/lib/swarmctl/registry.db
identity:
  keys_endpoint: https://identity.internal/v1/keys
  expected_issuer: https://identity.internal
orchestrator:
  api_base_url: https://orchestrator.internal
  callback_base_url: https://control.internal
edge:
  listen_address: ":8443"
`
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "swarmctl.yaml")
	if err := os.WriteFile(path, []byte(validConfigYAML()), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Registry.DatabasePath != "/var/lib/swarmctl/registry.db" {
		t.Errorf("database_path = %q", cfg.Registry.DatabasePath)
	}
	if cfg.Identity.ExpectedAudience != "swarmctl" {
		t.Errorf("expected default audience to survive merge, got %q", cfg.Identity.ExpectedAudience)
	}
}

func TestLoadFileRejectsMissingRequiredFields(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "swarmctl.yaml")
	if err := os.WriteFile(path, []byte("environment: development\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected validation error for missing required fields, got nil")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "swarmctl.yaml")
	content := validConfigYAML() + `
production:
  lifecycle:
    max_agents_per_owner: 50
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	// Base environment is development, so the production override
	// must not apply.
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Lifecycle.MaxAgentsPerOwner != 10 {
		t.Errorf("expected default max_agents_per_owner=10 while in development, got %d", cfg.Lifecycle.MaxAgentsPerOwner)
	}

	prodContent := strings.Replace(content, "environment: development", "environment: production", 1)
	if err := os.WriteFile(path, []byte(prodContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	cfg, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Lifecycle.MaxAgentsPerOwner != 50 {
		t.Errorf("expected production override max_agents_per_owner=50, got %d", cfg.Lifecycle.MaxAgentsPerOwner)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid", modify: func(c *Config) {
			c.Registry.DatabasePath = "/tmp/x.db"
			c.Identity.KeysEndpoint = "https://id.internal/keys"
			c.Identity.ExpectedIssuer = "https://id.internal"
			c.Orchestrator.APIBaseURL = "https://orch.internal"
			c.Orchestrator.CallbackBaseURL = "https://control.internal"
		}, wantErr: false},
		{name: "invalid environment", modify: func(c *Config) {
			c.Environment = "invalid"
		}, wantErr: true},
		{name: "missing database path", modify: func(c *Config) {
			c.Registry.DatabasePath = ""
		}, wantErr: true},
		{name: "invalid log format", modify: func(c *Config) {
			c.Registry.DatabasePath = "/tmp/x.db"
			c.Identity.KeysEndpoint = "https://id.internal/keys"
			c.Identity.ExpectedIssuer = "https://id.internal"
			c.Orchestrator.APIBaseURL = "https://orch.internal"
			c.Orchestrator.CallbackBaseURL = "https://control.internal"
			c.Log.Format = "xml"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
