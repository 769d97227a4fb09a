// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// TemplateConfig is the operator-authored, mostly-static shape of an
// agent pod, loaded once at startup from a JSONC file so operators can
// annotate fields with comments. The per-agent fields (agent_id,
// owner_id, spec, callback URL) are filled in by BuildPodTemplate at
// schedule_agent time.
type TemplateConfig struct {
	// RuntimeClassName names the configured microVM handler.
	RuntimeClassName string `json:"runtime_class_name"`

	// Image is the container image hosting the agent runtime.
	Image string `json:"image"`

	// StateDirPath is the in-pod mount point for the agent's
	// persistent state volume.
	StateDirPath string `json:"state_dir_path"`

	// ListenAddress is the in-pod address the agent's health and
	// streaming endpoints bind to.
	ListenAddress string `json:"listen_address"`

	// ControlCoreCallbackURL is the base URL the agent pod calls back
	// into Control Core (e.g. for heartbeats).
	ControlCoreCallbackURL string `json:"control_core_callback_url"`

	// PersistentVolumeClaimName is the shared PVC all agent pods mount,
	// each under its own agent_id subpath.
	PersistentVolumeClaimName string `json:"persistent_volume_claim_name"`
}

// LoadTemplateConfig reads and parses a JSONC pod-template config file.
func LoadTemplateConfig(path string) (*TemplateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: reading pod template config %s: %w", path, err)
	}
	stripped := jsonc.ToJSON(data)

	var cfg TemplateConfig
	if err := json.Unmarshal(stripped, &cfg); err != nil {
		return nil, fmt.Errorf("orchestrator: parsing pod template config %s: %w", path, err)
	}
	return &cfg, nil
}

// PodTemplate is the fully-resolved pod description passed to the
// scheduler's create call, after merging TemplateConfig with the
// per-agent fields named in the specification (agent_id, owner_id,
// spec).
type PodTemplate struct {
	Name             string
	RuntimeClassName string
	Image            string

	Env map[string]string

	CPUMillicores int
	MemoryMB      int

	VolumeClaimName string
	VolumeSubpath   string

	ReadinessInitialDelaySeconds int
	ReadinessPeriodSeconds       int
	LivenessInitialDelaySeconds  int
	LivenessPeriodSeconds        int
	HealthPath                   string

	RunAsNonRoot           bool
	RunAsUID               int
	ReadOnlyRootFilesystem bool
	DropAllCapabilities    bool
}

// BuildPodTemplate resolves a PodTemplate for one agent, per the
// specification's pod-template parameters and fixed health-probe and
// security-context values.
func BuildPodTemplate(cfg TemplateConfig, agentID ids.AgentID, ownerID ids.OwnerID, spec registry.Spec) PodTemplate {
	return PodTemplate{
		Name:             agentID.PodName(),
		RuntimeClassName: cfg.RuntimeClassName,
		Image:            cfg.Image,
		Env: map[string]string{
			"AGENT_ID":                  agentID.String(),
			"OWNER_ID":                  ownerID.String(),
			"STATE_DIR":                 cfg.StateDirPath,
			"LISTEN_ADDRESS":            cfg.ListenAddress,
			"CONTROL_CORE_CALLBACK_URL": cfg.ControlCoreCallbackURL,
		},
		CPUMillicores:   spec.CPUMillicores,
		MemoryMB:        spec.MemoryMB,
		VolumeClaimName: cfg.PersistentVolumeClaimName,
		VolumeSubpath:   agentID.String(),

		ReadinessInitialDelaySeconds: 5,
		ReadinessPeriodSeconds:       10,
		LivenessInitialDelaySeconds:  30,
		LivenessPeriodSeconds:        30,
		HealthPath:                   "/health",

		RunAsNonRoot:           true,
		RunAsUID:               1000,
		ReadOnlyRootFilesystem: true,
		DropAllCapabilities:    true,
	}
}
