// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"fmt"

	"github.com/auraswarm/swarmctl/internal/registry"
)

const (
	minNameLength = 2
	maxNameLength = 64

	minCPUMillicores = 100
	maxCPUMillicores = 4000

	minMemoryMB = 128
	maxMemoryMB = 8192
)

// validateCreate checks the §3 boundaries on a create_agent request.
func validateCreate(name string, spec registry.Spec) error {
	if n := len(name); n < minNameLength || n > maxNameLength {
		return newControlError(KindInvalid, fmt.Sprintf("name length %d outside [%d,%d]", n, minNameLength, maxNameLength), nil)
	}
	if spec.CPUMillicores < minCPUMillicores || spec.CPUMillicores > maxCPUMillicores {
		return newControlError(KindInvalid, fmt.Sprintf("cpu_millicores %d outside [%d,%d]", spec.CPUMillicores, minCPUMillicores, maxCPUMillicores), nil)
	}
	if spec.MemoryMB < minMemoryMB || spec.MemoryMB > maxMemoryMB {
		return newControlError(KindInvalid, fmt.Sprintf("memory_mb %d outside [%d,%d]", spec.MemoryMB, minMemoryMB, maxMemoryMB), nil)
	}
	return nil
}
