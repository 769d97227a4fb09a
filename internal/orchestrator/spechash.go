// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"github.com/zeebo/blake3"

	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/codec"
	"github.com/auraswarm/swarmctl/lib/ids"
)

// podSpecDomainKey domain-separates pod-spec hashing from every other
// BLAKE3 keyed use in the control plane, so the same bytes hashed for
// a different purpose never collide with a pod-spec hash.
var podSpecDomainKey = [32]byte{
	's', 'w', 'a', 'r', 'm', 'c', 't', 'l', '.', 'p', 'o', 'd', 's', 'p', 'e', 'c',
	'.', 'h', 'a', 's', 'h', '.', 'v', '1', 0, 0, 0, 0, 0, 0, 0, 0,
}

// podSpecHash computes a keyed BLAKE3 hash over the fields that fully
// determine a pod's desired shape for a given agent. Two
// schedule_agent calls for the same agent_id with the same spec hash
// identically; a changed spec hashes differently, which the driver
// uses only to log that a repeat schedule_agent call observed a
// different spec than the one already running — create-if-absent
// discipline still means no update-in-place is attempted.
func podSpecHash(agentID ids.AgentID, ownerID ids.OwnerID, spec registry.Spec) ([32]byte, error) {
	encoded, err := codec.Marshal(struct {
		AgentID ids.AgentID
		OwnerID ids.OwnerID
		Spec    registry.Spec
	}{agentID, ownerID, spec})
	if err != nil {
		return [32]byte{}, err
	}

	hasher, err := blake3.NewKeyed(podSpecDomainKey[:])
	if err != nil {
		panic("orchestrator: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(encoded)
	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	return hash, nil
}
