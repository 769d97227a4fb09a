// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package registry

// prefixUpperBound returns the smallest byte string greater than every
// string having prefix as a prefix, for use as an exclusive upper bound
// in `key >= ? AND key < ?` range scans. Returns (nil, false) when the
// prefix consists entirely of 0xFF bytes (no finite upper bound exists;
// the caller should scan with an open-ended upper bound instead).
func prefixUpperBound(prefix []byte) ([]byte, bool) {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1], true
		}
	}
	return nil, false
}

// agentKey builds the "owner_id ‖ agent_id" key for the agents table.
func agentKey(ownerID, agentID []byte) []byte {
	key := make([]byte, 0, len(ownerID)+len(agentID))
	key = append(key, ownerID...)
	key = append(key, agentID...)
	return key
}

// agentStatusKey builds the "status ‖ owner_id ‖ agent_id" key for the
// agents_by_status index.
func agentStatusKey(status AgentStatus, ownerID, agentID []byte) []byte {
	key := make([]byte, 0, 1+len(ownerID)+len(agentID))
	key = append(key, byte(status))
	key = append(key, ownerID...)
	key = append(key, agentID...)
	return key
}

// sessionsByAgentKey builds the "agent_id ‖ session_id" key for the
// sessions_by_agent index.
func sessionsByAgentKey(agentID, sessionID []byte) []byte {
	key := make([]byte, 0, len(agentID)+len(sessionID))
	key = append(key, agentID...)
	key = append(key, sessionID...)
	return key
}
