// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"strconv"
	"time"
)

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func parseTail(raw string) (int, error) {
	return strconv.Atoi(raw)
}
