// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by get/update/delete operations when no
// record exists for the given key. Callers distinguish "not found"
// from failure by checking errors.Is against this sentinel, never by
// inspecting a nil/zero return value alone.
var ErrNotFound = errors.New("registry: not found")

// StorageError wraps an underlying I/O failure from the embedded
// key-value store. The wrapped error is never logged verbatim at the
// HTTP boundary — only StorageError.Error() is, which omits the raw
// SQL text to avoid leaking schema details in client-facing logs.
type StorageError struct {
	Op  string
	err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("registry: %s: %v", e.Op, e.err)
}

func (e *StorageError) Unwrap() error { return e.err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, err: err}
}
