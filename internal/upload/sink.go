// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package upload delivers batches of fixes to the remote end.
package upload

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when the transport has no session to the
// remote end.
var ErrNotConnected = errors.New("upload: not connected")

// TransportError reports that a batch was not accepted. The whole batch has
// to be resent.
type TransportError struct {
	Op      string
	Entries int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload: %s of %d entries failed: %v", e.Op, e.Entries, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
