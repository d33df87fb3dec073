// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// errUnknownOp is wrapped into a BackendError when a Record carries an
// OpCode the dispatch table has no entry for.
var errUnknownOp = errors.New("ishmemproxy: no dispatch entry for op")

// ErrWouldBlock indicates an operation cannot proceed immediately: the
// ring's producer flow-control window is closed, or the completion table
// has no free slot.
//
// Per spec.md §7 this is backpressure, not a failure. Ring.Send and
// CompletionTable.Allocate spin internally rather than returning it, and
// no function in this package returns it.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency with
// the rest of the hybscloud stack.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// ValidationError is returned by the parameter validator (spec.md §4.G)
// when a Device is constructed with CheckParams enabled. It is always
// fatal — the caller logs it and aborts, per spec.md §7; it is never
// retried.
type ValidationError struct {
	Op     OpCode
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ishmemproxy: validation failed for op %v: %s", e.Op, e.Reason)
}

// BackendError wraps a failure returned by the runtime Backend during
// proxy dispatch. The proxy logs a diagnostic and Proxy.Run returns this
// error, ending the loop; Run does not exit the process. Individual
// requests are neither retried nor cancelled.
type BackendError struct {
	Op   OpCode
	Type TypeCode
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("ishmemproxy: backend dispatch failed for op=%v type=%v: %v", e.Op, e.Type, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
