// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "github.com/momentics/hioload-dispatch/api"

var (
	// ErrExecutorClosed indicates the executor has been shut down
	ErrExecutorClosed = api.NewError(api.ErrCodeClosed, "executor is closed")

	// ErrInvalidWorkerCount indicates invalid worker count configuration
	ErrInvalidWorkerCount = api.NewError(api.ErrCodeInvalidArgument, "invalid worker count")

	// ErrUnknownExecutorKind is returned by New for an unrecognised kind.
	ErrUnknownExecutorKind = api.NewError(api.ErrCodeInvalidArgument, "unknown executor kind")
)
