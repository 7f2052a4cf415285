// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "github.com/momentics/hioload-dispatch/api"

// ImmediateExecutor runs work on the calling goroutine before Spawn returns.
type ImmediateExecutor struct{}

// Immediate is the shared inline executor.
var Immediate api.Executor = ImmediateExecutor{}

func (ImmediateExecutor) Spawn(work func()) {
	work()
}
