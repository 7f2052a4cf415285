//go:build !linux
// +build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"github.com/urfave/cli/v2"

	"github.com/momentics/hioload-dispatch/api"
)

func runAction(*cli.Context) error {
	return api.NewError(api.ErrCodeInternal, "dispatch requires linux epoll")
}
