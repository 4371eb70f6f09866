//go:build !v8

package webbridge

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/quickjs"
)

// Engine names the script engine headless pages run on.
const Engine = "quickjs"

func newRuntimeFactory(opts Options) core.RuntimeFactory {
	return quickjs.Factory(quickjs.WithMemoryLimit(opts.MemoryLimitMB))
}
