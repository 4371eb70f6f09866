//go:build v8

package webbridge

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/v8engine"
)

// Engine names the script engine headless pages run on.
const Engine = "v8"

func newRuntimeFactory(Options) core.RuntimeFactory {
	return v8engine.Factory()
}
