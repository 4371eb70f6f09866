// Package webapi installs the page environment of a headless surface: the
// window object and its events, console, timers and the IPC hook the
// preload client posts through.
package webapi

import (
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// Host is what the page environment calls back into.
type Host struct {
	Loop *eventloop.Loop

	// Console receives page console output.
	Console func(level, message string)

	// Post receives every message the page posts with __ipcPost.
	Post func(message string)

	// Location is reported as window.location.href.
	Location string
}

// SetupFunc installs one part of the page environment.
type SetupFunc func(rt core.JSRuntime, host *Host) error

// Setups lists the setup functions in installation order.
func Setups() []SetupFunc {
	return []SetupFunc{
		SetupDOM,
		SetupConsole,
		SetupTimers,
		SetupIPC,
	}
}

// Setup runs every setup function against rt.
func Setup(rt core.JSRuntime, host *Host) error {
	for _, setup := range Setups() {
		if err := setup(rt, host); err != nil {
			return err
		}
	}
	return nil
}

// SetupIPC registers __ipcPost, the page-to-host message channel.
func SetupIPC(rt core.JSRuntime, host *Host) error {
	if err := rt.RegisterFunc("__ipcPost", func(message string) {
		if host.Post != nil {
			host.Post(message)
		}
	}); err != nil {
		return fmt.Errorf("registering __ipcPost: %w", err)
	}
	return nil
}
