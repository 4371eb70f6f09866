package core

import (
	"errors"
	"fmt"
)

var (
	// ErrBridgeNotInitialized is returned when an entry point is reached
	// before the execution bridge exists, or with a stale bridge handle.
	ErrBridgeNotInitialized = errors.New("webbridge: bridge not initialized")

	// ErrWindowNotInitialized is returned for unknown or freed window
	// handles, and when script is evaluated before a window is attached.
	ErrWindowNotInitialized = errors.New("webbridge: window not initialized")

	// ErrWindowClosed is returned by a second Close of the same window.
	ErrWindowClosed = errors.New("webbridge: window already closed")

	// ErrDialogCancelled is returned by dialog providers when the user
	// dismisses the picker without choosing.
	ErrDialogCancelled = errors.New("webbridge: dialog cancelled")
)

// ScriptError is an exception raised inside the managed script environment.
type ScriptError struct {
	Source  string // leading part of the evaluated script, for logs
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script exception: %s", e.Message)
}

// NewScriptError wraps an engine error raised while evaluating src.
func NewScriptError(src string, err error) *ScriptError {
	const maxSource = 120
	if len(src) > maxSource {
		src = src[:maxSource] + "..."
	}
	return &ScriptError{Source: src, Message: err.Error()}
}
