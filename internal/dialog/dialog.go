// Package dialog provides file and directory pickers for Router.Dialog.
package dialog

import (
	"context"

	"github.com/cryguy/webbridge/internal/core"
)

// Static answers every request with a fixed result. It backs headless runs
// and tests, where nobody is there to pick.
type Static struct {
	Path string
	Err  error
}

var _ core.DialogProvider = Static{}

// Open returns the configured result, or ErrDialogCancelled when there is
// neither a path nor an error.
func (s Static) Open(ctx context.Context, _ core.DialogOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	if s.Path == "" {
		return "", core.ErrDialogCancelled
	}
	return s.Path, nil
}

// Func adapts a function to core.DialogProvider.
type Func func(ctx context.Context, opts core.DialogOptions) (string, error)

func (f Func) Open(ctx context.Context, opts core.DialogOptions) (string, error) {
	return f(ctx, opts)
}
