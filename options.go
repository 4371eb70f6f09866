package webbridge

import (
	"io/fs"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/metrics"
)

// Options configures a Webview.
type Options struct {
	// Root is the directory page content is served from.
	Root string
	// Assets serves page content instead of Root when set.
	Assets fs.FS

	// Config is the user configuration snapshotted into every window.
	Config core.ConfigSource
	// Env is the environment allow-listed variables are read from.
	// Defaults to the process environment.
	Env core.EnvSource

	// DevAddr switches the surface from a headless page to a browser
	// connected through the dev server listening on this address.
	DevAddr string
	// OriginPatterns are extra origins allowed to connect to the dev server.
	OriginPatterns []string

	// MemoryLimitMB caps the headless script heap. Zero means no limit.
	MemoryLimitMB int
	// Origin prefixes document paths in the headless window.location.
	Origin string

	// Dialog presents pickers for Webview.Dialog. Defaults to a terminal
	// picker.
	Dialog core.DialogProvider

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}
