package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	webbridge "github.com/cryguy/webbridge"
	"github.com/cryguy/webbridge/internal/dialog"
)

func TestProvideConfigMissingFile(t *testing.T) {
	cfg, err := provideConfig(Flags{Config: filepath.Join(t.TempDir(), "absent.toml")}, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, cfg.Keys())
}

func TestProvideConfigLoadsTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte("[webview]\nroot = \"/app.html\"\n"), 0o644))

	cfg, err := provideConfig(Flags{Config: path}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "/app.html", cfg.Get("webview.root"))
}

func TestProvideConfigRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte("[webview"), 0o644))

	_, err := provideConfig(Flags{Config: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestBuiltinBindings(t *testing.T) {
	w, err := webbridge.New(webbridge.Options{
		Assets: fstest.MapFS{"index.html": {Data: []byte(`<script>
window.addEventListener('load', async () => {
  window.pong = await system.ping({ n: 1 });
  window.file = await system.openFile();
  await system.openDirectory().catch(e => { window.dirError = e.message; });
  system.exit();
});
</script>`)}},
		Dialog: dialog.Func(func(_ context.Context, opts webbridge.DialogOptions) (string, error) {
			if opts.Directories {
				return "", dialog.ErrNoTerminal
			}
			return "/picked.txt", nil
		}),
	})
	require.NoError(t, err)
	require.NoError(t, registerBindings(w, zap.NewNop()))

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("page never called system.exit")
	}
	require.NoError(t, w.Destroy())
}

func TestModuleLifecycle(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte(`<p>hi</p>`), 0o644))

	app := fxtest.New(t, Module(Flags{
		Config:   filepath.Join(root, "absent.toml"),
		Root:     root,
		LogLevel: "error",
	}))
	app.RequireStart()
	app.RequireStop()
}
