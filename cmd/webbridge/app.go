package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	webbridge "github.com/cryguy/webbridge"
	"github.com/cryguy/webbridge/internal/config"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/dialog"
	"github.com/cryguy/webbridge/internal/logging"
	"github.com/cryguy/webbridge/internal/metrics"
)

// Flags are the command-line settings.
type Flags struct {
	Config        string
	Root          string
	Dev           string
	LogLevel      string
	LogFile       string
	Pretty        bool
	MemoryLimitMB int
}

// Module wires the application.
func Module(f Flags) fx.Option {
	return fx.Options(
		fx.Supply(f),
		fx.Provide(
			provideLogger,
			provideConfig,
			metrics.New,
			provideWebview,
		),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Invoke(registerBindings, registerHooks),
	)
}

func provideLogger(f Flags) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:       f.LogLevel,
		File:        f.LogFile,
		Development: f.Pretty,
	})
}

// provideConfig loads the app configuration. A missing file is an empty
// configuration.
func provideConfig(f Flags, logger *zap.Logger) (core.ConfigSource, error) {
	cfg, err := config.Load(f.Config)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no app configuration", zap.String("path", f.Config))
		return config.FromMap(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideWebview(f Flags, cfg core.ConfigSource, m *metrics.Metrics, logger *zap.Logger) (*webbridge.Webview, error) {
	return webbridge.New(webbridge.Options{
		Root:          f.Root,
		Config:        cfg,
		Env:           config.OSEnv{},
		DevAddr:       f.Dev,
		MemoryLimitMB: f.MemoryLimitMB,
		Dialog:        dialog.Terminal{In: os.Stdin, Out: os.Stderr},
		Logger:        logger,
		Metrics:       m,
	})
}

// registerBindings installs the bindings every hosted app can call:
// system.ping(value) echoes, system.openFile() and system.openDirectory()
// show a picker and system.exit() stops the host.
func registerBindings(w *webbridge.Webview, logger *zap.Logger) error {
	bindings := map[string]func(seq, req string){
		"ping": func(seq, req string) {
			if err := w.Resolve(seq, req); err != nil {
				logger.Warn("ping not answered", zap.Error(err))
			}
		},
		"openFile": func(seq, _ string) {
			if err := w.Dialog(context.Background(), seq, webbridge.DialogOptions{Files: true}); err != nil {
				_ = w.Reject(seq, err.Error())
			}
		},
		"openDirectory": func(seq, _ string) {
			if err := w.Dialog(context.Background(), seq, webbridge.DialogOptions{Directories: true}); err != nil {
				_ = w.Reject(seq, err.Error())
			}
		},
		"exit": func(string, string) {
			logger.Info("page asked to exit")
			w.Terminate()
		},
	}
	for name, fn := range bindings {
		if err := w.BindFunc(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// registerHooks runs the webview for the lifetime of the app. When the
// webview stops on its own the app shuts down with it.
func registerHooks(lc fx.Lifecycle, sd fx.Shutdowner, w *webbridge.Webview, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("webview starting", zap.String("engine", webbridge.Engine))
			go func() {
				defer close(done)
				if err := w.Run(ctx); err != nil {
					logger.Error("webview stopped", zap.Error(err))
				}
				if ctx.Err() == nil {
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			logger.Info("webview stopping")
			cancel()
			select {
			case <-done:
			case <-stop.Done():
				return stop.Err()
			}
			if err := w.Destroy(); err != nil && !errors.Is(err, webbridge.ErrTerminated) {
				return err
			}
			_ = logger.Sync()
			return nil
		},
	})
}
