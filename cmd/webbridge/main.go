// Command webbridge hosts a web app directory: it loads the app in a
// headless page, or serves it to a browser with -dev, and answers the
// page's calls to the built-in bindings.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
)

func main() {
	var f Flags
	flag.StringVar(&f.Config, "config", "webbridge.toml", "Path to the app configuration (TOML)")
	flag.StringVar(&f.Root, "root", ".", "Directory the app is served from")
	flag.StringVar(&f.Dev, "dev", "", "Serve the app to a browser on this address instead of running it headless")
	flag.StringVar(&f.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.LogFile, "log-file", "", "Also write JSON logs to this file, rotated")
	flag.BoolVar(&f.Pretty, "pretty", false, "Human-readable console logs")
	flag.IntVar(&f.MemoryLimitMB, "memory-limit", 0, "Headless script heap limit in MB (0 for none)")
	flag.Parse()

	app := fx.New(Module(f))
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	app.Run()
}
