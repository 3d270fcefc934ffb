package main

import (
	"log/slog"
	"os"

	"github.com/tkoskela/inatwatch/cmd"
	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/logging"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		logging.Fatal("Error loading settings", "error", err)
	}
	settings.Version = version

	logging.SetFileRotation(settings.Main.Log.MaxSize, settings.Main.Log.MaxBackups, settings.Main.Log.MaxAge)
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		os.Exit(1)
	}
}
