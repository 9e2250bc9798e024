package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"smokeFreeAPI/config"
	"smokeFreeAPI/internal/cli"
	"smokeFreeAPI/internal/localstore"
	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/internal/sync"
)

var CLI struct {
	Version kong.VersionFlag
	Server  string `help:"API server URL." env:"QUITCTL_SERVER_URL"`
	DataDir string `help:"Directory for the local queue database." env:"QUITCTL_DATA_DIR"`
	Debug   bool   `help:"Verbose logging."`

	Log      cli.LogCmd      `cmd:"" help:"Log cigarettes smoked."`
	Journal  cli.JournalCmd  `cmd:"" help:"Write a journal entry."`
	Sync     cli.SyncCmd     `cmd:"" help:"Send queued entries to the server."`
	Status   cli.StatusCmd   `cmd:"" help:"Show pending sync state." default:"1"`
	Online   cli.OnlineCmd   `cmd:"" help:"Check whether the server is reachable."`
	Rejected cli.RejectedCmd `cmd:"" help:"List entries the server refused."`
	Watch    cli.WatchCmd    `cmd:"" help:"Keep syncing in the background."`
	Plan     cli.PlanCmd     `cmd:"" help:"Show and cache the quit plan."`
	Target   cli.TargetCmd   `cmd:"" help:"Show the daily target from the cached plan."`
	Progress cli.ProgressCmd `cmd:"" help:"Show streaks, savings and achievements."`
	Login    cli.LoginCmd    `cmd:"" help:"Store the API token in the OS keyring."`
	Logout   cli.LogoutCmd   `cmd:"" help:"Remove the stored API token."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("quitctl"),
		kong.Description("Offline-first companion for your quit plan"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": "v0.1.0"},
	)

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if CLI.Server != "" {
		cfg.ServerURL = CLI.Server
	}
	if CLI.DataDir != "" {
		cfg.DataDir = CLI.DataDir
	}
	level := cfg.LogLevel
	if CLI.Debug {
		level = "debug"
	}

	dataDir, err := cli.ExpandPath(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{
		Level:  level,
		Prefix: "quitctl",
		File:   filepath.Join(dataDir, "quitctl.log"),
		Quiet:  !CLI.Debug,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
	}

	store := localstore.NewSQLiteStore(filepath.Join(dataDir, "quitctl.db"))
	if err := store.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	remote := sync.NewHTTPRemote(cfg.ServerURL, cfg.RequestTimeout)
	engine, err := sync.NewEngine(context.Background(), sync.Config{
		Store:  store,
		Remote: remote,
		Retry: sync.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = kctx.Run(&cli.Context{
		Config: cfg,
		Store:  store,
		Engine: engine,
		Remote: remote,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
}
