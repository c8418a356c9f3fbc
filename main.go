// ABOUTME: Entry point for the Discord voice bridge
// ABOUTME: Loads configuration, sets up logging and runs the bridge
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfocus/companion-module-discord-api/internal/app"
	"github.com/bitfocus/companion-module-discord-api/internal/config"
	"github.com/bitfocus/companion-module-discord-api/internal/ui"
	"github.com/bitfocus/companion-module-discord-api/internal/version"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Set up logging
	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if cfg.TUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
		log.Printf("Starting %s %s", version.Product, version.Version)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := app.Options{}
	var tuiProg *tea.Program
	if cfg.TUI {
		opts.Control = ui.NewControl()
		tuiProg, err = ui.Run(opts.Control)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		opts.TUI = tuiProg
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			stop()
		}()
	}

	bridge, err := app.New(ctx, *cfg, opts)
	if err != nil {
		if tuiProg != nil {
			tuiProg.Kill()
		}
		log.Fatalf("Failed to start bridge: %v", err)
	}

	if err := bridge.Run(ctx); err != nil {
		log.Printf("Bridge error: %v", err)
	}

	if tuiProg != nil {
		tuiProg.Quit()
	}
	log.Printf("Bridge stopped")
}
