// persona-chat - live chat session runtime for persona authoring.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/persona-chat/internal/backend"
	"github.com/jeranaias/persona-chat/internal/cli"
	"github.com/jeranaias/persona-chat/internal/config"
	"github.com/jeranaias/persona-chat/internal/logging"
	"github.com/jeranaias/persona-chat/internal/memcache"
	"github.com/jeranaias/persona-chat/internal/render"
	"github.com/jeranaias/persona-chat/internal/store"
	"github.com/jeranaias/persona-chat/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	var (
		backendURL = flag.String("backend", "", "backend base URL (overrides config)")
		configPath = flag.String("config", "", "config file path (default ~/.persona-chat/config.toml)")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
		plain      = flag.Bool("plain", false, "force the plain-terminal REPL instead of the TUI")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("persona-chat %s (%s)\n", Version, GitCommit)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "persona-chat: %v\n", err)
		os.Exit(1)
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	initLogging(cfg)

	// Honor the configured theme; lipgloss renders through termenv.
	switch cfg.UI.Theme {
	case "light":
		lipgloss.SetHasDarkBackground(false)
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	default:
		lipgloss.SetHasDarkBackground(termenv.HasDarkBackground())
	}

	if err := run(cfg, *plain); err != nil {
		fmt.Fprintf(os.Stderr, "persona-chat: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func initLogging(cfg *config.Config) {
	out := os.Stderr
	if cfg.Log.File != "" {
		if f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			out = f
		}
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format, out)
}

func run(cfg *config.Config, plain bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := backend.NewClient(cfg.Backend.URL).WithTimeout(cfg.RequestTimeout())
	if cfg.Backend.RateLimit > 0 {
		client = client.WithRateLimit(cfg.Backend.RateLimit, int(cfg.Backend.RateLimit)*2)
	}

	cache := memcache.NewManager(cfg.Memory.Retention, cfg.Memory.MaxSessions)
	stopSweeper := cache.StartSweeper(cfg.SweepInterval())
	defer stopSweeper()

	selector := render.NewSelector(cfg.UI.RenderThreshold, cfg.UI.ItemHeight, cfg.UI.Overscan)

	s := store.New(client).WithCache(cache).WithSelector(selector)
	defer s.Close()

	// Hot-reload log level on config file changes.
	if cfgPath, err := config.ConfigPath(); err == nil {
		if w, werr := config.NewWatcher(cfgPath, func(fresh *config.Config) {
			initLogging(fresh)
		}); werr == nil {
			if werr := w.Watch(); werr == nil {
				defer w.Stop()
			}
		}
	}

	if plain || !cli.IsInteractive() {
		repl := cli.NewREPL(s, cache, cfg).WithClient(client)
		return repl.Run(ctx)
	}

	return runTUI(ctx, s, selector, cfg)
}

func runTUI(ctx context.Context, s *store.Store, selector *render.Selector, cfg *config.Config) error {
	if _, err := s.CreateSession(ctx, nil, ""); err != nil {
		return fmt.Errorf("could not create session: %w", err)
	}

	m := chat.NewModel(s, selector)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI crashed: %w", err)
	}
	logging.Infof("persona-chat exiting")
	return nil
}
