// Command notifywatch connects to the caseflow push endpoint and shows
// the live notification feed in the terminal.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/caseflow/notify/internal/cache"
	"github.com/caseflow/notify/internal/client"
	"github.com/caseflow/notify/internal/credential"
	"github.com/caseflow/notify/internal/model"
	"github.com/caseflow/notify/internal/ui/feed"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	tokenFlag := flag.String("token", "", "access token (overrides the system keyring)")
	logPath := flag.String("log", "", "write debug logs to this file")
	noCache := flag.Bool("no-cache", false, "disable the local notification cache")
	flag.Parse()

	if err := run(*configPath, *tokenFlag, *logPath, *noCache); err != nil {
		fmt.Fprintf(os.Stderr, "notifywatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, tokenFlag, logPath string, noCache bool) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	logger := log.New(io.Discard, "", log.LstdFlags)
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logger = log.New(f, "", log.LstdFlags)
	}

	var tokens credential.TokenSource = credential.KeyringSource{}
	if tokenFlag != "" {
		tokens = credential.StaticToken(tokenFlag)
	}

	var c *cache.Cache
	if !noCache {
		path := cfg.Cache.Path
		if path == "" {
			path = defaultCachePath()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		c, err = cache.New(path)
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
	}

	cl := client.New(cfg, tokens, c, logger)
	defer cl.Dispose()

	p := tea.NewProgram(
		feed.New(cl, 80, 24),
		tea.WithAltScreen(),
	)

	// Re-render whenever the store mutates, whatever the trigger:
	// pushed frame, fetch completion, or a user action.
	cl.Store().SetOnChange(func() {
		p.Send(feed.StoreChangedMsg{})
	})

	cl.Connect()

	_, err = p.Run()
	return err
}

// defaultCachePath places the cache next to the config.
func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "notifications.db")
	}
	return filepath.Join(home, ".config", "caseflow", "notifications.db")
}
