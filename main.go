package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"inlinesuggest/config"
	"inlinesuggest/logger"
)

const version = "0.1.0"

type ServerMode string

const (
	ModeDaemon ServerMode = "daemon"
	ModeClient ServerMode = "client"
)

// runtimePath returns name inside the directory holding the executable
func runtimePath(name string) string {
	execPath, err := os.Executable()
	if err != nil {
		logger.Fatal("error getting executable path: %v", err)
	}
	return filepath.Join(filepath.Dir(execPath), name)
}

// socketPath is shared by the daemon and the relay client
func socketPath(cfg config.Config) string {
	if cfg.SocketPath != "" {
		return cfg.SocketPath
	}
	return runtimePath("inlinesuggest.sock")
}

func getPidPath() string {
	return runtimePath("inlinesuggest.pid")
}

// Setup logger to log to the configured file, or next to the executable.
// Caller must defer Close().
func setupLogger(cfg config.Config) *logger.Logger {
	path := cfg.LogFile
	if path == "" {
		path = runtimePath("inlinesuggest.log")
	}
	l := logger.Setup(path, logger.ParseLogLevel(cfg.LogLevel))
	// Libraries logging through the standard logger end up in the same file
	log.SetFlags(0)
	log.SetOutput(l)
	return l
}

// loadConfig exits with the config path in the message, so the client can
// relay a readable reason when the daemon refuses to start.
func loadConfig() config.Config {
	path := config.ConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config (%s or $%s): %v\n", path, config.EnvConfig, err)
		os.Exit(1)
	}
	return cfg
}

func runDaemon() {
	cfg := loadConfig()

	l := setupLogger(cfg)
	defer l.Close()

	logger.Info("config: level=%s url=%q context_files=%d cache_ttl=%v timeout=%v",
		cfg.LogLevel, cfg.ServiceURL, len(cfg.ContextFiles), cfg.CacheTTL(), cfg.CompletionTimeout())

	daemon, err := NewDaemon(cfg)
	if err != nil {
		logger.Fatal("error creating daemon: %v", err)
	}

	if err := daemon.Start(); err != nil {
		logger.Fatal("error starting daemon: %v", err)
	}
}

func runClient() {
	client := NewClient(loadConfig())

	if err := client.EnsureDaemonRunning(); err != nil {
		logger.Fatal("error ensuring daemon is running: %v", err)
	}

	if err := client.Connect(); err != nil {
		logger.Fatal("error connecting to daemon: %v", err)
	}
}

func main() {
	var mode ServerMode = ModeClient

	if len(os.Args) > 1 && os.Args[1] == "--daemon" {
		mode = ModeDaemon
	}

	switch mode {
	case ModeDaemon:
		runDaemon()
	case ModeClient:
		runClient()
	}
}
