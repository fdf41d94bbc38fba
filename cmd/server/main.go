package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tradelog/internal/api"
	"tradelog/internal/config"
	"tradelog/internal/logging"
	"tradelog/pkg/docstore"
	"tradelog/pkg/tradelog"
)

var getppid = os.Getppid
var sleep = time.Sleep
var exit = os.Exit

// memoryRemote selects the in-process remote store, useful for demos.
const memoryRemote = "memory"

func main() {
	var dataDir string
	var port int
	var host string
	var webDir string
	var remoteURL string
	var userID string
	var logLevel string

	flag.StringVar(&dataDir, "data-dir", "", "Directory for storing the journal database and logs")
	flag.IntVar(&port, "port", 8000, "Port to run the server on")
	flag.StringVar(&host, "host", "127.0.0.1", "Host to bind the server to")
	flag.StringVar(&webDir, "web-dir", "", "Directory for the widget's static files (optional)")
	flag.StringVar(&remoteURL, "remote-url", "", `Document API base URL, or "memory" (overrides config)`)
	flag.StringVar(&userID, "user", "", "User id to sign in with (overrides config)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	if dataDir != "" {
		config.SetRuntimeDataDir(dataDir)
	}
	config.SetRuntimePort(port)

	resolvedDataDir, err := config.GetDataDir()
	if err != nil {
		slog.Error("failed to resolve data directory", "err", err)
		os.Exit(1)
	}
	level, _ := logging.ParseLevel(logLevel)
	logger, writer, err := logging.NewLogger(filepath.Join(resolvedDataDir, "logs"), level)
	if err != nil {
		slog.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	cfg := config.LoadUserConfig()
	if remoteURL != "" {
		cfg.RemoteURL = remoteURL
	}
	if userID != "" {
		cfg.UserID = userID
	}

	journal, err := openJournal(cfg, logger)
	if err != nil {
		logger.Error("failed to open journal", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Error("failed to close journal", "err", err)
		}
	}()

	if os.Getenv("TRADELOG_PARENT_WATCH") == "1" {
		go watchParent(logger)
	}

	addr := listenAddr(host)
	handler := api.NewRouterWithOptions(journal, api.Options{Logger: logger})
	if resolvedWebDir := resolveWebDir(webDir); resolvedWebDir != "" {
		logger.Info("serving widget", "web_dir", resolvedWebDir)
		handler = api.WithSPA(handler, resolvedWebDir)
	}

	// No WriteTimeout: /api/events holds the response open.
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", addr, "remote", remoteLabel(cfg.RemoteURL), "user", cfg.UserID)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	signal.Stop(stop)

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
}

// openJournal opens the journal described by cfg. A configured user id is
// signed in; otherwise the auth gate is known signed-out so saves do not
// wait on it.
func openJournal(cfg config.UserConfig, logger *slog.Logger) (*tradelog.Journal, error) {
	dbPath, err := config.GetDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	remote, err := buildRemote(cfg, logger)
	if err != nil {
		return nil, err
	}

	auth := tradelog.NewAuth()
	if uid := strings.TrimSpace(cfg.UserID); uid != "" {
		auth.SignIn(uid)
	} else {
		auth.SignOut()
	}

	return tradelog.Open(tradelog.Options{
		DBPath:          dbPath,
		Remote:          remote,
		Auth:            auth,
		Logger:          logger,
		DefaultCapital:  cfg.DefaultCapital,
		AuthWait:        cfg.AuthWaitDuration(),
		SummaryDebounce: cfg.SummaryDebounceDuration(),
		SummaryWeeks:    cfg.SummaryWeeks,
		Location:        loc,
	})
}

// listenAddr joins host with the runtime port set from the flags.
func listenAddr(host string) string {
	return fmt.Sprintf("%s:%d", host, config.GetRuntimePort())
}

// buildRemote returns nil when no remote is configured.
func buildRemote(cfg config.UserConfig, logger *slog.Logger) (tradelog.RemoteStore, error) {
	switch url := strings.TrimSpace(cfg.RemoteURL); url {
	case "":
		return nil, nil
	case memoryRemote:
		return tradelog.NewMemoryRemote(), nil
	default:
		client, err := docstore.New(docstore.Options{
			BaseURL: url,
			Token:   cfg.RemoteToken,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("configure remote store: %w", err)
		}
		return client, nil
	}
}

func remoteLabel(url string) string {
	if strings.TrimSpace(url) == "" {
		return "none"
	}
	return url
}

func watchParent(logger *slog.Logger) {
	for {
		sleep(1 * time.Second)
		if getppid() == 1 {
			logger.Info("parent process exited; shutting down")
			exit(0)
		}
	}
}

func resolveWebDir(input string) string {
	if input != "" {
		if dirExists(input) {
			return input
		}
		return ""
	}

	candidates := []string{"web", "../web"}
	for _, candidate := range candidates {
		if dirExists(candidate) {
			return candidate
		}
	}
	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		for _, candidate := range candidates {
			path := filepath.Join(base, candidate)
			if dirExists(path) {
				return path
			}
		}
	}
	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
