// Command searchbridge runs the content synchronization and search-caching
// service: it tracks content written into its SQLite database, ships
// normalized text to the remote embedding gateway on a schedule, and serves
// cached semantic search to the hosting platform over REST and MCP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/thinkpixel/searchbridge"
	"github.com/thinkpixel/searchbridge/content"
	"github.com/thinkpixel/searchbridge/remote"
	"github.com/thinkpixel/searchbridge/settings"
	"github.com/thinkpixel/searchbridge/store"
)

func main() {
	cfgPath := env("SEARCHBRIDGE_CONFIG", "config.yaml")
	logLevel := env("LOG_LEVEL", "info")
	mcpTransport := env("MCP_TRANSPORT", "")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := searchbridge.LoadConfig(cfgPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if secret := os.Getenv("SITE_SECRET"); secret != "" {
		cfg.SiteSecret = secret
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.DBPath, store.WithCacheTTL(cfg.CacheTTL()))
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	repo, err := content.NewSQLRepository(st.DB())
	if err != nil {
		slog.Error("content repository", "error", err)
		os.Exit(1)
	}

	set, err := settings.New(st.DB(), []byte(cfg.SiteSecret))
	if err != nil {
		slog.Error("settings", "error", err)
		os.Exit(1)
	}

	client := remote.New(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		SiteURL: cfg.SiteURL,
		Key: func(ctx context.Context) (string, error) {
			key, err := set.APIKey(ctx)
			if err != nil {
				return "", err
			}
			if key == "" {
				return "", errors.New("no api key stored yet")
			}
			return key, nil
		},
		Timeout:    cfg.RemoteTimeout(),
		MaxRetries: cfg.Remote.MaxRetries,
		Logger:     logger,
	})

	svc, err := searchbridge.NewService(searchbridge.ServiceConfig{
		Store:          st,
		Settings:       set,
		Gateway:        client,
		Repo:           repo,
		SiteURL:        cfg.SiteURL,
		SiteSecret:     []byte(cfg.SiteSecret),
		BatchItems:     cfg.Sync.BatchItems,
		MinQueryLength: cfg.Sync.MinQueryLength,
		Logger:         logger,
	})
	if err != nil {
		slog.Error("service", "error", err)
		os.Exit(1)
	}

	// Bootstrap is idempotent. A dead gateway must not keep the service
	// from serving what it already has, so failures only log.
	if err := svc.Activate(ctx); err != nil {
		slog.Warn("activation incomplete", "error", err)
	}

	// Scheduled sync loop.
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.RunScheduled(ctx); err != nil {
					slog.Error("scheduled sync", "error", err)
				}
			}
		}
	}()

	// Optional MCP server on stdio.
	if mcpTransport == "stdio" {
		server := mcp.NewServer(&mcp.Implementation{
			Name:    "searchbridge",
			Version: searchbridge.Version,
		}, nil)
		svc.RegisterMCP(server)
		go func() {
			if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
				slog.Error("mcp server", "error", err)
			}
		}()
	}

	r := chi.NewRouter()
	svc.RegisterHTTP(r)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
