// Package main is the entry point for the nut-mcp server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesprial/nut-mcp/internal/action"
	"github.com/jamesprial/nut-mcp/internal/auth"
	"github.com/jamesprial/nut-mcp/internal/bridge"
	"github.com/jamesprial/nut-mcp/internal/config"
	"github.com/jamesprial/nut-mcp/internal/entry"
	"github.com/jamesprial/nut-mcp/internal/graphql"
	"github.com/jamesprial/nut-mcp/internal/nut"
	"github.com/jamesprial/nut-mcp/internal/registry"
	"github.com/jamesprial/nut-mcp/internal/safety"
	"github.com/jamesprial/nut-mcp/internal/tools"
	"github.com/jamesprial/nut-mcp/internal/ups"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	path := configPath()
	cfg := loadConfig(path)
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		log.Printf("warning: ignoring environment overrides: %v", err)
	}

	tokenBefore := cfg.Server.AuthToken
	token, err := config.EnsureAuthToken(cfg)
	if err != nil {
		log.Printf("warning: could not generate auth token: %v, running without authentication", err)
	} else if tokenBefore == "" {
		log.Printf("generated auth token (set NUT_MCP_AUTH_TOKEN to persist): %s", token)
	}

	// Audit log, rotated by size.
	var auditLogger *safety.AuditLogger
	if cfg.Audit.Enabled {
		w := &lumberjack.Logger{
			Filename:   cfg.Audit.LogPath,
			MaxSize:    cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
		}
		defer w.Close()
		auditLogger = safety.NewAuditLogger(w)
	}

	gqlClient, err := graphql.NewHTTPClient(cfg.GraphQL)
	if err != nil {
		log.Fatalf("failed to create GraphQL client: %v", err)
	}
	monitor := ups.NewGraphQLUPSMonitor(gqlClient)
	runner := ups.NewGraphQLCommandRunner(gqlClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog := nut.DefaultCatalog()
	reg := registry.New()
	svc := action.NewService(reg, catalog)
	confirm := safety.NewConfirmationTracker(cfg.Safety.Confirm)

	var mqttBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		client, err := bridge.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			log.Printf("warning: MQTT bridge disabled: %v", err)
		} else {
			defer client.Disconnect(250)
			var opts []bridge.Option
			if !cfg.MQTT.AllowConfirmCommands {
				opts = append(opts, bridge.WithGuard(confirm))
			}
			mqttBridge = bridge.New(client, svc, cfg.MQTT.TopicPrefix, auditLogger, opts...)
			if err := mqttBridge.Start(ctx); err != nil {
				log.Printf("warning: MQTT bridge cannot receive calls: %v", err)
			}
		}
	}

	entries := entry.NewManager(reg, runner, monitor, catalog,
		entry.WithLoadedHook(func(entryID, deviceID string) {
			if mqttBridge == nil {
				return
			}
			if err := mqttBridge.PublishActions(deviceID); err != nil {
				log.Printf("mqtt bridge: %v", err)
			}
		}),
	)
	defer entries.Close()
	entries.Sync(ctx, cfg.Entries)

	go func() {
		err := config.Watch(ctx, path, func(next *config.Config) {
			entries.Sync(ctx, next.Entries)
		})
		if err != nil {
			log.Printf("warning: config hot reload disabled: %v", err)
		}
	}()

	// Build MCP server.
	mcpServer := server.NewMCPServer(
		"nut-mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	var registrations []tools.Registration
	registrations = append(registrations, ups.StatusTools(monitor, auditLogger)...)
	registrations = append(registrations, action.ActionTools(svc, reg, confirm, auditLogger)...)
	names := tools.RegisterAll(mcpServer, registrations)
	log.Printf("registered %d tools: %v", len(names), names)

	// Build Streamable HTTP server and wrap with auth middleware.
	httpHandler := server.NewStreamableHTTPServer(mcpServer)
	authMiddleware := auth.NewAuthMiddleware(cfg.Server.AuthToken)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           authMiddleware(httpHandler),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("nut-mcp listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-stop
	log.Println("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
	log.Println("server stopped")
}

func configPath() string {
	if path := os.Getenv("NUT_MCP_CONFIG_PATH"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the config file at path. If the file cannot be read,
// DefaultConfig is returned.
func loadConfig(path string) *config.Config {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Printf("could not load config from %q (%v), using defaults", path, err)
		return config.DefaultConfig()
	}

	log.Printf("loaded config from %q", path)
	return cfg
}
