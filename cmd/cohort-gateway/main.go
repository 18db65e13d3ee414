// ABOUTME: Entry point for the cohort gateway server
// ABOUTME: Serves the realtime channel and REST boundary for AI colleague chat

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/cohortlabs/cohort/internal/auth"
	"github.com/cohortlabs/cohort/internal/config"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/server"
	"github.com/cohortlabs/cohort/internal/storage"
)

var version = "dev"

func main() {
	// Best effort; a missing .env is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: cohort-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                 Start the gateway server")
		fmt.Println("  token --user USER     Mint a connection token")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "gateway.yaml", "Path to the gateway config file")
	rosterSpec := fs.String("roster", "ada:Ada:platform,lin:Lin:platform,kai:Kai:design", "Roster as id:name:team triples")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	cyan := color.New(color.FgCyan)
	cyan.Printf("cohort-gateway %s\n", version)

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	roster := parseRoster(*rosterSpec)
	responder := &server.ScriptedResponder{
		Roster:     roster,
		ChunkDelay: cfg.Responder.ChunkDelay,
	}

	authn := auth.New([]byte(cfg.Auth.JWTSecret))
	srv := server.New(store, authn, responder, logger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "User id the token identifies")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "Token lifetime")
	configPath := fs.String("config", "gateway.yaml", "Path to the gateway config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("--user is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	token, err := auth.New([]byte(cfg.Auth.JWTSecret)).Mint(*user, *ttl)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}
	fmt.Println(token)
	return nil
}

// parseRoster turns "id:name:team,..." into a roster. Malformed entries are
// skipped.
func parseRoster(spec string) model.Roster {
	roster := model.Roster{}
	for _, part := range strings.Split(spec, ",") {
		fields := strings.SplitN(strings.TrimSpace(part), ":", 3)
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		agent := model.Agent{ID: fields[0], Name: fields[1]}
		if len(fields) == 3 {
			agent.TeamID = fields[2]
		}
		roster.Agents = append(roster.Agents, agent)
	}
	return roster
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
