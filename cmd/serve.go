package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rouzd/facegate/internal/authsession"
	"github.com/rouzd/facegate/internal/config"
	"github.com/rouzd/facegate/internal/database/postgres"
	"github.com/rouzd/facegate/internal/frame"
	"github.com/rouzd/facegate/internal/recognizer"
	"github.com/rouzd/facegate/internal/token"
	"github.com/rouzd/facegate/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication server",
	Long: `Start the Facegate authentication server.
The server exposes the session API for progressive frame authentication,
single-shot verification, and user enrollment.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides FACEGATE_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides FACEGATE_HOST)")
}

// buildTokenIssuer creates the JWT issuer, or nil when no secret is
// configured. Authentication still works without it, just without tokens.
func buildTokenIssuer(cfg *config.Config) *token.Issuer {
	if cfg.Token.Secret == "" {
		fmt.Println("TOKEN_SECRET not set, authenticated clients will not receive tokens")
		return nil
	}
	issuer, err := token.NewIssuer(cfg.Token.Secret, cfg.Token.Issuer, cfg.Token.TTL)
	if err != nil {
		fmt.Printf("Warning: token issuer disabled: %v\n", err)
		return nil
	}
	return issuer
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	}

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	pool := postgres.GetGlobalPool()
	userRepo := postgres.NewUserRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)

	client := recognizer.NewClient(cfg.Recognizer.URL, cfg.Recognizer.Model, cfg.Recognizer.Timeout)
	decoder := frame.NewDecoder(client)

	policy := authsession.Policy{
		RequiredConsecutiveMatches: cfg.Auth.RequiredConsecutiveMatches,
		MatchDistanceThreshold:     cfg.Auth.MatchDistanceThreshold,
		MaxFrameAttempts:           cfg.Auth.MaxFrameAttempts,
	}
	store := authsession.NewStore(policy, cfg.Auth.SessionIdleTimeout)

	server := web.NewServer(cfg, web.Dependencies{
		Store:       store,
		Users:       userRepo,
		UserWriter:  userRepo,
		Audit:       auditRepo,
		AuditReader: auditRepo,
		Decoder:     decoder,
		Matcher:     client,
		Issuer:      buildTokenIssuer(cfg),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Facegate on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Policy: %d consecutive matches under distance %.2f within %d attempts\n",
		policy.RequiredConsecutiveMatches, policy.MatchDistanceThreshold, policy.MaxFrameAttempts)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
