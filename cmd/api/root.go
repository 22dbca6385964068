package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"subscription-backend/internal/app"
)

const shutdownTimeout = 10 * time.Second

var skipDotEnv bool

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "api",
		Short:        "Account authentication API",
		Long:         `Serves signup, login, token refresh and password recovery over HTTP.`,
		SilenceUsage: true,
		Version:      app.Version,
		RunE:         runServe,
	}

	cmd.PersistentFlags().BoolVar(&skipDotEnv, "no-dotenv", false, "do not load variables from .env")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCleanupCmd())

	return cmd
}

func NewServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.Migrate(cmd.Context(), !skipDotEnv); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		},
	}
}

func NewCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired refresh and reset tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := app.Cleanup(cmd.Context(), !skipDotEnv)
			if err != nil {
				return err
			}
			cmd.Printf("Deleted %d refresh tokens and %d reset tokens\n",
				result.DeletedRefreshTokens, result.DeletedResetTokens)
			return nil
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	return serve(cmd.Context(), false)
}

func serve(parent context.Context, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := app.Build(ctx, app.Options{LoadDotEnv: !skipDotEnv, RunMigrations: migrate})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			runtime.Logger.Error("shutdown_close_failed", map[string]any{"error": err.Error()})
		}
	}()

	server := &http.Server{
		Addr:              ":" + runtime.Config.Port,
		Handler:           runtime.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		runtime.Logger.Info("server_start", map[string]any{"addr": server.Addr})
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runtime.Logger.Error("server_failed", map[string]any{"error": err.Error()})
			return err
		}
		return nil
	case <-ctx.Done():
	}

	runtime.Logger.Info("server_shutdown", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
