package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/kozaktomas/reunite/internal/web"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 30 * time.Second
	redispatchLimit = 1000
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingest and alerting API",
	Long: `Start the Reunite HTTP API.
Cameras post frames to /api/v1/ingest, operators enroll identities and
handlers read and act on their alerts. Matches are dispatched by background
workers; alerts left undelivered by a previous run are queued again on start.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("memory", false, "Keep all data in memory instead of PostgreSQL (development only)")
	serveCmd.Flags().Duration("model-check", 30*time.Second, "Interval between face model health checks while it is down")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	log := logging.Module("serve")
	port, host := resolveServeHostPort(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{memory: mustGetBool(cmd, "memory"), model: true})
	if err != nil {
		return err
	}
	defer a.Close()

	go a.extractor.Watch(ctx, mustGetDuration(cmd, "model-check"))

	a.queue.Start(ctx)
	if _, err := a.pipeline.Redispatch(ctx, redispatchLimit); err != nil {
		log.Warn("could not queue undispatched alerts", "error", err)
	}

	server := web.NewServer(a.webDeps(), host, port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", "error", err)
		}
	}()

	fmt.Printf("Starting Reunite on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	serveErr := server.Start()

	if err := a.queue.Stop(shutdownTimeout); err != nil {
		log.Warn("dispatch queue did not drain", "error", err)
	}
	if serveErr != nil {
		return fmt.Errorf("starting server: %w", serveErr)
	}
	return nil
}
