package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeloop/internal/api"
	"github.com/wonny/tradeloop/internal/api/handlers"
	"github.com/wonny/tradeloop/internal/api/stream"
	"github.com/wonny/tradeloop/internal/contracts"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the autonomous agent",
	Long: `Starts the monitoring API and the autonomous agent.

The agent:
- rotates through the universe catalogue every 2h (first scan after 30s)
- runs a full scan of every universe daily at 04:30 UTC
- evaluates recent decisions and adapts weights every 6h
- catches up on overdue universes right after start

Endpoints:
  GET  /health                      - Health check
  GET  /api/analyze/{ticker}        - Analyze one instrument
  POST /api/scan                    - Ad-hoc scan of a ticker list
  GET  /api/decisions               - Decision history
  GET  /api/macro                   - Global indicators
  GET  /api/learning                - Learning summary
  GET  /api/agent/status            - Agent state + recent activity
  POST /api/agent/scan/{universe}   - Trigger a universe scan
  GET  /api/agent/stream            - Activity websocket

Example:
  go run ./cmd/tradeloop serve
  go run ./cmd/tradeloop serve --port 8080 --no-agent`,
	RunE: runServe,
}

var (
	servePort    string
	serveNoAgent bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API server port (default: PORT)")
	serveCmd.Flags().BoolVar(&serveNoAgent, "no-agent", false, "serve the API without starting the agent")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("=== tradeloop API Server ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if servePort != "" {
		a.cfg.Port = servePort
	}

	log := a.log
	log.WithFields(map[string]interface{}{
		"port":      a.cfg.Port,
		"env":       a.cfg.Env,
		"universes": a.universes.Keys(),
	}).Info("Initializing API server")

	// Activity stream
	hub := stream.NewHub(log)
	a.agent.OnActivity(func(e contracts.ActivityLogEntry) {
		hub.Broadcast(e)
	})

	// Handlers + router
	router := api.NewRouter(api.Handlers{
		Agent:     handlers.NewAgentHandler(a.agent, ctx, log),
		Decisions: handlers.NewDecisionHandler(a.agent, log),
		Learning:  handlers.NewLearningHandler(a.learner, a.agent, log),
		Market:    handlers.NewMarketHandler(a.market, a.universes, log),
		Stream:    hub,
	}, log)
	server := api.New(a.cfg, log, router)

	// Agent
	if !serveNoAgent {
		if err := a.agent.Start(ctx); err != nil {
			// 스케줄러 실패는 서버를 멈추지 않음
			log.WithError(err).Error("Agent started without scheduler")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			a.agent.Stop()
			return err
		}
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.agent.Stop()
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
