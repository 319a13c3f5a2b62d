package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/metrics"
	"github.com/basinrelay/flowgate/pkg/topology"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a standalone router from a topology config file",
	Long: `Run builds the topology.Graph described by the given config
file, starts every source, transform, and sink it declares, and serves
Prometheus metrics and health endpoints until interrupted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "topology config file (required)")
	runCmd.Flags().String("metrics-addr", ":9090", "address to serve /metrics, /health, /ready, /live on")
	runCmd.Flags().Duration("stats-interval", 5*time.Second, "interval between edge stats collections")
	runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	statsInterval, _ := cmd.Flags().GetDuration("stats-interval")

	g, err := loadGraph(file)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid topology: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := topology.Build(ctx, g, topology.Options{
		ComponentStopTimeout: 30 * time.Second,
		DrainTimeout:         10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("build topology: %w", err)
	}

	metrics.SetVersion(Version)
	for id := range g.Nodes {
		metrics.RegisterComponent(id, true, "started")
	}

	collector := metrics.NewCollector(topo, statsInterval)
	collector.Start()
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	httpSrv := &http.Server{Addr: metricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	topo.Run(ctx)

	fmt.Printf("flowgate running. %d nodes, metrics on %s\n", len(g.Nodes), metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nshutting down...")
	case err := <-errCh:
		log.Logger.Error().Err(err).Msg("metrics server error")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	topo.Shutdown(shutdownCtx)

	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpShutdownCancel()
	httpSrv.Shutdown(httpShutdownCtx)

	fmt.Println("shutdown complete")
	return nil
}
