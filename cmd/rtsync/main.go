// Command rtsync runs the mirror-sync worker and, for local/dev
// testing, the reference manager (spec §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/rtsync/internal/config"
	"github.com/cuemby/rtsync/internal/log"
	"github.com/cuemby/rtsync/internal/manager"
	"github.com/cuemby/rtsync/internal/worker"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "rtsync",
	Short:   "rtsync - distributed mirror-sync worker and manager",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("rtsync version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(managerCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a mirror-sync worker",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringP("config", "c", "/etc/rtsync/worker.toml", "Path to worker config file")
}

// runWorker wires config.Load, worker.New/Start, and the exit-code and
// signal semantics of spec §6: SIGHUP reloads the config file and
// applies it via Worker.Reload; SIGINT/SIGTERM trigger a clean Halt.
func runWorker(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	w, err := worker.New(cfg)
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	log.Logger.Info().Str("config", path).Msg("rtsync worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			newCfg, err := config.Load(path)
			if err != nil {
				log.Logger.Error().Err(err).Msg("rtsync: reload failed, keeping previous config")
				continue
			}
			if err := w.Reload(ctx, newCfg); err != nil {
				log.Logger.Error().Err(err).Msg("rtsync: reload failed")
			} else {
				log.Logger.Info().Msg("rtsync: config reloaded")
			}
		default:
			log.Logger.Info().Str("signal", sig.String()).Msg("rtsync: shutting down")
			w.Halt(ctx)
			return nil
		}
	}
	return nil
}

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run the reference manager",
	Long: `Run the bbolt-backed reference manager implementing the worker
contract of spec §6. Intended for local development and integration
testing of a worker against a real manager, not as a production
deployment recommendation.`,
	RunE: runManager,
}

func init() {
	managerCmd.Flags().String("data-dir", "./rtsync-manager-data", "Directory for the manager's bbolt database")
	managerCmd.Flags().String("listen-addr", "0.0.0.0", "Address to listen on")
	managerCmd.Flags().Int("listen-port", 8090, "Port to listen on")
	managerCmd.Flags().String("token", "", "Bearer token required of workers and clients")
}

func runManager(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	addr, _ := cmd.Flags().GetString("listen-addr")
	port, _ := cmd.Flags().GetInt("listen-port")
	token, _ := cmd.Flags().GetString("token")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := manager.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	srv := manager.NewServer(store, token)
	listen := fmt.Sprintf("%s:%d", addr, port)
	log.Logger.Info().Str("listen", listen).Msg("rtsync reference manager started")

	errCh := make(chan error, 1)
	go func() {
		errCh <- startHTTP(listen, srv)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("rtsync manager: shutting down")
		return nil
	}
}
