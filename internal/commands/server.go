package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"evalgo.org/nspawnium/internal/api"
	"evalgo.org/nspawnium/internal/forwards"
	"evalgo.org/nspawnium/internal/hostinfo"
	"evalgo.org/nspawnium/internal/invoker"
	"evalgo.org/nspawnium/internal/jobs"
	"evalgo.org/nspawnium/internal/lifecycle"
	"evalgo.org/nspawnium/internal/logging"
	"evalgo.org/nspawnium/internal/provision"
	"evalgo.org/nspawnium/internal/rootfs"
	"evalgo.org/nspawnium/internal/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long:  `Start the container orchestration daemon and its HTTP API`,
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	log := logging.New(cfg.Logging)

	inv := invoker.NewHost(log)

	store, err := storage.New(cfg.Paths.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := jobs.NewRegistry(log)
	inspector := hostinfo.New(cfg.Paths.MachinesDir, cfg.Network.Bridge, log)
	controller := lifecycle.NewController(inv, store, cfg.Paths.MachinesDir, cfg.Paths.UnitsDir, log)
	mutator := rootfs.NewMutator(inv, log)

	pipeline := provision.New(provision.Options{
		Invoker:     inv,
		Mutator:     mutator,
		Registry:    registry,
		Inspector:   inspector,
		Starter:     controller,
		Records:     store,
		Secrets:     inv,
		MachinesDir: cfg.Paths.MachinesDir,
		UnitsDir:    cfg.Paths.UnitsDir,
		Bridge:      cfg.Network.Bridge,
		Logger:      log,
	})

	fwd, err := forwards.NewStore(cfg.Paths.ForwardsPath(), inv, controller, log)
	if err != nil {
		return fmt.Errorf("failed to load port forwards: %w", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	// Re-apply persisted forward rules after a reboot dropped them.
	fwd.Reconcile(ctx)

	// Drop expired creation jobs on a ticker.
	go func() {
		ticker := time.NewTicker(cfg.Jobs.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				registry.Sweep(cfg.Jobs.TTL)
			}
		}
	}()

	server := api.New(cfg, log, api.Deps{
		Pipeline:  pipeline,
		Registry:  registry,
		Lifecycle: controller,
		Forwards:  fwd,
		Inspector: inspector,
		Invoker:   inv,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}
