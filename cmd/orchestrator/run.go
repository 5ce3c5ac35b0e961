package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispatcher, the sweeps and the ops endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done := setup()
		defer done()

		zap.S().Info("starting orchestrator")
		defer zap.S().Info("orchestrator stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		rt, err := service.Bootstrap(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("initializing orchestrator", "error", err)
		}
		defer rt.Close()

		server, err := newOpsServer(cfg.Service.OpsAddress, cfg.Service.LogLevel, rt.Store)
		if err != nil {
			zap.S().Fatalw("creating ops server", "error", err)
		}

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			defer cancel()
			if err := server.Run(ctx); err != nil {
				zap.S().Errorw("ops server stopped", "error", err)
			}
		}()
		go func() {
			defer wg.Done()
			rt.Sweeper.Start(ctx)
		}()
		go func() {
			defer wg.Done()
			defer cancel()
			if err := rt.Dispatcher.Run(ctx); err != nil {
				zap.S().Errorw("dispatcher stopped", "error", err)
			}
		}()

		<-ctx.Done()
		wg.Wait()
		return nil
	},
}
