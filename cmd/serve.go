package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/resume-screener/internal/api"
	"github.com/spigell/resume-screener/internal/jobs"
	"github.com/spigell/resume-screener/internal/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API together with the analysis workers",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("no-workers", false, "only serve the API; analyses are processed by separate workers")
	serveCmd.Flags().Bool("migrate", false, "apply database migrations before starting")
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup(cmd.Name())
	defer logger.Sync()

	noWorkers, _ := cmd.Flags().GetBool("no-workers")
	runMigrations, _ := cmd.Flags().GetBool("migrate")

	inProcess := config.Queue.Driver == "" || config.Queue.Driver == queue.DriverMemory
	if noWorkers && inProcess {
		logger.Warn("ignoring --no-workers: the memory queue is only consumed in-process")
		noWorkers = false
	}

	p, err := newPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the analysis pipeline", zap.Error(err))
	}
	defer p.Close()

	if runMigrations {
		if err := p.store.Migrate(ctx); err != nil {
			logger.Fatal("migrating the database", zap.Error(err))
		}
	}

	dispatcher := jobs.NewDispatcher(p.store.Analyses, p.store.Resumes, p.store.Roles, p.queue, logger)

	router := api.NewRouter(api.Dependencies{
		Dispatcher: dispatcher,
		Analyses:   p.store.Analyses,
		Resumes:    p.store.Resumes,
		Roles:      p.store.Roles,
		Health:     p.store,
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Serve(gctx, config.HTTP.Addr, router, logger)
	})
	if !noWorkers {
		g.Go(func() error {
			return p.runner.Start(gctx)
		})
	}
	if inProcess {
		// the memory queue loses its tasks on restart
		g.Go(func() error {
			if _, err := dispatcher.RequeueUnfinished(gctx, config.Jobs.Lease()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("requeueing unfinished analyses", zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("serving", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
