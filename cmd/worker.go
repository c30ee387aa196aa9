package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume analysis tasks from the queue",
	Run: func(cmd *cobra.Command, _ []string) {
		worker(cmd)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().IntP("workers", "w", 0, "number of concurrent analyses (overrides jobs.workers)")
	viper.BindPFlag("jobs.workers", workerCmd.Flags().Lookup("workers"))
}

func worker(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup(cmd.Name())
	defer logger.Sync()

	if config.Queue.Driver == "" || config.Queue.Driver == queue.DriverMemory {
		logger.Fatal("worker needs a shared queue",
			zap.String("hint", "set queue.driver to redis or rabbitmq, or use the serve command"),
		)
	}

	p, err := newPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the analysis pipeline", zap.Error(err))
	}
	defer p.Close()

	if err := p.runner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("running workers", zap.Error(err))
	}

	logger.Info("workers stopped")
}
