package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/jonoshongjog/services/relief/internal/messaging"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to apply volunteer location updates and keep the search index in step`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	if rt.bus != nil {
		consumer := messaging.NewConsumer(rt.bus, cfg.Azure.LocationQueueName,
			messaging.NewLocationHandler(rt.deliveries, rt.metrics))
		g.Go(func() error {
			log.Info().Str("queue", cfg.Azure.LocationQueueName).Msg("Starting volunteer location consumer")
			return consumer.Run(ctx)
		})
	} else {
		log.Warn().Msg("Azure Service Bus not configured, location updates will not be consumed")
	}

	if rt.elastic != nil {
		g.Go(func() error {
			log.Info().Dur("interval", cfg.Worker.ReindexInterval).Msg("Starting search reindex job")

			scheduler, err := gocron.NewScheduler()
			if err != nil {
				return err
			}

			_, err = scheduler.NewJob(
				gocron.DurationJob(cfg.Worker.ReindexInterval),
				gocron.NewTask(func() { reindex(ctx, rt, cfg.Worker.ReindexBatch) }),
				gocron.WithSingletonMode(gocron.LimitModeReschedule),
			)
			if err != nil {
				return err
			}

			scheduler.Start()
			<-ctx.Done()
			return scheduler.Shutdown()
		})
	}

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

func reindex(ctx context.Context, rt *runtime, batch int) {
	donations, err := rt.donations.Reindex(ctx, batch)
	if err != nil {
		log.Error().Err(err).Int("indexed", donations).Msg("Failed to reindex donations")
	}
	requests, err := rt.requests.Reindex(ctx, batch)
	if err != nil {
		log.Error().Err(err).Int("indexed", requests).Msg("Failed to reindex relief requests")
	}
	log.Info().Int("donations", donations).Int("requests", requests).Msg("Search reindex finished")
}
