package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/jonoshongjog/services/relief/internal/api"
	"example.com/jonoshongjog/services/relief/internal/chat"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API serving donations, relief requests, matching, deliveries and chat`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	chatService, memory := rt.chatService()

	server := api.NewServer(cfg, api.Dependencies{
		Tokens:     rt.tokens,
		Auth:       rt.auth,
		Donations:  rt.donations,
		Requests:   rt.requests,
		Matching:   rt.matching,
		Deliveries: rt.deliveries,
		Volunteers: rt.volunteers,
		Chat:       chatService,
		Hub:        rt.hub,
		Metrics:    rt.metrics,
		Tracer:     rt.tracer,
	})

	scheduler, err := sessionJanitor(memory, cfg.Chat.SessionTTL)
	if err != nil {
		return err
	}
	if scheduler != nil {
		scheduler.Start()
		defer func() {
			if err := scheduler.Shutdown(); err != nil {
				log.Warn().Err(err).Msg("Failed to stop session janitor")
			}
		}()
	}

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			stop()
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

// sessionJanitor evicts idle in-process chat sessions; Redis expires its own keys
func sessionJanitor(memory *chat.MemoryStore, ttl time.Duration) (gocron.Scheduler, error) {
	if memory == nil {
		return nil, nil
	}

	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := memory.EvictExpired(); n > 0 {
				log.Debug().Int("evicted", n).Int("remaining", memory.Len()).Msg("Evicted idle chat sessions")
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}
