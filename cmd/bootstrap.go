package cmd

import (
	"context"
	"time"

	"example.com/jonoshongjog/services/relief/config"
	"example.com/jonoshongjog/services/relief/internal/auth"
	"example.com/jonoshongjog/services/relief/internal/cache"
	"example.com/jonoshongjog/services/relief/internal/chat"
	"example.com/jonoshongjog/services/relief/internal/database"
	"example.com/jonoshongjog/services/relief/internal/messaging"
	"example.com/jonoshongjog/services/relief/internal/metrics"
	"example.com/jonoshongjog/services/relief/internal/notify"
	"example.com/jonoshongjog/services/relief/internal/search"
	"example.com/jonoshongjog/services/relief/internal/services"
	"example.com/jonoshongjog/services/relief/internal/socket"
	"example.com/jonoshongjog/services/relief/internal/storage"
	"example.com/jonoshongjog/services/relief/internal/tracing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// runtime holds every collaborator the commands share
type runtime struct {
	cfg        config.Config
	db         *gorm.DB
	readOnlyDB *gorm.DB
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
	cache      *cache.RedisCache
	elastic    *search.ElasticClient
	bus        *azservicebus.Client
	publisher  *messaging.Publisher
	hub        *socket.Hub
	tokens     *auth.TokenIssuer

	auth       *services.AuthService
	donations  *services.DonationService
	requests   *services.RequestService
	volunteers *services.VolunteerService
	matching   *services.MatchingService
	deliveries *services.DeliveryService
}

// bootstrap connects to the stores and builds the services. Optional
// integrations that fail to start are logged and left out.
func bootstrap(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, hub: socket.NewHub()}

	if cfg.MetricsEnabled {
		rt.metrics = metrics.NewMetrics()
	}

	var err error
	rt.db, rt.readOnlyDB, err = database.Connect(cfg.DB, rt.metrics)
	if err != nil {
		return nil, err
	}
	rt.setHealth("database", true)

	rt.tracer, err = tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		rt.tracer = tracing.NewNoopTracer()
	}

	rt.cache, err = cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		rt.cache = nil
	}
	if cfg.Redis.Enabled {
		rt.setHealth("redis", rt.cache.Enabled())
	}

	if cfg.Elastic.Enabled {
		rt.elastic, err = search.NewElasticClient(cfg.Elastic)
		if err == nil {
			err = rt.elastic.EnsureIndices(ctx)
		}
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
			rt.elastic = nil
		}
		rt.setHealth("elasticsearch", rt.elastic != nil)
	}

	if cfg.Azure.QueueConnStr != "" {
		rt.bus, err = messaging.NewClient(cfg.Azure)
		if err == nil {
			rt.publisher, err = messaging.NewPublisher(rt.bus, cfg.Azure.EventsQueueName, "relief-api")
		}
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Azure Service Bus, continuing without event publishing")
			rt.publisher = nil
		}
		rt.setHealth("servicebus", rt.publisher != nil)
	}

	deps := services.Dependencies{
		DB:         rt.db,
		ReadOnlyDB: rt.readOnlyDB,
		Notifier:   rt.notifier(),
		Metrics:    rt.metrics,
		Tracer:     rt.tracer,
	}
	if rt.cache.Enabled() {
		deps.Cache = rt.cache
	}
	if rt.elastic != nil {
		deps.Indexer = rt.elastic
		deps.Searcher = rt.elastic
	}
	if cfg.Storage.Bucket != "" {
		uploader, err := storage.NewUploader(ctx, cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize S3 uploader, proof uploads disabled")
		} else {
			deps.Proofs = uploader
		}
	}

	rt.tokens = auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	rt.auth = services.NewAuthService(deps, rt.tokens, cfg.Auth.BcryptCost)
	rt.donations = services.NewDonationService(deps)
	rt.requests = services.NewRequestService(deps)
	rt.volunteers = services.NewVolunteerService(deps)
	rt.matching = services.NewMatchingService(deps, rt.volunteers)
	rt.deliveries = services.NewDeliveryService(deps, rt.volunteers)

	return rt, nil
}

// notifier fans events out to every configured channel
func (rt *runtime) notifier() notify.Notifier {
	multi := notify.NewMulti().Add("websocket", rt.hub)
	if rt.publisher != nil {
		multi.Add("servicebus", rt.publisher)
	}
	if rt.cfg.Telegram.Token != "" {
		bot, err := notify.NewTelegram(rt.cfg.Telegram.Token, rt.cfg.Telegram.VolunteerChat)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Telegram bot, continuing without group notifications")
		} else {
			multi.Add("telegram", bot)
		}
	}
	return multi
}

// chatService builds the assistant proxy with Redis-backed sessions when available
func (rt *runtime) chatService() (*chat.Service, *chat.MemoryStore) {
	agent := chat.NewHTTPAgent(rt.cfg.Chat.AgentURL, rt.cfg.Chat.AgentKey, rt.cfg.Chat.Timeout)

	if rt.cache.Enabled() {
		store := chat.NewRedisStore(rt.cache, rt.cfg.Chat.SessionTTL)
		return chat.NewService(agent, store, rt.metrics, rt.cfg.Chat.MaxHistory), nil
	}
	memory := chat.NewMemoryStore(rt.cfg.Chat.SessionTTL)
	return chat.NewService(agent, memory, rt.metrics, rt.cfg.Chat.MaxHistory), memory
}

func (rt *runtime) setHealth(component string, healthy bool) {
	if rt.metrics != nil {
		rt.metrics.SetHealth(component, healthy)
	}
}

// close releases connections in reverse order of creation
func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if rt.publisher != nil {
		if err := rt.publisher.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close Service Bus sender")
		}
	}
	if rt.bus != nil {
		if err := rt.bus.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close Service Bus client")
		}
	}
	if rt.cache.Enabled() {
		if err := rt.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis connection")
		}
	}
	rt.tracer.Close()

	for _, db := range []*gorm.DB{rt.readOnlyDB, rt.db} {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		if rt.readOnlyDB == rt.db {
			break
		}
	}
}
