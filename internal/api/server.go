package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"example.com/jonoshongjog/services/relief/config"
	"example.com/jonoshongjog/services/relief/internal/api/handlers"
	"example.com/jonoshongjog/services/relief/internal/api/middleware"
	"example.com/jonoshongjog/services/relief/internal/auth"
	"example.com/jonoshongjog/services/relief/internal/chat"
	"example.com/jonoshongjog/services/relief/internal/metrics"
	"example.com/jonoshongjog/services/relief/internal/services"
	"example.com/jonoshongjog/services/relief/internal/socket"
	"example.com/jonoshongjog/services/relief/internal/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var registerValidations sync.Once

// Dependencies are the services the HTTP layer exposes
type Dependencies struct {
	Tokens     *auth.TokenIssuer
	Auth       *services.AuthService
	Donations  *services.DonationService
	Requests   *services.RequestService
	Matching   *services.MatchingService
	Deliveries *services.DeliveryService
	Volunteers *services.VolunteerService
	Chat       *chat.Service
	Hub        *socket.Hub
	Metrics    *metrics.Metrics
	Tracer     tracing.Tracer
}

// Server represents the HTTP server
type Server struct {
	config     config.Config
	deps       Dependencies
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Dependencies) *Server {
	if deps.Tracer == nil {
		deps.Tracer = tracing.NewNoopTracer()
	}
	server := &Server{
		config: cfg,
		deps:   deps,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	registerValidations.Do(func() {
		if err := handlers.RegisterValidations(); err != nil {
			log.Error().Err(err).Msg("Failed to register custom validations")
		}
	})

	if s.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(s.deps.Metrics))

	if app := s.deps.Tracer.Application(); app != nil {
		router.Use(middleware.NewRelic(app))
	}

	if s.config.Server.CorsEnabled {
		router.Use(cors.New(corsConfig(s.config.Server.CorsOrigins)))
	}

	responder := handlers.Responder{Production: s.config.IsProduction()}
	authn := middleware.Authenticate(s.deps.Tokens)

	if s.deps.Metrics != nil {
		handlers.NewMetricsHandler(s.deps.Metrics, s.deps.Tracer).RegisterRoutes(router)
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	v1 := router.Group("/api/v1")
	handlers.NewAuthHandler(responder, s.deps.Auth).RegisterRoutes(v1, authn)
	handlers.NewDonationHandler(responder, s.deps.Donations).RegisterRoutes(v1, authn)
	handlers.NewRequestHandler(responder, s.deps.Requests).RegisterRoutes(v1, authn)
	handlers.NewMatchingHandler(responder, s.deps.Matching).RegisterRoutes(v1, authn)
	handlers.NewDeliveryHandler(responder, s.deps.Deliveries).RegisterRoutes(v1, authn)
	handlers.NewVolunteerHandler(responder, s.deps.Volunteers).RegisterRoutes(v1, authn)

	if s.deps.Chat != nil {
		handlers.NewChatHandler(responder, s.deps.Chat).RegisterRoutes(v1, authn)
	}
	if s.deps.Hub != nil {
		handlers.NewWebSocketHandler(s.deps.Hub, s.deps.Tokens, s.config.Server.CorsOrigins).RegisterRoutes(v1)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.Envelope{Error: "Route not found"})
	})

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowOriginFunc = func(string) bool { return true }
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
