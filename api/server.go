package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/CIRISAI/CIRISBridge/api/handlers"
	"github.com/CIRISAI/CIRISBridge/api/middleware"
	"github.com/CIRISAI/CIRISBridge/api/websocket"
	_ "github.com/CIRISAI/CIRISBridge/docs"
	"github.com/CIRISAI/CIRISBridge/internal/alerting"
	"github.com/CIRISAI/CIRISBridge/internal/auth"
	"github.com/CIRISAI/CIRISBridge/internal/baseline"
	"github.com/CIRISAI/CIRISBridge/internal/detector"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/pkg/config"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Engine is what the API needs from the running orchestrator.
type Engine interface {
	handlers.ReadinessChecker
	handlers.StatusProvider
	Manager() *alerting.Manager
	Detector() *detector.Detector
	Baselines() *baseline.Store
	Metrics() *metrics.Metrics
	TriggerBaselineRecompute() error
	SubscribeAllEvents() <-chan *models.Event
	UnsubscribeEvents(ch <-chan *models.Event)
}

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.APIConfig
	prometheus  bool
	engine      Engine
	users       handlers.UserStore
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
	events      <-chan *models.Event
}

// NewServer wires the HTTP surface over engine. users may be nil when
// authentication is disabled.
func NewServer(cfg *config.Config, engine Engine, users handlers.UserStore) *Server {
	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	authService := auth.NewService(cfg.API.JWTSecret, cfg.API.JWTDuration, auth.WithIssuer(cfg.API.JWTIssuer))
	wsHub := websocket.NewHub(&cfg.WebSocket)

	s := &Server{
		router:      router,
		config:      cfg.API,
		prometheus:  cfg.Prometheus.Enabled,
		engine:      engine,
		users:       users,
		authService: authService,
		wsHub:       wsHub,
	}

	s.setupMiddleware()
	s.setupRoutes()

	go wsHub.Run()

	s.events = engine.SubscribeAllEvents()
	s.wsBridge = websocket.NewEventBridge(wsHub, s.events)
	s.wsBridge.Start()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(s.config.CORS))
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxBodyBytes))

	rateLimiter := middleware.NewRateLimiter(s.config.RateLimit, time.Minute)
	s.router.Use(middleware.RateLimit(rateLimiter))
}

func (s *Server) setupRoutes() {
	limits := handlers.Limits{Default: s.config.DefaultLimit, Max: s.config.MaxLimit}
	manager := s.engine.Manager()

	healthHandler := handlers.NewHealthHandler(s.engine, s.engine)
	anomalyHandler := handlers.NewAnomalyHandler(manager, limits, nil)
	alertHandler := handlers.NewAlertHandler(manager, limits, nil)
	baselineHandler := handlers.NewBaselineHandler(s.engine.Baselines(), s.engine.TriggerBaselineRecompute)
	ruleHandler := handlers.NewRuleHandler(s.engine.Detector(), manager)

	// Public routes
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if s.prometheus {
		s.router.GET("/metrics", gin.WrapH(s.engine.Metrics().Handler()))
	}

	protected := s.router.Group("/")
	if s.config.AuthEnabled && s.users != nil {
		authHandler := handlers.NewAuthHandler(s.users, s.authService)
		s.router.POST("/auth/login", middleware.AuthRateLimiter(), authHandler.Login)
		protected.Use(middleware.JWTAuth(s.authService))
	}

	recomputeLimiter := middleware.NewEndpointRateLimiter()
	recomputeLimiter.AddEndpoint("/baselines/recompute", 2, time.Minute)

	{
		protected.GET("/ws", websocket.ServeWebSocket(s.wsHub))

		protected.GET("/anomalies", anomalyHandler.List)
		protected.GET("/anomalies/:id", anomalyHandler.Get)
		protected.POST("/anomalies/:id/acknowledge", anomalyHandler.Acknowledge)
		protected.POST("/anomalies/:id/resolve", anomalyHandler.Resolve)
		protected.POST("/anomalies/:id/false-positive", anomalyHandler.FalsePositive)
		protected.POST("/anomalies/:id/feedback", anomalyHandler.SubmitFeedback)
		protected.GET("/anomalies/:id/feedback", anomalyHandler.ListFeedback)

		protected.GET("/alerts", alertHandler.List)

		protected.GET("/baselines", baselineHandler.List)
		protected.POST("/baselines/recompute", recomputeLimiter.Middleware(), baselineHandler.Recompute)

		protected.GET("/rules", ruleHandler.List)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.wsBridge.Stop()
	s.engine.UnsubscribeEvents(s.events)
	s.wsHub.Stop()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}
