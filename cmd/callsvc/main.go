package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"
	"ringlink/internal/core/services"
	httphandlers "ringlink/internal/handlers/http"
	"ringlink/internal/infrastructure/gateway"
	"ringlink/internal/infrastructure/media"
	"ringlink/internal/infrastructure/middleware"
	"ringlink/internal/infrastructure/monitoring"
	"ringlink/internal/infrastructure/recording"
	repositories "ringlink/internal/infrastructure/repositories"
	"ringlink/internal/infrastructure/signaling"
	"ringlink/internal/infrastructure/storage"
	"ringlink/pkg/config"
	"ringlink/pkg/logger"
	"ringlink/pkg/tracing"
	"ringlink/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// gatewayLink breaks the construction cycle between the call manager and
// the websocket gateway: the manager needs an event sink and sound player
// before the gateway exists. Events fired before set() are dropped, which
// is safe because no peer can register until the gateway serves.
type gatewayLink struct {
	gw *gateway.Gateway
}

func (l *gatewayLink) set(gw *gateway.Gateway) { l.gw = gw }

func (l *gatewayLink) push(userID domain.UserID, event ports.CallEvent) {
	if l.gw != nil {
		l.gw.PushEvent(userID, event)
	}
}

func (l *gatewayLink) Play(userID domain.UserID, cue string) {
	if l.gw != nil {
		l.gw.Play(userID, cue)
	}
}

func (l *gatewayLink) Stop(userID domain.UserID) {
	if l.gw != nil {
		l.gw.Stop(userID)
	}
}

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/ringlink/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "ringlink-callsvc",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Repositories (Redis with memory fallback)
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	callRepo := repoFactory.CreateCallRepository()
	membershipRepo := repoFactory.CreateMembershipRepository()

	// Demo conversations for memory-backed deployments. Format:
	// RINGLINK_CONVERSATIONS="conv-1:alice,bob;conv-2:alice,carol"
	if mem := repoFactory.MemoryMembership(); mem != nil {
		if seed := os.Getenv("RINGLINK_CONVERSATIONS"); seed != "" {
			for _, conv := range strings.Split(seed, ";") {
				parts := strings.SplitN(conv, ":", 2)
				if len(parts) != 2 {
					continue
				}
				for _, member := range strings.Split(parts[1], ",") {
					mem.AddMember(domain.ConversationID(parts[0]), domain.UserID(member))
				}
			}
		}
	}

	// Signaling bus shares the Redis client with the repositories when
	// available; otherwise calls are signalled in process.
	var bus ports.SignalingBus
	if client := repoFactory.RedisClient(); client != nil {
		bus = signaling.NewRedisBus(client, log)
	} else {
		bus = signaling.NewMemoryBus(log)
	}

	// Media
	devices := media.NewSyntheticDevices(cfg.Devices.DenyCapture, log)

	mediaCfg := media.DefaultConfig()
	if len(cfg.WebRTC.ICEServers) > 0 {
		var iceServers []webrtc.ICEServer
		for _, s := range cfg.WebRTC.ICEServers {
			iceServers = append(iceServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
		mediaCfg.ICEServers = iceServers
	}

	sessionFactory := func(self domain.UserID) ports.MediaSession {
		return media.NewSession(mediaCfg, devices, self, log)
	}

	// Recording
	var recorder ports.Recorder
	if cfg.Recording.Enabled {
		store, err := storage.NewFileStore(cfg.Recording.Dir, cfg.Recording.PublicBaseURL, log)
		if err != nil {
			log.Fatalw("failed to create recording store", "error", err)
		}
		recorder = recording.NewMixer(store, callRepo, log)
	}

	// Monitoring
	var metrics services.CallMetrics
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	// Call manager wired through the late-bound gateway link
	link := &gatewayLink{}
	callManager := services.NewCallManager(
		callRepo,
		membershipRepo,
		bus,
		sessionFactory,
		recorder,
		link,
		link.push,
		metrics,
		cfg.Call.RingTimeout,
		cfg.Call.TickInterval,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := callManager.Start(ctx); err != nil {
		log.Fatalw("failed to start call manager", "error", err)
	}

	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		membershipRepo,
	)

	gw := gateway.NewGateway(authService, callManager, cfg.Gateway.PingInterval, cfg.Gateway.PongTimeout, log)
	if cfg.RateLimiting.Enabled {
		gw.SetMessageRateLimit(cfg.RateLimiting.WebSocket.MessagesPerSecond, cfg.RateLimiting.WebSocket.Burst)
	}
	link.set(gw)

	// Health checks
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("repositories", repoFactory.HealthCheck, 2*time.Second)

	// HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService)
	callHandler := httphandlers.NewCallHandler(callManager)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	authHandler.SetupRoutes(router)
	callHandler.SetupRoutes(router, authService)

	router.GET("/ws", gin.WrapF(gw.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status.Status,
			"timestamp": status.Timestamp,
			"uptime":    utils.FormatDuration(time.Since(startTime)),
			"checks":    status.Checks,
		})
	})

	if cfg.Recording.Enabled {
		router.Static("/recordings", cfg.Recording.Dir)
	}

	// Prometheus metrics on a dedicated listener
	if cfg.Monitoring.PrometheusEnabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			log.Infow("Prometheus metrics enabled", "address", addr)
			if err := http.ListenAndServe(addr, metricsMux); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting RingLink call server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down RingLink call server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	cancel()

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("RingLink call server stopped")
}
