package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/mailarchive/api"
	"github.com/customeros/mailarchive/config"
	"github.com/customeros/mailarchive/internal/cron"
	"github.com/customeros/mailarchive/internal/listeners"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/repository"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/services"
	"github.com/customeros/mailarchive/services/events"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize repositories
	repos := repository.InitRepositories(db)

	// Initialize services
	svcs, err := services.InitServices(context.Background(), cfg, appLogger, repos)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	cronManager := cron.NewCronManager(cfg.CronConfig, appLogger, kubernetesClient(cfg, appLogger), cron.Jobs{
		Poller:   svcs.Poller,
		Store:    svcs.Store,
		Emails:   repos.EmailRepository,
		Pipeline: svcs.Pipeline,
	})

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster, which puts the cron
// manager in local mode.
func kubernetesClient(cfg *config.Config, log logger.Logger) kubernetes.Interface {
	if cfg.AppConfig.PodName == "" {
		return nil
	}
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Warn("Not running in a cluster, leader election disabled", zap.Error(err))
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warn("Failed to create kubernetes client", zap.Error(err))
		return nil
	}
	return client
}

func (s *Server) Initialize(ctx context.Context) error {
	if s.services.EventsService != nil {
		subscriber := s.services.EventsService.Subscriber
		subscriber.RegisterListener(listeners.NewIngestEmailListener(s.log, s.repositories.EmailRepository, s.services.Pipeline))
		if err := subscriber.ListenQueue(events.QueueIngestEmail); err != nil {
			return err
		}
	}

	// Setup API routes
	api.RegisterRoutes(s.router, s.services, s.repositories, s.cronManager, s.config.AppConfig.APIKey)

	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		// Create a new span for the panic
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		// Mark span as failed
		ext.Error.Set(span, true)

		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Error("Panic recovered", zap.String("process", name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Initialize(ctx); err != nil {
		return err
	}

	s.wrapGoroutine("cron_manager", func() {
		if err := s.cronManager.Start(s.config.AppConfig.PodName, s.config.AppConfig.Namespace); err != nil {
			s.log.Error("Cron manager failed to start", zap.Error(err))
		}
	})

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on port %s", s.config.AppConfig.APIPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("HTTP server error", zap.Error(err))
		}
	})
	s.log.Info("Mailarchive is now running")

	return s.waitForShutdown()
}

// waitForShutdown stops intake first, then lets the running refresh-all job
// finish its current email before closing connections.
func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	s.log.Info("Shutting down...")

	timeout := s.config.AppConfig.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP server shutdown error", zap.Error(err))
	}

	s.cronManager.Stop()

	if err := s.services.Jobs.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("Refresh-all job did not finish before the shutdown deadline", zap.Error(err))
	}

	if err := s.services.Close(); err != nil {
		s.log.Error("Failed to close services", zap.Error(err))
	}

	if s.tracerCloser != nil {
		_ = s.tracerCloser.Close()
	}
	_ = s.log.Sync()

	return nil
}
