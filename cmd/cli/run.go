package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/handlers"
	"dealflow/internal/models"
	"dealflow/internal/observability"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dealflow HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := LoadConfig()
		return Serve(cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// Serve wires storage, automation and HTTP, then blocks until SIGINT/SIGTERM.
func Serve(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg, Version)
	if err != nil {
		log.Warnf("init tracing: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ruleService := services.NewAutomationRuleService(db, log)
	dealService := services.NewDealService(db, log)
	taskService := services.NewTaskService(db, log)

	var sink services.TaskSink = taskService
	var breakerSink *services.BreakerSink
	if cb := cfg.Automation.CircuitBreaker; cb.Enabled {
		breakerSink = services.NewBreakerSink(taskService, services.NewCircuitBreaker(services.CircuitBreakerConfig{
			MaxFailures:     cb.MaxFailures,
			ResetTimeout:    cb.ResetTimeout,
			HalfOpenMaxReqs: cb.HalfOpenMaxReqs,
		}))
		sink = breakerSink
	}

	hub := services.NewNotificationHub(log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	registry := services.NewAutomationRegistry(ruleService, dealService, sink, services.AutomationRegistryConfig{
		SweepEnabled: cfg.Automation.Enabled,
		Sweep: services.SweepSchedule{
			InitialDelay: cfg.Automation.SweepInitialDelay,
			Interval:     cfg.Automation.SweepInterval,
		},
		RuleRefreshInterval: cfg.Automation.RuleRefreshInterval,
	}, log)
	registry.Subscribe(hub.PublishTaskCreated)
	if cfg.Automation.Enabled {
		dealService.SetEventListener(registry)
		// also loads engines for workspaces with stale rules so idle deals get swept
		registry.StartRuleRefresher()
	} else {
		log.Warn("automation disabled: deal events will not create tasks")
	}

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(cfg, handlers.RouterDeps{
		DB:       db,
		Rules:    ruleService,
		Deals:    dealService,
		Tasks:    taskService,
		Registry: registry,
		Sink:     breakerSink,
		Hub:      hub,
		Logger:   log,
		Version:  Version,

		AccessLog: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	// stop sweeps and drain in-flight task submissions before closing the hub
	registry.Close()
	stopHub()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warnf("shutdown tracing: %v", err)
	}
	log.Info("Server exited")
	return nil
}
