// retrainctl is the automated model-retraining control plane: it receives
// drift alerts over HTTP, debounces and schedules them, and runs each
// approved attempt through training, validation, comparison and promotion or
// rollback.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/collaborators"
	"github.com/apexflow/retrainctl/internal/config"
	"github.com/apexflow/retrainctl/internal/deployment"
	"github.com/apexflow/retrainctl/internal/ledger"
	"github.com/apexflow/retrainctl/internal/listener"
	"github.com/apexflow/retrainctl/internal/notify"
	"github.com/apexflow/retrainctl/internal/orchestration"
	"github.com/apexflow/retrainctl/internal/resource"
	"github.com/apexflow/retrainctl/internal/scheduler"
	"github.com/apexflow/retrainctl/internal/validation"
	"github.com/apexflow/retrainctl/pkg/logger"
)

type alertRequest struct {
	FeatureID string  `json:"feature_id"`
	Severity  float64 `json:"severity" binding:"required"`
	TriggerID string  `json:"trigger_id" binding:"required"`
}

func main() {
	configPath := flag.String("config", "", "path to YAML configuration")
	dataDir := flag.String("data-dir", "data/raw", "session data directory")
	registryDir := flag.String("registry-dir", "registry", "model registry directory")
	trainCommand := flag.String("train-command", "", "external training command")
	trainOutput := flag.String("train-output", "training_result.json", "training result path")
	circuit := flag.String("circuit", "unknown", "circuit the model is being retrained for")
	flag.Parse()

	log := logger.New("info")
	cfg := config.Load(*configPath, log)
	log = logger.New(cfg.LogLevel)
	defer log.Sync() //nolint:errcheck

	db, err := ledger.Open(cfg.LedgerDSN)
	if err != nil {
		log.Fatal("ledger_open_failed", zap.Error(err))
	}
	triggers := ledger.NewTriggerLedger(db)
	retrains := ledger.NewRetrainLog(db)
	stable := ledger.NewStableStore(db)
	attempts := ledger.NewAttemptStore(db)

	journal, err := resource.OpenJournal(cfg.Resource.JournalDir)
	if err != nil {
		log.Fatal("job_journal_open_failed", zap.Error(err))
	}
	defer journal.Close() //nolint:errcheck

	manager := resource.NewManager(cfg.Resource, resource.NewSystemProbe(), journal, log)
	notifier := notify.New(cfg.Notify, log)
	optimizer := scheduler.New(cfg.Optimizer, retrains, log)

	registry := &collaborators.FileRegistry{Dir: *registryDir, Logger: log}
	gate := validation.NewGate(cfg.Validation.SignificanceLevel,
		&validation.FileBaselineSource{Path: cfg.Validation.BaselinePath}, log)
	comparator := validation.NewComparator(cfg.Validation.ImprovementThreshold, registry, log)
	rollback := deployment.NewRollbackManager(stable, registry, log)

	readiness := &collaborators.DirReadinessChecker{
		Dir:             *dataDir,
		RequiredColumns: []string{"lap_time", "session_id", "driver"},
		Logger:          log,
	}
	trainer := &collaborators.ExecTrainer{
		Command:    *trainCommand,
		OutputPath: *trainOutput,
		Logger:     log,
	}
	slices := &collaborators.CSVSliceProvider{
		HoldoutX: "data/validation/holdout_X.csv",
		HoldoutY: "data/validation/holdout_y.csv",
		RecentX:  "data/validation/recent_X.csv",
		RecentY:  "data/validation/recent_y.csv",
	}

	flow := orchestration.NewFlow(optimizer, readiness, trainer, slices,
		gate, comparator, rollback, notifier, attempts, log)

	newJob := func(severity float64, triggerID string) *resource.Job {
		return &resource.Job{
			ID:        uuid.NewString(),
			TriggerID: triggerID,
			Priority:  listener.PriorityForSeverity(severity),
			Run: func(ctx context.Context) error {
				flow.Run(ctx, severity, triggerID, seasonOf(time.Now()), *circuit)
				return nil
			},
		}
	}
	drift := listener.New(cfg.Listener, triggers, manager, newJob, log)

	manager.Start()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/v1/alerts", func(c *gin.Context) {
		var req alertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		scheduled := drift.HandleAlert(c.Request.Context(), req.Severity, req.TriggerID)
		c.JSON(http.StatusOK, gin.H{"scheduled": scheduled})
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}
	go func() {
		log.Info("alert_intake_listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http_server_failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http_shutdown_failed", zap.Error(err))
	}
	if err := manager.Shutdown(ctx); err != nil {
		log.Error("manager_shutdown_failed", zap.Error(err))
	}
}

// seasonOf derives the season identifier from the wall clock when the alert
// does not carry one.
func seasonOf(t time.Time) string {
	return t.UTC().Format("2006")
}
