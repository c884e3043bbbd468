package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hemodialysis-scheduler/internal/cache"
	"hemodialysis-scheduler/internal/config"
	"hemodialysis-scheduler/internal/database"
	"hemodialysis-scheduler/internal/events"
	"hemodialysis-scheduler/internal/handler"
	"hemodialysis-scheduler/internal/logger"
	"hemodialysis-scheduler/internal/repository"
	"hemodialysis-scheduler/internal/repository/memstore"
	"hemodialysis-scheduler/internal/service"
	"hemodialysis-scheduler/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "hemodialysis-scheduler"

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Hemodialysis session scheduling and bed allocation",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the reconciliation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap()
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.worker.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("reconciliation pass failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d transitioned=%d resumed=%d failed=%d\n",
				result.Scanned, result.Transitioned, result.Resumed, result.Failed)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			if cfg.Database.Driver == "memory" {
				return errors.New("nothing to migrate for the memory driver")
			}
			db, err := database.Connect(cfg, log)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Info("migration complete")
			return nil
		},
	}
}

// app holds the wired services shared by the commands
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	redis    *redis.Client
	handlers handler.Handlers
	worker   *service.WorkerService
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.log.Sync()
}

type stores struct {
	sessions  service.SessionStore
	slots     service.SlotStore
	equipment service.EquipmentStore
}

func openStores(cfg *config.Config, log *zap.Logger) (stores, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory store; data is lost on exit")
		mem := memstore.New()
		return stores{sessions: mem, slots: mem, equipment: mem}, nil
	}

	db, err := database.Connect(cfg, log)
	if err != nil {
		return stores{}, err
	}
	if err := database.Migrate(db); err != nil {
		return stores{}, fmt.Errorf("migration failed: %w", err)
	}
	return stores{
		sessions:  repository.NewSessionRepo(db),
		slots:     repository.NewSlotRepo(db),
		equipment: repository.NewEquipmentRepo(db),
	}, nil
}

func bootstrap() (*app, error) {
	// 1. Load configuration
	cfg := config.LoadConfig()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	log.Info("configuration loaded", zap.String("db_driver", cfg.Database.Driver))

	// 2. Initialize JWT validation
	utils.InitJWT(cfg.JWT.AccessSecret)

	// 3. Storage
	st, err := openStores(cfg, log)
	if err != nil {
		return nil, err
	}

	// 4. Redis for the slot cache and events, optional
	rdb, err := database.ConnectRedis(cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	var publisher events.Publisher = events.NopPublisher{}
	if rdb != nil {
		publisher = events.NewRedisPublisher(rdb, cfg.Redis.ChannelPrefix, log)
	}
	slotCache := cache.NewSlotCache(st.slots, rdb, cfg.Redis.SlotCacheTTL, log)

	// 5. Services
	equipmentService := service.NewEquipmentService(st.equipment, publisher, log)
	lifecycleService := service.NewLifecycleService(st.sessions, equipmentService, publisher, cfg.Worker.AutoDischargeWindow, log)
	scheduleService := service.NewScheduleService(st.sessions, slotCache, lifecycleService, log)
	slotService := service.NewSlotService(st.slots, slotCache, log)
	workerService := service.NewWorkerService(st.sessions, lifecycleService, cfg.Worker.Interval, cfg.Worker.Concurrency, log)

	// 6. Handlers
	return &app{
		cfg:   cfg,
		log:   log,
		redis: rdb,
		handlers: handler.Handlers{
			Session: handler.NewSessionHandler(scheduleService, lifecycleService),
			Slot:    handler.NewSlotHandler(slotService, scheduleService),
			Patient: handler.NewPatientHandler(scheduleService, equipmentService),
		},
		worker: workerService,
	}, nil
}

func runServer() error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	// Start the reconciliation loop in a goroutine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.worker.Start(ctx)

	gin.SetMode(a.cfg.Server.GinMode)
	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           handler.SetupRouter(a.cfg, a.handlers, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info("server starting", zap.String("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}
	a.log.Info("shutting down server")

	// Stop the loop before draining requests
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.log.Info("server exited")
	return nil
}
