package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/api"
	"github.com/charlesng35/doctracker/internal/app"
	"github.com/charlesng35/doctracker/internal/app/maintenance"
	iauth "github.com/charlesng35/doctracker/internal/auth"
	"github.com/charlesng35/doctracker/internal/cache"
	"github.com/charlesng35/doctracker/internal/database"
	"github.com/charlesng35/doctracker/internal/reminders"
	"github.com/charlesng35/doctracker/pkg/logger"
	"github.com/charlesng35/doctracker/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisClient
	Cache     cache.Store
	Store     *reminders.SQLStore
	Engine    *reminders.Engine
	Scheduler *maintenance.Scheduler
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, cache, reminder engine, background jobs and HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			if shutdownErr := stack.Shutdown(context.Background()); shutdownErr != nil {
				log.Warn("partial bootstrap cleanup", zap.Error(shutdownErr))
			}
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Cache = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
			stack.Redis = nil
		} else {
			stack.Cache = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Store, err = reminders.NewSQLStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise reminder store: %w", err)
	}

	smtpMailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp delivery disabled; reminder dispatches will be reported as errors")
	}

	authorizer, err := reminders.NewAuthorizer(cfg.ReminderAuthConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise scheduler auth: %w", err)
	}
	if authorizer.Mode() == reminders.AuthPermissive {
		log.Warn("scheduler endpoints accept unauthenticated requests", zap.String("mode", string(authorizer.Mode())))
	}

	engineCfg, err := cfg.Reminders.EngineConfig()
	if err != nil {
		return nil, err
	}

	stack.Engine, err = reminders.NewEngine(reminders.Dependencies{
		Loader:     stack.Store,
		Resolver:   stack.Store,
		Ledger:     stack.Store,
		Recorder:   stack.Store,
		Mailer:     reminders.NewResilientMailer(smtpMailer, cfg.Reminders.DeliveryConfig()),
		Locks:      stack.Cache,
		Authorizer: authorizer,
	}, engineCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise reminder engine: %w", err)
	}

	opts := []maintenance.Option{
		maintenance.WithLedgerRetention(stack.Store, cfg.Reminders.LedgerRetention()),
		maintenance.WithCachePurge(dbStore),
		maintenance.WithLocation(engineCfg.Location),
	}
	if cfg.Reminders.Schedule.Enabled {
		opts = append(opts, maintenance.WithReminderRuns(stack.Engine, cfg.Reminders.Schedule.Spec))
		log.Info("built-in reminder schedule enabled", zap.String("spec", cfg.Reminders.Schedule.Spec))
	}
	stack.Scheduler = maintenance.NewScheduler(opts...)
	if err := stack.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:     stack.DB,
		JWT:    jwtSvc,
		Config: cfg,
		Engine: stack.Engine,
		Store:  stack.Store,
		Cache:  stack.Cache,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs, runs a final retention pass and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs error

	if s.Scheduler != nil {
		stopCtx := s.Scheduler.Stop()
		<-stopCtx.Done()
		if err := s.Scheduler.RunOnce(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance shutdown cleanup: %w", err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if s.DB != nil {
		if err := closeDatabase(s.DB); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseConnConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	driver := strings.TrimSpace(dbCfg.Driver)
	if driver == "" {
		driver = "sqlite"
	}
	logger.WithModule("database").Info("database connected", zap.String("driver", driver))

	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db for closing: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
