package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"task-board/internal/auth"
	"task-board/internal/config"
	apphttp "task-board/internal/http"
	"task-board/internal/repository/sqldb"
	"task-board/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()
	logger.Infof("connected to %s database", dialect.Name)

	taskRepo := sqldb.NewTaskRepository(db, dialect)
	userRepo := sqldb.NewUserRepository(db, dialect)

	if err := taskRepo.Init(ctx); err != nil {
		logger.Fatalf("init task repository: %v", err)
	}
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	taskService := service.NewTaskService(taskRepo)
	userService := service.NewUserService(userRepo)

	if cfg.Auth.BootstrapEmail != "" && cfg.Auth.BootstrapPassword != "" {
		user, created, err := userService.EnsureUser(ctx, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword)
		if err != nil {
			logger.Fatalf("bootstrap user: %v", err)
		}
		if created {
			logger.WithField("user_id", user.ID).Infof("created bootstrap user %s", user.Email)
		}
	}

	tokens := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Config{
		Tasks:        taskService,
		Users:        userService,
		Tokens:       tokens,
		Gate:         auth.NewGate(tokens, cfg.Auth.CookieName),
		DB:           db,
		SecureCookie: cfg.IsProduction(),
		CORSOrigins:  cfg.Server.CORSOrigins,
		Logger:       logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s (%s)", cfg.Server.Addr, cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
