package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/internal/audit"
	"github.com/homecarehub/homecare/internal/auth"
	"github.com/homecarehub/homecare/internal/company"
	"github.com/homecarehub/homecare/internal/config"
	"github.com/homecarehub/homecare/internal/database"
	"github.com/homecarehub/homecare/internal/licensing"
	"github.com/homecarehub/homecare/internal/messaging"
	"github.com/homecarehub/homecare/internal/notification"
	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/internal/server"
	"github.com/homecarehub/homecare/internal/staff"
	"github.com/homecarehub/homecare/pkg/logger"
	"github.com/homecarehub/homecare/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	go reportPoolStats(db)

	auditor := audit.NewWriter(log, db)
	defer auditor.Close()

	authSvc, err := auth.NewService(
		log, db,
		auth.NewRedisCodeStore(redisClient),
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.ExpirationHours)*time.Hour,
		cfg.JWT.RefreshSecret,
		time.Duration(cfg.JWT.RefreshExpHours)*time.Hour,
		cfg.JWT.Issuer,
	)
	if err != nil {
		log.Fatal("failed to create auth service", zap.Error(err))
	}

	var mailer notification.Mailer
	if cfg.SMTP.Host != "" {
		mailer = notification.NewSMTPMailer(log, cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.FromAddress)
	}
	notifications := notification.NewService(log, db, notification.NewRedisCounter(redisClient), mailer)

	licensingSvc := licensing.NewService(log, db, auditor, cfg.App.TrialDays)
	companySvc := company.NewService(log, db, auditor, licensingSvc)
	staffSvc := staff.NewService(log, db, auditor, licensingSvc, notifications)
	resolver := scope.NewResolver(log, db)

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = messaging.NewKafkaPublisher(log, cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	defer publisher.Close()

	srv := server.New(log, cfg, db, authSvc, resolver, companySvc, staffSvc, licensingSvc, notifications, publisher)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal("server error", zap.Error(err))
		}
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}

// reportPoolStats exports database pool gauges every 15 seconds.
func reportPoolStats(db *gorm.DB) {
	for {
		time.Sleep(15 * time.Second)
		conn, err := db.DB()
		if err != nil {
			continue
		}
		stats := conn.Stats()
		metrics.DBOpenConns.WithLabelValues("postgres").Set(float64(stats.OpenConnections))
		metrics.DBIdleConns.WithLabelValues("postgres").Set(float64(stats.Idle))
		metrics.DBInUseConns.WithLabelValues("postgres").Set(float64(stats.InUse))
	}
}
