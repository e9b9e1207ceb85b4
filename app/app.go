package app

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/libris/borrow-service/config"
	"github.com/libris/borrow-service/internal/handler"
	"github.com/libris/borrow-service/internal/metrics"
	"github.com/libris/borrow-service/internal/notify"
	"github.com/libris/borrow-service/internal/overdue"
	"github.com/libris/borrow-service/internal/repository"
	"github.com/libris/borrow-service/internal/server"
	"github.com/libris/borrow-service/internal/service"
	"github.com/libris/borrow-service/internal/service/checkout"
	"github.com/libris/borrow-service/migrations"
	"github.com/libris/borrow-service/pkg/kafka"
	"github.com/libris/borrow-service/pkg/logger"
	"github.com/libris/borrow-service/pkg/postgres"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "borrow")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo %v", err)
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("kafka.NewProducer %v", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	notifier := notify.New(producer, log)
	checkoutSvc := checkout.NewService(log, cfg.Checkout)
	svc := service.NewService(repo, checkoutSvc, notifier, m, log)

	scanner := overdue.NewScanner(svc, notifier, m, cfg.Scanner.Period, cfg.Scanner.BatchSize, log)

	h := handler.New(svc, svc, svc, cfg.Auth, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		scanner.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Debug("Graceful shutdown")

		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := srv.Stop(closeCtx); err != nil {
			log.Error("srv.Stop", zap.Error(err))
		}
		if err := producer.Close(); err != nil {
			log.Error("producer.Close", zap.Error(err))
		}
		db.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Graceful shutdown finished")
	return nil
}
