package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/realtime"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/poll-ledger/internal/config"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/core/services"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	var (
		concurrency int
		repair      bool
		timeout     time.Duration
	)
	flag.IntVar(&concurrency, "concurrency", cfg.Reconcile.Concurrency, "Polls checked in parallel")
	flag.BoolVar(&repair, "repair", cfg.Reconcile.Repair, "Rewrite drifted counters from the ledger")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Job timeout")
	flag.Parse()

	l := logger.New(cfg.Server.Environment)
	defer l.Sync()

	db, err := sql.Open("postgres", cfg.Database.ConnString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	retry := postgres.NewRetrier(cfg.Database.RetryMaxElapsed, nil)
	pollRepo := postgres.NewPollRepository(db, retry)
	tallyRepo := postgres.NewTallyRepository(db, retry)

	// Repaired polls reach live viewers only through redis; the job has no
	// local subscribers.
	var publisher ports.Publisher
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		publisher = realtime.NewRedisPublisher(rdb)
	}

	tallyService := services.NewTallyService(pollRepo, tallyRepo, publisher, services.TallyOptions{
		Concurrency: concurrency,
		Repair:      repair,
	}, l, nil)

	// Use a timeout for the job execution to prevent it from hanging indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	l.Infof("Starting tally reconciliation...")

	drifts, err := tallyService.Reconcile(ctx)
	if err != nil {
		l.Logger.Fatal("reconciliation failed", zap.Error(err))
	}

	l.Logger.Info("reconciliation completed", zap.Int("drifted_counters", len(drifts)), zap.Bool("repaired", repair))
}
