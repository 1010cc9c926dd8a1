package main

import (
	"context"
	"database/sql"
	"errors"
	stdhttp "net/http"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/handler/http"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/realtime"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/poll-ledger/internal/config"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/core/services"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
	"github.com/vncsmyrnk/poll-ledger/internal/metrics"
	"go.uber.org/zap"
)

type stores struct {
	polls ports.PollRepository
	votes ports.VoteRepository
	close func()
}

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.Server.Environment)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens, err := services.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		log.Logger.Fatal("invalid auth config", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, m)
	if err != nil {
		log.Logger.Fatal("failed to open store", zap.String("store", cfg.Server.Store), zap.Error(err))
	}
	defer st.close()

	broker := services.NewBroker(services.DefaultSubscriberBuffer, log, m)
	defer broker.Close()

	// Without redis, services publish straight into the local broker. With
	// redis, every instance (this one included) receives events via the bridge.
	var publisher ports.Publisher = broker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Logger.Fatal("failed to connect to redis", zap.Error(err))
		}

		publisher = realtime.NewRedisPublisher(rdb)
		bridge := realtime.NewRedisBridge(rdb, broker, log)
		go func() {
			if err := bridge.Run(ctx, nil); err != nil {
				log.Logger.Error("redis bridge stopped", zap.Error(err))
			}
		}()
	}

	pollService := services.NewPollService(st.polls, publisher, log, m)
	voteService := services.NewVoteService(st.votes, publisher, log, m)
	ws := realtime.NewHandler(broker, pollService, log)

	handler := http.NewHandler(http.RouterConfig{
		Log:         log,
		Tokens:      tokens,
		CORSOrigins: cfg.Server.CORSOrigins,
		Gatherer:    reg,
		Realtime:    ws.Connect,
	}, http.NewPollHandler(pollService), http.NewVoteHandler(voteService))
	server := &stdhttp.Server{Addr: cfg.Server.Addr, Handler: handler}

	go func() {
		log.Infof("listening on %s (store=%s)", cfg.Server.Addr, cfg.Server.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Infof("Gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

func openStores(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*stores, error) {
	switch cfg.Server.Store {
	case config.StoreMemory:
		s := memory.NewStore()
		return &stores{polls: s, votes: s, close: func() {}}, nil
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.Database.ConnString())
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		retry := postgres.NewRetrier(cfg.Database.RetryMaxElapsed, m)
		return &stores{
			polls: postgres.NewPollRepository(db, retry),
			votes: postgres.NewVoteRepository(db, retry),
			close: func() { db.Close() },
		}, nil
	default:
		return nil, errors.New("STORE must be postgres or memory")
	}
}
