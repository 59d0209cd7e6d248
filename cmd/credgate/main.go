package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/log"
	"github.com/layer-3/credgate/adapters/events"
	"github.com/layer-3/credgate/adapters/repository"
	"github.com/layer-3/credgate/adapters/store"
	"github.com/layer-3/credgate/adapters/tokenizer"
	"github.com/layer-3/credgate/internal/config"
	"github.com/layer-3/credgate/ports"
	"github.com/layer-3/credgate/service"
	"github.com/layer-3/credgate/transport/http"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, slog.LevelInfo, true)))

	if err := config.LoadEnv(); err != nil {
		log.Crit("Failed to load environment", "err", err)
	}
	cfg, err := config.LoadServer()
	if err != nil {
		log.Crit("Invalid configuration", "err", err)
	}

	// Session tokens do not survive a restart; clients re-sign on the resulting 401
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Crit("Failed to generate signing key", "err", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Crit("Failed to parse Redis URL", "err", err)
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Crit("Failed to reach Redis", "url", opts.Addr, "err", err)
	}

	// Initialize Watermill Redis publisher
	logger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		log.Crit("Failed to create Redis publisher", "err", err)
	}

	var repo ports.RequestRepository = repository.NewMemoryRepository()
	if cfg.DatabaseDSN != "" {
		db, err := repository.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Crit("Failed to connect to database", "err", err)
		}
		if repo, err = repository.NewGormRepository(db); err != nil {
			log.Crit("Failed to prepare database", "err", err)
		}
	} else {
		log.Warn("POSTGRES_DSN not set, requests are kept in memory")
	}

	tokenizer := tokenizer.NewJWTTokenizer(privateKey)
	store := store.NewRedisStore(redisClient, "credgate:")
	eventPub := events.NewWatermillPublisher(publisher)

	authService := service.NewAuthService(tokenizer, store, eventPub).WithTTLs(cfg.NonceTTL, cfg.SessionTTL)
	requestService := service.NewRequestService(repo, store, eventPub)

	router := http.SetupRouter(authService, requestService)

	log.Info("Starting credgate backend", "addr", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Crit("Failed to start server", "err", err)
	}
}
