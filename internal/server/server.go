package server

import (
	"context"

	"backend-carbonsaver/internal/account"
	"backend-carbonsaver/internal/auth"
	"backend-carbonsaver/internal/carbon"
	"backend-carbonsaver/internal/config"
	"backend-carbonsaver/internal/metrics"
	"backend-carbonsaver/internal/rewards"
	"backend-carbonsaver/internal/stream"
	"backend-carbonsaver/internal/tracking"
	"backend-carbonsaver/internal/trip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Stream  *stream.Hub
	Rewards *rewards.Catalog

	cancel context.CancelFunc
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      db,
		Redis:   redisClient,
		Stream:  stream.NewHub(redisClient),
		Rewards: loadRewards(ctx, cfg.RewardsFile),
		cancel:  cancel,
	}

	registerRoutes(s)
	return s
}

// Close stops the catalog watcher and the stream relay.
func (s *Server) Close() error {
	s.cancel()
	return s.Stream.Close()
}

func loadRewards(ctx context.Context, path string) *rewards.Catalog {
	if path == "" {
		return rewards.NewCatalog(nil)
	}
	list, err := rewards.LoadCatalog(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("rewards catalog unavailable, using built-in rewards")
		return rewards.NewCatalog(nil)
	}
	catalog := rewards.NewCatalog(list)
	go func() {
		if err := catalog.Watch(ctx, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("rewards catalog watcher stopped")
		}
	}()
	return catalog
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", metrics.Handler())
	s.App.Get("/transport-modes", func(c *fiber.Ctx) error {
		return c.JSON(carbon.Modes())
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	trips := trip.NewService(s.DB)
	accounts := account.NewService(s.DB, trips)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB, account.Open), jwtMiddleware)
	account.RegisterRoutes(s.App.Group("/account"), accounts, jwtMiddleware)
	trip.RegisterRoutes(s.App.Group("/trips"), trips, jwtMiddleware)
	sessions := tracking.NewService(s.DB, s.Redis, s.Stream, trips, s.Cfg.MinSampleDistanceM)
	tracking.RegisterRoutes(s.App.Group("/tracking"), sessions, jwtMiddleware)
	rewards.RegisterRoutes(s.App.Group("/rewards"), rewards.NewService(s.DB, s.Rewards), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware, sessions)
}
