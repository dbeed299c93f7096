package server

import (
	"time"

	"github.com/RUNSTR-LLC/runstr-engine/internal/config"
	"github.com/RUNSTR-LLC/runstr-engine/internal/db"
	"github.com/RUNSTR-LLC/runstr-engine/internal/recovery"
	"github.com/RUNSTR-LLC/runstr-engine/internal/stream"
	"github.com/RUNSTR-LLC/runstr-engine/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	recovermw "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Tracking *tracking.Service
}

func NewServer(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recovermw.New())
	app.Use(logger.New())

	var checkpoints *recovery.Service
	if redisClient != nil {
		checkpoints = recovery.NewService(redisClient, time.Duration(cfg.CheckpointRetentionSec)*time.Second)
	}

	// A typed-nil pool must not masquerade as a live Querier.
	var querier db.Querier
	if pool != nil {
		querier = pool
	}

	hub := stream.NewHub(redisClient)
	source := tracking.NewPushSource()

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       pool,
		Redis:    redisClient,
		Stream:   hub,
		Tracking: tracking.NewService(cfg, querier, hub, checkpoints, source),
	}

	registerRoutes(s, source)
	return s
}

func registerRoutes(s *Server, source *tracking.PushSource) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, source)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
