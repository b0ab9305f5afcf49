// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aykha18/tajir-loyalty/internal/config"
	"github.com/aykha18/tajir-loyalty/internal/db"
	loyaltyHandler "github.com/aykha18/tajir-loyalty/internal/handlers/loyalty"
	rewardHandler "github.com/aykha18/tajir-loyalty/internal/handlers/reward"
	segmentHandler "github.com/aykha18/tajir-loyalty/internal/handlers/segment"
	"github.com/aykha18/tajir-loyalty/internal/middleware"
	"github.com/aykha18/tajir-loyalty/internal/repository/postgres"
	loyaltysvc "github.com/aykha18/tajir-loyalty/internal/service/loyalty"
	rewardsvc "github.com/aykha18/tajir-loyalty/internal/service/reward"
	segmentsvc "github.com/aykha18/tajir-loyalty/internal/service/segment"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	http   *http.Server
	pool   *pgxpool.Pool
	rdb    *redis.Client
}

func NewServer(cfg *config.AppConfig, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger, engine: gin.New()}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool

	if err := db.RunMigrations(s.cfg.DatabaseURL, s.logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ----- Redis -----
	// The engine degrades to uncached reads when Redis is unavailable.
	rdb, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       s.cfg.RedisDB,
		PoolSize: 10,
	})
	if err != nil {
		s.logger.Warn("redis unavailable, caching disabled", zap.Error(err))
		rdb = nil
	}
	s.rdb = rdb

	// ----- Repositories -----
	configRepo := postgres.NewLoyaltyConfigRepository(pool)
	tierRepo := postgres.NewTierRepository(pool)
	rewardRepo := postgres.NewRewardRepository(pool)
	offerRepo := postgres.NewOfferRepository(pool)
	statsRepo := postgres.NewBillStatsRepository(pool)
	loyaltyStore := postgres.NewLoyaltyStore(pool)

	// ----- Services -----
	configService := loyaltysvc.NewConfigService(configRepo, rdb, s.cfg.ConfigCacheTTL, s.logger)
	tierService := loyaltysvc.NewTierService(tierRepo, s.logger)
	coordinator := loyaltysvc.NewCoordinator(loyaltyStore, configService, tierService, s.logger)
	rewardService := rewardsvc.NewService(rewardRepo, offerRepo, s.logger)
	segmentEngine := segmentsvc.NewEngine(statsRepo, rdb, s.cfg.SegmentCacheTTL, s.logger)

	// ----- Handlers -----
	handlers := &Handlers{
		Loyalty: loyaltyHandler.NewLoyaltyHandler(coordinator, configService, tierService),
		Reward:  rewardHandler.NewRewardHandler(rewardService),
		Segment: segmentHandler.NewSegmentHandler(segmentEngine),
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
		middleware.CORSMiddleware(),
	)

	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	s.http = &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.engine}

	s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown stops the HTTP listener and closes the storage pools.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.pool != nil {
		done := make(chan struct{})
		go func() {
			s.pool.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
	return err
}
