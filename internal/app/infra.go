package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/devhaven/auth-service/internal/config"
	"github.com/devhaven/auth-service/internal/db"
	"github.com/devhaven/auth-service/internal/logger"
	"github.com/devhaven/auth-service/internal/redis"
	"github.com/devhaven/auth-service/internal/session"
)

type Infra struct {
	DB       *db.DB
	Redis    *redis.Client // nil with the memory session store
	Sessions session.Store
}

func (i *Infra) Close() error {
	var errs []error
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	if i.DB != nil {
		errs = append(errs, i.DB.Close())
	}
	return errors.Join(errs...)
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	database, err := db.Open(ctx, cfg.DatabaseDSN, db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("db: migrate: %w", err)
	}

	logger.Info("database ready")

	infra := &Infra{DB: database}

	switch cfg.SessionStore {
	case "memory":
		infra.Sessions = session.NewMemoryStore()
		logger.Warn("using in-memory session store; sessions are lost on restart")
	default:
		redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = infra.Close()
			return nil, err
		}
		infra.Redis = redisClient
		infra.Sessions = session.NewRedisStore(redisClient.Client)
		logger.Info("redis ready")
	}

	return infra, nil
}
