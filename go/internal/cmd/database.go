package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// setupDatabase opens the pool for the accepted-order journal. Returns
// nil when no DSN is configured: the agent then journals in memory.
func setupDatabase(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg.Database.DSN == "" {
		log.Info().Msg("no database configured, journaling accepted orders in memory")
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(getEnvAsInt("PARTNER_DB_MAX_CONNS", 4))

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("connected to accepted-order journal database")
	return pool, nil
}
