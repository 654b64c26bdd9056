package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openfleet/partner-agent/go/clients/dispatch_api_client"
	"github.com/openfleet/partner-agent/go/internal/alert"
	"github.com/openfleet/partner-agent/go/internal/arbiter"
	"github.com/openfleet/partner-agent/go/internal/events"
	"github.com/openfleet/partner-agent/go/internal/polling"
	"github.com/openfleet/partner-agent/go/internal/session"
	"github.com/openfleet/partner-agent/go/internal/tracking"
	"github.com/openfleet/partner-agent/go/internal/transport"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Session   *session.Session
	Tracking  *tracking.App
	Publisher *events.Publisher
}

func setupServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool) (*Services, error) {
	// Wire up the dependency chain: dispatch client → resolver/poller →
	// arbitration gate → tracking handoff + event bus.

	client := dispatch_api_client.NewDispatchApiClient(cfg.Backend.HTTPBaseURL)
	if cfg.Backend.AuthToken != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.Backend.AuthToken)
	}

	var repo tracking.Repository
	if pool != nil {
		pgRepo := tracking.NewPostgresRepository(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare tracking journal: %w", err)
		}
		repo = pgRepo
	} else {
		repo = tracking.NewMemoryRepository()
	}
	trackingApp := tracking.NewApp(repo)

	var publisher *events.Publisher
	if cfg.Bus.URL != "" {
		busCfg := events.DefaultConfig()
		busCfg.URL = cfg.Bus.URL
		p, err := events.NewPublisher(busCfg, cfg.Partner.ID)
		if err != nil {
			// The bus is observability, not correctness: run without it.
			log.Warn().Err(err).Msg("event bus unavailable, continuing without it")
		} else {
			publisher = p
		}
	}

	transportCfg := transport.DefaultConfig()
	transportCfg.URL = cfg.Backend.SocketURL

	sess := session.New(session.Config{
		PartnerID: cfg.Partner.ID,
		Arbiter:   arbiter.DefaultConfig(),
		Transport: transportCfg,
		Polling:   polling.DefaultConfig(),
	}, client, alert.NewLogAlerter(), trackingApp, publisher)

	return &Services{
		Session:   sess,
		Tracking:  trackingApp,
		Publisher: publisher,
	}, nil
}
