package session

import (
	"context"
	"sync"

	"github.com/openfleet/partner-agent/go/clients/dispatch_api_client"
	"github.com/openfleet/partner-agent/go/internal/alert"
	"github.com/openfleet/partner-agent/go/internal/arbiter"
	"github.com/openfleet/partner-agent/go/internal/channel"
	"github.com/openfleet/partner-agent/go/internal/events"
	"github.com/openfleet/partner-agent/go/internal/offer"
	"github.com/openfleet/partner-agent/go/internal/polling"
	"github.com/openfleet/partner-agent/go/internal/resolver"
	"github.com/openfleet/partner-agent/go/internal/tracking"
	"github.com/openfleet/partner-agent/go/internal/transport"
	"github.com/rs/zerolog/log"
)

// Config holds per-session configuration.
type Config struct {
	PartnerID string
	Arbiter   arbiter.Config
	Transport transport.Config
	Polling   polling.Config
}

// Status is the session view for the status surface.
type Status struct {
	PartnerID string         `json:"partner_id"`
	Channel   channel.State  `json:"channel"`
	Arbiter   arbiter.Status `json:"arbiter"`
}

// Session is the single logical owner of one partner's offer pipeline: it
// wires the dual-channel manager into the arbitration gate, the resolver
// into the backend, and the accepted-order handoff into the tracking
// context and the local event bus.
type Session struct {
	partnerID string
	arb       *arbiter.Arbitrator
	manager   *channel.Manager
	socket    *transport.Channel
	tracking  *tracking.App
	publisher *events.Publisher

	mu          sync.Mutex
	unsubscribe func()
	started     bool
	stopped     bool
}

// New builds a session over the dispatch client. publisher may be nil.
func New(cfg Config, client *dispatch_api_client.DispatchApiClient, alerter alert.Alerter, trackingApp *tracking.App, publisher *events.Publisher) *Session {
	res := resolver.New(client)
	arb := arbiter.New(res, alerter, cfg.Arbiter)
	socket := transport.NewChannel(cfg.Transport)
	poller := polling.New(client, arb.SubmitPoll, cfg.PartnerID, cfg.Polling)
	manager := channel.NewManager(socket, poller, cfg.PartnerID)

	s := &Session{
		partnerID: cfg.PartnerID,
		arb:       arb,
		manager:   manager,
		socket:    socket,
		tracking:  trackingApp,
		publisher: publisher,
	}

	arb.OnLive(func(o offer.Offer) {
		publisher.PublishOffer(events.EventTypeOfferReceived, o)
	})
	arb.OnOutcome(func(o offer.Offer, out offer.Outcome) {
		publisher.PublishOffer(outcomeEventType(out), o)
	})
	arb.OnAccepted(func(accepted offer.AcceptedOrder) {
		trackingApp.HandleAccepted(accepted)
		publisher.PublishOrderAccepted(accepted)
	})

	return s
}

func outcomeEventType(out offer.Outcome) string {
	switch out {
	case offer.OutcomeAccepted:
		return events.EventTypeOfferAccepted
	case offer.OutcomeDeclined:
		return events.EventTypeOfferDeclined
	default:
		return events.EventTypeOfferExpired
	}
}

// Start brings up the delivery channels and subscribes the arbitration
// gate to socket assignments. The partner starts offline; call GoOnline
// to begin taking offers.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return channel.ErrAlreadyStarted
	}
	s.started = true
	s.unsubscribe = s.socket.OnAssigned(func(raw offer.PushAssignment) {
		s.arb.SubmitPush(raw)
	})
	s.mu.Unlock()

	log.Info().Str("partner_id", s.partnerID).Msg("partner session starting")
	return s.manager.Start(ctx)
}

// GoOnline flags the partner as taking offers.
func (s *Session) GoOnline() {
	s.arb.SetOnline(true)
}

// GoOffline stops taking offers and silently cancels any live offer.
func (s *Session) GoOffline() {
	s.arb.SetOnline(false)
}

// Accept commits the live offer and returns the accepted order.
func (s *Session) Accept(ctx context.Context) (offer.AcceptedOrder, error) {
	return s.arb.Accept(ctx)
}

// Decline dismisses the live offer locally.
func (s *Session) Decline() error {
	return s.arb.Decline()
}

// Reconnect makes an explicit socket attempt while on the polling fallback.
func (s *Session) Reconnect(ctx context.Context) error {
	return s.manager.Reconnect(ctx)
}

// Status returns the session snapshot for the status surface.
func (s *Session) Status() Status {
	return Status{
		PartnerID: s.partnerID,
		Channel:   s.manager.State(),
		Arbiter:   s.arb.Snapshot(),
	}
}

// Tracking exposes the downstream tracking context.
func (s *Session) Tracking() *tracking.App {
	return s.tracking
}

// Stop tears the session down: unsubscribes from the socket, cancels any
// live countdown, and stops both channels. No timers or connections
// survive a Stop.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.arb.Close()
	s.manager.Stop()
	log.Info().Str("partner_id", s.partnerID).Msg("partner session stopped")
}
