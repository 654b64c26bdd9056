package polling

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openfleet/partner-agent/go/internal/offer"
	"github.com/rs/zerolog/log"
)

// Fetcher is the slice of the dispatch client the poller needs.
type Fetcher interface {
	AssignedOrders(ctx context.Context, partnerID string) ([]offer.PolledOrder, error)
}

// SubmitFunc proposes a polled order to the arbitration gate. The gate,
// not the poller, decides whether it becomes live.
type SubmitFunc func(offer.PolledOrder) bool

// Config holds poller tuning.
type Config struct {
	// HeartbeatInterval applies while no assigned order has ever been
	// seen on this session.
	HeartbeatInterval time.Duration
	// ActiveInterval applies once an order has been seen: the poller is
	// then the partner's only channel and 30s would waste most of the
	// response window.
	ActiveInterval time.Duration
	// Clock defaults to the real clock. Tests inject a fake.
	Clock clockwork.Clock
}

// DefaultConfig returns production polling intervals.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ActiveInterval:    10 * time.Second,
	}
}

// Poller periodically fetches the partner's assigned-but-unconfirmed
// orders while the transport channel is down and proposes the most recent
// one to the arbitration gate. A failed fetch skips the tick and retries
// on the next one; the loop itself never dies on a fetch error.
type Poller struct {
	fetcher   Fetcher
	submit    SubmitFunc
	partnerID string
	cfg       Config
	clock     clockwork.Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	active  bool
}

// New creates a stopped poller for one partner.
func New(fetcher Fetcher, submit SubmitFunc, partnerID string, cfg Config) *Poller {
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ActiveInterval <= 0 {
		cfg.ActiveInterval = def.ActiveInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Poller{
		fetcher:   fetcher,
		submit:    submit,
		partnerID: partnerID,
		cfg:       cfg,
		clock:     cfg.Clock,
	}
}

// Start begins the polling loop with an immediate first fetch. Idempotent.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	log.Info().Str("partner_id", p.partnerID).Msg("polling fallback started")
	go p.run(runCtx)
}

// Stop clears the polling timer. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	running := p.running
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if running {
		log.Info().Str("partner_id", p.partnerID).Msg("polling fallback stopped")
	}
}

// Running reports whether the polling loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context) {
	p.tick(ctx)
	timer := p.clock.NewTimer(p.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			p.tick(ctx)
			timer.Reset(p.interval())
		}
	}
}

func (p *Poller) interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return p.cfg.ActiveInterval
	}
	return p.cfg.HeartbeatInterval
}

// tick fetches the unconfirmed orders and proposes the newest one. Others
// stay queued implicitly: they come back on the next poll if still
// unconfirmed, nothing is buffered here.
func (p *Poller) tick(ctx context.Context) {
	orders, err := p.fetcher.AssignedOrders(ctx, p.partnerID)
	if err != nil {
		log.Debug().Err(err).Str("partner_id", p.partnerID).Msg("poll fetch failed, retrying next tick")
		return
	}
	if len(orders) == 0 {
		return
	}

	p.mu.Lock()
	p.active = true
	p.mu.Unlock()

	newest := orders[0]
	for _, o := range orders[1:] {
		if o.CreatedAt.After(newest.CreatedAt) {
			newest = o
		}
	}
	p.submit(newest)
}
