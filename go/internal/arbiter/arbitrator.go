package arbiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openfleet/partner-agent/go/internal/offer"
	"github.com/rs/zerolog/log"
)

// ErrNoLiveOffer is returned when Accept or Decline is called with no
// offer currently live.
var ErrNoLiveOffer = errors.New("no live offer")

// Resolver commits the partner's decision to the dispatch backend.
type Resolver interface {
	// CommitAccept transitions the order to accepted. Best-effort: the
	// arbitrator logs a failure and proceeds regardless.
	CommitAccept(ctx context.Context, orderID string) error
	// Hydrate fetches the full order record to enrich the accepted offer.
	Hydrate(ctx context.Context, orderID string) (*offer.OrderDetail, error)
}

// Alerter is the alerting port: sound/vibration/notification for a new
// offer. Implementations swallow their own failures.
type Alerter interface {
	TriggerOrderAlert(ctx context.Context, o offer.Offer) error
}

// Config holds arbitrator tuning.
type Config struct {
	// ResponseWindow is how long the partner has to respond to an offer.
	ResponseWindow time.Duration
	// HydrateTimeout bounds the post-accept detail fetch so a slow or
	// dead backend never delays the accepted-order handoff.
	HydrateTimeout time.Duration
	// Clock defaults to the real clock. Tests inject a fake.
	Clock clockwork.Clock
}

// DefaultConfig returns production arbitrator configuration.
func DefaultConfig() Config {
	return Config{
		ResponseWindow: 30 * time.Second,
		HydrateTimeout: 5 * time.Second,
	}
}

// Counters is a snapshot of arbitration totals.
type Counters struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Accepted  uint64 `json:"accepted"`
	Declined  uint64 `json:"declined"`
	Expired   uint64 `json:"expired"`
}

// Status is a point-in-time snapshot for the status surface.
type Status struct {
	State        offer.State  `json:"state"`
	Online       bool         `json:"online"`
	Current      *offer.Offer `json:"current,omitempty"`
	RemainingSec int          `json:"remaining_sec"`
	Counters     Counters     `json:"counters"`
}

// Arbitrator enforces single-offer-at-a-time semantics for one partner
// session. It is the sole writer of the offer state: submissions from the
// socket and the poller race through one mutex-guarded gate, the first
// writer wins and the loser is silently dropped.
type Arbitrator struct {
	resolver Resolver
	alerter  Alerter
	clock    clockwork.Clock
	cfg      Config

	mu         sync.Mutex
	state      offer.State
	online     bool
	closed     bool
	current    *offer.Offer
	deadline   time.Time
	generation uint64
	stopWatch  chan struct{}
	counters   Counters

	onLive     func(offer.Offer)
	onOutcome  func(offer.Offer, offer.Outcome)
	onAccepted func(offer.AcceptedOrder)
}

// New creates an arbitrator in the Idle state with the partner offline.
func New(resolver Resolver, alerter Alerter, cfg Config) *Arbitrator {
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = DefaultConfig().ResponseWindow
	}
	if cfg.HydrateTimeout <= 0 {
		cfg.HydrateTimeout = DefaultConfig().HydrateTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Arbitrator{
		resolver: resolver,
		alerter:  alerter,
		clock:    cfg.Clock,
		cfg:      cfg,
		state:    offer.StateIdle,
	}
}

// OnLive registers a callback invoked once per Live transition.
func (a *Arbitrator) OnLive(fn func(offer.Offer)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onLive = fn
}

// OnOutcome registers a callback invoked once per terminal offer outcome.
func (a *Arbitrator) OnOutcome(fn func(offer.Offer, offer.Outcome)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOutcome = fn
}

// OnAccepted registers the downstream tracking handoff.
func (a *Arbitrator) OnAccepted(fn func(offer.AcceptedOrder)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onAccepted = fn
}

// SubmitPush proposes a socket-delivered assignment.
func (a *Arbitrator) SubmitPush(raw offer.PushAssignment) bool {
	return a.submit(offer.FromPush(raw, a.clock.Now()))
}

// SubmitPoll proposes a poll-delivered unconfirmed order.
func (a *Arbitrator) SubmitPoll(raw offer.PolledOrder) bool {
	return a.submit(offer.FromPoll(raw, a.clock.Now()))
}

// submit is the single gate. Returns true if the offer went live.
func (a *Arbitrator) submit(o offer.Offer) bool {
	a.mu.Lock()
	a.counters.Submitted++
	if a.closed || !a.online || a.state != offer.StateIdle {
		a.counters.Dropped++
		state := a.state
		a.mu.Unlock()
		log.Debug().
			Str("order_id", o.ID).
			Str("source", string(o.Source)).
			Str("state", string(state)).
			Msg("offer dropped by arbitration gate")
		return false
	}
	a.goLiveLocked(o)
	onLive := a.onLive
	a.mu.Unlock()

	log.Info().
		Str("order_id", o.ID).
		Str("source", string(o.Source)).
		Float64("earnings", o.Earnings).
		Float64("distance_km", o.DistanceKm).
		Msg("offer live, countdown started")

	// Alert once per Live transition; failures never reach the gate.
	go func() {
		if err := a.alerter.TriggerOrderAlert(context.Background(), o); err != nil {
			log.Warn().Err(err).Str("order_id", o.ID).Msg("order alert failed")
		}
	}()
	if onLive != nil {
		onLive(o)
	}
	return true
}

// goLiveLocked transitions Idle→Live and arms the countdown watchdog.
func (a *Arbitrator) goLiveLocked(o offer.Offer) {
	cp := o
	a.state = offer.StateLive
	a.current = &cp
	a.deadline = o.OfferedAt.Add(a.cfg.ResponseWindow)
	a.generation++
	stop := make(chan struct{})
	a.stopWatch = stop
	go a.watch(a.generation, a.deadline, stop)
}

// watch expires the live offer at its deadline. Expiry is recomputed from
// the wall clock on every wake so coarse or coalesced timers (suspended
// tabs, fake clocks jumping) still land on the correct instant.
func (a *Arbitrator) watch(gen uint64, deadline time.Time, stop <-chan struct{}) {
	timer := a.clock.NewTimer(deadline.Sub(a.clock.Now()))
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.Chan():
			a.mu.Lock()
			if a.generation != gen || a.state != offer.StateLive || a.current == nil {
				a.mu.Unlock()
				return
			}
			if remaining := deadline.Sub(a.clock.Now()); remaining > 0 {
				a.mu.Unlock()
				timer.Reset(remaining)
				continue
			}
			o := *a.current
			a.dismissLocked()
			a.counters.Expired++
			onOutcome := a.onOutcome
			a.mu.Unlock()

			log.Info().Str("order_id", o.ID).Msg("offer expired without response")
			if onOutcome != nil {
				onOutcome(o, offer.OutcomeExpired)
			}
			return
		}
	}
}

// stopCountdownLocked cancels the watchdog and invalidates any timer that
// already fired but has not taken the lock yet.
func (a *Arbitrator) stopCountdownLocked() {
	a.generation++
	if a.stopWatch != nil {
		close(a.stopWatch)
		a.stopWatch = nil
	}
}

// dismissLocked returns to Idle, discarding the current offer.
func (a *Arbitrator) dismissLocked() {
	a.stopCountdownLocked()
	a.current = nil
	a.deadline = time.Time{}
	a.state = offer.StateIdle
}

// Accept commits the live offer. The status update is best-effort and the
// detail fetch is bounded, so the returned AcceptedOrder is always built,
// from hydrated detail when available and from the offer's own fields
// otherwise.
func (a *Arbitrator) Accept(ctx context.Context) (offer.AcceptedOrder, error) {
	a.mu.Lock()
	if a.state != offer.StateLive || a.current == nil {
		a.mu.Unlock()
		return offer.AcceptedOrder{}, ErrNoLiveOffer
	}
	o := *a.current
	// Claim the offer: countdown stops now and the state moves to
	// Accepting until the commit resolves, so no new submission can slip
	// in mid-accept and the snapshot stays coherent.
	a.current = nil
	a.deadline = time.Time{}
	a.state = offer.StateAccepting
	a.stopCountdownLocked()
	a.mu.Unlock()

	if err := a.resolver.CommitAccept(ctx, o.ID); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).
			Msg("accept status update failed, proceeding optimistically")
	}

	a.mu.Lock()
	a.state = offer.StateIdle
	a.counters.Accepted++
	onAccepted := a.onAccepted
	onOutcome := a.onOutcome
	a.mu.Unlock()

	var detail *offer.OrderDetail
	hctx, cancel := context.WithTimeout(ctx, a.cfg.HydrateTimeout)
	defer cancel()
	if d, err := a.resolver.Hydrate(hctx, o.ID); err != nil {
		log.Warn().Err(err).Str("order_id", o.ID).
			Msg("order detail fetch failed, building accepted order from offer fields")
	} else {
		detail = d
	}

	accepted := offer.BuildAcceptedOrder(o, detail, a.clock.Now())
	log.Info().
		Str("order_id", accepted.OrderID).
		Float64("earnings", accepted.Earnings).
		Bool("hydrated", detail != nil).
		Msg("offer accepted")
	if onAccepted != nil {
		onAccepted(accepted)
	}
	if onOutcome != nil {
		onOutcome(o, offer.OutcomeAccepted)
	}
	return accepted, nil
}

// Decline dismisses the live offer locally. No backend call is made: the
// dispatch contract treats decline and timeout as client-local, and the
// backend re-surfaces unconfirmed jobs through polling.
func (a *Arbitrator) Decline() error {
	a.mu.Lock()
	if a.state != offer.StateLive || a.current == nil {
		a.mu.Unlock()
		return ErrNoLiveOffer
	}
	o := *a.current
	a.dismissLocked()
	a.counters.Declined++
	onOutcome := a.onOutcome
	a.mu.Unlock()

	log.Info().Str("order_id", o.ID).Msg("offer declined")
	if onOutcome != nil {
		onOutcome(o, offer.OutcomeDeclined)
	}
	return nil
}

// SetOnline flags whether the partner is taking offers. Going offline
// cancels any live offer silently: no backend call, no outcome event.
func (a *Arbitrator) SetOnline(online bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.online == online {
		return
	}
	a.online = online
	if !online && a.state == offer.StateLive {
		orderID := ""
		if a.current != nil {
			orderID = a.current.ID
		}
		a.dismissLocked()
		log.Info().Str("order_id", orderID).Msg("partner went offline, live offer hidden")
	}
}

// Online reports whether the partner is currently taking offers.
func (a *Arbitrator) Online() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.online
}

// State returns the current lifecycle state.
func (a *Arbitrator) State() offer.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Remaining reports the wall-clock time left on the live offer, zero when
// Idle. Recomputed from the deadline, never a decremented counter.
func (a *Arbitrator) Remaining() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != offer.StateLive || a.deadline.IsZero() {
		return 0
	}
	if r := a.deadline.Sub(a.clock.Now()); r > 0 {
		return r
	}
	return 0
}

// Snapshot returns the status-surface view of the arbitrator.
func (a *Arbitrator) Snapshot() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := Status{
		State:    a.state,
		Online:   a.online,
		Counters: a.counters,
	}
	if a.state == offer.StateLive && a.current != nil {
		cp := *a.current
		st.Current = &cp
		if r := a.deadline.Sub(a.clock.Now()); r > 0 {
			st.RemainingSec = int(r / time.Second)
		}
	}
	return st
}

// Close tears the arbitrator down: the countdown is cancelled and all
// further submissions are dropped.
func (a *Arbitrator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.online = false
	if a.state == offer.StateLive {
		a.dismissLocked()
	} else {
		a.stopCountdownLocked()
	}
}
