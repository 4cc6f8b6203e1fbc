// Package expiry watches the entitlement clock. While the entitlement is
// active it publishes a display breakdown of the remaining time once per
// tick; when the time runs out it either hands off to the renewal
// coordinator or performs the one and only expiry flip.
package expiry

import (
	"context"
	"sync"
	"time"

	"github.com/kaspay/kaspay/clock"
	"github.com/kaspay/kaspay/logger"
	"github.com/kaspay/kaspay/metrics"
	"github.com/kaspay/kaspay/scheduler"
	"github.com/kaspay/kaspay/store"
	"github.com/kaspay/kaspay/types"
)

// DefaultTickInterval is the reference 1-second expiry tick.
const DefaultTickInterval = time.Second

// Remaining is the display-friendly breakdown of time left. It is derived
// per tick and never persisted.
type Remaining struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// Breakdown splits a millisecond duration into display units.
func Breakdown(ms int64) Remaining {
	if ms < 0 {
		ms = 0
	}
	seconds := ms / 1000
	return Remaining{
		Days:    int(seconds / 86400),
		Hours:   int(seconds % 86400 / 3600),
		Minutes: int(seconds % 3600 / 60),
		Seconds: int(seconds % 60),
	}
}

// Renewer attempts an auto-renewal when an entitlement with autoRenew set
// runs out. On error the monitor finishes the expiry instead.
type Renewer interface {
	Renew(ctx context.Context) (types.Entitlement, error)
}

// Config wires the monitor's collaborators.
type Config struct {
	Store        *store.EntitlementStore
	Renewer      Renewer
	Clock        clock.Clock
	Logger       logger.Logger
	Metrics      metrics.Recorder
	TickInterval time.Duration
	OnRemaining  func(Remaining) // published every tick while active
	OnExpired    func()          // raised exactly once per expiry event
}

// Monitor drives the expiry tick for one entitlement instance at a time.
type Monitor struct {
	store    *store.EntitlementStore
	renewer  Renewer
	clock    clock.Clock
	log      logger.Logger
	metrics  metrics.Recorder
	interval time.Duration

	onRemaining func(Remaining)
	onExpired   func()

	mu      sync.Mutex
	ticker  *scheduler.Ticker
	running bool
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.SystemClock{}
	}
	cfg.Logger = logger.OrNoop(cfg.Logger)
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	return &Monitor{
		store:       cfg.Store,
		renewer:     cfg.Renewer,
		clock:       cfg.Clock,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		interval:    cfg.TickInterval,
		onRemaining: cfg.OnRemaining,
		onExpired:   cfg.OnExpired,
	}
}

// Start begins ticking unless already running; the loop stops itself on
// the first tick if no active entitlement exists. A fresh payment commit
// restarts a stopped monitor through the store subscription installed by
// Watch.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.ticker = scheduler.NewTicker(m.interval, false)
	ticker := m.ticker
	m.mu.Unlock()

	ticker.Go(ctx, m.tick)
}

// Stop halts ticking without touching the entitlement.
func (m *Monitor) Stop() {
	m.mu.Lock()
	ticker := m.ticker
	m.mu.Unlock()
	if ticker != nil {
		ticker.Stop()
	}
}

// Running reports whether the tick loop is live.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Watch subscribes the monitor to store changes so a Committed write while
// the monitor is stopped restarts ticking. Returns the unsubscriber.
func (m *Monitor) Watch(ctx context.Context) func() {
	return m.store.Subscribe(func(ent types.Entitlement) {
		if ent.IsActive {
			m.Start(ctx)
		}
	})
}

func (m *Monitor) tick(ctx context.Context) bool {
	ent, err := m.store.Load()
	if err != nil {
		m.log.Warn("expiry tick could not read entitlement", map[string]any{"error": err.Error()})
		return true
	}
	if !ent.IsActive {
		return m.finishTicking()
	}

	m.metrics.SetGauge("entitlement_active", 1, map[string]string{"method": string(ent.Method)})

	remaining := ent.ExpiresAt - types.Millis(m.clock.Now())
	if remaining > 0 {
		if m.onRemaining != nil {
			m.onRemaining(Breakdown(remaining))
		}
		return true
	}

	// expiry event: renewal handoff suspends ticking until it resolves
	if ent.AutoRenew && m.renewer != nil {
		if _, err := m.renewer.Renew(ctx); err != nil {
			m.log.Warn("auto-renewal failed", map[string]any{"error": err.Error()})
			m.metrics.IncCounter("auto_renewal_failed", map[string]string{"method": string(ent.Method)})
			m.expire()
			return m.finishTicking()
		}
		m.metrics.IncCounter("auto_renewal_committed", map[string]string{"method": string(ent.Method)})
		return true
	}

	m.expire()
	return m.finishTicking()
}

// expire performs the single expiry write. The store flip is idempotent,
// so a coordinator that already reset the record does not produce a second
// notification here.
func (m *Monitor) expire() {
	_, changed, err := m.store.Expire()
	if err != nil {
		m.log.Error("expiry write failed", map[string]any{"error": err.Error()})
		return
	}
	if changed {
		m.metrics.IncCounter("entitlement_expired", nil)
		m.metrics.SetGauge("entitlement_active", 0, nil)
		m.log.Info("entitlement expired", nil)
	}
	if m.onExpired != nil {
		m.onExpired()
	}
}

func (m *Monitor) finishTicking() bool {
	m.mu.Lock()
	m.running = false
	m.ticker = nil
	m.mu.Unlock()
	return false
}
