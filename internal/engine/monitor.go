package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anemtools/rdvwatcher/internal/core/config"
	"github.com/anemtools/rdvwatcher/internal/core/domain"
	"github.com/anemtools/rdvwatcher/internal/engine/metrics"
	"github.com/anemtools/rdvwatcher/internal/infra/anem"
	"github.com/anemtools/rdvwatcher/internal/infra/storage"
	"github.com/anemtools/rdvwatcher/internal/notify"
)

const (
	// siteCheckInterval is how often availability is probed while in
	// connection-lost mode.
	siteCheckInterval = 60 * time.Second

	// maxConsecutiveMemberFailures suspends a member from scheduling
	// until its counter is reset.
	maxConsecutiveMemberFailures = 5

	// networkErrorThreshold flips the monitor into connection-lost mode
	// after this many consecutive members each failing a gateway call.
	networkErrorThreshold = 3

	// shortSkipDelay paces passes over members that are skipped without
	// any network activity.
	shortSkipDelay = 100 * time.Millisecond
)

// Monitor drives the roster through an initial full scan and then a
// repeating periodic cycle, switching into connection-lost recovery
// when the upstream stops answering.
type Monitor struct {
	service  config.ServiceConfig
	roster   *Roster
	repo     storage.MemberRepository
	notifier notify.Notifier
	docs     *DocumentStore
	log      *slog.Logger

	runner   atomic.Pointer[Runner]
	settings atomic.Pointer[config.EngineSettings]

	connectionLost  atomic.Bool
	initialScanDone atomic.Bool
	cycles          atomic.Uint64

	// netErrStreak and nextIndex are touched only by the Run goroutine.
	netErrStreak int
	nextIndex    int

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewMonitor creates the scheduler over an initialized roster.
func NewMonitor(service config.ServiceConfig, settings config.EngineSettings, roster *Roster, repo storage.MemberRepository, notifier notify.Notifier, docs *DocumentStore) *Monitor {
	m := &Monitor{
		service:  service,
		roster:   roster,
		repo:     repo,
		notifier: notifier,
		docs:     docs,
		log:      slog.With("component", "monitor"),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.swapSettings(settings)
	return m
}

// swapSettings installs a settings value and rebuilds the gateway and
// runner around it. A fresh client also reseeds the backoff delays.
func (m *Monitor) swapSettings(s config.EngineSettings) {
	client := anem.NewClient(anem.Config{
		BaseURL:               m.service.BaseURL,
		SiteCheckURL:          m.service.SiteCheckURL,
		MaxRetries:            s.MaxRetries,
		RequestTimeout:        s.RequestTimeout.Std(),
		InitialBackoffGeneral: s.BackoffGeneral.Std(),
		InitialBackoff429:     s.Backoff429.Std(),
	})
	m.runner.Store(NewRunner(client, m.notifier, m.docs))
	settings := s
	m.settings.Store(&settings)
}

// UpdateSettings replaces the runtime settings wholesale. In-flight
// calls finish under the old settings; the next gateway call and the
// next scheduling decision see the new ones.
func (m *Monitor) UpdateSettings(s config.EngineSettings) {
	m.swapSettings(s)
	m.log.Info("engine settings updated",
		"monitoring_interval", s.MonitoringInterval.Std(),
		"max_retries", s.MaxRetries)
	m.notifier.Log("engine settings updated")
}

// Runner returns the current stage runner. Ad-hoc runs use this so they
// share the live gateway configuration.
func (m *Monitor) Runner() *Runner { return m.runner.Load() }

func (m *Monitor) currentSettings() config.EngineSettings {
	return *m.settings.Load()
}

// Run drives the scheduling loop until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor starting", "members", m.roster.Len())
	m.updateStatusGauges()

	for ctx.Err() == nil {
		if m.connectionLost.Load() {
			m.awaitRecovery(ctx)
			continue
		}

		m.runPass(ctx)
		if ctx.Err() != nil || m.connectionLost.Load() {
			continue
		}

		if !m.initialScanDone.Swap(true) {
			m.log.Info("initial scan complete")
			m.notifier.Log("initial scan complete")
		}
		metrics.CyclesTotal.Inc()
		m.cycles.Add(1)
		m.updateStatusGauges()

		wait := m.currentSettings().MonitoringInterval.Std()
		m.log.Info("cycle complete", "next_pass_in", wait)
		sleepInterruptible(ctx, wait)
	}

	m.log.Info("monitor stopped")
	return ctx.Err()
}

// runPass processes one full pass over the roster, resuming from the
// index after the last processed member and wrapping around. It aborts
// early when the network-error streak trips the recovery threshold.
func (m *Monitor) runPass(ctx context.Context) {
	snap := m.roster.Snapshot()
	n := len(snap)
	if n == 0 {
		sleepInterruptible(ctx, shortSkipDelay)
		return
	}

	start := m.nextIndex % n
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}

		idx := (start + i) % n
		m.nextIndex = (idx + 1) % n

		processed := m.processMember(ctx, snap[idx])

		if m.netErrStreak >= networkErrorThreshold {
			m.enterConnectionLost()
			return
		}

		if !processed {
			sleepInterruptible(ctx, shortSkipDelay)
			continue
		}
		sleepInterruptible(ctx, m.memberDelay())
	}
}

// processMember claims one member, runs the pipeline, updates the
// failure counters, and writes the member through to storage. It
// reports whether any network activity happened, so the caller can pick
// the right pacing delay.
func (m *Monitor) processMember(ctx context.Context, mem *domain.Member) (processed bool) {
	if mem.CurrentStatus().IsAbsorbing() {
		return false
	}

	r := m.runner.Load()

	if fails := mem.FailureCount(); fails >= maxConsecutiveMemberFailures {
		if mem.CurrentStatus() != domain.StatusRepeatedlyFailed {
			r.setStatus(mem, domain.StatusRepeatedlyFailed,
				fmt.Sprintf("suspended after %d consecutive failures.", fails))
			m.persist(ctx, mem)
		}
		return false
	}

	if !mem.TryAcquire() {
		return false
	}
	defer mem.Release()

	defer func() {
		if rec := recover(); rec != nil {
			m.log.Error("panic while processing member",
				"member", mem.WassitNumber, "panic", rec)
			r.setStatus(mem, domain.StatusProcessingError,
				fmt.Sprintf("internal error: %v", rec))
			// Unexpected faults count toward both counters, same as a
			// failed gateway call.
			mem.RecordFailure()
			m.netErrStreak++
			m.persist(ctx, mem)
			processed = true
		}
	}()

	err := r.RunPipeline(ctx, mem)
	if ctx.Err() != nil {
		m.persist(ctx, mem)
		return true
	}

	if domain.CountsAsFailure(err) {
		fails := mem.RecordFailure()
		m.netErrStreak++
		m.log.Warn("member pipeline failed",
			"member", mem.WassitNumber,
			"failures", fails,
			"streak", m.netErrStreak,
			"network", domain.IsNetworkError(err),
			"error", err)
	} else {
		mem.ClearFailures()
		m.netErrStreak = 0
	}

	m.persist(ctx, mem)
	return true
}

func (m *Monitor) persist(ctx context.Context, mem *domain.Member) {
	// Persist even during shutdown so the last transition is not lost.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := m.repo.Upsert(ctx, mem); err != nil {
		m.log.Warn("failed to persist member", "member", mem.WassitNumber, "error", err)
	}
}

// enterConnectionLost switches the monitor into recovery mode.
func (m *Monitor) enterConnectionLost() {
	if m.connectionLost.Swap(true) {
		return
	}
	metrics.ConnectionLost.Set(1)
	m.log.Warn("connection to service lost, entering recovery mode",
		"consecutive_errors", m.netErrStreak)
	m.notifier.Log("connection to service lost, pausing all processing")
}

// awaitRecovery polls site availability until the service answers,
// then resets every failure counter and resumes scheduling.
func (m *Monitor) awaitRecovery(ctx context.Context) {
	for ctx.Err() == nil {
		available, err := m.runner.Load().API().CheckSiteAvailability(ctx)
		if available {
			m.recoverConnection(ctx)
			return
		}
		m.log.Debug("service still unreachable", "error", err)
		sleepInterruptible(ctx, siteCheckInterval)
	}
}

func (m *Monitor) recoverConnection(ctx context.Context) {
	for _, mem := range m.roster.Snapshot() {
		mem.ClearFailures()
	}
	if err := m.repo.ResetFailures(ctx); err != nil {
		m.log.Warn("failed to reset persisted failure counters", "error", err)
	}
	m.netErrStreak = 0
	m.connectionLost.Store(false)
	metrics.ConnectionLost.Set(0)
	m.log.Info("connection to service restored, resuming")
	m.notifier.Log("connection restored, resuming processing")
}

// memberDelay draws the politeness delay between members uniformly from
// the configured range.
func (m *Monitor) memberDelay() time.Duration {
	s := m.currentSettings()
	min, max := s.MinMemberDelay.Std(), s.MaxMemberDelay.Std()
	if max <= min {
		return min
	}
	m.randMu.Lock()
	defer m.randMu.Unlock()
	return min + time.Duration(m.rand.Int63n(int64(max-min)))
}

func (m *Monitor) updateStatusGauges() {
	metrics.MembersByStatus.Reset()
	for _, mem := range m.roster.Snapshot() {
		metrics.MembersByStatus.WithLabelValues(string(mem.CurrentStatus())).Inc()
	}
}

// Snapshot is the monitor state exposed over the health endpoint.
type Snapshot struct {
	ConnectionLost  bool                  `json:"connection_lost"`
	InitialScanDone bool                  `json:"initial_scan_done"`
	Cycles          uint64                `json:"cycles"`
	Members         int                   `json:"members"`
	Suspended       int                   `json:"suspended"`
	ByStatus        map[domain.Status]int `json:"by_status"`
}

// Snapshot reports the current scheduling state.
func (m *Monitor) Snapshot() Snapshot {
	snap := m.roster.Snapshot()
	s := Snapshot{
		ConnectionLost:  m.connectionLost.Load(),
		InitialScanDone: m.initialScanDone.Load(),
		Cycles:          m.cycles.Load(),
		Members:         len(snap),
		ByStatus:        make(map[domain.Status]int, len(snap)),
	}
	for _, mem := range snap {
		s.ByStatus[mem.CurrentStatus()]++
		if mem.FailureCount() >= maxConsecutiveMemberFailures {
			s.Suspended++
		}
	}
	return s
}

// sleepInterruptible blocks for d or until the context is cancelled.
func sleepInterruptible(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
