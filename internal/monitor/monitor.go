// Package monitor drives continuous ambient noise sampling: a fixed-rate
// foreground timer, permission and session lifecycle, and deadline-bounded
// background refresh cycles. Each captured reading is persisted and the
// owning day's summary recomputed, so history queries never rescan raw
// samples themselves.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/audera-data/quietwatch/internal/capture"
	"github.com/audera-data/quietwatch/internal/db"
	"github.com/audera-data/quietwatch/internal/noise"
	"github.com/audera-data/quietwatch/internal/timeutil"
)

// RefreshScheduler is the platform collaborator that grants future
// background execution windows.
type RefreshScheduler interface {
	// RequestOpportunity asks for one future chance to run a
	// deadline-bounded sample cycle, no earlier than notBefore. At most
	// one request may be outstanding; the Monitor enforces that.
	RequestOpportunity(notBefore time.Time) error
}

// Monitor owns the sampling lifecycle for one device. It is constructed
// and owned explicitly; external events (permission results, timer ticks,
// refresh opportunities) feed into it through its methods, and all state
// transitions are serialized internally.
type Monitor struct {
	cfg       noise.Config
	analytics *noise.Analytics
	store     *db.DB
	device    capture.Device
	perms     capture.PermissionGate
	refresh   RefreshScheduler
	clock     timeutil.Clock
	logger    *zap.SugaredLogger

	// transitionMu serializes lifecycle transitions end to end. Stop and
	// EnterBackground hold it while waiting out the sampling loop, so a
	// concurrent Start blocks until the teardown has fully finished
	// instead of racing it for the session and state.
	transitionMu sync.Mutex

	mu                sync.Mutex
	state             State
	session           capture.Session
	permissionPending bool
	refreshRequested  bool
	loopCancel        context.CancelFunc
	loopDone          chan struct{}
	latest            *noise.Sample

	// cycleMu serializes capture-compute-persist cycles: a timer firing
	// and a background refresh can never run cycles concurrently.
	cycleMu sync.Mutex
}

// New validates the configuration and returns a Monitor. refresh may be
// nil when the platform offers no background scheduling; clock and logger
// default to the real clock and a no-op logger.
func New(cfg noise.Config, store *db.DB, device capture.Device, perms capture.PermissionGate, refresh RefreshScheduler, clock timeutil.Clock, logger *zap.SugaredLogger) (*Monitor, error) {
	analytics, err := noise.NewAnalytics(cfg)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Monitor{
		cfg:       cfg,
		analytics: analytics,
		store:     store,
		device:    device,
		perms:     perms,
		refresh:   refresh,
		clock:     clock,
		logger:    logger,
	}, nil
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Latest returns the most recently captured sample, or nil before the
// first successful cycle.
func (m *Monitor) Latest() *noise.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return nil
	}
	s := *m.latest
	return &s
}

// Start begins monitoring: it requests capture permission, establishes a
// metering session, starts the sampling timer, and arms one background
// refresh opportunity. A no-op while starting or already active; a Start
// issued during a teardown blocks until the teardown completes, then
// starts fresh. Permission denial is a normal declined-feature path: the
// monitor returns to idle with only a diagnostic logged.
func (m *Monitor) Start() {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	if m.state == StateStarting || m.state == StateActive {
		m.mu.Unlock()
		return
	}
	if m.permissionPending {
		// Only one permission request may be outstanding.
		m.mu.Unlock()
		return
	}
	m.state = StateStarting
	m.permissionPending = true
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done
	m.mu.Unlock()

	go m.startAndRun(ctx, done)
}

func (m *Monitor) startAndRun(ctx context.Context, done chan struct{}) {
	defer close(done)

	granted, err := m.perms.RequestPermission(ctx)
	m.mu.Lock()
	m.permissionPending = false
	m.mu.Unlock()
	if err != nil {
		m.logger.Warnf("permission request failed: %v", err)
		m.abortStart()
		return
	}
	if !granted {
		m.logger.Infof("capture permission not granted; monitoring disabled")
		m.abortStart()
		return
	}

	if _, err := m.ensureSession(ctx); err != nil {
		m.logger.Warnf("failed to establish capture session: %v", err)
		m.abortStart()
		return
	}

	m.setState(StateActive)
	m.requestRefresh()
	m.logger.Infof("noise monitoring active, sampling every %v", m.cfg.SampleInterval)

	ticker := m.clock.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := m.runCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
				// A failed cycle never stops the timer; the next tick is
				// the retry.
				m.logger.Warnf("sample cycle failed: %v", err)
			}
		}
	}
}

// abortStart returns to idle after a failed start, unless a concurrent
// Stop or lifecycle transition already moved the state on.
func (m *Monitor) abortStart() {
	m.mu.Lock()
	if m.state == StateStarting {
		m.state = StateIdle
	}
	m.mu.Unlock()
	m.closeSession()
}

// Stop cancels the sampling timer, abandons or waits out any in-flight
// cycle, and releases the capture session. Safe to call from any state.
func (m *Monitor) Stop() {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateStopping
	cancel := m.loopCancel
	done := m.loopDone
	m.loopCancel = nil
	m.loopDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	m.closeSession()
	m.setState(StateIdle)
	m.logger.Infof("noise monitoring stopped")
}

// EnterForeground resumes foreground-rate sampling.
func (m *Monitor) EnterForeground() {
	m.Start()
}

// EnterBackground suspends the foreground timer and releases the capture
// session (continuous sampling is not permitted while backgrounded), then
// arms exactly one background refresh opportunity.
func (m *Monitor) EnterBackground() {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	if m.state == StateBackgrounded {
		m.mu.Unlock()
		return
	}
	cancel := m.loopCancel
	done := m.loopDone
	m.loopCancel = nil
	m.loopDone = nil
	m.state = StateBackgrounded
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	m.closeSession()
	m.requestRefresh()
}

// HandleRefreshOpportunity runs one sample cycle inside an OS-granted
// background window. ctx carries the window's hard deadline; work still in
// flight when it expires is cancelled and the opportunity reported as
// unsuccessful, which is an expected outcome rather than a fault. The next
// opportunity is requested before any work happens, so a failed cycle can
// never leave a gap in future scheduling.
func (m *Monitor) HandleRefreshOpportunity(ctx context.Context, report func(success bool)) {
	m.mu.Lock()
	m.refreshRequested = false
	m.mu.Unlock()

	m.requestRefresh()

	err := m.runCycle(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.logger.Debugf("background refresh window expired before cycle completed")
		} else {
			m.logger.Warnf("background refresh cycle failed: %v", err)
		}
	}
	if report != nil {
		report(err == nil)
	}
}

// CaptureNow runs one capture-compute-persist cycle immediately,
// serialized with any timer or background cycles.
func (m *Monitor) CaptureNow(ctx context.Context) error {
	return m.runCycle(ctx)
}

// runCycle performs the atomic unit of work: read one power level, persist
// it as a sample, recompute that day's summary, and upsert it. A failure
// at any step aborts the rest; a sample persisted before a later failure
// stays durable and the summary remains stale until the next cycle.
func (m *Monitor) runCycle(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session == nil {
		// No standing session (backgrounded); open one for this cycle only
		// and release it before returning.
		s, err := m.device.Open(ctx)
		if err != nil {
			return fmt.Errorf("failed to open capture session: %w", err)
		}
		session = s
		defer s.Close()
	}

	power, err := session.ReadPower(ctx)
	if err != nil {
		return fmt.Errorf("failed to read power level: %w", err)
	}

	now := m.clock.Now()
	sample := noise.Sample{
		ID:        uuid.NewString(),
		Timestamp: now,
		Decibel:   capture.NormalizeDecibel(power),
	}
	if err := m.store.InsertSample(ctx, sample); err != nil {
		return fmt.Errorf("failed to persist sample: %w", err)
	}
	m.setLatest(sample)

	day := noise.DayStart(now.In(m.store.Location()))
	samples, err := m.store.SamplesForDay(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to load day samples: %w", err)
	}
	view := m.analytics.ComputeDay(samples, day)
	if _, err := m.store.UpsertDaySummary(ctx, view); err != nil {
		return fmt.Errorf("failed to upsert day summary: %w", err)
	}

	return nil
}

// ensureSession returns the standing capture session, opening one if
// needed. Opening twice is a no-op: the first established session wins.
func (m *Monitor) ensureSession(ctx context.Context) (capture.Session, error) {
	m.mu.Lock()
	if m.session != nil {
		s := m.session
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s, err := m.device.Open(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		s.Close()
		return m.session, nil
	}
	m.session = s
	return s, nil
}

func (m *Monitor) closeSession() {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			m.logger.Warnf("failed to close capture session: %v", err)
		}
	}
}

// requestRefresh asks the platform for one future refresh opportunity.
// A request already outstanding suppresses the new one; the platform
// collaborator is a shared one-at-a-time resource.
func (m *Monitor) requestRefresh() {
	if m.refresh == nil {
		return
	}
	m.mu.Lock()
	if m.refreshRequested {
		m.mu.Unlock()
		return
	}
	m.refreshRequested = true
	m.mu.Unlock()

	if err := m.refresh.RequestOpportunity(m.clock.Now().Add(m.cfg.SampleInterval)); err != nil {
		m.logger.Warnf("failed to schedule background refresh: %v", err)
		m.mu.Lock()
		m.refreshRequested = false
		m.mu.Unlock()
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Monitor) setLatest(s noise.Sample) {
	m.mu.Lock()
	m.latest = &s
	m.mu.Unlock()
}
