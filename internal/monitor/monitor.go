package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andrelcx/wamon/internal/browser"
	"github.com/andrelcx/wamon/internal/bus"
	"github.com/andrelcx/wamon/internal/config"
	"github.com/andrelcx/wamon/internal/detector"
	"github.com/andrelcx/wamon/internal/store"
)

// Store is the persistence surface the monitor depends on.
type Store interface {
	StoreMessage(ctx context.Context, m store.Message) (bool, error)
	UnprocessedMessages(ctx context.Context, limit int) ([]store.Message, error)
	MarkProcessed(ctx context.Context, id string, workRelated bool, priority string) error
	UnrecoveredGaps(ctx context.Context) ([]store.Gap, error)
	MarkGapRecoveryAttempted(ctx context.Context, id string, at time.Time) error
}

// Browser is the driver surface the monitor needs: the detector's probe
// methods plus navigation and teardown.
type Browser interface {
	detector.Page
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Close() error
}

// BrowserFactory launches a fresh browser session. Injected so tests and
// reconnect logic control browser lifetime independently of the monitor.
type BrowserFactory func(ctx context.Context) (Browser, error)

// Monitor owns the connection state machine and the background monitoring
// loops for one WhatsApp Web session. The host holds exactly one instance.
//
// Two locks: opMu serializes commands (connect, disconnect, check-login) so
// they never interleave; mu guards the state record and is never held across
// browser I/O, so status reads stay fast during a slow connect.
type Monitor struct {
	cfg      *config.Config
	det      *detector.Detector
	store    Store
	factory  BrowserFactory
	recovery RecoveryStrategy
	bus      *bus.Bus
	logger   *zap.Logger

	opMu sync.Mutex

	mu      sync.Mutex
	state   State
	browser Browser
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now func() time.Time
}

func New(cfg *config.Config, det *detector.Detector, st Store, factory BrowserFactory, recovery RecoveryStrategy, b *bus.Bus, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recovery == nil {
		recovery = NoopRecovery{Logger: logger}
	}
	return &Monitor{
		cfg:      cfg,
		det:      det,
		store:    st,
		factory:  factory,
		recovery: recovery,
		bus:      b,
		logger:   logger,
		state: State{
			Status:      StatusDisconnected,
			ActiveChats: []string{},
		},
		now: time.Now,
	}
}

// Status returns a snapshot of the current session state. It never fails and
// never blocks on browser I/O.
func (m *Monitor) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Connect launches the browser if needed, navigates to WhatsApp Web, and
// runs session detection. Ends in Connected+Monitoring for an authenticated
// session, QRCodeReady when a login code is on screen. On browser or
// navigation failure the state is left where it got to; disconnect resets it.
func (m *Monitor) Connect(ctx context.Context) (State, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state.Status == StatusConnected || m.state.Status == StatusMonitoring {
		m.mu.Unlock()
		return m.Status(), ErrAlreadyConnected
	}
	m.transitionLocked(StatusConnecting)
	m.mu.Unlock()

	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		launched, err := m.factory(ctx)
		if err != nil {
			return m.Status(), err
		}
		b = launched
		m.mu.Lock()
		m.browser = b
		m.mu.Unlock()
	}

	if err := b.Navigate(ctx, m.cfg.Browser.URL); err != nil {
		return m.Status(), err
	}
	pageTimeout := time.Duration(m.cfg.Browser.PageLoadTimeoutSec) * time.Second
	if err := b.WaitFor(ctx, "body", pageTimeout); err != nil {
		return m.Status(), err
	}

	// The page keeps rendering after load; give it a moment before probing.
	m.wait(ctx, time.Duration(m.cfg.Monitor.SettleDelayMs)*time.Millisecond)

	if m.det.IsLoggedIn(b) {
		m.wait(ctx, time.Duration(m.cfg.Monitor.ValidateDelayMs)*time.Millisecond)
		if m.det.ValidateActiveSession(ctx, b) {
			m.mu.Lock()
			m.transitionLocked(StatusConnected)
			m.mu.Unlock()
			if err := m.startMonitoring(); err != nil {
				return m.Status(), err
			}
			return m.Status(), nil
		}
		m.logger.Warn("logged-in markers present but session failed validation, looking for QR code")
	}

	qr, err := m.det.ExtractQR(ctx, b)
	if err != nil {
		return m.Status(), fmt.Errorf("%w: no QR code on page", browser.ErrElementNotFound)
	}
	m.mu.Lock()
	m.state.QRCode = qr
	m.transitionLocked(StatusQRCodeReady)
	m.mu.Unlock()
	return m.Status(), nil
}

// Disconnect stops the monitoring loops, releases the browser synchronously,
// and resets the state to Disconnected. Safe to call in any state.
func (m *Monitor) Disconnect() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state.Status == StatusDisconnected && m.browser == nil {
		m.mu.Unlock()
		return nil
	}
	m.state.Health.MonitoringActive = false
	cancel := m.cancel
	m.cancel = nil
	b := m.browser
	m.browser = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	var err error
	if b != nil {
		err = b.Close()
	}

	m.mu.Lock()
	m.transitionLocked(StatusDisconnected)
	m.mu.Unlock()
	return err
}

// StartMonitoring begins the scan, health, and gap loops. Requires the
// session to be Connected; a no-op when monitoring is already active.
func (m *Monitor) StartMonitoring(_ context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.startMonitoring()
}

func (m *Monitor) startMonitoring() error {
	m.mu.Lock()
	if m.state.Health.MonitoringActive {
		m.mu.Unlock()
		return nil
	}
	if m.state.Status != StatusConnected && m.state.Status != StatusReconnecting {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot start monitoring from %s", ErrNotConnected, m.state.Status)
	}
	m.transitionLocked(StatusMonitoring)
	m.state.Health.MonitoringActive = true
	m.state.Health.LastHeartbeat = m.now()
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(3)
	go m.scanLoop(loopCtx)
	go m.healthLoop(loopCtx)
	go m.gapLoop(loopCtx)

	m.logger.Info("monitoring started")
	return nil
}

// CheckLogin re-runs session detection against the live page without a full
// reconnect. While logged out it refreshes the QR code; once the user scans,
// it promotes the session to Connected and starts monitoring. From
// Reconnecting, a validated session resumes Monitoring directly.
func (m *Monitor) CheckLogin(ctx context.Context) (State, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return m.Status(), ErrNotConnected
	}

	if m.det.IsLoggedIn(b) && m.det.ValidateActiveSession(ctx, b) {
		m.mu.Lock()
		switch m.state.Status {
		case StatusConnected, StatusMonitoring:
			// Already where we need to be.
		case StatusReconnecting:
			m.transitionLocked(StatusMonitoring)
			m.state.Health.LastHeartbeat = m.now()
		default:
			m.transitionLocked(StatusConnected)
		}
		m.state.QRCode = ""
		status := m.state.Status
		active := m.state.Health.MonitoringActive
		m.mu.Unlock()

		if status == StatusConnected && !active {
			if err := m.startMonitoring(); err != nil {
				return m.Status(), err
			}
		}
		return m.Status(), nil
	}

	qr, err := m.det.ExtractQR(ctx, b)
	if err != nil {
		m.logger.Warn("check-login found neither session nor QR code", zap.Error(err))
		return m.Status(), nil
	}
	m.mu.Lock()
	var cancel context.CancelFunc
	if m.transitionLocked(StatusQRCodeReady) {
		m.state.QRCode = qr
		// The session is logged out; stop scanning the dead page.
		if m.state.Health.MonitoringActive {
			m.state.Health.MonitoringActive = false
			cancel = m.cancel
			m.cancel = nil
		}
	}
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return m.Status(), nil
}

// UnprocessedMessages lists captured messages awaiting triage.
func (m *Monitor) UnprocessedMessages(ctx context.Context, limit int) ([]store.Message, error) {
	return m.store.UnprocessedMessages(ctx, limit)
}

// MarkProcessed records the triage verdict for a message.
func (m *Monitor) MarkProcessed(ctx context.Context, id string, workRelated bool, priority string) error {
	return m.store.MarkProcessed(ctx, id, workRelated, priority)
}

// transitionLocked applies a status change with its side effects. Caller
// holds mu. Illegal transitions are logged and dropped.
func (m *Monitor) transitionLocked(to Status) bool {
	from := m.state.Status
	if from == to {
		return true
	}
	if !CanTransition(from, to) {
		m.logger.Warn("illegal status transition dropped",
			zap.String("from", string(from)), zap.String("to", string(to)))
		return false
	}
	m.state.Status = to

	switch to {
	case StatusConnecting:
		m.state.MessageCount = 0
		m.state.LastMessageTimestamp = 0
		m.state.ActiveChats = []string{}
		m.state.Health.ConsecutiveFailures = 0
		m.state.LastError = ""
	case StatusConnected, StatusMonitoring:
		if m.state.ConnectedSince == nil {
			t := m.now()
			m.state.ConnectedSince = &t
		}
		m.state.QRCode = ""
		m.state.LastError = ""
	case StatusDisconnected:
		m.state.QRCode = ""
		m.state.ConnectedSince = nil
		m.state.Health.MonitoringActive = false
	}

	m.logger.Info("status changed",
		zap.String("from", string(from)), zap.String("to", string(to)))
	m.publish(bus.KindStatusChanged, map[string]string{"from": string(from), "to": string(to)})
	return true
}

// setErrorLocked moves to Error with a message. Caller holds mu.
func (m *Monitor) setErrorLocked(msg string) {
	if m.transitionLocked(StatusError) {
		m.state.LastError = msg
	}
}

func (m *Monitor) publish(kind string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(bus.Event{Kind: kind, Timestamp: m.now(), Payload: payload})
}

func (m *Monitor) monitoringActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Health.MonitoringActive
}

func (m *Monitor) currentBrowser() Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

func (m *Monitor) wait(ctx context.Context, d time.Duration) {
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
