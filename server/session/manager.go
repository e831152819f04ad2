// Package session manages the lifecycle of one delivery channel connection:
// starting it, refreshing its authentication challenge, polling its status
// and reconnecting when the backend drops the link.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/zf-portal/leadflow/server/gateway"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusStopped      Status = "STOPPED"
	StatusInitializing Status = "INITIALIZING"
	StatusAwaitingAuth Status = "AWAITING_AUTH"
	StatusConnected    Status = "CONNECTED"
	StatusFailed       Status = "FAILED"
	StatusDisconnected Status = "DISCONNECTED"
)

// Listener observes session status transitions. Listeners are invoked
// synchronously with the transition; panics are recovered and logged.
type Listener func(Status)

// Config holds the manager tunables.
type Config struct {
	SessionID     string
	AutoReconnect bool
	// PollInterval is how often the background poller queries the gateway.
	PollInterval time.Duration
	// ChallengeTTL is the age beyond which a cached auth challenge is
	// considered stale and refreshed by the poller.
	ChallengeTTL time.Duration
	// StopTimeout bounds how long Stop waits for the poller to exit.
	StopTimeout time.Duration
	// ReconnectBackoffMax caps the exponential reconnect backoff.
	ReconnectBackoffMax time.Duration
}

func (c *Config) applyDefaults() {
	if c.SessionID == "" {
		c.SessionID = "default"
	}
	if c.PollInterval == 0 {
		c.PollInterval = 20 * time.Second
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = 2 * time.Minute
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.ReconnectBackoffMax == 0 {
		c.ReconnectBackoffMax = 5 * time.Minute
	}
}

// Manager owns one channel session. It is safe for concurrent use; all
// mutable state is guarded by mu since the poller and callers race on the
// status and the cached challenge.
type Manager struct {
	gateway gateway.Gateway
	config  Config

	mu                sync.Mutex
	status            Status
	authChallenge     string
	challengeTs       time.Time
	connectedIdentity string
	lastActivity      time.Time
	listeners         []Listener
	reconnectAttempts int
	nextReconnectAt   time.Time

	pollerStop chan struct{}
	pollerDone chan struct{}
}

// NewManager creates a session manager. The session stays STOPPED until
// Start is called.
func NewManager(gw gateway.Gateway, config Config) *Manager {
	config.applyDefaults()
	return &Manager{
		gateway: gw,
		config:  config,
		status:  StatusStopped,
	}
}

// Status returns the current session status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ConnectedIdentity returns the authenticated channel identity, or "".
func (m *Manager) ConnectedIdentity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectedIdentity
}

// AddStatusListener registers a listener for status transitions.
func (m *Manager) AddStatusListener(listener Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// transitionLocked updates the status and notifies listeners synchronously.
// Callers must hold mu. The auth challenge lives only in AWAITING_AUTH.
func (m *Manager) transitionLocked(next Status) {
	if m.status == next {
		return
	}
	m.status = next
	if next != StatusAwaitingAuth {
		m.authChallenge = ""
		m.challengeTs = time.Time{}
	}

	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("session status listener panicked", "session", m.config.SessionID, "recover", r)
				}
			}()
			listener(next)
		}()
	}
}

// Start brings the session up. Calling it while CONNECTED or INITIALIZING is
// a no-op. On gateway failure the session lands in FAILED.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusConnected || m.status == StatusInitializing {
		m.mu.Unlock()
		return nil
	}
	m.transitionLocked(StatusInitializing)
	m.mu.Unlock()

	slog.Info("starting channel session", "session", m.config.SessionID)
	if err := m.gateway.StartSession(ctx); err != nil {
		m.mu.Lock()
		m.transitionLocked(StatusFailed)
		m.mu.Unlock()
		return errors.Wrap(err, "failed to start gateway session")
	}

	// A prior run may have left the backend authenticated: one synchronous
	// status query picks the correct next state.
	reply, err := m.gateway.Status(ctx)
	if err != nil {
		m.mu.Lock()
		m.transitionLocked(StatusFailed)
		m.mu.Unlock()
		return errors.Wrap(err, "failed to query session status")
	}

	m.mu.Lock()
	m.reconnectAttempts = 0
	m.nextReconnectAt = time.Time{}
	switch reply.Status {
	case gateway.StatusConnected:
		m.connectedIdentity = reply.ConnectedIdentity
		m.transitionLocked(StatusConnected)
	default:
		m.transitionLocked(StatusAwaitingAuth)
	}
	m.mu.Unlock()

	if m.Status() == StatusAwaitingAuth {
		if _, err := m.AuthChallenge(ctx); err != nil {
			slog.Warn("failed to fetch initial auth challenge", "session", m.config.SessionID, "error", err)
		}
	}

	m.startPoller()
	return nil
}

// AuthChallenge returns the cached challenge while fresh, fetching a new one
// from the gateway otherwise. It returns "" when the gateway reports no
// challenge available.
func (m *Manager) AuthChallenge(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.authChallenge != "" && time.Since(m.challengeTs) < m.config.ChallengeTTL {
		challenge := m.authChallenge
		m.mu.Unlock()
		return challenge, nil
	}
	m.mu.Unlock()

	challenge, err := m.gateway.AuthChallenge(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to fetch auth challenge")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// The state may have moved on (e.g. to CONNECTED) while the fetch was in
	// flight; a late challenge must not resurrect a cleared one.
	if m.status != StatusAwaitingAuth {
		return "", nil
	}
	if challenge != "" {
		m.authChallenge = challenge
		m.challengeTs = time.Now()
	}
	return challenge, nil
}

// CheckStatus queries the gateway once, applies any transition and drives
// auto-reconnect. It never returns a transport error to the caller; a failed
// query surfaces as StatusFailed.
func (m *Manager) CheckStatus(ctx context.Context) Status {
	reply, err := m.gateway.Status(ctx)
	if err != nil {
		slog.Error("failed to check session status", "session", m.config.SessionID, "error", err)
		m.mu.Lock()
		m.transitionLocked(StatusFailed)
		m.mu.Unlock()
		return StatusFailed
	}

	next := statusFromGateway(reply.Status)

	m.mu.Lock()
	if next == StatusConnected {
		m.connectedIdentity = reply.ConnectedIdentity
		m.reconnectAttempts = 0
		m.nextReconnectAt = time.Time{}
	}
	m.transitionLocked(next)
	m.lastActivity = time.Now()
	shouldReconnect := next == StatusDisconnected && m.config.AutoReconnect && !time.Now().Before(m.nextReconnectAt)
	if shouldReconnect {
		backoff := m.reconnectBackoffLocked()
		m.nextReconnectAt = time.Now().Add(backoff)
		m.reconnectAttempts++
	}
	m.mu.Unlock()

	if shouldReconnect {
		slog.Info("session disconnected, reconnecting", "session", m.config.SessionID)
		if err := m.Start(ctx); err != nil {
			slog.Error("reconnect attempt failed", "session", m.config.SessionID, "error", err)
		}
	}

	return next
}

// reconnectBackoffLocked doubles the wait per consecutive attempt, capped by
// the configured maximum.
func (m *Manager) reconnectBackoffLocked() time.Duration {
	backoff := m.config.PollInterval
	for i := 0; i < m.reconnectAttempts; i++ {
		backoff *= 2
		if backoff >= m.config.ReconnectBackoffMax {
			return m.config.ReconnectBackoffMax
		}
	}
	return backoff
}

// Stop halts the poller, tears the gateway session down and reports STOPPED.
// No poller tick fires after Stop returns.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopPoller()

	slog.Info("stopping channel session", "session", m.config.SessionID)
	err := m.gateway.StopSession(ctx)

	m.mu.Lock()
	m.transitionLocked(StatusStopped)
	m.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "failed to stop gateway session")
	}
	return nil
}

// Logout halts the poller and invalidates the channel credentials, leaving
// the session DISCONNECTED with the challenge cleared.
func (m *Manager) Logout(ctx context.Context) error {
	m.stopPoller()

	slog.Info("logging out channel session", "session", m.config.SessionID)
	err := m.gateway.LogoutSession(ctx)

	m.mu.Lock()
	m.connectedIdentity = ""
	m.transitionLocked(StatusDisconnected)
	m.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "failed to logout gateway session")
	}
	return nil
}

func (m *Manager) startPoller() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pollerStop != nil {
		return
	}
	m.pollerStop = make(chan struct{})
	m.pollerDone = make(chan struct{})
	go m.pollLoop(m.pollerStop, m.pollerDone)
	slog.Info("session poller started", "session", m.config.SessionID, "interval", m.config.PollInterval)
}

func (m *Manager) stopPoller() {
	m.mu.Lock()
	stop, done := m.pollerStop, m.pollerDone
	m.pollerStop, m.pollerDone = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(m.config.StopTimeout):
		slog.Warn("session poller did not stop in time", "session", m.config.SessionID)
	}
}

func (m *Manager) pollLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.config.PollInterval)
			status := m.CheckStatus(ctx)
			if status == StatusAwaitingAuth {
				m.refreshStaleChallenge(ctx)
			}
			cancel()
		case <-stop:
			slog.Info("session poller stopped", "session", m.config.SessionID)
			return
		}
	}
}

// refreshStaleChallenge re-fetches the auth challenge once it outlives its
// TTL, modeling the expiry of one-time codes.
func (m *Manager) refreshStaleChallenge(ctx context.Context) {
	m.mu.Lock()
	stale := m.authChallenge == "" || time.Since(m.challengeTs) >= m.config.ChallengeTTL
	m.mu.Unlock()
	if !stale {
		return
	}

	challenge, err := m.gateway.AuthChallenge(ctx)
	if err != nil {
		slog.Error("failed to refresh auth challenge", "session", m.config.SessionID, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Discard a refresh that lost the race with a transition out of
	// AWAITING_AUTH; the cleared challenge must stay cleared.
	if m.status != StatusAwaitingAuth {
		return
	}
	if challenge != "" {
		m.authChallenge = challenge
		m.challengeTs = time.Now()
		slog.Info("auth challenge refreshed", "session", m.config.SessionID)
	}
}

func statusFromGateway(s gateway.Status) Status {
	switch s {
	case gateway.StatusConnected:
		return StatusConnected
	case gateway.StatusAwaitingAuth, gateway.StatusInitializing:
		return StatusAwaitingAuth
	case gateway.StatusDisconnected:
		return StatusDisconnected
	case gateway.StatusStopped:
		return StatusStopped
	case gateway.StatusFailed:
		return StatusFailed
	default:
		return StatusFailed
	}
}
