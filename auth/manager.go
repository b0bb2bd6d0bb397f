// Package auth owns login state per account: cached-session reuse with a
// liveness probe, fresh credential login with device rotation and bounded
// retries, and logout. Access to a given account's authenticated handle is
// serialized so overlapping requests cannot race on the same session.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mojtba-allam/my-insta-bot/gramapi"
	"github.com/mojtba-allam/my-insta-bot/session"
	"github.com/mojtba-allam/my-insta-bot/telemetry"
)

// loginAttempts bounds fresh-login retries. Errors that need user action
// (challenge, bad password, unknown user) stop the loop immediately.
const loginAttempts = 5

type account struct {
	mu       sync.Mutex
	client   *gramapi.Client
	loggedIn bool
	deviceID string
}

// DeviceIDStore persists the device identity an account logs in with, so
// restarts keep presenting the same device instead of minting a new one.
type DeviceIDStore interface {
	Get(ctx context.Context, accountID string) (string, error)
	Set(ctx context.Context, accountID, deviceID string) error
	Delete(ctx context.Context, accountID string) error
}

// Manager hands out authenticated clients keyed by account id.
type Manager struct {
	// NewClient builds a client bound to a session; tests swap it to point
	// at a mock server.
	NewClient func(*gramapi.Session) *gramapi.Client
	// Sleep is the retry delay hook; the default honors ctx cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
	// Devices, when set, persists device ids across restarts.
	Devices DeviceIDStore

	store    *session.Store
	mu       sync.Mutex
	accounts map[string]*account
}

// NewManager builds a Manager persisting sessions through store.
func NewManager(store *session.Store) *Manager {
	return &Manager{
		NewClient: gramapi.NewClient,
		Sleep:     sleepCtx,
		store:     store,
		accounts:  map[string]*account{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// retryDelay is 5s plus 1-5s of jitter, per observed tolerance of the remote
// service to rapid successive login attempts.
func retryDelay() time.Duration {
	//nolint:gosec // G404: jitter only, not security sensitive
	return 5*time.Second + time.Duration(1e9+rand.Int63n(4e9))
}

func (m *Manager) account(id string) *account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		a = &account{}
		m.accounts[id] = a
	}
	return a
}

// Client returns the live authenticated handle for the account, if any.
func (m *Manager) Client(accountID string) (*gramapi.Client, bool) {
	a := m.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loggedIn && a.client != nil {
		return a.client, true
	}
	return nil, false
}

// Login returns an authenticated client for accountID, reusing a cached
// session when it passes the liveness probe. force skips the cache and
// supersedes any stored session.
//
// A liveness failure classified as a connectivity problem fails fast with a
// network error instead of falling through to a fresh login: hammering the
// login endpoint while offline only burns attempts and draws attention.
func (m *Manager) Login(ctx context.Context, accountID, username, secret string, force bool) (*gramapi.Client, error) {
	a := m.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	logger := slog.Default().With(slog.String("account", accountID), slog.String("component", "auth"))

	if a.loggedIn && a.client != nil && !force {
		return a.client, nil
	}

	if !force {
		if client, err, done := m.tryCached(ctx, accountID, logger); done {
			if err == nil {
				a.client = client
				a.loggedIn = true
			}
			return client, err
		}
	}

	if a.deviceID == "" {
		a.deviceID = m.loadDeviceID(ctx, accountID, logger)
	}
	if a.deviceID == "" {
		a.deviceID = gramapi.GenerateDeviceID(username, secret)
		m.saveDeviceID(ctx, accountID, a.deviceID, logger)
	}

	var lastErr error
	for attempt := 0; attempt < loginAttempts; attempt++ {
		profile := gramapi.ProfileForAttempt(attempt)
		client := m.NewClient(&gramapi.Session{
			Username: username,
			DeviceID: a.deviceID,
			Device:   profile,
		})
		logger.Info("login attempt",
			slog.Int("attempt", attempt+1),
			slog.Int("max", loginAttempts),
			slog.String("device", profile.Manufacturer+" "+profile.Model))
		err := client.Login(ctx, username, secret)
		if err == nil {
			m.persist(ctx, accountID, client, logger)
			a.client = client
			a.loggedIn = true
			telemetry.IncLogin(true)
			logger.Info("login succeeded")
			return client, nil
		}
		lastErr = err
		// Raw text logged before classification so misclassification is
		// diagnosable from the logs.
		logger.Error("login attempt failed", slog.Any("err", err))
		switch k := gramapi.Classify(err); k {
		case gramapi.KindChallengeRequired, gramapi.KindBadPassword,
			gramapi.KindInvalidUser, gramapi.KindRateLimited:
			telemetry.IncLogin(false)
			return nil, gramapi.NewError(k, err.Error())
		}
		if attempt < loginAttempts-1 {
			d := retryDelay()
			logger.Info("retrying login", slog.Duration("delay", d))
			if err := m.Sleep(ctx, d); err != nil {
				return nil, err
			}
		}
	}
	telemetry.IncLogin(false)
	return nil, fmt.Errorf("login failed after %d attempts: %w", loginAttempts, lastErr)
}

// tryCached attempts the cached-session fast path. done=false means no
// usable cache: fall through to a fresh login.
func (m *Manager) tryCached(ctx context.Context, accountID string, logger *slog.Logger) (*gramapi.Client, error, bool) {
	blob, ok := m.store.Load(ctx, accountID)
	if !ok {
		return nil, nil, false
	}
	sess, err := gramapi.UnmarshalSession(blob)
	if err != nil {
		logger.Warn("cached session unreadable, discarding", slog.Any("err", err))
		_ = m.store.Delete(ctx, accountID)
		return nil, nil, false
	}
	client := m.NewClient(sess)
	logger.Info("verifying cached session")
	if err := client.CurrentUser(ctx); err != nil {
		logger.Warn("cached session liveness failed", slog.Any("err", err))
		if gramapi.Classify(err) == gramapi.KindNetwork {
			// Fatal, user actionable: not a reason to attempt a fresh login.
			return nil, gramapi.NewError(gramapi.KindNetwork,
				"servers cannot be reached, check connectivity: "+err.Error()), true
		}
		_ = m.store.Delete(ctx, accountID)
		return nil, nil, false
	}
	logger.Info("cached session still valid, skipping fresh login")
	return client, nil, true
}

// loadDeviceID returns the persisted device id for the account, or "".
func (m *Manager) loadDeviceID(ctx context.Context, accountID string, logger *slog.Logger) string {
	if m.Devices == nil {
		return ""
	}
	id, err := m.Devices.Get(ctx, accountID)
	if err != nil {
		logger.Warn("device id load failed", slog.Any("err", err))
		return ""
	}
	return id
}

func (m *Manager) saveDeviceID(ctx context.Context, accountID, deviceID string, logger *slog.Logger) {
	if m.Devices == nil {
		return
	}
	if err := m.Devices.Set(ctx, accountID, deviceID); err != nil {
		logger.Warn("device id persist failed", slog.Any("err", err))
	}
}

func (m *Manager) persist(ctx context.Context, accountID string, client *gramapi.Client, logger *slog.Logger) {
	blob, err := client.Session().Marshal()
	if err != nil {
		logger.Warn("session marshal failed", slog.Any("err", err))
		return
	}
	if err := m.store.Save(ctx, accountID, blob); err != nil {
		logger.Warn("session persist failed", slog.Any("err", err))
	}
}

// Logout invalidates the session remotely best-effort and always clears the
// cached session and in-memory state.
func (m *Manager) Logout(ctx context.Context, accountID string) error {
	a := m.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		if err := a.client.Logout(ctx); err != nil {
			slog.Warn("remote logout failed", slog.String("account", accountID), slog.Any("err", err))
		}
	}
	a.client = nil
	a.loggedIn = false
	a.deviceID = ""
	if m.Devices != nil {
		if err := m.Devices.Delete(ctx, accountID); err != nil {
			slog.Warn("device id delete failed", slog.String("account", accountID), slog.Any("err", err))
		}
	}
	return m.store.Delete(ctx, accountID)
}
