package auth

import (
	"context"
	"testing"
	"time"

	"github.com/mojtba-allam/my-insta-bot/blobstore"
	"github.com/mojtba-allam/my-insta-bot/gramapi"
	"github.com/mojtba-allam/my-insta-bot/session"
	"github.com/mojtba-allam/my-insta-bot/testutil"
)

func testManager(t *testing.T, srv *testutil.MockGramServer) (*Manager, *session.Store) {
	t.Helper()
	local, err := blobstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	store := session.New(local, nil)
	m := NewManager(store)
	m.NewClient = func(s *gramapi.Session) *gramapi.Client {
		c := gramapi.NewClient(s)
		c.BaseURL = srv.URL
		return c
	}
	m.Sleep = func(context.Context, time.Duration) error { return nil }
	return m, store
}

func saveSession(t *testing.T, store *session.Store, accountID string) {
	t.Helper()
	sess := &gramapi.Session{
		Username:  "alice",
		UserID:    42,
		DeviceID:  "android-0011223344556677",
		Device:    gramapi.ProfileForAttempt(0),
		AuthToken: "IGT:2:cached-token",
		SavedAt:   time.Now().UTC(),
	}
	blob, err := sess.Marshal()
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	if err := store.Save(context.Background(), accountID, blob); err != nil {
		t.Fatalf("save session: %v", err)
	}
}

func TestLoginReusesCachedSession(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	srv.MockCurrentUser("alice")
	m, store := testManager(t, srv)
	saveSession(t, store, "acct1")

	client, err := m.Login(context.Background(), "acct1", "alice", "hunter2", false)
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if client.Session().AuthToken != "IGT:2:cached-token" {
		t.Errorf("expected cached session to be reused")
	}
	if n := srv.LoginCalls.Load(); n != 0 {
		t.Errorf("login endpoint hit %d times, want 0", n)
	}
}

func TestLoginLivenessNetworkFailureFailsFast(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	m, store := testManager(t, srv)
	saveSession(t, store, "acct1")
	// Dead endpoint: liveness gets connection refused.
	srv.Close()

	_, err := m.Login(context.Background(), "acct1", "alice", "hunter2", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if gramapi.Classify(err) != gramapi.KindNetwork {
		t.Errorf("Classify = %v, want KindNetwork (err: %v)", gramapi.Classify(err), err)
	}
	// The cached session must survive a connectivity failure.
	if _, ok := store.Load(context.Background(), "acct1"); !ok {
		t.Error("cached session was discarded on a network failure")
	}
}

func TestLoginInvalidCachedSessionFallsThrough(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	srv.MockCurrentUserFailure(400, "login_required")
	srv.MockLoginSuccess(42, "alice")
	m, store := testManager(t, srv)
	saveSession(t, store, "acct1")

	client, err := m.Login(context.Background(), "acct1", "alice", "hunter2", false)
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if n := srv.LoginCalls.Load(); n != 1 {
		t.Errorf("login endpoint hit %d times, want 1", n)
	}
	if client.Session().AuthToken == "IGT:2:cached-token" {
		t.Error("stale session was reused instead of replaced")
	}
	// Fresh session persisted for next time.
	blob, ok := store.Load(context.Background(), "acct1")
	if !ok {
		t.Fatal("expected persisted session after fresh login")
	}
	sess, err := gramapi.UnmarshalSession(blob)
	if err != nil {
		t.Fatalf("persisted session unreadable: %v", err)
	}
	if sess.UserID != 42 {
		t.Errorf("persisted UserID = %d, want 42", sess.UserID)
	}
}

func TestLoginRetriesTransientFailures(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	srv.MockLoginFailure(500, "", "internal server error")
	m, _ := testManager(t, srv)

	_, err := m.Login(context.Background(), "acct1", "alice", "hunter2", false)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if n := srv.LoginCalls.Load(); n != int64(loginAttempts) {
		t.Errorf("login endpoint hit %d times, want %d", n, loginAttempts)
	}
}

func TestLoginStopsImmediatelyOnBadPassword(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	srv.MockLoginFailure(400, "bad_password", "The password you entered is incorrect.")
	m, _ := testManager(t, srv)

	_, err := m.Login(context.Background(), "acct1", "alice", "wrong", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if gramapi.Classify(err) != gramapi.KindBadPassword {
		t.Errorf("Classify = %v, want KindBadPassword", gramapi.Classify(err))
	}
	if n := srv.LoginCalls.Load(); n != 1 {
		t.Errorf("login endpoint hit %d times, want 1", n)
	}
}

func TestLoginStopsImmediatelyOnRateLimit(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	srv.MockLoginFailure(429, "", "Please wait a few minutes before you try again.")
	m, _ := testManager(t, srv)

	_, err := m.Login(context.Background(), "acct1", "alice", "hunter2", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if gramapi.Classify(err) != gramapi.KindRateLimited {
		t.Errorf("Classify = %v, want KindRateLimited", gramapi.Classify(err))
	}
	if n := srv.LoginCalls.Load(); n != 1 {
		t.Errorf("login endpoint hit %d times, want 1", n)
	}
}

// mapDeviceIDs is an in-memory DeviceIDStore.
type mapDeviceIDs struct {
	ids map[string]string
}

func newMapDeviceIDs() *mapDeviceIDs { return &mapDeviceIDs{ids: map[string]string{}} }

func (s *mapDeviceIDs) Get(_ context.Context, accountID string) (string, error) {
	return s.ids[accountID], nil
}

func (s *mapDeviceIDs) Set(_ context.Context, accountID, deviceID string) error {
	s.ids[accountID] = deviceID
	return nil
}

func (s *mapDeviceIDs) Delete(_ context.Context, accountID string) error {
	delete(s.ids, accountID)
	return nil
}

func TestLoginPersistsDeviceID(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	srv.MockLoginSuccess(42, "alice")
	m, _ := testManager(t, srv)
	devices := newMapDeviceIDs()
	m.Devices = devices

	client, err := m.Login(context.Background(), "acct1", "alice", "hunter2", false)
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	got := devices.ids["acct1"]
	if got == "" {
		t.Fatal("device id was not persisted on fresh login")
	}
	if got != client.Session().DeviceID {
		t.Errorf("persisted device id %q differs from the one logged in with %q", got, client.Session().DeviceID)
	}
}

func TestLoginReusesPersistedDeviceID(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	srv.MockLoginSuccess(42, "alice")
	devices := newMapDeviceIDs()
	devices.ids["acct1"] = "android-aabbccddeeff0011"

	// Fresh manager, as after a process restart.
	m, _ := testManager(t, srv)
	m.Devices = devices

	client, err := m.Login(context.Background(), "acct1", "alice", "hunter2", false)
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if client.Session().DeviceID != "android-aabbccddeeff0011" {
		t.Errorf("login used device id %q, want the persisted one", client.Session().DeviceID)
	}
}

func TestLogoutDeletesDeviceID(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	srv.MockLoginSuccess(42, "alice")
	m, _ := testManager(t, srv)
	devices := newMapDeviceIDs()
	m.Devices = devices

	if _, err := m.Login(context.Background(), "acct1", "alice", "hunter2", false); err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if err := m.Logout(context.Background(), "acct1"); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if id := devices.ids["acct1"]; id != "" {
		t.Errorf("device id %q still stored after logout", id)
	}
}

func TestLogoutClearsState(t *testing.T) {
	srv := testutil.NewMockGramServer(t)
	srv.MockLoginSuccess(42, "alice")
	m, store := testManager(t, srv)

	if _, err := m.Login(context.Background(), "acct1", "alice", "hunter2", false); err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if err := m.Logout(context.Background(), "acct1"); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, ok := m.Client("acct1"); ok {
		t.Error("client still cached after logout")
	}
	if _, ok := store.Load(context.Background(), "acct1"); ok {
		t.Error("session still stored after logout")
	}
}
