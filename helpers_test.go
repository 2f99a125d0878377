package accounts_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/oauth"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

type testConfig struct {
	strict bool
	issuer string
}

func (c testConfig) GetSigningKey() string                 { return testSigningKey }
func (c testConfig) GetTokenExpiration() time.Duration     { return time.Hour }
func (c testConfig) GetIssuer() string                     { return c.issuer }
func (c testConfig) GetRegistrationWindow() time.Duration  { return accounts.DefaultRegistrationWindow }
func (c testConfig) GetPasswordResetWindow() time.Duration { return accounts.DefaultPasswordResetWindow }
func (c testConfig) GetFrontendURL() string                { return "https://app.example.com" }
func (c testConfig) GetStrictOAuthProvider() bool          { return c.strict }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureNotifier struct {
	ch chan accounts.Notification
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{ch: make(chan accounts.Notification, 32)}
}

func (n *captureNotifier) Send(_ context.Context, msg accounts.Notification) error {
	n.ch <- msg
	return nil
}

func (n *captureNotifier) next(t *testing.T) accounts.Notification {
	t.Helper()
	select {
	case msg := <-n.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
		return accounts.Notification{}
	}
}

// oauthUsers maps a provider credential to the claims it verifies to
type oauthUsers map[string]*oauth.Claims

func (u oauthUsers) verifier(name string) oauth.Verifier {
	return oauth.VerifierFunc(name, func(_ context.Context, credential string) (*oauth.Claims, error) {
		claims, ok := u[credential]
		if !ok {
			return nil, oauth.VerificationFailed(name, 401, "invalid credential", nil)
		}
		return claims, nil
	})
}

type testEnv struct {
	db       *bun.DB
	repo     accounts.RepositoryManager
	clock    *fakeClock
	notes    *captureNotifier
	users    oauthUsers
	registry *oauth.Registry
	service  *accounts.Service
}

type envOption func(*accounts.Dependencies)

func withStrictOAuth() envOption {
	return func(d *accounts.Dependencies) {
		d.Config = testConfig{strict: true}
	}
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, accounts.CreateSchema(context.Background(), db))
	return db
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		db:    newTestDB(t),
		clock: newFakeClock(),
		notes: newCaptureNotifier(),
		users: oauthUsers{},
	}

	identities := accounts.NewIdentitiesRepository(env.db).WithClock(env.clock.Now)
	env.repo = accounts.NewRepositoryManagerWithStores(env.db, identities, nil)

	registry, err := oauth.NewRegistry(env.users.verifier("google"))
	require.NoError(t, err)
	env.registry = registry

	deps := accounts.Dependencies{
		Repo:      env.repo,
		Config:    testConfig{},
		Hasher:    accounts.NewBcryptHasher(bcrypt.MinCost),
		Notifier:  env.notes,
		Verifiers: registry,
		Logger:    nopLogger{},
		Now:       env.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.service = accounts.NewService(deps)
	return env
}

// register stages and completes a local registration
func (e *testEnv) register(t *testing.T, email, password string) {
	t.Helper()
	ctx := context.Background()

	_, err := e.service.InitiateRegistration(ctx, email, "Ada", "Lovelace", password)
	require.NoError(t, err)

	note := e.notes.next(t)
	_, err = e.service.CompleteRegistration(ctx, note.Token)
	require.NoError(t, err)
}

func (e *testEnv) countIdentities(t *testing.T, email string) int {
	t.Helper()
	n, err := e.db.NewSelect().
		Model((*accounts.Identity)(nil)).
		Where("email = ?", email).
		Count(context.Background())
	require.NoError(t, err)
	return n
}
