package accounts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingChanges_InsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := accounts.NewPendingChangesRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	change := accounts.NewRegistration("tok-1", "a@x.com", accounts.RegistrationPayload{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: "$2a$04$hash",
	}, now, time.Hour)

	require.NoError(t, repo.InsertIfAbsentTx(ctx, db, change, now))

	got, err := repo.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, accounts.ChangeRegistration, got.Kind)
	assert.Equal(t, "a@x.com", got.Email)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

	p, ok := got.Registration()
	require.True(t, ok)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "$2a$04$hash", p.PasswordHash)

	byEmail, err := repo.GetByEmailTx(ctx, db, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", byEmail.Token)

	_, err = repo.GetByToken(ctx, "missing")
	assert.True(t, accounts.IsKind(err, accounts.KindNotFound))
}

func TestPendingChanges_OnePerEmail(t *testing.T) {
	db := newTestDB(t)
	repo := accounts.NewPendingChangesRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := accounts.NewRegistration("tok-1", "a@x.com", accounts.RegistrationPayload{}, now, time.Hour)
	require.NoError(t, repo.InsertIfAbsentTx(ctx, db, first, now))

	second := accounts.NewPasswordReset("tok-2", "a@x.com", accounts.PasswordResetPayload{IdentityID: uuid.New()}, now, time.Hour)
	err := repo.InsertIfAbsentTx(ctx, db, second, now)
	require.Error(t, err)
	assert.True(t, accounts.IsKind(err, accounts.KindConflict))

	// an expired record for the email is replaced
	later := now.Add(time.Hour)
	third := accounts.NewPasswordReset("tok-3", "a@x.com", accounts.PasswordResetPayload{IdentityID: uuid.New()}, later, time.Hour)
	require.NoError(t, repo.InsertIfAbsentTx(ctx, db, third, later))

	_, err = repo.GetByToken(ctx, "tok-1")
	assert.True(t, accounts.IsKind(err, accounts.KindNotFound))

	got, err := repo.GetByEmailTx(ctx, db, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-3", got.Token)
	assert.Equal(t, accounts.ChangePasswordReset, got.Kind)
}

func TestPendingChanges_Consume(t *testing.T) {
	db := newTestDB(t)
	repo := accounts.NewPendingChangesRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	id := uuid.New()

	change := accounts.NewEmailChange("tok-1", "b@x.com", accounts.EmailChangePayload{
		IdentityID: id,
		FirstName:  "Ada",
	}, now, time.Hour)
	require.NoError(t, repo.InsertIfAbsentTx(ctx, db, change, now))

	_, err := repo.ConsumeTx(ctx, db, "tok-1", accounts.ChangePasswordReset)
	assert.True(t, accounts.IsKind(err, accounts.KindNotFound), "kind filter")

	got, err := repo.ConsumeTx(ctx, db, "tok-1", accounts.ChangeRegistration, accounts.ChangeEmail)
	require.NoError(t, err)
	p, ok := got.EmailChange()
	require.True(t, ok)
	assert.Equal(t, id, p.IdentityID)

	_, err = repo.ConsumeTx(ctx, db, "tok-1")
	assert.True(t, accounts.IsKind(err, accounts.KindNotFound), "single use")
}

func TestPendingChanges_ConcurrentConsume(t *testing.T) {
	db := newTestDB(t)
	repo := accounts.NewPendingChangesRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	change := accounts.NewRegistration("tok-1", "a@x.com", accounts.RegistrationPayload{}, now, time.Hour)
	require.NoError(t, repo.InsertIfAbsentTx(ctx, db, change, now))

	const callers = 6
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.ConsumeTx(ctx, db, "tok-1")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, accounts.IsKind(err, accounts.KindNotFound))
	}
	assert.Equal(t, 1, ok)
}

func TestPendingChanges_DeleteExpired(t *testing.T) {
	db := newTestDB(t)
	repo := accounts.NewPendingChangesRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		window := time.Duration(i+1) * time.Hour
		change := accounts.NewRegistration(uuid.NewString(), email, accounts.RegistrationPayload{}, now, window)
		require.NoError(t, repo.InsertIfAbsentTx(ctx, db, change, now))
	}

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.DeleteExpired(ctx, now.Add(2*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.GetByEmailTx(ctx, db, "c@x.com")
	assert.NoError(t, err)

	n, err = repo.DeleteExpired(ctx, now.Add(2*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n, "idempotent")
}

func TestPendingChanges_DeleteTx(t *testing.T) {
	db := newTestDB(t)
	repo := accounts.NewPendingChangesRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	change := accounts.NewRegistration("tok-1", "a@x.com", accounts.RegistrationPayload{}, now, time.Hour)
	require.NoError(t, repo.InsertIfAbsentTx(ctx, db, change, now))

	require.NoError(t, repo.DeleteTx(ctx, db, "tok-1"))
	require.NoError(t, repo.DeleteTx(ctx, db, "tok-1"))

	_, err := repo.GetByToken(ctx, "tok-1")
	assert.True(t, accounts.IsKind(err, accounts.KindNotFound))
}
