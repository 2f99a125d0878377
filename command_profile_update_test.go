package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/oauth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProfile_Names(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "a@x.com", "Secret123")

	res, err := env.service.UpdateProfile(ctx, "a@x.com", accounts.ProfileFields{
		FirstName: "Augusta",
		LastName:  "King",
	})
	require.NoError(t, err)
	assert.Equal(t, accounts.MessageProfileUpdated, res.Message)
	require.NotNil(t, res.Response)
	assert.Equal(t, "Augusta", res.Response.FirstName)
	assert.Equal(t, "King", res.Response.LastName)

	claims, err := env.service.Tokens().Validate(res.Response.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)

	identity, err := env.repo.Identities().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Augusta", identity.FirstName)

	// same email behaves like a plain update
	res, err = env.service.UpdateProfile(ctx, "a@x.com", accounts.ProfileFields{
		FirstName: "Ada",
		NewEmail:  "a@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, accounts.MessageProfileUpdated, res.Message)
	assert.Zero(t, len(env.notes.ch))
}

func TestUpdateProfile_EmailChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "a@x.com", "Secret123")

	res, err := env.service.UpdateProfile(ctx, "a@x.com", accounts.ProfileFields{
		FirstName: "Ada",
		LastName:  "King",
		NewEmail:  "b@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, accounts.MessageEmailChangeSent, res.Message)
	assert.Nil(t, res.Response)

	note := env.notes.next(t)
	assert.Equal(t, accounts.NotifyEmailChange, note.Kind)
	assert.Equal(t, "b@x.com", note.To)

	// nothing moves before the new address is confirmed
	_, err = env.service.LoginLocal(ctx, "a@x.com", "Secret123")
	require.NoError(t, err)

	msg, err := env.service.CompleteRegistration(ctx, note.Token)
	require.NoError(t, err)
	assert.Equal(t, accounts.MessageEmailVerified, msg)

	_, err = env.service.LoginLocal(ctx, "a@x.com", "Secret123")
	assert.True(t, accounts.IsKind(err, accounts.KindNotFound))

	resp, err := env.service.LoginLocal(ctx, "b@x.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, "King", resp.LastName)
	assert.Equal(t, accounts.ProviderLocal, resp.Provider)
}

func TestUpdateProfile_EmailChangeConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "a@x.com", "Secret123")
	env.register(t, "c@x.com", "Secret123")

	_, err := env.service.UpdateProfile(ctx, "a@x.com", accounts.ProfileFields{NewEmail: "c@x.com"})
	require.Error(t, err)
	assert.True(t, accounts.IsKind(err, accounts.KindConflict))
	assert.Contains(t, err.Error(), "Email already registered")

	_, err = env.service.UpdateProfile(ctx, "a@x.com", accounts.ProfileFields{NewEmail: "b@x.com"})
	require.NoError(t, err)
	env.notes.next(t)

	_, err = env.service.UpdateProfile(ctx, "c@x.com", accounts.ProfileFields{NewEmail: "b@x.com"})
	require.Error(t, err)
	assert.True(t, accounts.IsKind(err, accounts.KindConflict))
	assert.Contains(t, err.Error(), "Email already pending for verification")

	_, err = env.service.UpdateProfile(ctx, "nobody@x.com", accounts.ProfileFields{NewEmail: "d@x.com"})
	assert.True(t, accounts.IsKind(err, accounts.KindNotFound))
}

func TestUpdateProfile_EmailTakenBeforeConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "a@x.com", "Secret123")

	_, err := env.service.UpdateProfile(ctx, "a@x.com", accounts.ProfileFields{NewEmail: "b@x.com"})
	require.NoError(t, err)
	change := env.notes.next(t)

	// b@x.com signs up through google while the change is pending
	env.users["b-google"] = &oauth.Claims{Email: "b@x.com"}
	_, err = env.service.LoginOAuth(ctx, accounts.ProviderGoogle, "b-google")
	require.NoError(t, err)

	_, err = env.service.CompleteRegistration(ctx, change.Token)
	require.Error(t, err)
	assert.True(t, accounts.IsKind(err, accounts.KindConflict))

	// the rolled back completion keeps the token
	staged, err := env.repo.PendingChanges().GetByToken(ctx, change.Token)
	require.NoError(t, err)
	assert.Equal(t, accounts.ChangeEmail, staged.Kind)
}

func TestUpdateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "a@x.com", "Secret123")

	_, err := env.service.UpdateEmail(ctx, "a@x.com", "", accounts.ProfileFields{})
	require.Error(t, err)
	assert.True(t, goerrors.IsValidation(err))

	_, err = env.service.UpdateEmail(ctx, "a@x.com", " a@x.com ", accounts.ProfileFields{})
	assert.True(t, accounts.IsKind(err, accounts.KindConflict))

	msg, err := env.service.UpdateEmail(ctx, "a@x.com", "b@x.com", accounts.ProfileFields{FirstName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, accounts.MessageEmailChangeSent, msg)
	assert.Equal(t, "b@x.com", env.notes.next(t).To)
}
