// ABOUTME: Tests for the single-user password authenticator
// ABOUTME: Login success and failure paths, password change, and activity records

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/2389/coven-dashboard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *store.MockStore) {
	t.Helper()
	st := store.NewMockStore()
	ctx := context.Background()
	require.NoError(t, st.SetSetting(ctx, store.SettingUsername, "richard"))
	require.NoError(t, SetPassword(ctx, st, "correct-horse"))

	return NewAuthenticator(st, st, newTestVerifier(t), time.Hour, nil), st
}

func TestAuthenticator_Login(t *testing.T) {
	a, st := newTestAuthenticator(t)
	ctx := context.Background()

	res, err := a.Login(ctx, "Richard", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "richard", res.Username)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, time.Minute)

	user, err := a.Verifier().Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "richard", user)

	activity, err := st.ListActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, store.ActivityLogin, activity[0].Type)
}

func TestAuthenticator_LoginFailures(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()

	_, err := a.Login(ctx, "richard", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Login(ctx, "mallory", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	empty := NewAuthenticator(store.NewMockStore(), nil, newTestVerifier(t), 0, nil)
	_, err = empty.Login(ctx, "richard", "anything")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAuthenticator_ChangePassword(t *testing.T) {
	a, st := newTestAuthenticator(t)
	ctx := context.Background()

	assert.ErrorIs(t, a.ChangePassword(ctx, "wrong", "new-password-1"), ErrInvalidCredentials)
	assert.ErrorIs(t, a.ChangePassword(ctx, "correct-horse", "short"), ErrWeakPassword)

	require.NoError(t, a.ChangePassword(ctx, "correct-horse", "new-password-1"))

	_, err := a.Login(ctx, "richard", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Login(ctx, "richard", "new-password-1")
	require.NoError(t, err)

	activity, _ := st.ListActivity(ctx, 10)
	var types []string
	for _, a := range activity {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, store.ActivityPasswordChange)
}
