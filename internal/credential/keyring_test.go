package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/hrnotify/internal/model"
)

func newTestVault() *Vault {
	return NewVault(keyring.NewArrayKeyring(nil))
}

func TestVaultSessionRoundTrip(t *testing.T) {
	t.Parallel()

	v := newTestVault()
	in := Session{Token: "jwt-abc", UserID: "u1", Role: model.RoleDepartmentHead}
	require.NoError(t, v.SaveSession(in))

	out, err := v.LoadSession()
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, model.RoleContext{Role: model.RoleDepartmentHead, UserID: "u1"}, out.RoleContext())
}

func TestVaultLoadWithoutSession(t *testing.T) {
	t.Parallel()

	_, err := newTestVault().LoadSession()
	require.ErrorIs(t, err, ErrNoSession)
}

func TestVaultClearSession(t *testing.T) {
	t.Parallel()

	v := newTestVault()
	require.NoError(t, v.SaveSession(Session{Token: "t", UserID: "u", Role: model.RoleAdmin}))
	require.NoError(t, v.ClearSession())

	_, err := v.LoadSession()
	require.ErrorIs(t, err, ErrNoSession)

	// clearing twice is fine
	require.NoError(t, v.ClearSession())
}

func TestVaultSaveRequiresToken(t *testing.T) {
	t.Parallel()

	err := newTestVault().SaveSession(Session{UserID: "u"})
	require.Error(t, err)
}
