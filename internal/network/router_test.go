package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landledger/internal/domain"
	dErrors "landledger/pkg/domain-errors"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := NewRouter(DefaultTable())
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := newTestRouter(t)

	t.Run("state scope", func(t *testing.T) {
		profile, err := r.Resolve("TS", "Telangana")
		require.NoError(t, err)
		assert.Equal(t, "state-ts", profile.ChannelName)
		assert.Equal(t, "land-registry", profile.ChaincodeName)
		assert.Equal(t, "TelanganaMSP", profile.MSPID)
	})

	t.Run("national scope", func(t *testing.T) {
		profile, err := r.Resolve(ScopeNational, "Federation")
		require.NoError(t, err)
		assert.Equal(t, "registry-global", profile.ChannelName)
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, err := r.Resolve("XX", "Telangana")
		assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown organization", func(t *testing.T) {
		_, err := r.Resolve("TS", "Atlantis")
		assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func TestAuthorize(t *testing.T) {
	r := newTestRouter(t)

	registrar := domain.Identity{Name: "registrar1", Organization: "Telangana", Role: domain.RoleRegistrar}
	fedAdmin := domain.Identity{Name: "admin", Organization: "Federation", Role: domain.RoleAdmin}

	t.Run("state org on home channel", func(t *testing.T) {
		profile, err := r.Resolve("TS", "Telangana")
		require.NoError(t, err)
		assert.NoError(t, r.Authorize(registrar, profile))
	})

	t.Run("state org on national channel", func(t *testing.T) {
		profile, err := r.Resolve(ScopeNational, "Telangana")
		require.NoError(t, err)
		assert.NoError(t, r.Authorize(registrar, profile))
	})

	t.Run("state org on foreign state channel", func(t *testing.T) {
		profile, err := r.Resolve("KA", "Telangana")
		require.NoError(t, err)
		err = r.Authorize(registrar, profile)
		assert.True(t, dErrors.Is(err, dErrors.CodeChannelAccess))
	})

	t.Run("federation org anywhere", func(t *testing.T) {
		profile, err := r.Resolve("KA", "Federation")
		require.NoError(t, err)
		assert.NoError(t, r.Authorize(fedAdmin, profile))
	})

	t.Run("identity org must match the resolved profile", func(t *testing.T) {
		profile, err := r.Resolve("KA", "Karnataka")
		require.NoError(t, err)
		err = r.Authorize(registrar, profile)
		assert.True(t, dErrors.Is(err, dErrors.CodeChannelAccess))
	})
}

func TestHomeScope(t *testing.T) {
	r := newTestRouter(t)
	assert.Equal(t, "TS", r.HomeScope(domain.Identity{Organization: "Telangana"}))
	assert.Equal(t, ScopeNational, r.HomeScope(domain.Identity{Organization: "Federation"}))
}

func TestReload_RejectsIncompleteTable(t *testing.T) {
	r := newTestRouter(t)
	err := r.Reload(Table{Channels: []ChannelBinding{{Scope: "TS"}}})
	assert.Error(t, err)

	// Previous table still serves.
	_, err = r.Resolve("TS", "Telangana")
	assert.NoError(t, err)
}
