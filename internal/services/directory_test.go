package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignUsername_OneChangeAfterFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant, err := env.directory.CreateTenant(ctx, "alice@example.com")
	require.NoError(t, err)

	got, err := env.directory.AssignUsername(ctx, tenant.ID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UsernameValue())

	got, err = env.directory.AssignUsername(ctx, tenant.ID, "alice_b")
	require.NoError(t, err)
	assert.Equal(t, "alice_b", got.UsernameValue())

	_, err = env.directory.AssignUsername(ctx, tenant.ID, "alice_c")
	assert.ErrorIs(t, err, ErrUsernameLocked)

	// re-assigning the current name is not a change
	_, err = env.directory.AssignUsername(ctx, tenant.ID, "ALICE_B")
	assert.NoError(t, err)
}

func TestAssignUsername_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.freeTenant("bob")
	carol, err := env.directory.CreateTenant(ctx, "carol@example.com")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{"taken case-insensitively", "BOB", ErrUsernameTaken},
		{"reserved", "www", ErrInvalidUsername},
		{"too short", "ab", ErrInvalidUsername},
		{"bad characters", "carol.page", ErrInvalidUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.directory.AssignUsername(ctx, carol.ID, tt.username)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, 0, env.tenants.get(carol.ID).UsernameChanges)
}

func TestAssignUsername_RenameInvalidatesOldSubdomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.proTenant("bob")

	res, err := env.resolver.Resolve(ctx, "bob.folio.page")
	require.NoError(t, err)
	require.True(t, res.Found)

	_, err = env.directory.AssignUsername(ctx, bob.ID, "robert")
	require.NoError(t, err)

	res, err = env.resolver.Resolve(ctx, "bob.folio.page")
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = env.resolver.Resolve(ctx, "robert.folio.page")
	require.NoError(t, err)
	assert.True(t, res.Found)
}

func TestAssignUsername_UnknownTenant(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.directory.AssignUsername(context.Background(), uuid.New(), "nobody")

	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestBindCustomDomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.proTenant("bob")
	carol := env.proTenant("carol")
	dave := env.freeTenant("dave")

	require.NoError(t, env.directory.BindCustomDomain(ctx, bob.ID, "WWW.Bob.dev"))
	assert.Equal(t, "bob.dev", env.tenants.get(bob.ID).DomainValue())

	assert.NoError(t, env.directory.BindCustomDomain(ctx, bob.ID, "bob.dev"), "rebinding the same domain is a no-op")
	assert.ErrorIs(t, env.directory.BindCustomDomain(ctx, bob.ID, "other.dev"), ErrTenantHasDomain)
	assert.ErrorIs(t, env.directory.BindCustomDomain(ctx, carol.ID, "bob.dev"), ErrDomainAlreadyBound)
	assert.ErrorIs(t, env.directory.BindCustomDomain(ctx, dave.ID, "dave.dev"), ErrNotEntitled)
	assert.ErrorIs(t, env.directory.BindCustomDomain(ctx, carol.ID, "not a domain"), ErrInvalidDomainFormat)
	assert.ErrorIs(t, env.directory.BindCustomDomain(ctx, uuid.New(), "ghost.dev"), ErrTenantNotFound)
}

func TestUnbindCustomDomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.proTenant("bob")

	assert.ErrorIs(t, env.directory.UnbindCustomDomain(ctx, bob.ID), ErrNotBound)

	require.NoError(t, env.directory.BindCustomDomain(ctx, bob.ID, "bob.dev"))
	require.NoError(t, env.directory.UnbindCustomDomain(ctx, bob.ID))

	_, err := env.directory.FindByCustomDomain(ctx, "bob.dev")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	// freed for another tenant
	carol := env.proTenant("carol")
	assert.NoError(t, env.directory.BindCustomDomain(ctx, carol.ID, "bob.dev"))
}

func TestDeleteTenant_DropsResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.proTenant("bob")
	require.NoError(t, env.directory.BindCustomDomain(ctx, bob.ID, "bob.dev"))

	for _, host := range []string{"bob.folio.page", "bob.dev"} {
		res, err := env.resolver.Resolve(ctx, host)
		require.NoError(t, err)
		require.True(t, res.Found, host)
	}

	require.NoError(t, env.directory.DeleteTenant(ctx, bob.ID))

	for _, host := range []string{"bob.folio.page", "bob.dev"} {
		res, err := env.resolver.Resolve(ctx, host)
		require.NoError(t, err)
		assert.False(t, res.Found, host)
	}

	_, err := env.directory.Get(ctx, bob.ID)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestFindByUsername_CaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	bob := env.proTenant("bob")

	found, err := env.directory.FindByUsername(context.Background(), " BoB ")

	require.NoError(t, err)
	assert.Equal(t, bob.ID, found.ID)
}

func TestDirectoryInvalidate_ExternalMutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.proTenant("bob")

	res, err := env.resolver.Resolve(ctx, "bob.folio.page")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, 1, env.hostCache.Len())

	require.NoError(t, env.directory.Invalidate(ctx, bob.ID))
	assert.Zero(t, env.hostCache.Len())

	assert.ErrorIs(t, env.directory.Invalidate(ctx, uuid.New()), ErrTenantNotFound)
}
