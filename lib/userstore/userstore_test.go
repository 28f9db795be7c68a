package userstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	return New(filepath.Join(t.TempDir(), "users.json"), "dra.paula")
}

func TestAuthenticate(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("ana", "Ana Lima", "Recepção", "segredo123", false)
	require.NoError(t, err)

	u, err := store.Authenticate("ana", "segredo123")
	require.NoError(t, err)
	require.Equal(t, "Ana Lima", u.Name)
	require.Equal(t, RoleUser, u.Role)
	require.NotNil(t, u.LastLogin)

	_, err = store.Authenticate("ana", "errada")
	require.ErrorIs(t, err, ErrBadPassword)

	_, err = store.Authenticate("ninguem", "segredo123")
	require.ErrorIs(t, err, ErrBadPassword)
}

func TestRoleResolution(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("Dra.Paula", "Paula", "Médica", "x", false)
	require.NoError(t, err)
	_, err = store.Create("carlos", "Carlos", "Administrador", "x", false)
	require.NoError(t, err)
	_, err = store.Create("ana", "Ana", "Recepção", "x", false)
	require.NoError(t, err)

	super, err := store.Get("dra.paula")
	require.NoError(t, err)
	require.Equal(t, RoleSuperAdmin, super.Role)

	admin, err := store.Get("carlos")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, admin.Role)

	user, err := store.Get("ana")
	require.NoError(t, err)
	require.Equal(t, RoleUser, user.Role)
}

func TestRevealPasswordIsSuperAdminOnly(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create("ana", "Ana", "Recepção", "segredo123", false)
	require.NoError(t, err)

	for _, role := range []string{RoleAdmin, RoleUser, ""} {
		_, err := store.RevealPassword(role, "ana")
		require.ErrorIs(t, err, ErrForbidden)
	}

	plain, err := store.RevealPassword(RoleSuperAdmin, "ana")
	require.NoError(t, err)
	require.Equal(t, "segredo123", plain)
}

func TestPasswordChangeFlows(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create("ana", "Ana", "Recepção", "inicial", false)
	require.NoError(t, err)

	require.ErrorIs(t, store.ChangePassword("ana", "errada", "nova"), ErrBadPassword)
	require.NoError(t, store.ChangePassword("ana", "inicial", "nova"))

	_, err = store.Authenticate("ana", "nova")
	require.NoError(t, err)

	require.NoError(t, store.SetPasswordAdmin("ana", "reset"))
	u, err := store.Authenticate("ana", "reset")
	require.NoError(t, err)
	require.True(t, u.MustChangePassword)

	require.NoError(t, store.ChangePassword("ana", "reset", "final"))
	u, err = store.Get("ana")
	require.NoError(t, err)
	require.False(t, u.MustChangePassword)
}

func TestUpsertKeepsLocalCredentials(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Upsert("ana", "Ana", "Recepção", "inicial")
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, store.ChangePassword("ana", "inicial", "minha"))

	created, err = store.Upsert("ana", "Ana Lima", "Administrador", "ignorada")
	require.NoError(t, err)
	require.False(t, created)

	u, err := store.Authenticate("ana", "minha")
	require.NoError(t, err)
	require.Equal(t, "Ana Lima", u.Name)
	require.Equal(t, RoleAdmin, u.Role)
}

func TestWritesAreAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store := New(path, "root")

	_, err := store.Create("ana", "Ana", "Recepção", "x", false)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "users.json", entries[0].Name())
}

func TestCapabilityMatrix(t *testing.T) {
	require.True(t, Can(RoleSuperAdmin, CapRevealPassword))
	require.False(t, Can(RoleAdmin, CapRevealPassword))
	require.True(t, Can(RoleAdmin, CapManageUsers))
	require.False(t, Can(RoleUser, CapManageUsers))
	require.False(t, Can(RoleUser, CapTriggerSync))
	require.True(t, Can(RoleUser, CapViewStock))
	require.False(t, Can("", CapViewStock))
}
