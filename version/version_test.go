package version

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func newTestDb(t *testing.T) *bbolt.DB {
	boltdb, err := bbolt.Open(filepath.Join(t.TempDir(), "holdinvoice.db"), 0700, nil)
	require.NoError(t, err)
	t.Cleanup(func() { boltdb.Close() })
	return boltdb
}

func Test_LayoutStore(t *testing.T) {
	layout, err := newLayoutStore(newTestDb(t))
	require.NoError(t, err)

	oldVersion, err := layout.get()
	assert.ErrorIs(t, err, ErrDoesNotExist)
	assert.Equal(t, "", oldVersion)

	require.NoError(t, layout.set("v0"))

	setVersion, err := layout.get()
	require.NoError(t, err)
	assert.Equal(t, "v0", setVersion)
}

func Test_VersionService(t *testing.T) {
	boltdb := newTestDb(t)
	versionService, err := NewVersionService(boltdb)
	require.NoError(t, err)

	// Fresh database.
	require.NoError(t, versionService.SafeUpgrade(&mockHeld{true}))
	current, err := versionService.layout.get()
	require.NoError(t, err)
	assert.Equal(t, GetCurrentVersion(), current)

	// Same version is a no-op.
	require.NoError(t, versionService.SafeUpgrade(&mockHeld{true}))

	require.NoError(t, versionService.layout.set("v0"))
	err = versionService.SafeUpgrade(&mockHeld{true})
	var heldErr HeldInvoicesError
	require.ErrorAs(t, err, &heldErr)
	assert.Contains(t, err.Error(), "v0")

	require.NoError(t, versionService.SafeUpgrade(&mockHeld{false}))
}

func TestCheckClnVersion(t *testing.T) {
	assert.NoError(t, CheckClnVersion("v24.02.2"))
	assert.NoError(t, CheckClnVersion("v23.08"))

	err := CheckClnVersion("v23.05.2")
	var versionErr ClnVersionError
	assert.ErrorAs(t, err, &versionErr)
}

type mockHeld struct {
	hasHeld bool
}

func (m *mockHeld) HasHeldInvoices() (bool, error) {
	return m.hasHeld, nil
}
