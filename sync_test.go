package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncWritesOnlyChangedFields(t *testing.T) {
	fac := newMemFactory()
	s := openTestStore(t, newTestRegistry(t, WithLeafFactory(fac)), true)
	defer s.Close()

	m := Map{"a": 1, "b": 2}
	require.NoError(t, s.Store("k", m))
	require.NoError(t, s.Sync())

	backing := fac.made["k"]
	require.NotNil(t, backing)
	assert.Equal(t, 2, backing.stores)
	assert.Equal(t, 1, backing.syncs)

	require.NoError(t, s.Sync())
	assert.Equal(t, 2, backing.stores, "an unchanged value writes nothing")
	assert.Equal(t, 2, backing.syncs, "children are still synced")

	m["a"] = 5
	require.NoError(t, s.Sync())
	assert.Equal(t, 3, backing.stores)
	assert.Equal(t, 5, backing.values["a"])

	delete(m, "b")
	require.NoError(t, s.Sync())
	assert.Equal(t, 1, backing.deletes)
	assert.Equal(t, map[string]any{"a": 5}, backing.values)
}

func TestSyncSkipsIdenticalBacking(t *testing.T) {
	fac := newMemFactory()
	s := openTestStore(t, newTestRegistry(t, WithLeafFactory(fac)), true)
	defer s.Close()

	require.NoError(t, s.Store("k", Map{"a": 1}))
	require.NoError(t, s.Sync())
	backing := fac.made["k"]

	require.NoError(t, s.Store("k", backing))
	backing.values["extra"] = true
	require.NoError(t, s.Sync())

	assert.Equal(t, 1, backing.stores)
	assert.Equal(t, 0, backing.deletes, "the identity fast path skips the comparison")
	assert.Equal(t, 2, backing.syncs, "the backing mapping still syncs itself")
}

func TestSyncContinuesAfterFailure(t *testing.T) {
	fac := newMemFactory()
	fac.hook = func(m *memMapping) {
		if filepath.Base(m.path) == "bad" {
			m.syncErr = errDiskFull
		}
	}
	s := openTestStore(t, newTestRegistry(t, WithLeafFactory(fac)), true)
	defer s.Close()

	require.NoError(t, s.Store("bad", Map{"a": 1}))
	require.NoError(t, s.Store("good", Map{"a": 1}))

	err := s.Sync()
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 1, fac.made["good"].syncs)
	assert.Equal(t, 1, fac.made["good"].values["a"])
}

func TestSyncRecoversPanickingBacking(t *testing.T) {
	fac := newMemFactory()
	fac.hook = func(m *memMapping) {
		if filepath.Base(m.path) == "boom" {
			m.syncPanic = true
		}
	}
	s := openTestStore(t, newTestRegistry(t, WithLeafFactory(fac)), true)

	require.NoError(t, s.Store("boom", Map{}))
	require.NoError(t, s.Store("ok", Map{}))

	err := s.Sync()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backing store exploded")
	assert.Equal(t, 1, fac.made["ok"].syncs)

	fac.made["boom"].syncPanic = false
	require.NoError(t, s.Close())
	assert.Equal(t, 1, fac.made["boom"].closes)
}

func TestSyncPurgesStaleFields(t *testing.T) {
	reg := newTestRegistry(t)
	dir := filepath.Join(t.TempDir(), "s")
	require.NoError(t, os.MkdirAll(dir, 0755))
	leafPath := filepath.Join(dir, "alice")
	require.NoError(t, os.WriteFile(leafPath, []byte("age: 30\nold: x\n"), 0644))

	s, err := reg.Open(dir, true)
	require.NoError(t, err)
	defer s.Close()

	alice, err := s.Get("alice")
	require.NoError(t, err)
	delete(alice, "old")
	alice["age"] = 31
	require.NoError(t, s.Sync())

	data, err := os.ReadFile(leafPath)
	require.NoError(t, err)
	assert.Equal(t, "age: 31\n", string(data))
}

func TestSyncLeavesUntouchedEntriesAlone(t *testing.T) {
	reg := newTestRegistry(t)
	dir := filepath.Join(t.TempDir(), "s")
	require.NoError(t, os.MkdirAll(dir, 0755))
	untouched := filepath.Join(dir, "bob")
	require.NoError(t, os.WriteFile(untouched, []byte("age:   40   # hand edited\n"), 0644))

	s, err := reg.Open(dir, true)
	require.NoError(t, err)
	require.NoError(t, s.Store("alice", Map{"age": 30}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(untouched)
	require.NoError(t, err)
	assert.Equal(t, "age:   40   # hand edited\n", string(data))
}

func TestSyncFetchedButUnchangedIsNotRewritten(t *testing.T) {
	reg := newTestRegistry(t)
	dir := filepath.Join(t.TempDir(), "s")
	require.NoError(t, os.MkdirAll(dir, 0755))
	leafPath := filepath.Join(dir, "bob")
	require.NoError(t, os.WriteFile(leafPath, []byte("age:   40\n"), 0644))

	s, err := reg.Open(dir, true)
	require.NoError(t, err)
	_, err = s.Get("bob")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(leafPath)
	require.NoError(t, err)
	assert.Equal(t, "age:   40\n", string(data))
}

func TestSyncForcedNestingRequiresMappings(t *testing.T) {
	s := openTestStore(t, newTestRegistry(t), true)
	defer s.Close()
	s.Meta().SetDepth(1)

	require.NoError(t, s.Store("alice", Map{"age": 30}))
	require.NoError(t, s.Store("team", Map{"lead": Map{"name": "alice"}}))

	err := s.Sync()
	assert.ErrorIs(t, err, ErrNotAMapping)
	assert.FileExists(t, filepath.Join(s.Dir(), "team", "lead"), "other entries are still written")
}

func TestNestedStoresRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	dir := filepath.Join(t.TempDir(), "s")

	s, err := reg.Open(dir, true)
	require.NoError(t, err)
	s.Meta().SetDepth(1)
	want := Map{
		"lead":   Map{"name": "alice"},
		"backup": Map{"name": "bob", "shifts": []any{"mon", "tue"}},
	}
	require.NoError(t, s.Store("team", want))
	require.NoError(t, s.Close())

	assert.DirExists(t, filepath.Join(dir, "team"))
	data, err := os.ReadFile(filepath.Join(dir, "team", "lead"))
	require.NoError(t, err)
	assert.Equal(t, "name: alice\n", string(data))

	s, err = reg.Open(dir, true)
	require.NoError(t, err)
	team, err := s.Get("team")
	require.NoError(t, err)
	if diff := cmp.Diff(want, team); diff != "" {
		t.Errorf("nested store mismatch (-want +got):\n%s", diff)
	}

	team["lead"].(map[string]any)["name"] = "carol"
	delete(team, "backup")
	require.NoError(t, s.Close())

	data, err = os.ReadFile(filepath.Join(dir, "team", "lead"))
	require.NoError(t, err)
	assert.Equal(t, "name: carol\n", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "team", "backup"))
}

func TestForcedNestingDecays(t *testing.T) {
	reg := newTestRegistry(t)
	dir := filepath.Join(t.TempDir(), "s")

	root, err := reg.Open(dir, true)
	require.NoError(t, err)
	root.Meta().SetDepth(2)

	_, err = root.Fetch("fresh")
	require.NoError(t, err)
	freshPath, err := root.Path("fresh")
	require.NoError(t, err)
	assert.DirExists(t, freshPath, "forced entries are created eagerly")

	fresh, ok := reg.Lookup(freshPath)
	require.True(t, ok)
	assert.Equal(t, 1, fresh.Meta().Depth())

	_, err = fresh.Fetch("inner")
	require.NoError(t, err)
	innerPath, err := fresh.Path("inner")
	require.NoError(t, err)
	inner, ok := reg.Lookup(innerPath)
	require.True(t, ok)
	assert.Equal(t, 0, inner.Meta().Depth())

	_, err = inner.Fetch("x")
	require.NoError(t, err)
	require.NoError(t, root.Close())
	assert.Equal(t, 0, reg.Len())

	for path, want := range map[string]string{
		filepath.Join(dir, MetaFile):       "depth: 2\n",
		filepath.Join(freshPath, MetaFile): "depth: 1\n",
		filepath.Join(innerPath, MetaFile): "depth: 0\n",
		filepath.Join(innerPath, "x"):      "{}\n",
	} {
		data, err := os.ReadFile(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, string(data), path)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	s := openTestStore(t, newTestRegistry(t), true)
	defer s.Close()

	require.NoError(t, s.Sync())
	require.NoError(t, s.Store("a", Map{"n": 1}))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Sync())
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), "a"))
	require.NoError(t, err)
	assert.Equal(t, "n: 1\n", string(data))
}
