package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtzoeller/perfetto/internal/registry"
)

func writeManifest(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const fsManifest = `module: "fs"

tests: test_f2fs_iostat: {
	trace:  "f2fs_iostat.textproto"
	query:  "f2fs_iostat_test.sql"
	golden: "f2fs_iostat.out"
}

tests: test_f2fs_iostat_power: {
	trace:   "f2fs_iostat_power.textproto"
	query:   "f2fs_iostat_power_test.sql"
	golden:  "f2fs_iostat_power.out"
	timeout: "90s"
}
`

func TestDiscoverSingleModule(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/tests.cue", fsManifest)

	modules, failures, err := Discover(root)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, modules, 1)

	m := modules[0]
	assert.Equal(t, "fs", m.Name())
	assert.Equal(t, filepath.Join(root, "fs"), m.FixtureDir())

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "test_f2fs_iostat", entries[0].Name)
	assert.Equal(t, "test_f2fs_iostat_power", entries[1].Name)

	bp := entries[0].Blueprint()
	assert.Equal(t, "f2fs_iostat.textproto", bp.Trace().Name())
	assert.Equal(t, "f2fs_iostat_test.sql", bp.Query().Name())
	assert.Equal(t, "f2fs_iostat.out", bp.Golden().Name())
	_, hasTimeout := bp.Timeout()
	assert.False(t, hasTimeout)

	power := entries[1].Blueprint()
	d, hasTimeout := power.Timeout()
	require.True(t, hasTimeout)
	assert.Equal(t, 90*time.Second, d)
}

func TestDiscoverModuleNameDefaultsToDirectory(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "ufs/tests.cue", `tests: test_a: {
	trace:  "a.textproto"
	query:  "a_test.sql"
	golden: "a.out"
}
`)

	modules, failures, err := Discover(root)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, modules, 1)
	assert.Equal(t, "ufs", modules[0].Name())
}

func TestDiscoverMergesManifestFiles(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/iostat_tests.cue", `module: "fs"

tests: test_iostat: {
	trace:  "iostat.textproto"
	query:  "iostat_test.sql"
	golden: "iostat.out"
}
`)
	writeManifest(t, root, "fs/gc_tests.cue", `module: "fs"

tests: test_gc: {
	trace:  "gc.textproto"
	query:  "gc_test.sql"
	golden: "gc.out"
}
`)

	modules, failures, err := Discover(root)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, modules, 1)

	entries := modules[0].Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "test_gc", entries[0].Name)
	assert.Equal(t, "test_iostat", entries[1].Name)
}

func TestDiscoverRejectsDuplicateAcrossFiles(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/a_tests.cue", `tests: test_dup: {
	trace:  "a.textproto"
	query:  "a_test.sql"
	golden: "a.out"
}
`)
	writeManifest(t, root, "fs/b_tests.cue", `tests: test_dup: {
	trace:  "b.textproto"
	query:  "b_test.sql"
	golden: "b.out"
}
`)

	modules, failures, err := Discover(root)
	require.NoError(t, err)
	assert.Empty(t, modules)
	require.Len(t, failures, 1)

	var dupErr *registry.DuplicateError
	require.True(t, errors.As(failures[0], &dupErr))
	assert.Equal(t, "test_dup", dupErr.Name)
	require.Len(t, dupErr.Positions, 2)
	assert.Contains(t, dupErr.Positions[0], "a_tests.cue")
	assert.Contains(t, dupErr.Positions[1], "b_tests.cue")
}

func TestDiscoverIsolatesBrokenModules(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/tests.cue", fsManifest)
	writeManifest(t, root, "broken/tests.cue", `tests: test_x: {
	trace: "x.textproto"
	query: 42
	golden: "x.out"
}
`)

	modules, failures, err := Discover(root)
	require.NoError(t, err)

	require.Len(t, modules, 1)
	assert.Equal(t, "fs", modules[0].Name())

	require.Len(t, failures, 1)
	assert.Equal(t, "broken", failures[0].Dir)

	var compileErr *CompileError
	require.True(t, errors.As(failures[0], &compileErr))
	assert.Contains(t, compileErr.Field, "test_x")
}

func TestDiscoverReportsSyntaxErrorsWithPosition(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "bad/tests.cue", "tests: test_a: {\n\ttrace \"oops\"\n")

	modules, failures, err := Discover(root)
	require.NoError(t, err)
	assert.Empty(t, modules)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "tests.cue")
}

func TestDiscoverMissingRequiredField(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/tests.cue", `tests: test_a: {
	trace: "a.textproto"
	query: "a_test.sql"
}
`)

	_, failures, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "golden is required")
}

func TestDiscoverRejectsTraversalRefs(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/tests.cue", `tests: test_a: {
	trace:  "../../etc/passwd"
	query:  "a_test.sql"
	golden: "a.out"
}
`)

	_, failures, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "not allowed")
}

func TestDiscoverRejectsInvalidTimeout(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/tests.cue", `tests: test_a: {
	trace:   "a.textproto"
	query:   "a_test.sql"
	golden:  "a.out"
	timeout: "soon"
}
`)

	_, failures, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "invalid duration")
}

func TestDiscoverConflictingModuleNames(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/a_tests.cue", `module: "fs"

tests: test_a: {
	trace:  "a.textproto"
	query:  "a_test.sql"
	golden: "a.out"
}
`)
	writeManifest(t, root, "fs/b_tests.cue", `module: "filesystem"

tests: test_b: {
	trace:  "b.textproto"
	query:  "b_test.sql"
	golden: "b.out"
}
`)

	_, failures, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "conflicts")
}

func TestDiscoverSkipsHiddenAndUnderscoreDirs(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/tests.cue", fsManifest)
	writeManifest(t, root, ".git/tests.cue", `tests: {}`)
	writeManifest(t, root, "_attic/tests.cue", `tests: {}`)

	modules, failures, err := Discover(root)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, modules, 1)
	assert.Equal(t, "fs", modules[0].Name())
}

func TestDiscoverIgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "fs/tests.cue", fsManifest)
	writeManifest(t, root, "fs/notes.txt", "not a manifest")
	writeManifest(t, root, "fs/schema.cue", `#Case: {trace: string}`)

	modules, failures, err := Discover(root)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, modules, 1)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, _, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestDiscoverRootIsFile(t *testing.T) {
	root := t.TempDir()
	path := writeManifest(t, root, "tests.cue", fsManifest)

	_, _, err := Discover(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestDiscoverNestedModules(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "linux/fs/tests.cue", `tests: test_a: {
	trace:  "a.textproto"
	query:  "a_test.sql"
	golden: "a.out"
}
`)
	writeManifest(t, root, "android/tests.cue", `tests: test_b: {
	trace:  "b.textproto"
	query:  "b_test.sql"
	golden: "b.out"
}
`)

	modules, failures, err := Discover(root)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, modules, 2)

	// Sorted by directory: android before linux/fs.
	assert.Equal(t, "android", modules[0].Name())
	assert.Equal(t, "fs", modules[1].Name())
}
