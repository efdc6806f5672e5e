package fsys_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivefs/drivefs/internal/config"
	"github.com/drivefs/drivefs/internal/fsys"
	"github.com/drivefs/drivefs/internal/metrics"
	"github.com/drivefs/drivefs/internal/remote/remotetest"
	"github.com/drivefs/drivefs/pkg/errors"
)

func testConfig() *config.Configuration {
	cfg := config.DefaultConfiguration()
	cfg.Drive.RootID = remotetest.RootID
	cfg.Retry = config.RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Microsecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2,
	}
	return cfg
}

func newTestFS(fake *remotetest.Fake) *fsys.FileSystem {
	return fsys.New(fake, testConfig(), nil, nil)
}

func TestMkdirAndInfo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fs := newTestFS(fake)

	obj, err := fs.Mkdir(ctx, "projects", false)
	require.NoError(t, err)
	assert.True(t, obj.IsFolder())
	assert.Equal(t, "projects", obj.Title)

	info, err := fs.Info(ctx, "projects")
	require.NoError(t, err)
	assert.Equal(t, obj.ID, info.ID)

	ok, err := fs.Exists(ctx, "projects")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOperationStatusRecorded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fake.AddFile(remotetest.RootID, "notes.txt", []byte("hi"))
	collector := metrics.NewCollector()
	fs := fsys.New(fake, testConfig(), nil, collector)

	_, err := fs.Info(ctx, "missing")
	require.True(t, errors.IsNotFound(err))
	_, err = fs.Info(ctx, "notes.txt")
	require.NoError(t, err)

	expected := strings.NewReader(`
# HELP drivefs_operations_total Filesystem operations by name and terminal status
# TYPE drivefs_operations_total counter
drivefs_operations_total{op="info",status="NOT_FOUND"} 1
drivefs_operations_total{op="info",status="ok"} 1
`)
	err = testutil.GatherAndCompare(collector.Registry(), expected, "drivefs_operations_total")
	assert.NoError(t, err)
}

func TestMkdirExisting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fs := newTestFS(fake)

	first, err := fs.Mkdir(ctx, "d", false)
	require.NoError(t, err)

	_, err = fs.Mkdir(ctx, "d", false)
	assert.True(t, errors.IsConflict(err), "second mkdir should conflict, got %v", err)

	again, err := fs.Mkdir(ctx, "d", true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, fake.ObjectCount())
}

func TestMkdirMissingParent(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	fs := newTestFS(fake)

	_, err := fs.Mkdir(context.Background(), "no/such/parent", false)
	assert.True(t, errors.IsNotFound(err), "got %v", err)
}

func TestMkdirAllCreatesChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fs := newTestFS(fake)

	require.NoError(t, fs.MkdirAll(ctx, "a/b/c"))
	for _, p := range []string{"a", "a/b", "a/b/c"} {
		ok, err := fs.Exists(ctx, p)
		require.NoError(t, err)
		assert.True(t, ok, "missing %q", p)
	}
	assert.Equal(t, 3, fake.ObjectCount())

	// Idempotent over an existing chain.
	require.NoError(t, fs.MkdirAll(ctx, "a/b/c"))
	assert.Equal(t, 3, fake.ObjectCount())
}

func TestConcurrentMkdirSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fs := newTestFS(fake)

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obj, err := fs.Mkdir(ctx, "shared", true)
			if err != nil {
				t.Errorf("Mkdir = %v", err)
				return
			}
			ids[i] = obj.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fake.ObjectCount(), "exactly one folder must exist")
	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id, "all callers must observe the same folder")
	}
}

func TestConcurrentMkdirExclusiveOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fs := newTestFS(fake)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fs.Mkdir(ctx, "solo", false)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.IsConflict(err), "loser must get a conflict, got %v", err)
	}
	assert.Equal(t, 1, wins, "exactly one caller must create the folder")
	assert.Equal(t, 1, fake.ObjectCount())
}

func TestConcurrentListAndMkdir(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fake.AddFile(remotetest.RootID, "seed.txt", nil)
	fs := newTestFS(fake)

	// Readers iterate cached listings while mkdirs fold new entries in;
	// run under -race this pins the listing snapshots being immutable.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := fs.Ls(ctx, "", true); err != nil {
				t.Errorf("Ls = %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := fs.Mkdir(ctx, fmt.Sprintf("d%02d", i), false); err != nil {
				t.Errorf("Mkdir = %v", err)
				return
			}
		}
	}()
	wg.Wait()

	entries, err := fs.Ls(ctx, "", true)
	require.NoError(t, err)
	assert.Len(t, entries, 51)
}

func TestRetriedCreateDoesNotDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fs := newTestFS(fake)

	// The create lands remotely but its response is lost.
	fake.FailNextWithSideEffect("create", errors.KindTransient)

	obj, err := fs.Mkdir(ctx, "once", false)
	require.NoError(t, err)
	assert.Equal(t, "once", obj.Title)
	assert.Equal(t, 1, fake.ObjectCount(), "reconciliation must adopt, not re-create")
	assert.Equal(t, 1, fake.Calls("create"), "create must not be re-issued")
}

func TestRetriedCreateReissuesWhenNothingLanded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fs := newTestFS(fake)

	// The create genuinely failed; nothing landed remotely.
	fake.FailNext("create", errors.KindTransient, 1)

	_, err := fs.Mkdir(ctx, "eventually", false)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.ObjectCount())
	assert.Equal(t, 2, fake.Calls("create"))
}

func TestLsServerOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	names := []string{"z.txt", "a.txt", "docs"}
	fake.AddFile(remotetest.RootID, "z.txt", nil)
	fake.AddFile(remotetest.RootID, "a.txt", nil)
	fake.AddFolder(remotetest.RootID, "docs")
	fs := newTestFS(fake)

	entries, err := fs.Ls(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, names[i], e.Name)
	}
	assert.True(t, entries[2].IsDir)

	// Names-only listing drops size detail but keeps kind.
	brief, err := fs.Ls(ctx, "", false)
	require.NoError(t, err)
	require.Len(t, brief, 3)
	assert.True(t, brief[2].IsDir)
	assert.Empty(t, brief[0].ID)

	assert.Equal(t, 1, fake.Calls("list"), "second listing must come from cache")
}

func TestRmTrashByDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	id := fake.AddFile(remotetest.RootID, "doomed.txt", nil)
	fs := newTestFS(fake)

	require.NoError(t, fs.Rm(ctx, "doomed.txt", fsys.RmOptions{}))

	obj := fake.Object(id)
	require.NotNil(t, obj, "trashed object must still exist remotely")
	assert.True(t, obj.Trashed)

	ok, err := fs.Exists(ctx, "doomed.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRmPermanent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	id := fake.AddFile(remotetest.RootID, "gone.txt", nil)
	fs := newTestFS(fake)

	permanent := true
	require.NoError(t, fs.Rm(ctx, "gone.txt", fsys.RmOptions{Permanent: &permanent}))
	assert.Nil(t, fake.Object(id))
}

func TestRmNonEmptyDir(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	d := fake.AddFolder(remotetest.RootID, "full")
	fake.AddFile(d, "child.txt", nil)
	fs := newTestFS(fake)

	err := fs.Rm(ctx, "full", fsys.RmOptions{})
	assert.True(t, errors.IsConflict(err), "got %v", err)

	permanent := true
	require.NoError(t, fs.Rm(ctx, "full", fsys.RmOptions{Recursive: true, Permanent: &permanent}))
	assert.Equal(t, 0, fake.ObjectCount(), "subtree removed in one remote delete")
	assert.Equal(t, 1, fake.Calls("delete"))
}

func TestRmRoot(t *testing.T) {
	t.Parallel()
	fs := newTestFS(remotetest.New())
	err := fs.Rm(context.Background(), "/", fsys.RmOptions{})
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))
}

func TestMvRename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	id := fake.AddFile(remotetest.RootID, "old.txt", []byte("x"))
	fs := newTestFS(fake)

	require.NoError(t, fs.Mv(ctx, "old.txt", "new.txt", false))

	assert.Equal(t, "new.txt", fake.Object(id).Title)
	ok, _ := fs.Exists(ctx, "old.txt")
	assert.False(t, ok)
	got, err := fs.Info(ctx, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 1, fake.Calls("update"), "rename is a single remote update")
}

func TestMvCacheCoherence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	a := fake.AddFolder(remotetest.RootID, "a")
	fake.AddFolder(remotetest.RootID, "c")
	fake.AddFile(a, "b.txt", []byte("x"))
	fs := newTestFS(fake)

	// Warm the cache for both directories.
	_, err := fs.Ls(ctx, "a", true)
	require.NoError(t, err)
	_, err = fs.Ls(ctx, "c", true)
	require.NoError(t, err)
	listCalls := fake.Calls("list")

	require.NoError(t, fs.Mv(ctx, "a/b.txt", "c/b.txt", false))

	ok, err := fs.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = fs.Exists(ctx, "c/b.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, listCalls, fake.Calls("list"),
		"move bookkeeping must keep the cache coherent without re-scans")
}

func TestMvDestinationExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	fake.AddFile(remotetest.RootID, "src.txt", []byte("s"))
	dst := fake.AddFile(remotetest.RootID, "dst.txt", []byte("d"))
	fs := newTestFS(fake)

	err := fs.Mv(ctx, "src.txt", "dst.txt", false)
	assert.True(t, errors.IsConflict(err), "got %v", err)

	require.NoError(t, fs.Mv(ctx, "src.txt", "dst.txt", true))
	assert.True(t, fake.Object(dst).Trashed, "overwritten object goes to trash")
	got, err := fs.Info(ctx, "dst.txt")
	require.NoError(t, err)
	assert.Equal(t, "dst.txt", got.Title)
}

func TestMvIntoOwnSubtree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := remotetest.New()
	a := fake.AddFolder(remotetest.RootID, "a")
	fake.AddFolder(a, "b")
	fs := newTestFS(fake)

	err := fs.Mv(ctx, "a", "a/b/a", false)
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))
}

func TestMvNoop(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	fake.AddFile(remotetest.RootID, "same.txt", nil)
	fs := newTestFS(fake)

	require.NoError(t, fs.Mv(context.Background(), "same.txt", "same.txt", false))
	assert.Equal(t, 0, fake.Calls("update"))
}

func TestChecksum(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	fake.AddFile(remotetest.RootID, "f.txt", []byte("x"))
	fs := newTestFS(fake)

	sum, err := fs.Checksum(context.Background(), "f.txt")
	require.NoError(t, err)
	assert.Empty(t, sum, "store without checksums reports none")
}
