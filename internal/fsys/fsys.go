// Package fsys implements the hierarchical filesystem operations on top
// of the path resolver and the remote client: stat, list, read, write,
// mkdir, remove, move and walk, with per-path mutation serialization and
// bounded retry of transient remote failures.
package fsys

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drivefs/drivefs/internal/config"
	"github.com/drivefs/drivefs/internal/metrics"
	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/internal/resolver"
	"github.com/drivefs/drivefs/pkg/errors"
	"github.com/drivefs/drivefs/pkg/pathutil"
	"github.com/drivefs/drivefs/pkg/retry"
	"github.com/drivefs/drivefs/pkg/types"
)

// FileSystem exposes Drive through path semantics. All methods are safe
// for concurrent use without external locking.
type FileSystem struct {
	client    remote.Client
	res       *resolver.Resolver
	guard     *pathGuard
	retryer   *retry.Retryer
	collector *metrics.Collector
	cfg       *config.Configuration
	logger    *zap.Logger

	statsMu   sync.Mutex
	lastStats types.CacheStats
}

// New builds a FileSystem over the given raw remote client. Idempotent
// remote calls are wrapped with retry; creates are reconciled explicitly
// (see createReconciled).
func New(client remote.Client, cfg *config.Configuration, logger *zap.Logger, collector *metrics.Collector) *FileSystem {
	if logger == nil {
		logger = zap.NewNop()
	}

	retryer := retry.New(retry.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       cfg.Retry.Jitter,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if collector != nil {
				collector.RecordRetry("remote")
			}
			logger.Warn("retrying remote call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	})

	wrapped := remote.NewRetrying(client, retryer)
	return &FileSystem{
		client:    wrapped,
		res:       resolver.New(wrapped, cfg.Drive.RootID, &cfg.Cache, logger),
		guard:     newPathGuard(),
		retryer:   retryer,
		collector: collector,
		cfg:       cfg,
		logger:    logger,
	}
}

// Resolver exposes the path resolver, mainly for cache inspection.
func (fs *FileSystem) Resolver() *resolver.Resolver { return fs.res }

// observe records one terminal operation outcome.
func (fs *FileSystem) observe(op string, start time.Time, err error) {
	if fs.collector == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = string(errors.KindOf(err))
	}
	fs.collector.RecordOperation(op, status, time.Since(start))

	stats := fs.res.Stats()
	fs.collector.SetCacheSizes(stats.Directories, stats.Paths)

	fs.statsMu.Lock()
	prev := fs.lastStats
	fs.lastStats = stats
	fs.statsMu.Unlock()
	fs.collector.AddCacheEvents("hit", stats.Hits-prev.Hits)
	fs.collector.AddCacheEvents("miss", stats.Misses-prev.Misses)
	fs.collector.AddCacheEvents("invalidation", stats.Invalidations-prev.Invalidations)
}

// Info resolves path and fetches the object's current metadata.
func (fs *FileSystem) Info(ctx context.Context, path string) (obj *types.Object, err error) {
	start := time.Now()
	defer func() { fs.observe("info", start, err) }()

	id, err := fs.res.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return fs.client.Get(ctx, id)
}

// Exists reports whether path resolves to an object.
func (fs *FileSystem) Exists(ctx context.Context, path string) (bool, error) {
	_, err := fs.res.Resolve(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Ls lists the children of the directory at path in server order. With
// detail false the entries carry names and kinds only.
func (fs *FileSystem) Ls(ctx context.Context, path string, detail bool) (entries []types.DirEntry, err error) {
	start := time.Now()
	defer func() { fs.observe("ls", start, err) }()

	entries, err = fs.res.ListDir(ctx, path)
	if err != nil {
		return nil, err
	}
	if detail {
		return entries, nil
	}
	names := make([]types.DirEntry, len(entries))
	for i, e := range entries {
		names[i] = types.DirEntry{Name: e.Name, IsDir: e.IsDir}
	}
	return names, nil
}

// Checksum returns the remote MD5 checksum of the file at path. Folders
// and Drive-native documents have none and yield an empty string.
func (fs *FileSystem) Checksum(ctx context.Context, path string) (string, error) {
	obj, err := fs.Info(ctx, path)
	if err != nil {
		return "", err
	}
	return obj.MD5Checksum, nil
}

// Ambiguous reports whether the most recent resolution of path observed
// duplicate sibling names.
func (fs *FileSystem) Ambiguous(path string) bool {
	return fs.res.Ambiguous(path)
}

// Mkdir creates the folder at path. With existOK an existing folder is
// returned as-is; otherwise an existing object is a Conflict. The parent
// must already exist.
func (fs *FileSystem) Mkdir(ctx context.Context, path string, existOK bool) (obj *types.Object, err error) {
	start := time.Now()
	defer func() { fs.observe("mkdir", start, err) }()

	path = pathutil.Normalize(path)
	if err := pathutil.Validate(path); err != nil {
		return nil, errors.E(errors.KindInvalidArgument, "mkdir", path, err)
	}
	if pathutil.IsRoot(path) {
		if existOK {
			return fs.client.Get(ctx, fs.res.RootID())
		}
		return nil, errors.Errorf(errors.KindConflict, "mkdir", path, "root already exists")
	}

	release, err := fs.guard.acquire(ctx, path)
	if err != nil {
		return nil, errors.Classify("mkdir", path, err)
	}
	defer release()

	parentPath, name := pathutil.Split(path)
	parentID, err := fs.res.Resolve(ctx, parentPath)
	if err != nil {
		return nil, err
	}

	// Re-resolve under the guard: a queued caller picks up the state the
	// previous mutation left behind.
	if id, rerr := fs.res.Resolve(ctx, path); rerr == nil {
		if existOK {
			return fs.client.Get(ctx, id)
		}
		return nil, errors.Errorf(errors.KindConflict, "mkdir", path, "already exists")
	} else if !errors.IsNotFound(rerr) {
		return nil, rerr
	}

	obj, err = fs.createReconciled(ctx, parentID, name, types.FolderMimeType, nil)
	if err != nil {
		return nil, err
	}
	fs.res.NoteCreate(parentID, parentPath, obj)
	fs.logger.Debug("created folder", zap.String("path", path), zap.String("id", obj.ID))
	return obj, nil
}

// MkdirAll creates the folder at path along with any missing ancestors.
func (fs *FileSystem) MkdirAll(ctx context.Context, path string) error {
	path = pathutil.Normalize(path)
	if err := pathutil.Validate(path); err != nil {
		return errors.E(errors.KindInvalidArgument, "mkdir", path, err)
	}

	walked := ""
	for _, seg := range pathutil.Segments(path) {
		walked = pathutil.Join(walked, seg)
		if _, err := fs.Mkdir(ctx, walked, true); err != nil {
			return err
		}
	}
	return nil
}

// RmOptions controls Rm behavior.
type RmOptions struct {
	// Recursive permits removing a directory that still has children.
	Recursive bool

	// Permanent selects irrecoverable deletion over move-to-trash. Nil
	// applies the configured default.
	Permanent *bool
}

// Rm removes the object at path. Non-empty directories require Recursive;
// the backing store removes the subtree server-side in a single call.
func (fs *FileSystem) Rm(ctx context.Context, path string, opts RmOptions) (err error) {
	start := time.Now()
	defer func() { fs.observe("rm", start, err) }()

	path = pathutil.Normalize(path)
	if pathutil.IsRoot(path) {
		return errors.Errorf(errors.KindInvalidArgument, "rm", path, "cannot remove root")
	}

	release, err := fs.guard.acquire(ctx, path)
	if err != nil {
		return errors.Classify("rm", path, err)
	}
	defer release()

	id, err := fs.res.Resolve(ctx, path)
	if err != nil {
		return err
	}
	obj, err := fs.client.Get(ctx, id)
	if err != nil {
		return err
	}

	if obj.IsFolder() {
		children, lerr := fs.res.ListDir(ctx, path)
		if lerr != nil {
			return lerr
		}
		if len(children) > 0 && !opts.Recursive {
			return errors.Errorf(errors.KindConflict, "rm", path, "directory not empty")
		}
	}

	permanent := !fs.cfg.Drive.TrashOnDelete
	if opts.Permanent != nil {
		permanent = *opts.Permanent
	}

	err = fs.client.Delete(ctx, id, permanent)
	// A retried delete can find the object already gone; that is success.
	if err != nil && !errors.IsNotFound(err) {
		return err
	}

	parentPath := pathutil.Parent(path)
	if parentID, perr := fs.res.Resolve(ctx, parentPath); perr == nil {
		fs.res.NoteRemove(parentID, path, id)
	} else {
		fs.res.Invalidate(path)
	}
	fs.logger.Debug("removed object",
		zap.String("path", path),
		zap.String("id", id),
		zap.Bool("permanent", permanent))
	return nil
}

// Mv moves and/or renames src to dst with a single remote update
// (re-parent plus rename), so a failure leaves src fully intact. An
// existing dst is a Conflict unless overwrite, which trashes the loser
// first.
func (fs *FileSystem) Mv(ctx context.Context, src, dst string, overwrite bool) (err error) {
	start := time.Now()
	defer func() { fs.observe("mv", start, err) }()

	src, dst = pathutil.Normalize(src), pathutil.Normalize(dst)
	if pathutil.IsRoot(src) || pathutil.IsRoot(dst) {
		return errors.Errorf(errors.KindInvalidArgument, "mv", src, "cannot move to or from root")
	}
	if src == dst {
		return nil
	}
	if pathutil.IsAncestor(src, dst) {
		return errors.Errorf(errors.KindInvalidArgument, "mv", src, "cannot move %q under itself", src)
	}

	// Lock both paths in lexical order so concurrent cross moves cannot
	// deadlock.
	first, second := src, dst
	if second < first {
		first, second = second, first
	}
	releaseFirst, err := fs.guard.acquire(ctx, first)
	if err != nil {
		return errors.Classify("mv", src, err)
	}
	defer releaseFirst()
	releaseSecond, err := fs.guard.acquire(ctx, second)
	if err != nil {
		return errors.Classify("mv", dst, err)
	}
	defer releaseSecond()

	srcID, err := fs.res.Resolve(ctx, src)
	if err != nil {
		return err
	}
	srcParentID, err := fs.res.Resolve(ctx, pathutil.Parent(src))
	if err != nil {
		return err
	}
	dstParentPath := pathutil.Parent(dst)
	dstParentID, err := fs.res.Resolve(ctx, dstParentPath)
	if err != nil {
		return err
	}

	if dstID, rerr := fs.res.Resolve(ctx, dst); rerr == nil {
		if !overwrite {
			return errors.Errorf(errors.KindConflict, "mv", dst, "destination exists")
		}
		if derr := fs.client.Delete(ctx, dstID, !fs.cfg.Drive.TrashOnDelete); derr != nil && !errors.IsNotFound(derr) {
			return derr
		}
		fs.res.NoteRemove(dstParentID, dst, dstID)
	} else if !errors.IsNotFound(rerr) {
		return rerr
	}

	patch := types.Patch{}
	if srcParentID != dstParentID {
		patch.AddParents = []string{dstParentID}
		patch.RemoveParents = []string{srcParentID}
	}
	if srcName, dstName := pathutil.Base(src), pathutil.Base(dst); srcName != dstName {
		patch.Title = &dstName
	}
	if patch.IsZero() {
		return nil
	}

	obj, err := fs.client.Update(ctx, srcID, patch)
	if err != nil {
		return err
	}

	fs.res.NoteRemove(srcParentID, src, srcID)
	fs.res.NoteCreate(dstParentID, dstParentPath, obj)
	fs.logger.Debug("moved object",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("id", srcID))
	return nil
}

// createReconciled creates an object under parentID, reconciling retried
// attempts: a transient failure may hide a create that actually landed,
// so before re-issuing, the parent is re-scanned for the title and an
// object found there is adopted instead of duplicated.
func (fs *FileSystem) createReconciled(ctx context.Context, parentID, title, mimeType string, data []byte) (*types.Object, error) {
	var obj *types.Object
	err := fs.retryer.Do(ctx, "create", func(ctx context.Context) error {
		var content *bytes.Reader
		if data != nil {
			content = bytes.NewReader(data)
		}

		var cerr error
		if content != nil {
			obj, cerr = fs.client.Create(ctx, parentID, title, mimeType, content, int64(len(data)))
		} else {
			obj, cerr = fs.client.Create(ctx, parentID, title, mimeType, nil, 0)
		}
		if cerr == nil {
			return nil
		}
		if !errors.IsRetryable(cerr) {
			return cerr
		}

		if existing, ferr := fs.findChild(ctx, parentID, title); ferr == nil && existing != nil {
			obj = existing
			return nil
		}
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// findChild scans parentID for the first child named title, bypassing the
// cache: it runs between create attempts, when the cache cannot be
// trusted for this directory.
func (fs *FileSystem) findChild(ctx context.Context, parentID, title string) (*types.Object, error) {
	fs.res.InvalidateDir(parentID)
	pager := remote.NewPager(fs.client, parentID)
	for {
		page, err := pager.Next(ctx)
		if err == remote.ErrPagesDone {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, obj := range page {
			if obj.Title == title {
				return obj, nil
			}
		}
	}
}
