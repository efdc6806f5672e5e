// Package resolver maps hierarchical paths onto remote object IDs and
// back, maintaining a sharded cache of directory listings so a path walk
// costs at most one remote scan per previously unseen directory. The
// backing store permits duplicate sibling names; the resolver picks the
// first ID in listing order as the winner for the cache epoch and keeps
// the ambiguity queryable instead of dropping it.
package resolver

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/drivefs/drivefs/internal/config"
	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/pkg/errors"
	"github.com/drivefs/drivefs/pkg/pathutil"
	"github.com/drivefs/drivefs/pkg/types"
)

// Resolver resolves paths against one remote root. Each filesystem
// instance owns its own Resolver; there is no process-wide cache.
type Resolver struct {
	client remote.Client
	rootID string
	cache  *cache
	group  singleflight.Group
	logger *zap.Logger
}

// New creates a resolver rooted at rootID.
func New(client remote.Client, rootID string, cfg *config.CacheConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := time.Minute
	maxDirs := 10000
	if cfg != nil {
		ttl = cfg.TTL
		maxDirs = cfg.MaxDirs
	}
	return &Resolver{
		client: client,
		rootID: rootID,
		cache:  newCache(ttl, maxDirs),
		logger: logger,
	}
}

// RootID returns the object ID of the filesystem root.
func (r *Resolver) RootID() string { return r.rootID }

// Resolve maps a normalized path to an object ID, walking segment by
// segment from the root. Every directory scanned along the way populates
// the cache with all entries observed, not just the match.
func (r *Resolver) Resolve(ctx context.Context, path string) (string, error) {
	path = pathutil.Normalize(path)
	if err := pathutil.Validate(path); err != nil {
		return "", errors.E(errors.KindInvalidArgument, "resolve", path, err)
	}
	if pathutil.IsRoot(path) {
		return r.rootID, nil
	}

	if e, ok := r.cache.getPath(path); ok {
		return e.ids[0], nil
	}

	curID := r.rootID
	walked := ""
	for _, seg := range pathutil.Segments(path) {
		childPath := pathutil.Join(walked, seg)

		if e, ok := r.cache.getPath(childPath); ok {
			curID, walked = e.ids[0], childPath
			continue
		}

		l, err := r.listing(ctx, curID, walked)
		if err != nil {
			return "", err
		}
		ids := l.byName[seg]
		if len(ids) == 0 {
			return "", errors.E(errors.KindNotFound, "resolve", path, nil)
		}
		r.cache.putPath(childPath, &pathEntry{
			ids:      ids,
			isDir:    l.isDir(ids[0]),
			cachedAt: l.fetchedAt,
		})
		curID, walked = ids[0], childPath
	}
	return curID, nil
}

// ListDir returns the children of the directory at path, from cache or a
// full paginated scan.
func (r *Resolver) ListDir(ctx context.Context, path string) ([]types.DirEntry, error) {
	path = pathutil.Normalize(path)
	dirID, err := r.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	l, err := r.listing(ctx, dirID, path)
	if err != nil {
		return nil, err
	}
	return append([]types.DirEntry(nil), l.entries...), nil
}

// ListDirByID lists the children of an already-resolved directory,
// sharing the same cache and scan deduplication as ListDir. dirPath is
// the hierarchical path of the directory and seeds the path cache for
// the entries observed.
func (r *Resolver) ListDirByID(ctx context.Context, dirID, dirPath string) ([]types.DirEntry, error) {
	l, err := r.listing(ctx, dirID, pathutil.Normalize(dirPath))
	if err != nil {
		return nil, err
	}
	return append([]types.DirEntry(nil), l.entries...), nil
}

// Ambiguous reports whether the cached resolution of path saw duplicate
// sibling names. Only meaningful after a Resolve within the current epoch.
func (r *Resolver) Ambiguous(path string) bool {
	e, ok := r.cache.getPath(pathutil.Normalize(path))
	return ok && len(e.ids) > 1
}

// listing returns the cached children of dirID or performs one
// singleflight-deduplicated paginated scan, populating the path cache
// with every entry observed under dirPath.
func (r *Resolver) listing(ctx context.Context, dirID, dirPath string) (*dirListing, error) {
	if l, ok := r.cache.getDir(dirID); ok {
		return l, nil
	}

	v, err, _ := r.group.Do(dirID, func() (interface{}, error) {
		// Re-check: another caller may have finished the scan while this
		// one was queued on the singleflight key.
		if l, ok := r.cache.getDir(dirID); ok {
			return l, nil
		}
		objs, err := remote.NewPager(r.client, dirID).Drain(ctx)
		if err != nil {
			return nil, err
		}
		l := listingFromObjects(dirID, objs)
		r.cache.putDir(dirID, l)
		r.logger.Debug("scanned directory",
			zap.String("dir_id", dirID),
			zap.String("path", dirPath),
			zap.Int("entries", len(l.entries)))
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	l := v.(*dirListing)

	for name, ids := range l.byName {
		childPath := pathutil.Join(dirPath, name)
		if _, ok := r.cache.getPath(childPath); !ok {
			r.cache.putPath(childPath, &pathEntry{
				ids:      ids,
				isDir:    l.isDir(ids[0]),
				cachedAt: l.fetchedAt,
			})
		}
	}
	return l, nil
}

func (l *dirListing) isDir(id string) bool {
	for _, e := range l.entries {
		if e.ID == id {
			return e.IsDir
		}
	}
	return false
}

// Invalidate drops the cached resolution of path and, transitively, all
// cached descendant paths, along with the directory listings of every
// object those entries pointed at.
func (r *Resolver) Invalidate(path string) {
	ids := r.cache.dropPathPrefix(path)
	for _, id := range ids {
		r.cache.dropDir(id)
	}
}

// InvalidateDir drops the cached listing of one directory by ID.
func (r *Resolver) InvalidateDir(dirID string) {
	r.cache.dropDir(dirID)
}

// NoteCreate folds a freshly created object into the cache so the next
// resolve of its path needs no remote call.
func (r *Resolver) NoteCreate(dirID, dirPath string, obj *types.Object) {
	r.cache.mutateDir(dirID, func(l *dirListing) {
		l.entries = append(l.entries, types.DirEntry{
			ParentID:     dirID,
			ID:           obj.ID,
			Name:         obj.Title,
			IsDir:        obj.IsFolder(),
			Size:         obj.Size,
			ModifiedTime: obj.ModifiedTime,
		})
		l.byName[obj.Title] = append(l.byName[obj.Title], obj.ID)
	})

	childPath := pathutil.Join(dirPath, obj.Title)
	if e, ok := r.cache.getPath(childPath); ok {
		e = &pathEntry{ids: append(append([]string(nil), e.ids...), obj.ID), isDir: e.isDir, cachedAt: time.Now()}
		r.cache.putPath(childPath, e)
		return
	}
	r.cache.putPath(childPath, &pathEntry{
		ids:      []string{obj.ID},
		isDir:    obj.IsFolder(),
		cachedAt: time.Now(),
	})
}

// NoteRemove drops a removed object from its parent's cached listing and
// invalidates the cached paths under it.
func (r *Resolver) NoteRemove(dirID, path, objID string) {
	r.cache.mutateDir(dirID, func(l *dirListing) {
		kept := l.entries[:0]
		for _, e := range l.entries {
			if e.ID != objID {
				kept = append(kept, e)
			}
		}
		l.entries = kept
		for name, ids := range l.byName {
			out := ids[:0]
			for _, id := range ids {
				if id != objID {
					out = append(out, id)
				}
			}
			if len(out) == 0 {
				delete(l.byName, name)
			} else {
				l.byName[name] = out
			}
		}
	})
	r.Invalidate(path)
}

// Refresh re-stamps the cache entry for path with the object's new
// version after a successful content write, avoiding a redundant
// re-resolution.
func (r *Resolver) Refresh(dirID, path string, obj *types.Object) {
	r.cache.mutateDir(dirID, func(l *dirListing) {
		for i := range l.entries {
			if l.entries[i].ID == obj.ID {
				l.entries[i].Size = obj.Size
				l.entries[i].ModifiedTime = obj.ModifiedTime
			}
		}
	})

	path = pathutil.Normalize(path)
	if e, ok := r.cache.getPath(path); ok {
		r.cache.putPath(path, &pathEntry{ids: e.ids, isDir: e.isDir, cachedAt: time.Now()})
		return
	}
	r.cache.putPath(path, &pathEntry{
		ids:      []string{obj.ID},
		isDir:    obj.IsFolder(),
		cachedAt: time.Now(),
	})
}

// Stats returns cache performance counters.
func (r *Resolver) Stats() types.CacheStats {
	return r.cache.stats()
}

// IsNotFound is a convenience for callers distinguishing a missing path
// from other failures.
func IsNotFound(err error) bool {
	var e *errors.Error
	return stderrors.As(err, &e) && e.Kind == errors.KindNotFound
}
