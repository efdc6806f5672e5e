package resolver

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drivefs/drivefs/pkg/pathutil"
	"github.com/drivefs/drivefs/pkg/types"
)

const shardCount = 32

// dirListing is the cached children set of one directory, in server order.
// Listings are immutable once installed: readers hold the pointer without
// locking, and cache maintenance installs a mutated copy instead.
type dirListing struct {
	entries   []types.DirEntry
	byName    map[string][]string // name -> child IDs, listing order
	fetchedAt time.Time
}

// copy returns a deep copy safe to mutate. Entry slices and the per-name
// ID slices are duplicated so appends cannot write into arrays readers of
// the original still see.
func (l *dirListing) copy() *dirListing {
	dup := &dirListing{
		entries:   append([]types.DirEntry(nil), l.entries...),
		byName:    make(map[string][]string, len(l.byName)),
		fetchedAt: l.fetchedAt,
	}
	for name, ids := range l.byName {
		dup.byName[name] = append([]string(nil), ids...)
	}
	return dup
}

// pathEntry caches the object IDs a normalized path resolved to. More than
// one ID means duplicate sibling names; the first is the winner for the
// current epoch.
type pathEntry struct {
	ids      []string
	isDir    bool
	cachedAt time.Time
}

type dirShard struct {
	mu   sync.RWMutex
	dirs map[string]*dirListing
}

type pathShard struct {
	mu    sync.RWMutex
	paths map[string]*pathEntry
}

// cache holds the directory and path maps, sharded by key so concurrent
// callers touching unrelated directories never contend on one mutex.
type cache struct {
	dirShards  [shardCount]dirShard
	pathShards [shardCount]pathShard
	ttl        time.Duration
	maxDirs    int

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

func newCache(ttl time.Duration, maxDirs int) *cache {
	c := &cache{ttl: ttl, maxDirs: maxDirs}
	for i := range c.dirShards {
		c.dirShards[i].dirs = make(map[string]*dirListing)
	}
	for i := range c.pathShards {
		c.pathShards[i].paths = make(map[string]*pathEntry)
	}
	return c
}

func shardIndex(key string) int {
	// FNV-1a
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return int(h % shardCount)
}

func (c *cache) fresh(t time.Time) bool {
	return c.ttl <= 0 || time.Since(t) <= c.ttl
}

// getDir returns the cached listing for dirID if present and fresh.
func (c *cache) getDir(dirID string) (*dirListing, bool) {
	s := &c.dirShards[shardIndex(dirID)]
	s.mu.RLock()
	l, ok := s.dirs[dirID]
	s.mu.RUnlock()
	if !ok || !c.fresh(l.fetchedAt) {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return l, true
}

func (c *cache) putDir(dirID string, l *dirListing) {
	s := &c.dirShards[shardIndex(dirID)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.maxDirs > 0 && len(s.dirs) >= c.maxDirs/shardCount+1 {
		s.evictOldestLocked()
	}
	s.dirs[dirID] = l
}

// evictOldestLocked drops the stalest listing in the shard.
func (s *dirShard) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, l := range s.dirs {
		if oldestKey == "" || l.fetchedAt.Before(oldest) {
			oldestKey, oldest = k, l.fetchedAt
		}
	}
	if oldestKey != "" {
		delete(s.dirs, oldestKey)
	}
}

func (c *cache) dropDir(dirID string) {
	s := &c.dirShards[shardIndex(dirID)]
	s.mu.Lock()
	delete(s.dirs, dirID)
	s.mu.Unlock()
	c.invalidations.Add(1)
}

// mutateDir installs a mutated copy of the cached listing of dirID, if
// any. The listing fn receives is a private copy; the one readers may
// still hold stays untouched.
func (c *cache) mutateDir(dirID string, fn func(*dirListing)) {
	s := &c.dirShards[shardIndex(dirID)]
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.dirs[dirID]
	if !ok {
		return
	}
	dup := l.copy()
	fn(dup)
	s.dirs[dirID] = dup
}

func (c *cache) getPath(path string) (*pathEntry, bool) {
	s := &c.pathShards[shardIndex(path)]
	s.mu.RLock()
	e, ok := s.paths[path]
	s.mu.RUnlock()
	if !ok || !c.fresh(e.cachedAt) {
		return nil, false
	}
	return e, true
}

func (c *cache) putPath(path string, e *pathEntry) {
	s := &c.pathShards[shardIndex(path)]
	s.mu.Lock()
	s.paths[path] = e
	s.mu.Unlock()
}

// dropPathPrefix removes the entry for path and, transitively, every
// cached descendant path. It returns the IDs that were cached for the
// removed entries so their directory listings can be dropped too.
func (c *cache) dropPathPrefix(path string) []string {
	path = pathutil.Normalize(path)
	var ids []string
	for i := range c.pathShards {
		s := &c.pathShards[i]
		s.mu.Lock()
		for p, e := range s.paths {
			if p == path || (path != "" && strings.HasPrefix(p, path+"/")) || path == "" {
				ids = append(ids, e.ids...)
				delete(s.paths, p)
				c.invalidations.Add(1)
			}
		}
		s.mu.Unlock()
	}
	return ids
}

func (c *cache) stats() types.CacheStats {
	stats := types.CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
	for i := range c.dirShards {
		s := &c.dirShards[i]
		s.mu.RLock()
		stats.Directories += len(s.dirs)
		s.mu.RUnlock()
	}
	for i := range c.pathShards {
		s := &c.pathShards[i]
		s.mu.RLock()
		stats.Paths += len(s.paths)
		s.mu.RUnlock()
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

func listingFromObjects(parentID string, objs []*types.Object) *dirListing {
	l := &dirListing{
		entries:   make([]types.DirEntry, 0, len(objs)),
		byName:    make(map[string][]string),
		fetchedAt: time.Now(),
	}
	for _, obj := range objs {
		l.entries = append(l.entries, types.DirEntry{
			ParentID:     parentID,
			ID:           obj.ID,
			Name:         obj.Title,
			IsDir:        obj.IsFolder(),
			Size:         obj.Size,
			ModifiedTime: obj.ModifiedTime,
		})
		l.byName[obj.Title] = append(l.byName[obj.Title], obj.ID)
	}
	return l
}
