package fsys

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/drivefs/drivefs/pkg/pathutil"
	"github.com/drivefs/drivefs/pkg/types"
)

// SkipDir signals from a WalkFunc that the directory just visited should
// not be descended into. It is not surfaced to the Walk caller.
var SkipDir = stderrors.New("fsys: skip this directory")

// WalkFunc is called once per directory visited, with the lists of
// subdirectory and file entries it contains, in server order. Returning
// SkipDir prunes the subtree; any other non-nil error aborts the walk.
type WalkFunc func(path string, dirs, files []types.DirEntry) error

// Walk traverses the tree rooted at path in pre-order. Shared or cyclic
// parent links cannot trap it: each directory object is visited at most
// once per walk, keyed by object ID.
func (fs *FileSystem) Walk(ctx context.Context, path string, fn WalkFunc) (err error) {
	start := time.Now()
	defer func() { fs.observe("walk", start, err) }()

	path = pathutil.Normalize(path)
	rootID, err := fs.res.Resolve(ctx, path)
	if err != nil {
		return err
	}

	visited := map[string]bool{}
	err = fs.walkDir(ctx, rootID, path, visited, fn)
	if err == SkipDir {
		err = nil
	}
	return err
}

func (fs *FileSystem) walkDir(ctx context.Context, dirID, dirPath string, visited map[string]bool, fn WalkFunc) error {
	if visited[dirID] {
		return nil
	}
	visited[dirID] = true

	entries, err := fs.res.ListDirByID(ctx, dirID, dirPath)
	if err != nil {
		return err
	}

	var dirs, files []types.DirEntry
	for _, e := range entries {
		if e.IsDir {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}

	if err := fn(dirPath, dirs, files); err != nil {
		if err == SkipDir {
			return nil
		}
		return err
	}

	for _, d := range dirs {
		if err := fs.walkDir(ctx, d.ID, pathutil.Join(dirPath, d.Name), visited, fn); err != nil {
			return err
		}
	}
	return nil
}
