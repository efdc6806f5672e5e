// Package remotetest provides an in-memory fake of the remote client for
// exercising the resolver and filesystem layers: a multi-parent object
// graph with deterministic listing order, configurable page size, call
// counting, and scripted fault injection.
package remotetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/pkg/errors"
	"github.com/drivefs/drivefs/pkg/types"
)

// RootID is the fake store's root folder ID.
const RootID = "fake-root"

// Fault scripts one injected failure for an operation.
type Fault struct {
	Kind errors.Kind
	// ApplySideEffect performs the mutation before failing, modeling a
	// lost response on an actually-succeeded call.
	ApplySideEffect bool
}

// Fake is an in-memory multi-parent object store implementing
// remote.Client. All methods are safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	objects  map[string]*types.Object
	contents map[string][]byte
	children map[string][]string // parentID -> child IDs in insertion order
	faults   map[string][]Fault  // op -> pending faults, consumed FIFO
	calls    map[string]int
	nextID   int
	versions map[string]int64

	// PageSize bounds List pages; 0 means everything in one page.
	PageSize int
}

// New creates a fake store containing only the root folder.
func New() *Fake {
	f := &Fake{
		objects:  make(map[string]*types.Object),
		contents: make(map[string][]byte),
		children: make(map[string][]string),
		faults:   make(map[string][]Fault),
		calls:    make(map[string]int),
		versions: make(map[string]int64),
	}
	f.objects[RootID] = &types.Object{
		ID:       RootID,
		Title:    "",
		MimeType: types.FolderMimeType,
	}
	return f
}

var _ remote.Client = (*Fake)(nil)

// FailNext scripts n failures of the given kind for op ("get", "list",
// "create", "update", "delete", "download", "upload").
func (f *Fake) FailNext(op string, kind errors.Kind, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.faults[op] = append(f.faults[op], Fault{Kind: kind})
	}
}

// FailNextWithSideEffect scripts one failure for op whose mutation is
// applied before the error is returned.
func (f *Fake) FailNextWithSideEffect(op string, kind errors.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = append(f.faults[op], Fault{Kind: kind, ApplySideEffect: true})
}

// Calls reports how many times op has been invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// takeFault consumes the next scripted fault for op, if any. Caller holds mu.
func (f *Fake) takeFault(op string) (Fault, bool) {
	pending := f.faults[op]
	if len(pending) == 0 {
		return Fault{}, false
	}
	f.faults[op] = pending[1:]
	return pending[0], true
}

func (f *Fake) newID() string {
	f.nextID++
	return fmt.Sprintf("obj-%d", f.nextID)
}

// AddFolder inserts a folder under parentID and returns its ID.
func (f *Fake) AddFolder(parentID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(parentID, name, types.FolderMimeType, nil)
}

// AddFile inserts a file with content under parentID and returns its ID.
func (f *Fake) AddFile(parentID, name string, content []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(parentID, name, "application/octet-stream", content)
}

// AddParent adds an extra parent reference, enabling multi-parent graphs
// and cycles for traversal tests.
func (f *Fake) AddParent(id, parentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj := f.objects[id]
	if obj == nil || obj.HasParent(parentID) {
		return
	}
	obj.Parents = append(obj.Parents, parentID)
	f.children[parentID] = append(f.children[parentID], id)
}

// Object returns a copy of the stored object, or nil.
func (f *Fake) Object(id string) *types.Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj := f.objects[id]
	if obj == nil {
		return nil
	}
	return copyObject(obj)
}

// ObjectCount reports the number of live (non-trashed) objects, excluding
// the root.
func (f *Fake) ObjectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, obj := range f.objects {
		if id != RootID && !obj.Trashed {
			n++
		}
	}
	return n
}

func (f *Fake) insert(parentID, name, mimeType string, content []byte) string {
	id := f.newID()
	f.objects[id] = &types.Object{
		ID:           id,
		Title:        name,
		MimeType:     mimeType,
		Parents:      []string{parentID},
		Size:         int64(len(content)),
		Version:      "1",
		ModifiedTime: time.Now().UTC(),
	}
	f.versions[id] = 1
	if content != nil {
		f.contents[id] = append([]byte(nil), content...)
	}
	f.children[parentID] = append(f.children[parentID], id)
	return id
}

// Get implements remote.Client.
func (f *Fake) Get(ctx context.Context, id string) (*types.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	if fault, ok := f.takeFault("get"); ok {
		return nil, errors.E(fault.Kind, "remote.get", id, nil)
	}
	obj := f.objects[id]
	if obj == nil {
		return nil, errors.E(errors.KindNotFound, "remote.get", id, nil)
	}
	return copyObject(obj), nil
}

// List implements remote.Client with insertion-order paging.
func (f *Fake) List(ctx context.Context, parentID, pageToken string) ([]*types.Object, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if fault, ok := f.takeFault("list"); ok {
		return nil, "", errors.E(fault.Kind, "remote.list", parentID, nil)
	}
	if f.objects[parentID] == nil {
		return nil, "", errors.E(errors.KindNotFound, "remote.list", parentID, nil)
	}

	var live []*types.Object
	for _, id := range f.children[parentID] {
		obj := f.objects[id]
		if obj != nil && !obj.Trashed {
			live = append(live, copyObject(obj))
		}
	}

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, "", errors.E(errors.KindInvalidArgument, "remote.list", parentID, err)
		}
		start = n
	}
	if start >= len(live) {
		return nil, "", nil
	}

	end := len(live)
	next := ""
	if f.PageSize > 0 && start+f.PageSize < len(live) {
		end = start + f.PageSize
		next = strconv.Itoa(end)
	}
	return live[start:end], next, nil
}

// Create implements remote.Client.
func (f *Fake) Create(ctx context.Context, parentID, title, mimeType string, content io.Reader, size int64) (*types.Object, error) {
	var data []byte
	if content != nil {
		var err error
		data, err = io.ReadAll(content)
		if err != nil {
			return nil, errors.E(errors.KindFatal, "remote.create", title, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++

	fault, faulted := f.takeFault("create")
	if faulted && !fault.ApplySideEffect {
		return nil, errors.E(fault.Kind, "remote.create", title, nil)
	}
	if f.objects[parentID] == nil {
		return nil, errors.E(errors.KindNotFound, "remote.create", parentID, nil)
	}

	id := f.insert(parentID, title, mimeType, data)
	if content == nil {
		delete(f.contents, id)
	}
	if faulted {
		return nil, errors.E(fault.Kind, "remote.create", title, nil)
	}
	return copyObject(f.objects[id]), nil
}

// Update implements remote.Client.
func (f *Fake) Update(ctx context.Context, id string, patch types.Patch) (*types.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	if fault, ok := f.takeFault("update"); ok {
		return nil, errors.E(fault.Kind, "remote.update", id, nil)
	}
	obj := f.objects[id]
	if obj == nil {
		return nil, errors.E(errors.KindNotFound, "remote.update", id, nil)
	}

	if patch.Title != nil {
		obj.Title = *patch.Title
	}
	if patch.Trashed != nil {
		obj.Trashed = *patch.Trashed
	}
	for _, p := range patch.RemoveParents {
		obj.Parents = removeString(obj.Parents, p)
		f.children[p] = removeString(f.children[p], id)
	}
	for _, p := range patch.AddParents {
		if !obj.HasParent(p) {
			obj.Parents = append(obj.Parents, p)
			f.children[p] = append(f.children[p], id)
		}
	}
	f.bumpVersion(obj)
	return copyObject(obj), nil
}

// Delete implements remote.Client.
func (f *Fake) Delete(ctx context.Context, id string, permanent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if fault, ok := f.takeFault("delete"); ok {
		return errors.E(fault.Kind, "remote.delete", id, nil)
	}
	obj := f.objects[id]
	if obj == nil {
		return errors.E(errors.KindNotFound, "remote.delete", id, nil)
	}

	if !permanent {
		obj.Trashed = true
		f.bumpVersion(obj)
		return nil
	}

	f.removeRecursive(id)
	return nil
}

// removeRecursive permanently removes an object and, folder-wise, its
// subtree, the way Drive deletes folders server-side. Caller holds mu.
func (f *Fake) removeRecursive(id string) {
	obj := f.objects[id]
	if obj == nil {
		return
	}
	for _, p := range obj.Parents {
		f.children[p] = removeString(f.children[p], id)
	}
	for _, child := range append([]string(nil), f.children[id]...) {
		f.removeRecursive(child)
	}
	delete(f.children, id)
	delete(f.objects, id)
	delete(f.contents, id)
}

// Download implements remote.Client.
func (f *Fake) Download(ctx context.Context, id string, offset, length int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["download"]++
	if fault, ok := f.takeFault("download"); ok {
		return nil, errors.E(fault.Kind, "remote.download", id, nil)
	}
	if f.objects[id] == nil {
		return nil, errors.E(errors.KindNotFound, "remote.download", id, nil)
	}

	data := f.contents[id]
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	data = data[offset:]
	if length >= 0 && length < int64(len(data)) {
		data = data[:length]
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// Upload implements remote.Client.
func (f *Fake) Upload(ctx context.Context, id string, content io.Reader, size int64) (*types.Object, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, errors.E(errors.KindFatal, "remote.upload", id, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["upload"]++
	if fault, ok := f.takeFault("upload"); ok {
		return nil, errors.E(fault.Kind, "remote.upload", id, nil)
	}
	obj := f.objects[id]
	if obj == nil {
		return nil, errors.E(errors.KindNotFound, "remote.upload", id, nil)
	}

	f.contents[id] = data
	obj.Size = int64(len(data))
	f.bumpVersion(obj)
	return copyObject(obj), nil
}

func (f *Fake) bumpVersion(obj *types.Object) {
	f.versions[obj.ID]++
	obj.Version = strconv.FormatInt(f.versions[obj.ID], 10)
	obj.ModifiedTime = time.Now().UTC()
}

func copyObject(obj *types.Object) *types.Object {
	dup := *obj
	dup.Parents = append([]string(nil), obj.Parents...)
	if obj.Extra != nil {
		dup.Extra = make(map[string]string, len(obj.Extra))
		for k, v := range obj.Extra {
			dup.Extra[k] = v
		}
	}
	return &dup
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
