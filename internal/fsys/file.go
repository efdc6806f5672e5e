package fsys

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drivefs/drivefs/pkg/errors"
	"github.com/drivefs/drivefs/pkg/pathutil"
	"github.com/drivefs/drivefs/pkg/types"
)

// Reader streams the content of a remote file. The download body is
// opened lazily on the first Read, so constructing a Reader and only
// calling ReadAt never transfers the whole file. Not safe for concurrent
// use except ReadAt, which is independent of the sequential stream.
type Reader struct {
	fs   *FileSystem
	ctx  context.Context
	id   string
	path string
	size int64

	mu     sync.Mutex
	offset int64
	body   io.ReadCloser
}

// Open opens the file at path for reading.
func (fs *FileSystem) Open(ctx context.Context, path string) (r *Reader, err error) {
	start := time.Now()
	defer func() { fs.observe("open", start, err) }()

	path = pathutil.Normalize(path)
	obj, err := fs.Info(ctx, path)
	if err != nil {
		return nil, err
	}
	if obj.IsFolder() {
		return nil, errors.Errorf(errors.KindInvalidArgument, "open", path, "is a directory")
	}
	return &Reader{fs: fs, ctx: ctx, id: obj.ID, path: path, size: obj.Size}, nil
}

// Size returns the file size as reported at open time.
func (r *Reader) Size() int64 { return r.size }

// Read reads from the current offset, opening the ranged download stream
// on first use.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.body == nil {
		if r.offset >= r.size {
			return 0, io.EOF
		}
		body, err := r.fs.client.Download(r.ctx, r.id, r.offset, -1)
		if err != nil {
			return 0, err
		}
		r.body = body
	}

	n, err := r.body.Read(p)
	r.offset += int64(n)
	return n, err
}

// ReadAt reads len(p) bytes at off via a one-shot ranged download. It
// does not disturb the sequential stream position.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Errorf(errors.KindInvalidArgument, "read", r.path, "negative offset")
	}
	if off >= r.size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if off+length > r.size {
		length = r.size - off
	}

	body, err := r.fs.client.Download(r.ctx, r.id, off, length)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.ReadFull(body, p[:length])
	if err == io.ErrUnexpectedEOF || (err == nil && int64(n) == length && length < int64(len(p))) {
		err = io.EOF
	}
	return n, err
}

// Seek repositions the sequential stream. Seeking discards the open
// download body; the next Read re-opens it at the new offset.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, errors.Errorf(errors.KindInvalidArgument, "seek", r.path, "invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.Errorf(errors.KindInvalidArgument, "seek", r.path, "negative position")
	}

	if abs != r.offset && r.body != nil {
		r.body.Close()
		r.body = nil
	}
	r.offset = abs
	return abs, nil
}

// Close releases the download stream if one is open.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}

// Writer buffers file content locally and transfers it in one upload when
// closed. Nothing is visible remotely until Close returns nil.
type Writer struct {
	fs       *FileSystem
	ctx      context.Context
	path     string
	mimeType string
	buf      bytes.Buffer
	closed   bool
}

// Create opens a writer for the file at path. An existing file is
// replaced on Close; missing ancestor directories are created then too.
func (fs *FileSystem) Create(ctx context.Context, path, mimeType string) (*Writer, error) {
	path = pathutil.Normalize(path)
	if err := pathutil.Validate(path); err != nil {
		return nil, errors.E(errors.KindInvalidArgument, "create", path, err)
	}
	if pathutil.IsRoot(path) {
		return nil, errors.Errorf(errors.KindInvalidArgument, "create", path, "cannot write to root")
	}
	return &Writer{fs: fs, ctx: ctx, path: path, mimeType: mimeType}, nil
}

// Write appends p to the local buffer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.Errorf(errors.KindInvalidArgument, "write", w.path, "writer already closed")
	}
	return w.buf.Write(p)
}

// Len returns the number of buffered bytes.
func (w *Writer) Len() int { return w.buf.Len() }

// Close transfers the buffered content. The target path is re-resolved
// under the mutation guard: an object already there gets its content
// replaced, otherwise a new file is created, along with any missing
// ancestors.
func (w *Writer) Close() (err error) {
	if w.closed {
		return nil
	}
	w.closed = true
	fs := w.fs
	start := time.Now()
	defer func() { fs.observe("write", start, err) }()

	parentPath := pathutil.Parent(w.path)
	if err := fs.MkdirAll(w.ctx, parentPath); err != nil {
		return err
	}

	release, err := fs.guard.acquire(w.ctx, w.path)
	if err != nil {
		return errors.Classify("write", w.path, err)
	}
	defer release()

	parentID, err := fs.res.Resolve(w.ctx, parentPath)
	if err != nil {
		return err
	}

	data := w.buf.Bytes()
	if id, rerr := fs.res.Resolve(w.ctx, w.path); rerr == nil {
		var obj *types.Object
		obj, err = fs.client.Upload(w.ctx, id, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return err
		}
		fs.res.Refresh(parentID, w.path, obj)
		fs.logger.Debug("replaced file content",
			zap.String("path", w.path),
			zap.Int("bytes", len(data)))
		return nil
	} else if !errors.IsNotFound(rerr) {
		return rerr
	}

	obj, err := fs.createReconciled(w.ctx, parentID, pathutil.Base(w.path), w.mimeType, data)
	if err != nil {
		return err
	}
	fs.res.NoteCreate(parentID, parentPath, obj)
	fs.logger.Debug("created file",
		zap.String("path", w.path),
		zap.String("id", obj.ID),
		zap.Int("bytes", len(data)))
	return nil
}

// ReadFile reads the whole content of the file at path.
func (fs *FileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	r, err := fs.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteFile writes data to the file at path, replacing existing content.
func (fs *FileSystem) WriteFile(ctx context.Context, path, mimeType string, data []byte) error {
	w, err := fs.Create(ctx, path, mimeType)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

// Copy duplicates the file at src to dst by transferring content through
// the client. An existing dst is a Conflict unless overwrite.
func (fs *FileSystem) Copy(ctx context.Context, src, dst string, overwrite bool) (err error) {
	start := time.Now()
	defer func() { fs.observe("copy", start, err) }()

	src, dst = pathutil.Normalize(src), pathutil.Normalize(dst)
	obj, err := fs.Info(ctx, src)
	if err != nil {
		return err
	}
	if obj.IsFolder() {
		return errors.Errorf(errors.KindInvalidArgument, "copy", src, "is a directory")
	}
	if !overwrite {
		if exists, eerr := fs.Exists(ctx, dst); eerr != nil {
			return eerr
		} else if exists {
			return errors.Errorf(errors.KindConflict, "copy", dst, "destination exists")
		}
	}

	data, err := fs.ReadFile(ctx, src)
	if err != nil {
		return err
	}
	return fs.WriteFile(ctx, dst, obj.MimeType, data)
}
