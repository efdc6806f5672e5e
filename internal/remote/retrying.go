package remote

import (
	"context"
	"io"

	"github.com/drivefs/drivefs/pkg/retry"
	"github.com/drivefs/drivefs/pkg/types"
)

// Retrying decorates a Client with bounded backoff on transient failures
// for every idempotent call. Create is deliberately passed through: a
// retried create whose first response was lost would duplicate the
// object, so reconciliation lives with the caller, which can re-scan the
// parent before re-issuing.
type Retrying struct {
	inner   Client
	retryer *retry.Retryer
}

// NewRetrying wraps client with the given retryer.
func NewRetrying(client Client, retryer *retry.Retryer) *Retrying {
	return &Retrying{inner: client, retryer: retryer}
}

var _ Client = (*Retrying)(nil)

// Inner returns the wrapped client.
func (r *Retrying) Inner() Client { return r.inner }

// Retryer returns the retry policy in use.
func (r *Retrying) Retryer() *retry.Retryer { return r.retryer }

func (r *Retrying) Get(ctx context.Context, id string) (*types.Object, error) {
	var obj *types.Object
	err := r.retryer.Do(ctx, "remote.get", func(ctx context.Context) error {
		var err error
		obj, err = r.inner.Get(ctx, id)
		return err
	})
	return obj, err
}

func (r *Retrying) List(ctx context.Context, parentID, pageToken string) ([]*types.Object, string, error) {
	var (
		entries []*types.Object
		next    string
	)
	err := r.retryer.Do(ctx, "remote.list", func(ctx context.Context) error {
		var err error
		entries, next, err = r.inner.List(ctx, parentID, pageToken)
		return err
	})
	return entries, next, err
}

// Create passes through without retry; see the type comment.
func (r *Retrying) Create(ctx context.Context, parentID, title, mimeType string, content io.Reader, size int64) (*types.Object, error) {
	return r.inner.Create(ctx, parentID, title, mimeType, content, size)
}

func (r *Retrying) Update(ctx context.Context, id string, patch types.Patch) (*types.Object, error) {
	var obj *types.Object
	err := r.retryer.Do(ctx, "remote.update", func(ctx context.Context) error {
		var err error
		obj, err = r.inner.Update(ctx, id, patch)
		return err
	})
	return obj, err
}

func (r *Retrying) Delete(ctx context.Context, id string, permanent bool) error {
	return r.retryer.Do(ctx, "remote.delete", func(ctx context.Context) error {
		return r.inner.Delete(ctx, id, permanent)
	})
}

func (r *Retrying) Download(ctx context.Context, id string, offset, length int64) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := r.retryer.Do(ctx, "remote.download", func(ctx context.Context) error {
		var err error
		rc, err = r.inner.Download(ctx, id, offset, length)
		return err
	})
	return rc, err
}

// Upload retries when the content is rewindable: replacing content with
// the same bytes is idempotent. Non-seekable streams get one attempt.
func (r *Retrying) Upload(ctx context.Context, id string, content io.Reader, size int64) (*types.Object, error) {
	seeker, rewindable := content.(io.Seeker)
	if !rewindable {
		return r.inner.Upload(ctx, id, content, size)
	}

	var obj *types.Object
	err := r.retryer.Do(ctx, "remote.upload", func(ctx context.Context) error {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return retry.Permanent(err)
		}
		var err error
		obj, err = r.inner.Upload(ctx, id, content, size)
		return err
	})
	return obj, err
}
