// Package remote issues CRUD, listing and content calls against the
// backing Drive API and classifies failures into the drivefs error
// taxonomy. It is the only layer that talks to the network; everything
// above it holds cached copies of what it returns.
package remote

import (
	"context"
	"io"

	"github.com/drivefs/drivefs/pkg/types"
)

// Client is the remote client adapter contract. Implementations return
// errors already classified into drivefs error kinds so callers can make
// retry decisions without knowing the transport.
type Client interface {
	// Get fetches one object by ID.
	Get(ctx context.Context, id string) (*types.Object, error)

	// List returns one page of the non-trashed children of parentID along
	// with the continuation token for the next page ("" when exhausted).
	// Entries preserve server-returned order within the page.
	List(ctx context.Context, parentID, pageToken string) ([]*types.Object, string, error)

	// Create creates an object under parentID. A nil content creates a
	// content-less object (folders pass types.FolderMimeType).
	Create(ctx context.Context, parentID, title, mimeType string, content io.Reader, size int64) (*types.Object, error)

	// Update applies a metadata patch: rename, re-parent, trash state.
	Update(ctx context.Context, id string, patch types.Patch) (*types.Object, error)

	// Delete removes an object: to trash when permanent is false,
	// irrecoverably otherwise.
	Delete(ctx context.Context, id string, permanent bool) error

	// Download streams object content. offset/length select a byte range;
	// length < 0 reads to the end.
	Download(ctx context.Context, id string, offset, length int64) (io.ReadCloser, error)

	// Upload replaces the content of an existing object.
	Upload(ctx context.Context, id string, content io.Reader, size int64) (*types.Object, error)
}
