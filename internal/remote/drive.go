package remote

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/drivefs/drivefs/internal/config"
	"github.com/drivefs/drivefs/pkg/errors"
	"github.com/drivefs/drivefs/pkg/types"
)

// fileFields is the metadata projection requested on every call that
// returns objects.
const fileFields = "id, name, mimeType, parents, trashed, size, version, modifiedTime, md5Checksum"

const listFields = "nextPageToken, files(" + fileFields + ")"

// DriveClient implements Client against the Google Drive v3 API.
type DriveClient struct {
	svc     *drive.Service
	cfg     *config.Configuration
	logger  *zap.Logger
	timeout time.Duration
}

var _ Client = (*DriveClient)(nil)

// NewDriveClient builds a Drive-backed client from an authenticated token
// source. Token refresh happens opaquely inside the oauth2 transport; a
// refresh failure surfaces from the first remote call as a Fatal error.
func NewDriveClient(ctx context.Context, ts oauth2.TokenSource, cfg *config.Configuration, logger *zap.Logger) (*DriveClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, errors.E(errors.KindFatal, "remote.new", "", err)
	}
	return &DriveClient{
		svc:     svc,
		cfg:     cfg,
		logger:  logger,
		timeout: cfg.Drive.RequestTimeout,
	}, nil
}

func (d *DriveClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout > 0 {
		return context.WithTimeout(ctx, d.timeout)
	}
	return context.WithCancel(ctx)
}

// Get fetches one object by ID.
func (d *DriveClient) Get(ctx context.Context, id string) (*types.Object, error) {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()

	f, err := d.svc.Files.Get(id).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return nil, errors.Classify("remote.get", id, err)
	}
	return fromDriveFile(f), nil
}

// List returns one page of the non-trashed children of parentID.
func (d *DriveClient) List(ctx context.Context, parentID, pageToken string) ([]*types.Object, string, error) {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()

	call := d.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed=false", escapeQueryTerm(parentID))).
		PageSize(d.cfg.Drive.PageSize).
		Fields(listFields).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	res, err := call.Do()
	if err != nil {
		return nil, "", errors.Classify("remote.list", parentID, err)
	}

	entries := make([]*types.Object, 0, len(res.Files))
	for _, f := range res.Files {
		entries = append(entries, fromDriveFile(f))
	}
	d.logger.Debug("listed children page",
		zap.String("parent", parentID),
		zap.Int("entries", len(entries)),
		zap.Bool("more", res.NextPageToken != ""))
	return entries, res.NextPageToken, nil
}

// Create creates an object under parentID, uploading content when given.
func (d *DriveClient) Create(ctx context.Context, parentID, title, mimeType string, content io.Reader, size int64) (*types.Object, error) {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()

	meta := &drive.File{
		Name:     title,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}
	call := d.svc.Files.Create(meta).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx)
	if content != nil {
		call = call.Media(content, d.mediaOptions(size)...)
	}

	f, err := call.Do()
	if err != nil {
		return nil, errors.Classify("remote.create", title, err)
	}
	return fromDriveFile(f), nil
}

// Update applies a metadata patch.
func (d *DriveClient) Update(ctx context.Context, id string, patch types.Patch) (*types.Object, error) {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()

	meta := &drive.File{}
	if patch.Title != nil {
		meta.Name = *patch.Title
	}
	if patch.Trashed != nil {
		meta.Trashed = *patch.Trashed
		if !*patch.Trashed {
			meta.ForceSendFields = append(meta.ForceSendFields, "Trashed")
		}
	}

	call := d.svc.Files.Update(id, meta).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx)
	if len(patch.AddParents) > 0 {
		call = call.AddParents(strings.Join(patch.AddParents, ","))
	}
	if len(patch.RemoveParents) > 0 {
		call = call.RemoveParents(strings.Join(patch.RemoveParents, ","))
	}

	f, err := call.Do()
	if err != nil {
		return nil, errors.Classify("remote.update", id, err)
	}
	return fromDriveFile(f), nil
}

// Delete removes an object, to trash unless permanent.
func (d *DriveClient) Delete(ctx context.Context, id string, permanent bool) error {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()

	if permanent {
		err := d.svc.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do()
		return errors.Classify("remote.delete", id, err)
	}

	trashed := true
	_, err := d.Update(ctx, id, types.Patch{Trashed: &trashed})
	return err
}

// Download streams object content, optionally a byte range. The call
// carries no deadline of its own: the body outlives call setup and is
// read at the caller's pace, bounded by the caller's ctx.
func (d *DriveClient) Download(ctx context.Context, id string, offset, length int64) (io.ReadCloser, error) {
	call := d.svc.Files.Get(id).
		SupportsAllDrives(true).
		Context(ctx)
	if d.cfg.Drive.AcknowledgeAbuse {
		call = call.AcknowledgeAbuse(true)
	}
	if offset > 0 || length >= 0 {
		call.Header().Set("Range", rangeHeader(offset, length))
	}

	res, err := call.Download()
	if err != nil {
		return nil, errors.Classify("remote.download", id, err)
	}
	return res.Body, nil
}

// Upload replaces the content of an existing object.
func (d *DriveClient) Upload(ctx context.Context, id string, content io.Reader, size int64) (*types.Object, error) {
	ctx, cancel := d.callCtx(ctx)
	defer cancel()

	f, err := d.svc.Files.Update(id, &drive.File{}).
		Media(content, d.mediaOptions(size)...).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return nil, errors.Classify("remote.upload", id, err)
	}
	return fromDriveFile(f), nil
}

// mediaOptions selects simple vs resumable upload from the configured
// threshold. Unknown sizes (size < 0) go resumable.
func (d *DriveClient) mediaOptions(size int64) []googleapi.MediaOption {
	if size >= 0 && size < d.cfg.ResumableThresholdBytes() {
		return nil
	}
	chunk := int(d.cfg.ChunkSizeBytes())
	if chunk <= 0 {
		chunk = googleapi.DefaultUploadChunkSize
	}
	return []googleapi.MediaOption{googleapi.ChunkSize(chunk)}
}

func rangeHeader(offset, length int64) string {
	if length < 0 {
		return fmt.Sprintf("bytes=%d-", offset)
	}
	return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
}

// escapeQueryTerm escapes single quotes inside a Drive query term.
func escapeQueryTerm(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

func fromDriveFile(f *drive.File) *types.Object {
	obj := &types.Object{
		ID:          f.Id,
		Title:       f.Name,
		MimeType:    f.MimeType,
		Parents:     f.Parents,
		Trashed:     f.Trashed,
		Size:        f.Size,
		Version:     strconv.FormatInt(f.Version, 10),
		MD5Checksum: f.Md5Checksum,
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			obj.ModifiedTime = t
		}
	}
	return obj
}
