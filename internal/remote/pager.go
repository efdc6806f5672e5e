package remote

import (
	"context"
	stderrors "errors"

	"github.com/drivefs/drivefs/pkg/types"
)

// ErrPagesDone is returned by Pager.Next after the last page has been
// delivered.
var ErrPagesDone = stderrors.New("remote: no more pages")

// Pager turns a single children listing into a lazy, restartable sequence
// of pages, hiding the continuation-token bookkeeping. A Pager is not safe
// for concurrent use; re-iterating the same directory means constructing a
// new Pager. Abandoning a Pager before exhaustion needs no cleanup.
type Pager struct {
	client    Client
	parentID  string
	pageToken string
	exhausted bool
}

// NewPager creates a pager over the children of parentID.
func NewPager(client Client, parentID string) *Pager {
	return &Pager{client: client, parentID: parentID}
}

// Next returns the next page of entries, or ErrPagesDone once the listing
// is exhausted. Once exhausted no further remote calls are issued.
func (p *Pager) Next(ctx context.Context) ([]*types.Object, error) {
	if p.exhausted {
		return nil, ErrPagesDone
	}

	entries, next, err := p.client.List(ctx, p.parentID, p.pageToken)
	if err != nil {
		return nil, err
	}

	p.pageToken = next
	if next == "" {
		p.exhausted = true
	}

	// A trailing empty page with no token just terminates the sequence.
	if len(entries) == 0 && p.exhausted {
		return nil, ErrPagesDone
	}
	return entries, nil
}

// Exhausted reports whether the sequence has been fully consumed.
func (p *Pager) Exhausted() bool { return p.exhausted }

// Drain consumes the remaining pages and returns all entries in the order
// the server produced them.
func (p *Pager) Drain(ctx context.Context) ([]*types.Object, error) {
	var all []*types.Object
	for {
		page, err := p.Next(ctx)
		if stderrors.Is(err, ErrPagesDone) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
}
