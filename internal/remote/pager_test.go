package remote_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/internal/remote/remotetest"
	"github.com/drivefs/drivefs/pkg/errors"
)

func TestPagerDeliversAllEntriesAcrossPages(t *testing.T) {
	t.Parallel()

	const total, pageSize = 23, 5
	fake := remotetest.New()
	fake.PageSize = pageSize
	for i := 0; i < total; i++ {
		fake.AddFile(remotetest.RootID, fmt.Sprintf("file-%02d", i), nil)
	}

	pager := remote.NewPager(fake, remotetest.RootID)
	var names []string
	pages := 0
	for {
		page, err := pager.Next(context.Background())
		if err == remote.ErrPagesDone {
			break
		}
		if err != nil {
			t.Fatalf("Next = %v", err)
		}
		pages++
		for _, obj := range page {
			names = append(names, obj.Title)
		}
	}

	if len(names) != total {
		t.Fatalf("collected %d entries, want %d", len(names), total)
	}
	for i, name := range names {
		if want := fmt.Sprintf("file-%02d", i); name != want {
			t.Errorf("entry %d = %q, want %q (insertion order)", i, name, want)
		}
	}
	if want := (total + pageSize - 1) / pageSize; pages != want {
		t.Errorf("pages = %d, want %d", pages, want)
	}
}

func TestPagerEmptyDirectory(t *testing.T) {
	t.Parallel()

	pager := remote.NewPager(remotetest.New(), remotetest.RootID)
	if _, err := pager.Next(context.Background()); err != remote.ErrPagesDone {
		t.Fatalf("Next on empty dir = %v, want ErrPagesDone", err)
	}
	if !pager.Exhausted() {
		t.Error("Exhausted = false after done")
	}
}

func TestPagerStaysExhausted(t *testing.T) {
	t.Parallel()

	fake := remotetest.New()
	fake.AddFile(remotetest.RootID, "only", nil)

	pager := remote.NewPager(fake, remotetest.RootID)
	if _, err := pager.Next(context.Background()); err != nil {
		t.Fatalf("Next = %v", err)
	}
	if _, err := pager.Next(context.Background()); err != remote.ErrPagesDone {
		t.Fatalf("second Next = %v, want ErrPagesDone", err)
	}

	listCalls := fake.Calls("list")
	for i := 0; i < 3; i++ {
		if _, err := pager.Next(context.Background()); err != remote.ErrPagesDone {
			t.Fatalf("Next after exhaustion = %v, want ErrPagesDone", err)
		}
	}
	if fake.Calls("list") != listCalls {
		t.Error("exhausted pager must not issue further remote calls")
	}
}

func TestPagerSurfacesErrors(t *testing.T) {
	t.Parallel()

	fake := remotetest.New()
	fake.AddFile(remotetest.RootID, "a", nil)
	fake.FailNext("list", errors.KindTransient, 1)

	pager := remote.NewPager(fake, remotetest.RootID)
	if _, err := pager.Next(context.Background()); !errors.IsRetryable(err) {
		t.Fatalf("Next = %v, want transient error", err)
	}
	// A failed page does not exhaust the sequence; the next call retries it.
	page, err := pager.Next(context.Background())
	if err != nil {
		t.Fatalf("Next after failure = %v", err)
	}
	if len(page) != 1 || page[0].Title != "a" {
		t.Errorf("page = %v, want the single entry", page)
	}
}

func TestPagerDrain(t *testing.T) {
	t.Parallel()

	fake := remotetest.New()
	fake.PageSize = 2
	for i := 0; i < 7; i++ {
		fake.AddFile(remotetest.RootID, fmt.Sprintf("f%d", i), nil)
	}

	all, err := remote.NewPager(fake, remotetest.RootID).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain = %v", err)
	}
	if len(all) != 7 {
		t.Errorf("Drain returned %d entries, want 7", len(all))
	}
}
