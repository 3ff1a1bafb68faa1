package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/internal/graph"
	"github.com/sheetflow/sheetflow/internal/logging"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

type fakeFetcher struct {
	pages map[string]graph.Page
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) (graph.Page, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return graph.Page{}, err
	}
	page, ok := f.pages[url]
	if !ok {
		return graph.Page{}, errors.New("unexpected url: " + url)
	}
	return page, nil
}

type memCheckpoints struct {
	token  string
	ok     bool
	writes []string
}

func (m *memCheckpoints) Read() (string, bool, error) { return m.token, m.ok, nil }

func (m *memCheckpoints) Write(token string) error {
	m.token = token
	m.ok = true
	m.writes = append(m.writes, token)
	return nil
}

func fileItem(id, name, etag string) graph.ItemDescriptor {
	d := graph.ItemDescriptor{ID: id, Name: name, ETag: etag}
	d.File = &struct {
		MimeType string `json:"mimeType"`
	}{MimeType: "application/octet-stream"}
	d.FileSystemInfo.LastModifiedDateTime = "2024-03-01T10:00:00Z"
	return d
}

func folderItem(id, name string) graph.ItemDescriptor {
	return graph.ItemDescriptor{ID: id, Name: name}
}

func newWatcher(f *fakeFetcher, cp *memCheckpoints) *Watcher {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	return NewWatcher(f, drive, cp, logging.NewNullLogger())
}

func collect(t *testing.T, run func(YieldFunc) error) []sheetflow.ChangeItem {
	t.Helper()
	var got []sheetflow.ChangeItem
	require.NoError(t, run(func(item sheetflow.ChangeItem) error {
		got = append(got, item)
		return nil
	}))
	return got
}

func TestListAll_EmitsSnapshotWithoutCheckpointWrite(t *testing.T) {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	fetcher := &fakeFetcher{pages: map[string]graph.Page{
		drive.ChildrenURL(): {Items: []graph.ItemDescriptor{
			fileItem("a", "A.xlsx", "e-a"),
			fileItem("b", "B.xlsm", "e-b"),
		}},
	}}
	cp := &memCheckpoints{}

	items := collect(t, func(y YieldFunc) error {
		return newWatcher(fetcher, cp).ListAll(context.Background(), y)
	})

	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "A.xlsx", items[0].Name)
	assert.Equal(t, "e-a", items[0].Fingerprint.ETag)
	assert.Equal(t, "http://t/drives/d/items/a/content", items[0].SourceRef)

	// No warm-pass checkpoint write occurs around the initial pass.
	assert.Empty(t, cp.writes)
}

func TestChangesSince_FiltersNonWorkbooks(t *testing.T) {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	fetcher := &fakeFetcher{pages: map[string]graph.Page{
		drive.DeltaURL(): {
			Items: []graph.ItemDescriptor{
				fileItem("a", "keep.XLSX", "e1"),
				fileItem("c", "notes.csv", "e2"),
				folderItem("d1", "subfolder"),
			},
			TerminalCursor: "delta-1",
		},
	}}
	cp := &memCheckpoints{}

	items := collect(t, func(y YieldFunc) error {
		return newWatcher(fetcher, cp).ChangesSince(context.Background(), y)
	})

	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
}

func TestChangesSince_FollowsPagesPersistsLastTerminal(t *testing.T) {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	fetcher := &fakeFetcher{pages: map[string]graph.Page{
		drive.DeltaURL(): {
			Items:          []graph.ItemDescriptor{fileItem("a", "a.xlsx", "e1")},
			NextCursor:     "http://t/page2",
			TerminalCursor: "stale-terminal",
		},
		"http://t/page2": {
			Items:          []graph.ItemDescriptor{fileItem("b", "b.xlsx", "e2")},
			TerminalCursor: "delta-final",
		},
	}}
	cp := &memCheckpoints{}

	items := collect(t, func(y YieldFunc) error {
		return newWatcher(fetcher, cp).ChangesSince(context.Background(), y)
	})

	require.Len(t, items, 2)
	// Only the last terminal cursor of the pass is persisted, exactly once.
	assert.Equal(t, []string{"delta-final"}, cp.writes)
}

func TestChangesSince_ResumesFromCheckpoint(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]graph.Page{
		"resume-token": {TerminalCursor: "delta-2"},
	}}
	cp := &memCheckpoints{token: "resume-token", ok: true}

	collect(t, func(y YieldFunc) error {
		return newWatcher(fetcher, cp).ChangesSince(context.Background(), y)
	})

	assert.Equal(t, []string{"resume-token"}, fetcher.calls)
	assert.Equal(t, "delta-2", cp.token)
}

func TestChangesSince_PartialFailureDoesNotAdvanceCheckpoint(t *testing.T) {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	fetcher := &fakeFetcher{
		pages: map[string]graph.Page{
			drive.DeltaURL(): {
				Items:          []graph.ItemDescriptor{fileItem("a", "a.xlsx", "e1")},
				NextCursor:     "http://t/page2",
				TerminalCursor: "would-be-terminal",
			},
		},
		errs: map[string]error{"http://t/page2": errors.New("boom")},
	}
	cp := &memCheckpoints{}

	err := newWatcher(fetcher, cp).ChangesSince(context.Background(), func(sheetflow.ChangeItem) error {
		return nil
	})
	require.Error(t, err)
	assert.Empty(t, cp.writes)
	assert.False(t, cp.ok)
}

func TestWarm_PersistsBaselineWithoutYielding(t *testing.T) {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	fetcher := &fakeFetcher{pages: map[string]graph.Page{
		drive.DeltaURL(): {
			Items:          []graph.ItemDescriptor{fileItem("a", "a.xlsx", "e1"), fileItem("b", "b.xlsx", "e2")},
			TerminalCursor: "baseline",
		},
	}}
	cp := &memCheckpoints{}

	require.NoError(t, newWatcher(fetcher, cp).Warm(context.Background()))
	assert.Equal(t, []string{"baseline"}, cp.writes)
}

func TestRun_IgnoreExistingThenFutureChange(t *testing.T) {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	fetcher := &fakeFetcher{pages: map[string]graph.Page{
		drive.DeltaURL(): {
			Items:          []graph.ItemDescriptor{fileItem("a", "a.xlsx", "e1"), fileItem("b", "b.xlsx", "e2")},
			TerminalCursor: "baseline",
		},
		"baseline": {
			Items:          []graph.ItemDescriptor{fileItem("c", "c.xlsx", "e3")},
			TerminalCursor: "delta-2",
		},
	}}
	cp := &memCheckpoints{}
	w := newWatcher(fetcher, cp)

	var got []sheetflow.ChangeItem
	stop := errors.New("seen enough")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := w.Run(ctx, sheetflow.ModeIgnoreExisting, time.Millisecond, func(item sheetflow.ChangeItem) error {
		got = append(got, item)
		return stop
	})
	require.ErrorIs(t, err, stop)

	// Baseline yielded nothing; the next delta pass surfaced only C.
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "baseline", cp.writes[0])
}

func TestWatch_FailedPassRetriesNextCycle(t *testing.T) {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	boom := errors.New("network down")
	fetcher := &fakeFetcher{
		pages: map[string]graph.Page{},
		errs:  map[string]error{drive.DeltaURL(): boom},
	}
	cp := &memCheckpoints{}
	w := newWatcher(fetcher, cp)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Let a few failing cycles elapse, then cancel.
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := w.Watch(ctx, time.Millisecond, func(sheetflow.ChangeItem) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, len(fetcher.calls), 2)
	assert.Empty(t, cp.writes)
}

func TestWatch_CredentialFailureStopsImmediately(t *testing.T) {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	fetcher := &fakeFetcher{
		pages: map[string]graph.Page{},
		errs: map[string]error{
			drive.DeltaURL(): fmt.Errorf("acquire token: %w", sheetflow.ErrAuth),
		},
	}
	cp := &memCheckpoints{}
	w := newWatcher(fetcher, cp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := w.Watch(ctx, time.Millisecond, func(sheetflow.ChangeItem) error { return nil })
	require.ErrorIs(t, err, sheetflow.ErrAuth)
	assert.Equal(t, sheetflow.ExitAuthError, sheetflow.ExitCodeForError(err))

	// A dead credential is not retried: one pass, one fetch.
	assert.Len(t, fetcher.calls, 1)
	assert.Empty(t, cp.writes)
}

func TestWatch_CredentialFailureFromYieldStops(t *testing.T) {
	drive := graph.NewDrive("d", "f").WithBaseURL("http://t")
	fetcher := &fakeFetcher{pages: map[string]graph.Page{
		drive.DeltaURL(): {
			Items:          []graph.ItemDescriptor{fileItem("a", "a.xlsx", "e1")},
			TerminalCursor: "delta-1",
		},
	}}
	cp := &memCheckpoints{}
	w := newWatcher(fetcher, cp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := w.Watch(ctx, time.Millisecond, func(sheetflow.ChangeItem) error {
		return fmt.Errorf("download a.xlsx: %w", sheetflow.ErrAuth)
	})
	require.ErrorIs(t, err, sheetflow.ErrAuth)
	assert.Len(t, fetcher.calls, 1)

	// The pass did not complete, so no checkpoint advanced.
	assert.Empty(t, cp.writes)
}
