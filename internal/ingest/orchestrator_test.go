package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/internal/logging"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

type fakeDownloader struct {
	content string
	err     error
	fetches []string
}

func (d *fakeDownloader) Fetch(_ context.Context, sourceRef, localPath string) error {
	d.fetches = append(d.fetches, sourceRef)
	if d.err != nil {
		return d.err
	}
	return os.WriteFile(localPath, []byte(d.content), 0o644)
}

type fakePlanner struct {
	plan sheetflow.WorkbookPlan
	err  error
}

func (p *fakePlanner) Plan(string) (sheetflow.WorkbookPlan, error) {
	if p.err != nil {
		return sheetflow.WorkbookPlan{}, p.err
	}
	return p.plan, nil
}

type fakePublisher struct {
	published  []string // logical names in publish order
	failOnName string
}

func (p *fakePublisher) Publish(_ context.Context, plan sheetflow.TablePlan) (sheetflow.PublishResult, error) {
	if plan.LogicalName == p.failOnName {
		return sheetflow.PublishResult{}, errors.New("publish refused")
	}
	p.published = append(p.published, plan.LogicalName)
	return sheetflow.PublishResult{LogicalName: plan.LogicalName, PhysicalName: "phys_" + plan.LogicalName, RowCount: 1}, nil
}

type fakeIndex struct {
	processed map[string]string // id -> etag
	marks     []string
	saves     int
	saveErr   error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{processed: make(map[string]string)}
}

func (i *fakeIndex) Load() error { return nil }

func (i *fakeIndex) Save() error {
	if i.saveErr != nil {
		return i.saveErr
	}
	i.saves++
	return nil
}

func (i *fakeIndex) IsProcessed(id, etag, _ string) bool {
	return i.processed[id] == etag && etag != ""
}

func (i *fakeIndex) MarkProcessed(id, etag, _ string) {
	i.processed[id] = etag
	i.marks = append(i.marks, id)
}

type fixture struct {
	orch       *Orchestrator
	downloader *fakeDownloader
	publisher  *fakePublisher
	index      *fakeIndex
	cfg        Config
}

func emptyRows() sheetflow.RowSource {
	return &staticRows{}
}

type staticRows struct{}

func (*staticRows) Next() ([]string, bool, error) { return nil, false, nil }

func twoSheetPlan() sheetflow.WorkbookPlan {
	return sheetflow.WorkbookPlan{
		DatasetKey: "budget",
		Sheets: []sheetflow.SheetPlan{
			{SheetName: "Q1", Table: sheetflow.TablePlan{LogicalName: "budget_q1", Columns: []string{"a"}, Rows: emptyRows()}},
			{SheetName: "Q2", Table: sheetflow.TablePlan{LogicalName: "budget_q2", Columns: []string{"a"}, Rows: emptyRows()}},
		},
	}
}

func newFixture(t *testing.T, plan sheetflow.WorkbookPlan) *fixture {
	t.Helper()

	base := t.TempDir()
	cfg := Config{
		LandingDir:   filepath.Join(base, "landing"),
		ProcessedDir: filepath.Join(base, "processed"),
	}

	fx := &fixture{
		downloader: &fakeDownloader{content: "workbook-bytes"},
		publisher:  &fakePublisher{},
		index:      newFakeIndex(),
		cfg:        cfg,
	}

	orch, err := NewOrchestrator(fx.downloader, &fakePlanner{plan: plan}, fx.publisher, fx.index, cfg, logging.NewNullLogger())
	require.NoError(t, err)
	fx.orch = orch
	return fx
}

func testItem() sheetflow.ChangeItem {
	return sheetflow.ChangeItem{
		ID:          "item-1",
		Name:        "Budget.xlsx",
		Fingerprint: sheetflow.Fingerprint{ETag: "v1", LastModified: "2026-03-01T12:00:00Z"},
		SourceRef:   "https://example.test/content/item-1",
	}
}

func TestProcessItem_PublishesAllSheets(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())

	err := fx.orch.ProcessItem(context.Background(), testItem())

	require.NoError(t, err)
	assert.Equal(t, []string{"budget_q1", "budget_q2"}, fx.publisher.published)
	assert.Equal(t, []string{"item-1"}, fx.index.marks)
	assert.Equal(t, 1, fx.index.saves)

	// Rolling processed copy exists; landing file is gone.
	latest := filepath.Join(fx.cfg.ProcessedDir, "budget", "latest.xlsx")
	content, err := os.ReadFile(latest)
	require.NoError(t, err)
	assert.Equal(t, "workbook-bytes", string(content))
	assert.NoFileExists(t, filepath.Join(fx.cfg.LandingDir, "Budget.xlsx"))
}

func TestProcessItem_SkipsPublishedVersion(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())
	fx.index.processed["item-1"] = "v1"

	err := fx.orch.ProcessItem(context.Background(), testItem())

	require.NoError(t, err)
	assert.Empty(t, fx.downloader.fetches)
	assert.Empty(t, fx.publisher.published)
	assert.Zero(t, fx.index.saves)
}

func TestProcessItem_ChangedVersionReprocesses(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())
	fx.index.processed["item-1"] = "older-etag"

	err := fx.orch.ProcessItem(context.Background(), testItem())

	require.NoError(t, err)
	assert.Len(t, fx.downloader.fetches, 1)
	assert.Equal(t, "v1", fx.index.processed["item-1"])
}

func TestProcessItem_SheetFailureLeavesItemUnrecorded(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())
	fx.publisher.failOnName = "budget_q2"

	err := fx.orch.ProcessItem(context.Background(), testItem())

	require.Error(t, err)
	assert.Equal(t, []string{"budget_q1"}, fx.publisher.published)
	assert.Empty(t, fx.index.marks)
	assert.Zero(t, fx.index.saves)

	// The landing file stays for diagnosis and the retry.
	assert.FileExists(t, filepath.Join(fx.cfg.LandingDir, "Budget.xlsx"))
}

func TestProcessItem_DownloadFailure(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())
	fx.downloader.err = errors.New("network down")

	err := fx.orch.ProcessItem(context.Background(), testItem())

	require.Error(t, err)
	assert.Empty(t, fx.publisher.published)
	assert.Empty(t, fx.index.marks)
}

func TestProcessItem_SaveFailureIsError(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())
	fx.index.saveErr = errors.New("disk full")

	err := fx.orch.ProcessItem(context.Background(), testItem())

	require.Error(t, err)
}

func TestProcessItem_EmptyWorkbookIsSuccess(t *testing.T) {
	fx := newFixture(t, sheetflow.WorkbookPlan{DatasetKey: "budget"})

	err := fx.orch.ProcessItem(context.Background(), testItem())

	require.NoError(t, err)
	assert.Empty(t, fx.publisher.published)
	assert.Equal(t, []string{"item-1"}, fx.index.marks)
	assert.FileExists(t, filepath.Join(fx.cfg.ProcessedDir, "budget", "latest.xlsx"))
}

func TestProcessItem_KeepHistoryWritesStampedCopy(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())
	fx.cfg.KeepHistory = true

	orch, err := NewOrchestrator(fx.downloader, &fakePlanner{plan: twoSheetPlan()}, fx.publisher, fx.index, fx.cfg, logging.NewNullLogger())
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orch = orch.WithClock(func() time.Time { return at })

	require.NoError(t, orch.ProcessItem(context.Background(), testItem()))

	dir := filepath.Join(fx.cfg.ProcessedDir, "budget")
	assert.FileExists(t, filepath.Join(dir, "latest.xlsx"))
	assert.FileExists(t, filepath.Join(dir, "20260301_120000.xlsx"))
}

func TestProcessItem_CopyFailureDoesNotFailItem(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())

	// Block the processed directory with a regular file so MkdirAll fails.
	require.NoError(t, os.WriteFile(fx.cfg.ProcessedDir, []byte("blocker"), 0o644))

	err := fx.orch.ProcessItem(context.Background(), testItem())

	require.NoError(t, err)
	assert.Equal(t, []string{"item-1"}, fx.index.marks)
}

func TestHandler_SwallowsItemFailures(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())
	fx.downloader.err = errors.New("network down")

	yield := fx.orch.Handler(context.Background())
	assert.NoError(t, yield(testItem()))
}

func TestHandler_PropagatesCredentialFailure(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())
	fx.downloader.err = fmt.Errorf("acquire token: %w", sheetflow.ErrAuth)

	yield := fx.orch.Handler(context.Background())
	err := yield(testItem())
	require.ErrorIs(t, err, sheetflow.ErrAuth)
	assert.Equal(t, sheetflow.ExitAuthError, sheetflow.ExitCodeForError(err))
	assert.Empty(t, fx.index.marks)
}

func TestHandler_PropagatesCancellation(t *testing.T) {
	fx := newFixture(t, twoSheetPlan())
	fx.downloader.err = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	yield := fx.orch.Handler(ctx)
	assert.Error(t, yield(testItem()))
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, sheetflow.ErrInvalidConfig)
}
