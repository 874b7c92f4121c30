package queue

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()

	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "imxup.db"))
	require.NoError(t, err)

	m := NewManager(s, ScanConfig{})
	require.NoError(t, m.Load(ctx))
	m.Start(ctx)

	t.Cleanup(func() {
		m.Close()
		require.NoError(t, s.Close())
	})

	return m, s
}

// writeTestImage writes a valid PNG of the given dimensions.
func writeTestImage(t *testing.T, path string, w, h int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, f.Close())
}

// makeGalleryFolder creates a folder with n valid images named img00.jpg...
func makeGalleryFolder(t *testing.T, n int) string {
	t.Helper()

	dir := t.TempDir()
	for i := 0; i < n; i++ {
		// PNG payload behind a .png name.
		writeTestImage(t, filepath.Join(dir, imageName(i)), 800, 600)
	}

	return dir
}

func imageName(i int) string {
	return "img" + string(rune('a'+i)) + ".png"
}

func waitStatus(t *testing.T, m *Manager, path string, want gallery.Status) *gallery.Gallery {
	t.Helper()

	var got *gallery.Gallery

	require.Eventually(t, func() bool {
		g, ok := m.GetItem(path)
		if !ok {
			return false
		}

		got = g

		return g.Status == want
	}, 10*time.Second, 10*time.Millisecond, "waiting for %v to reach %v", path, want)

	return got
}

func TestAddItemScansToReady(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)

	dir := makeGalleryFolder(t, 3)

	require.True(t, m.AddItem(ctx, dir, "Alpha", "default", ""))
	require.False(t, m.AddItem(ctx, dir, "Alpha", "default", ""), "duplicate add must fail")

	g := waitStatus(t, m, dir, gallery.StatusReady)
	require.Equal(t, "Alpha", g.Name)
	require.Equal(t, 3, g.TotalImages)
	require.True(t, g.ScanComplete)
	require.Equal(t, 800, g.AvgWidth)
	require.Equal(t, 600, g.AvgHeight)
	require.NotZero(t, g.TotalSize)
}

func TestAddRemoveAddRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := makeGalleryFolder(t, 1)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)

	require.True(t, m.RemoveItem(ctx, dir))
	_, ok := m.GetItem(dir)
	require.False(t, ok)
	require.False(t, m.RemoveItem(ctx, dir), "removing a missing item fails")

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	g := waitStatus(t, m, dir, gallery.StatusReady)
	require.Equal(t, filepath.Base(dir), g.Name)
}

func TestRemoveWhileUploadingFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := makeGalleryFolder(t, 1)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)

	m.UpdateItemStatus(ctx, dir, gallery.StatusUploading)

	require.False(t, m.RemoveItem(ctx, dir))

	g, ok := m.GetItem(dir)
	require.True(t, ok)
	require.Equal(t, gallery.StatusUploading, g.Status)
}

func TestStartItemAndRunQueueFIFO(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)

	dirs := []string{makeGalleryFolder(t, 1), makeGalleryFolder(t, 1), makeGalleryFolder(t, 1)}

	for _, d := range dirs {
		require.True(t, m.AddItem(ctx, d, "", "", ""))
		waitStatus(t, m, d, gallery.StatusReady)
	}

	for _, d := range dirs {
		require.True(t, m.StartItem(ctx, d))
	}

	// starting an already queued item must not duplicate it in the queue.
	require.False(t, m.StartItem(ctx, dirs[0]))

	for _, want := range dirs {
		g := m.GetNextItem()
		require.NotNil(t, g)
		require.Equal(t, want, g.Path)
		require.Equal(t, want, m.PendingUpload())
	}

	require.Nil(t, m.GetNextItem())
}

func TestStartOnWrongStatusFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := makeGalleryFolder(t, 1)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)

	m.UpdateItemStatus(ctx, dir, gallery.StatusUploading)
	require.False(t, m.StartItem(ctx, dir))

	m.UpdateItemStatus(ctx, dir, gallery.StatusCompleted)
	require.False(t, m.StartItem(ctx, dir))
}

func TestUpdateItemStatusSideEffects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := makeGalleryFolder(t, 2)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)

	m.UpdateItemStatus(ctx, dir, gallery.StatusCompleted)

	g, _ := m.GetItem(dir)
	require.Equal(t, 100, g.Progress)
	require.NotZero(t, g.FinishedTime)

	// unknown path is a no-op.
	m.UpdateItemStatus(ctx, "/missing", gallery.StatusReady)
}

func TestStatusChangedEventsPerPathOrdered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := makeGalleryFolder(t, 1)

	events := make(chan StatusChanged, 64)
	m.Signals().StatusChanged.Subscribe(func(e StatusChanged) { events <- e })

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)
	require.True(t, m.StartItem(ctx, dir))

	var seen []gallery.Status

	deadline := time.After(10 * time.Second)

	for len(seen) < 3 {
		select {
		case e := <-events:
			require.Equal(t, dir, e.Path)
			seen = append(seen, e.New)
		case <-deadline:
			t.Fatalf("timed out, got %v", seen)
		}
	}

	require.Equal(t, []gallery.Status{gallery.StatusScanning, gallery.StatusReady, gallery.StatusQueued}, seen)
}

func TestRetryFailedUploadFullVsResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := makeGalleryFolder(t, 3)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)

	// nothing uploaded: full retry back to ready.
	m.MarkUploadFailed(ctx, dir, "boom", nil)
	m.RetryFailedUpload(ctx, dir)

	g, _ := m.GetItem(dir)
	require.Equal(t, gallery.StatusReady, g.Status)
	require.Empty(t, g.ErrorMessage)

	// partial upload with a gallery id: resume as incomplete.
	m.SetGalleryCreated(ctx, dir, "g1", "http://x/g1")
	m.RecordImageUploaded(ctx, dir, "imga.png", 10)
	m.MarkUploadFailed(ctx, dir, "partial", []string{"imgb.png"})
	require.Equal(t, []string{"imgb.png"}, m.FailedFiles(dir))

	m.RetryFailedUpload(ctx, dir)

	g, _ = m.GetItem(dir)
	require.Equal(t, gallery.StatusIncomplete, g.Status)
	require.Equal(t, "g1", g.GalleryID)
	require.Equal(t, 1, g.UploadedImages)
	require.Empty(t, m.FailedFiles(dir))
}

func TestRecordImageUploadedProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := makeGalleryFolder(t, 4)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)

	progress := make(chan ProgressUpdated, 16)
	m.Signals().ProgressUpdated.Subscribe(func(e ProgressUpdated) { progress <- e })

	m.RecordImageUploaded(ctx, dir, "imga.png", 100)
	m.RecordImageUploaded(ctx, dir, "imga.png", 100) // duplicate is idempotent
	m.RecordImageUploaded(ctx, dir, "imgb.png", 100)

	g, _ := m.GetItem(dir)
	require.Equal(t, 2, g.UploadedImages)
	require.EqualValues(t, 200, g.UploadedBytes)
	require.Equal(t, 50, g.Progress)

	e := <-progress
	require.Equal(t, 1, e.Completed)
	require.Equal(t, 4, e.Total)
	require.Equal(t, "imga.png", e.CurrentImage)
}

func TestVersionStrictlyIncreases(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := makeGalleryFolder(t, 1)

	v0 := m.GetVersion()
	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	v1 := m.GetVersion()
	require.Greater(t, v1, v0)

	waitStatus(t, m, dir, gallery.StatusReady)
	m.UpdateItemStatus(ctx, dir, gallery.StatusPaused)
	require.Greater(t, m.GetVersion(), v1)
}

func TestUpdateCustomFieldValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, s := newTestManager(t)
	dir := makeGalleryFolder(t, 1)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)
	s.Flush()

	require.True(t, m.UpdateCustomField(ctx, dir, "custom3", "hello"))
	require.False(t, m.UpdateCustomField(ctx, dir, "nope", "x"))
	require.False(t, m.UpdateCustomField(ctx, "/missing", "custom1", "x"))

	back, err := s.GalleryByPath(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, "hello", back.Custom3)
}

func TestBatchUpdatesSingleTrailingWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, s := newTestManager(t)
	dir := makeGalleryFolder(t, 1)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)
	s.Flush()

	err := m.BatchUpdates(func() error {
		m.UpdateItemStatus(ctx, dir, gallery.StatusPaused)
		m.UpdateItemStatus(ctx, dir, gallery.StatusReady)
		m.UpdateItemStatus(ctx, dir, gallery.StatusPaused)

		// nothing persisted while the scope is open.
		s.Flush()

		back, err := s.GalleryByPath(ctx, dir)
		require.NoError(t, err)
		require.Equal(t, gallery.StatusReady, back.Status)

		return nil
	})
	require.NoError(t, err)

	s.Flush()

	back, err := s.GalleryByPath(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, gallery.StatusPaused, back.Status)
}

func TestGetAllItemsSortedByInsertionOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)

	d1 := makeGalleryFolder(t, 1)
	d2 := makeGalleryFolder(t, 1)

	require.True(t, m.AddItem(ctx, d1, "", "", ""))
	require.True(t, m.AddItem(ctx, d2, "", "", ""))

	all := m.GetAllItems()
	require.Len(t, all, 2)
	require.Equal(t, d1, all[0].Path)
	require.Equal(t, d2, all[1].Path)
	require.Less(t, all[0].InsertionOrder, all[1].InsertionOrder)
}

func TestQueueStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)

	d1 := makeGalleryFolder(t, 2)
	d2 := makeGalleryFolder(t, 3)

	require.True(t, m.AddItem(ctx, d1, "", "", ""))
	require.True(t, m.AddItem(ctx, d2, "", "", ""))
	waitStatus(t, m, d1, gallery.StatusReady)
	waitStatus(t, m, d2, gallery.StatusReady)

	stats := m.GetQueueStats()
	require.Equal(t, 2, stats[gallery.StatusReady].Count)
	require.Equal(t, 5, stats[gallery.StatusReady].Images)
	require.NotZero(t, stats[gallery.StatusReady].Bytes)
}

func TestAddMultipleItems(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)

	d1 := makeGalleryFolder(t, 1)
	d2 := makeGalleryFolder(t, 1)

	require.True(t, m.AddItem(ctx, d1, "", "", ""))

	res := m.AddMultipleItems(ctx, []string{d1, d2, "/does/not/exist"}, "tmpl")
	require.Equal(t, 1, res.Added)
	require.Equal(t, 1, res.Duplicates)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, []string{d2}, res.AddedPaths)
	require.Equal(t, []string{d1}, res.DuplicatePaths)
}

func TestCrashRecoveryOnLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "imxup.db")

	s, err := store.Open(ctx, dbPath)
	require.NoError(t, err)

	g := gallery.New("/g/crashed")
	g.Status = gallery.StatusUploading
	g.UploadedImages = 4
	g.TotalImages = 10
	g.ScanComplete = true
	require.NoError(t, s.BulkUpsert(ctx, []*gallery.Gallery{g}))
	require.NoError(t, s.Close())

	s2, err := store.Open(ctx, dbPath)
	require.NoError(t, err)

	defer func() { require.NoError(t, s2.Close()) }()

	m := NewManager(s2, ScanConfig{})
	require.NoError(t, m.Load(ctx))

	got, ok := m.GetItem("/g/crashed")
	require.True(t, ok)
	require.Equal(t, gallery.StatusReady, got.Status)
	require.Equal(t, 4, got.UploadedImages)
}

func TestRenumberInsertionOrders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)

	d1 := makeGalleryFolder(t, 1)
	d2 := makeGalleryFolder(t, 1)
	d3 := makeGalleryFolder(t, 1)

	for _, d := range []string{d1, d2, d3} {
		require.True(t, m.AddItem(ctx, d, "", "", ""))
	}

	require.True(t, m.RemoveItem(ctx, d2))

	m.RenumberInsertionOrders(ctx)

	all := m.GetAllItems()
	require.Len(t, all, 2)
	require.EqualValues(t, 0, all[0].InsertionOrder)
	require.EqualValues(t, 1, all[1].InsertionOrder)
	require.Equal(t, d1, all[0].Path)
	require.Equal(t, d3, all[1].Path)
}

func TestExecuteAutoArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := makeGalleryFolder(t, 1)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)

	m.UpdateItemStatus(ctx, dir, gallery.StatusCompleted)

	// finished just now: a 1h window keeps it out of the archive.
	require.Empty(t, m.ExecuteAutoArchive(ctx, time.Hour))

	archived := m.ExecuteAutoArchive(ctx, -time.Minute)
	require.Equal(t, []string{dir}, archived)

	g, _ := m.GetItem(dir)
	require.Equal(t, gallery.ArchiveTabName, g.TabName)
}

func TestMoveItemsToTab(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, s := newTestManager(t)

	d1 := makeGalleryFolder(t, 1)
	d2 := makeGalleryFolder(t, 1)

	require.True(t, m.AddItem(ctx, d1, "", "", ""))
	require.True(t, m.AddItem(ctx, d2, "", "", ""))
	waitStatus(t, m, d1, gallery.StatusReady)
	waitStatus(t, m, d2, gallery.StatusReady)

	require.NoError(t, s.InitializeDefaultTabs(ctx))

	_, err := s.CreateTab(ctx, "Work", "")
	require.NoError(t, err)

	require.NoError(t, m.MoveItemsToTab(ctx, []string{d1, "/no/such/path"}, "Work"))

	g, _ := m.GetItem(d1)
	require.Equal(t, "Work", g.TabName)

	g, _ = m.GetItem(d2)
	require.Equal(t, gallery.DefaultTabName, g.TabName)

	// persisted
	loaded, err := s.LoadAllItems(ctx)
	require.NoError(t, err)

	byPath := map[string]string{}
	for _, lg := range loaded {
		byPath[lg.Path] = lg.TabName
	}

	require.Equal(t, "Work", byPath[d1])
	require.Equal(t, gallery.DefaultTabName, byPath[d2])
}
