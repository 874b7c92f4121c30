package engine

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/imxup/imxup/artifacts"
	"github.com/imxup/imxup/bandwidth"
	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/hooks"
	"github.com/imxup/imxup/imx"
	"github.com/imxup/imxup/internal/clock"
	"github.com/imxup/imxup/queue"
	"github.com/imxup/imxup/store"
)

// fakeClient is an in-memory primary host.
type fakeClient struct {
	mu       sync.Mutex
	uploads  []string
	failWith map[string]error

	// onUpload observes each successful upload.
	onUpload func(name string)
}

func (c *fakeClient) setOnUpload(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onUpload = fn
}

func (c *fakeClient) CreateGallery(ctx context.Context, name string, cfg imx.GalleryConfig) (*imx.GalleryInfo, error) {
	return &imx.GalleryInfo{GalleryID: "g1", GalleryURL: "http://x/g/g1"}, nil
}

func (c *fakeClient) UploadImage(ctx context.Context, galleryID string, img imx.ImageFile, opts imx.UploadOptions, progress imx.ProgressFunc) (*imx.UploadResult, error) {
	c.mu.Lock()
	err := c.failWith[img.Name]
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(img.Size)
	}

	c.mu.Lock()
	c.uploads = append(c.uploads, img.Name)
	fn := c.onUpload
	c.mu.Unlock()

	if fn != nil {
		fn(img.Name)
	}

	return &imx.UploadResult{
		URL:      "http://x/i/" + img.Name,
		ThumbURL: "http://x/t/" + img.Name,
	}, nil
}

func (c *fakeClient) clearFailures() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failWith = nil
}

type fakeRenamer struct {
	mu       sync.Mutex
	requests []string
}

func (r *fakeRenamer) EnqueueRename(ctx context.Context, galleryID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, galleryID+":"+name)
}

type testEnv struct {
	queue      *queue.Manager
	engine     *Engine
	client     *fakeClient
	renamer    *fakeRenamer
	centralDir string
}

func newTestEnv(t *testing.T, client *fakeClient) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "imxup.db"))
	require.NoError(t, err)

	q := queue.NewManager(s, queue.ScanConfig{})
	require.NoError(t, q.Load(ctx))
	q.Start(ctx)

	bw := bandwidth.NewAggregator(ctx, nil)

	central := t.TempDir()
	writer := artifacts.NewWriter(central, t.TempDir())
	hx := hooks.NewExecutor(hooks.Config{}, t.TempDir())
	renamer := &fakeRenamer{}

	// MaxRetries 1 keeps failure tests free of backoff sleeps.
	eng := New(q, client, bw, writer, hx, renamer, Options{ParallelBatchSize: 2, MaxRetries: 1})

	go eng.Run(ctx)

	t.Cleanup(func() {
		cancel()
		eng.Close()
		bw.Close()
		q.Close()
		require.NoError(t, s.Close())
	})

	return &testEnv{queue: q, engine: eng, client: client, renamer: renamer, centralDir: central}
}

func makeImages(t *testing.T, n int) string {
	t.Helper()

	dir := t.TempDir()
	for i := 0; i < n; i++ {
		writeImage(t, filepath.Join(dir, fmt.Sprintf("img%02d.png", i)))
	}

	return dir
}

func writeImage(t *testing.T, path string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	require.NoError(t, f.Close())
}

func waitFor(t *testing.T, q *queue.Manager, path string, want gallery.Status) *gallery.Gallery {
	t.Helper()

	var got *gallery.Gallery

	require.Eventually(t, func() bool {
		g, ok := q.GetItem(path)
		if !ok {
			return false
		}

		got = g

		return g.Status == want
	}, 30*time.Second, 10*time.Millisecond, "waiting for %v", want)

	return got
}

func TestHappyPath(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClient{})
	ctx := context.Background()

	dir := makeImages(t, 3)
	require.True(t, env.queue.AddItem(ctx, dir, "Alpha", "", ""))
	waitFor(t, env.queue, dir, gallery.StatusReady)

	require.True(t, env.queue.StartItem(ctx, dir))

	g := waitFor(t, env.queue, dir, gallery.StatusCompleted)
	require.Equal(t, 100, g.Progress)
	require.Equal(t, 3, g.UploadedImages)
	require.Equal(t, "g1", g.GalleryID)
	require.Equal(t, "http://x/g/g1", g.GalleryURL)

	require.FileExists(t, filepath.Join(env.centralDir, "Alpha_g1.json"))
	require.FileExists(t, filepath.Join(env.centralDir, "Alpha_g1_bbcode.txt"))
	require.FileExists(t, filepath.Join(dir, ".uploaded", "Alpha_g1.json"))
	require.FileExists(t, filepath.Join(dir, ".uploaded", "Alpha_g1_bbcode.txt"))

	env.renamer.mu.Lock()
	defer env.renamer.mu.Unlock()
	require.Equal(t, []string{"g1:Alpha"}, env.renamer.requests)
}

func TestPartialFailureRetryResume(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		// a 404 is non-retriable, so no backoff delays.
		failWith: map[string]error{"img04.png": &imx.StatusError{StatusCode: 404, Body: "gone"}},
	}
	env := newTestEnv(t, client)
	ctx := context.Background()

	dir := makeImages(t, 10)
	require.True(t, env.queue.AddItem(ctx, dir, "", "", ""))
	waitFor(t, env.queue, dir, gallery.StatusReady)

	require.True(t, env.queue.StartItem(ctx, dir))

	g := waitFor(t, env.queue, dir, gallery.StatusUploadFailed)
	require.Equal(t, 9, g.UploadedImages)
	require.Equal(t, []string{"img04.png"}, env.queue.FailedFiles(dir))

	client.clearFailures()
	env.queue.RetryFailedUpload(ctx, dir)

	g, _ = env.queue.GetItem(dir)
	require.Equal(t, gallery.StatusIncomplete, g.Status)
	require.Equal(t, "g1", g.GalleryID)

	require.True(t, env.queue.StartItem(ctx, dir))

	g = waitFor(t, env.queue, dir, gallery.StatusCompleted)
	require.Equal(t, 10, g.UploadedImages)
}

func TestSoftStopResume(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	env := newTestEnv(t, client)
	ctx := context.Background()

	var count int
	var mu sync.Mutex

	client.setOnUpload(func(string) {
		mu.Lock()
		defer mu.Unlock()

		count++
		if count == 5 {
			env.engine.RequestSoftStop()
		}
	})

	dir := makeImages(t, 20)
	require.True(t, env.queue.AddItem(ctx, dir, "", "", ""))
	waitFor(t, env.queue, dir, gallery.StatusReady)

	require.True(t, env.queue.StartItem(ctx, dir))

	g := waitFor(t, env.queue, dir, gallery.StatusIncomplete)
	require.GreaterOrEqual(t, g.UploadedImages, 5)
	require.Less(t, g.UploadedImages, 20)

	client.setOnUpload(nil)

	env.engine.ClearSoftStop()
	require.True(t, env.queue.StartItem(ctx, dir))

	g = waitFor(t, env.queue, dir, gallery.StatusCompleted)
	require.Equal(t, 20, g.UploadedImages)
}

func TestSoftStopBeforeStartParksIncomplete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClient{})
	ctx := context.Background()

	dir := makeImages(t, 3)
	require.True(t, env.queue.AddItem(ctx, dir, "", "", ""))
	waitFor(t, env.queue, dir, gallery.StatusReady)

	env.engine.RequestSoftStop()
	require.True(t, env.queue.StartItem(ctx, dir))

	g := waitFor(t, env.queue, dir, gallery.StatusIncomplete)
	require.Zero(t, g.UploadedImages)

	env.engine.ClearSoftStop()
	require.True(t, env.queue.StartItem(ctx, dir))

	g = waitFor(t, env.queue, dir, gallery.StatusCompleted)
	require.Equal(t, 3, g.UploadedImages)
}

func TestQueueStatsEmission(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClient{})
	ctx := context.Background()

	var mu sync.Mutex

	var got []QueueStatsUpdated

	env.engine.Events().QueueStatsUpdated.Subscribe(func(ev QueueStatsUpdated) {
		mu.Lock()
		defer mu.Unlock()

		got = append(got, ev)
	})

	dir := makeImages(t, 2)
	require.True(t, env.queue.AddItem(ctx, dir, "", "", ""))
	waitFor(t, env.queue, dir, gallery.StatusReady)
	require.True(t, env.queue.StartItem(ctx, dir))
	waitFor(t, env.queue, dir, gallery.StatusCompleted)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(got) == 1
	}, 15*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, 1, got[0].Stats[gallery.StatusCompleted].Count)
	mu.Unlock()

	// within a second of the last emission only forced calls get through
	env.engine.statsMu.Lock()
	env.engine.lastStatsAt = clock.Now()
	env.engine.statsMu.Unlock()

	env.engine.publishQueueStats(ctx, false)
	env.engine.publishQueueStats(ctx, true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(got) == 2
	}, 15*time.Second, 10*time.Millisecond)
}

func TestCreateGalleryOnlyOnce(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		failWith: map[string]error{"img01.png": &imx.StatusError{StatusCode: 400, Body: "bad"}},
	}
	env := newTestEnv(t, client)
	ctx := context.Background()

	dir := makeImages(t, 2)
	require.True(t, env.queue.AddItem(ctx, dir, "", "", ""))
	waitFor(t, env.queue, dir, gallery.StatusReady)
	require.True(t, env.queue.StartItem(ctx, dir))
	waitFor(t, env.queue, dir, gallery.StatusUploadFailed)

	client.clearFailures()
	env.queue.RetryFailedUpload(ctx, dir)
	require.True(t, env.queue.StartItem(ctx, dir))
	waitFor(t, env.queue, dir, gallery.StatusCompleted)

	env.renamer.mu.Lock()
	defer env.renamer.mu.Unlock()
	require.Len(t, env.renamer.requests, 1, "an existing gallery id is reused on resume")
}

func TestAllUploadsFailed(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		failWith: map[string]error{
			"img00.png": &imx.StatusError{StatusCode: 400, Body: "bad"},
			"img01.png": &imx.StatusError{StatusCode: 400, Body: "bad"},
		},
	}
	env := newTestEnv(t, client)
	ctx := context.Background()

	dir := makeImages(t, 2)
	require.True(t, env.queue.AddItem(ctx, dir, "", "", ""))
	waitFor(t, env.queue, dir, gallery.StatusReady)
	require.True(t, env.queue.StartItem(ctx, dir))

	g := waitFor(t, env.queue, dir, gallery.StatusUploadFailed)
	require.Zero(t, g.UploadedImages)
	require.NotEmpty(t, g.ErrorMessage)
	require.Len(t, env.queue.FailedFiles(dir), 2)
}

func TestTotalBytesAccounting(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClient{})
	ctx := context.Background()

	dir := makeImages(t, 3)
	require.True(t, env.queue.AddItem(ctx, dir, "", "", ""))
	g := waitFor(t, env.queue, dir, gallery.StatusReady)
	require.True(t, env.queue.StartItem(ctx, dir))
	waitFor(t, env.queue, dir, gallery.StatusCompleted)

	require.EqualValues(t, g.TotalSize, env.engine.TotalBytes())
	require.Positive(t, env.engine.TotalBytes())
}

func TestErrorPropagationStopsNothing(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		failWith: map[string]error{"img00.png": errors.New("network down")},
	}
	env := newTestEnv(t, client)
	ctx := context.Background()

	bad := makeImages(t, 1)

	// the good gallery uses a different filename so the programmed
	// failure cannot hit it.
	good := t.TempDir()
	writeImage(t, filepath.Join(good, "fine.png"))

	require.True(t, env.queue.AddItem(ctx, bad, "", "", ""))
	require.True(t, env.queue.AddItem(ctx, good, "", "", ""))
	waitFor(t, env.queue, bad, gallery.StatusReady)
	waitFor(t, env.queue, good, gallery.StatusReady)

	require.True(t, env.queue.StartItem(ctx, bad))
	require.True(t, env.queue.StartItem(ctx, good))

	waitFor(t, env.queue, bad, gallery.StatusUploadFailed)
	waitFor(t, env.queue, good, gallery.StatusCompleted)
}
