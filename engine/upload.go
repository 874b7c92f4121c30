package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imxup/imxup/artifacts"
	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/hooks"
	"github.com/imxup/imxup/imx"
	"github.com/imxup/imxup/internal/clock"
	"github.com/imxup/imxup/internal/retry"
	"github.com/imxup/imxup/queue"
)

// uploadGallery drives one gallery to a terminal state. Failures inside are
// reported through the queue manager, never raised.
func (e *Engine) uploadGallery(ctx context.Context, path string) {
	g, ok := e.queue.GetItem(path)
	if !ok {
		return
	}

	e.queue.UpdateItemStatus(ctx, path, gallery.StatusUploading)
	e.queue.SetStartTime(ctx, path)
	e.events.GalleryStarted.Publish(GalleryStarted{Path: path, TotalImages: g.TotalImages})

	log(ctx).Infof("uploading %v (%v images, %v already done)", g.Name, g.TotalImages, g.UploadedImages)

	go e.runHook(ctx, hooks.EventStarted, path, hooks.ArtifactPaths{})

	if e.softStop.Load() {
		e.finishStopped(ctx, path)
		return
	}

	if g.GalleryID == "" {
		info, err := e.client.CreateGallery(ctx, g.Name, imx.GalleryConfig{
			ThumbnailSize:   e.opt.ThumbnailSize,
			ThumbnailFormat: e.opt.ThumbnailFormat,
			AvgWidth:        g.AvgWidth,
			AvgHeight:       g.AvgHeight,
		})
		if err != nil {
			log(ctx).Errorf("unable to create gallery for %v: %v", g.Name, err)
			e.queue.MarkUploadFailed(ctx, path, err.Error(), nil)

			return
		}

		e.queue.SetGalleryCreated(ctx, path, info.GalleryID, info.GalleryURL)

		if e.renamer != nil {
			e.renamer.EnqueueRename(ctx, info.GalleryID, g.Name)
		}

		g.GalleryID = info.GalleryID
		g.GalleryURL = info.GalleryURL
	}

	remaining, err := remainingImages(path, g.UploadedFiles)
	if err != nil {
		e.queue.MarkUploadFailed(ctx, path, err.Error(), nil)
		return
	}

	res := e.uploadImages(ctx, g, remaining)

	e.finish(ctx, path, res)
}

// uploadOutcome aggregates one upload session.
type uploadOutcome struct {
	mu        sync.Mutex
	succeeded []artifacts.ImageEntry
	failed    []string
	fatal     string

	bytes   atomic.Int64
	stopped bool
}

func (r *uploadOutcome) recordSuccess(entry artifacts.ImageEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.succeeded = append(r.succeeded, entry)
}

func (r *uploadOutcome) recordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failed = append(r.failed, name)

	if r.fatal == "" && !imx.IsRetriable(err) {
		r.fatal = err.Error()
	}
}

// uploadImages runs the bounded worker pool over the images not yet
// uploaded. The soft-stop flag is observed at image boundaries only.
func (e *Engine) uploadImages(ctx context.Context, g *gallery.Gallery, remaining []imx.ImageFile) *uploadOutcome {
	res := &uploadOutcome{}

	samplerDone := make(chan struct{})
	go e.runSampler(ctx, g.Path, &res.bytes, samplerDone)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.opt.ParallelBatchSize)

	for _, img := range remaining {
		if e.softStop.Load() {
			res.stopped = true
			break
		}

		img := img

		eg.Go(func() error {
			e.uploadOne(ctx, g, img, res)
			return nil
		})
	}

	eg.Wait() //nolint:errcheck
	close(samplerDone)

	return res
}

// uploadOne uploads a single image with retries and records the outcome.
func (e *Engine) uploadOne(ctx context.Context, g *gallery.Gallery, img imx.ImageFile, res *uploadOutcome) {
	var result *imx.UploadResult

	err := retry.WithExponentialBackoff(ctx, "uploading "+img.Name, e.opt.MaxRetries, func() error {
		var uerr error

		result, uerr = e.client.UploadImage(ctx, g.GalleryID, img, imx.UploadOptions{
			ThumbnailSize:   e.opt.ThumbnailSize,
			ThumbnailFormat: e.opt.ThumbnailFormat,
		}, func(delta int64) {
			res.bytes.Add(delta)
			e.totalBytes.Add(delta)
		})

		return uerr
	}, imx.IsRetriable)
	if err != nil {
		log(ctx).Warnf("image %v failed: %v", img.Name, err)
		res.recordFailure(img.Name, err)

		return
	}

	e.queue.RecordImageUploaded(ctx, g.Path, img.Name, img.Size)

	res.recordSuccess(artifacts.ImageEntry{
		OriginalFilename: img.Name,
		SizeBytes:        img.Size,
		Width:            g.AvgWidth,
		Height:           g.AvgHeight,
		ImageURL:         result.URL,
		ThumbnailURL:     result.ThumbURL,
		BBCode:           artifacts.BBCodeFor(result.URL, result.ThumbURL),
	})
}

// finish applies the terminal-state decision matrix and emits artifacts,
// hooks and events.
func (e *Engine) finish(ctx context.Context, path string, res *uploadOutcome) {
	defer e.bw.RemoveSource(bandwidthSource)

	g, ok := e.queue.GetItem(path)
	if !ok {
		return
	}

	e.setFinalRate(ctx, path, g)

	succeeded := len(res.succeeded)
	failed := len(res.failed)

	switch {
	case failed == 0 && g.UploadedImages >= g.TotalImages && g.TotalImages > 0:
		artifactPaths := e.writeArtifacts(ctx, path, res.succeeded)
		e.queue.UpdateItemStatus(ctx, path, gallery.StatusCompleted)

		log(ctx).Infof("completed %v (%v images)", g.Name, g.UploadedImages)

		e.events.GalleryCompleted.Publish(GalleryCompleted{
			Path: path, Succeeded: succeeded, Artifacts: artifactPaths,
		})

	case failed == 0 && res.stopped:
		e.queue.UpdateItemStatus(ctx, path, gallery.StatusIncomplete)
		log(ctx).Infof("soft-stopped %v at %v/%v images", g.Name, g.UploadedImages, g.TotalImages)
		e.events.GalleryCompleted.Publish(GalleryCompleted{Path: path, Succeeded: succeeded})

	case succeeded > 0 || g.UploadedImages > 0:
		msg := partialFailureMessage(res)
		e.queue.MarkUploadFailed(ctx, path, msg, res.failed)
		log(ctx).Warnf("upload of %v partially failed: %v", g.Name, msg)
		e.events.GalleryCompleted.Publish(GalleryCompleted{Path: path, Succeeded: succeeded, Failed: failed})

	default:
		msg := "all image uploads failed"
		if res.fatal != "" {
			msg = res.fatal
		}

		e.queue.MarkUploadFailed(ctx, path, msg, res.failed)
		log(ctx).Errorf("upload of %v failed: %v", g.Name, msg)
		e.events.GalleryCompleted.Publish(GalleryCompleted{Path: path, Failed: failed})
	}

	e.publishQueueStats(ctx, false)
}

// finishStopped handles a soft-stop observed before any work started. The
// gallery parks as incomplete so a later start resumes it.
func (e *Engine) finishStopped(ctx context.Context, path string) {
	g, ok := e.queue.GetItem(path)
	if !ok {
		return
	}

	e.queue.UpdateItemStatus(ctx, path, gallery.StatusIncomplete)
	log(ctx).Infof("soft-stop before upload of %v at %v/%v images", g.Name, g.UploadedImages, g.TotalImages)
	e.publishQueueStats(ctx, true)
}

// writeArtifacts renders the manifest and BBCode files and fires the
// completed hook with their paths.
func (e *Engine) writeArtifacts(ctx context.Context, path string, entries []artifacts.ImageEntry) []string {
	g, ok := e.queue.GetItem(path)
	if !ok {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].OriginalFilename < entries[j].OriginalFilename
	})

	written := e.writer.WriteAll(ctx, g, entries)

	ap := hooks.ArtifactPaths{}

	for _, p := range written {
		switch {
		case strings.HasSuffix(p, "_bbcode.txt"):
			ap.BBCode = p
		case strings.HasSuffix(p, ".json"):
			ap.JSON = p
		}
	}

	go e.runHook(ctx, hooks.EventCompleted, path, ap)

	return written
}

// runHook executes one lifecycle hook and merges any returned ext fields.
func (e *Engine) runHook(ctx context.Context, event hooks.Event, path string, ap hooks.ArtifactPaths) {
	if e.hooks == nil {
		return
	}

	g, ok := e.queue.GetItem(path)
	if !ok {
		return
	}

	for field, value := range e.hooks.Run(ctx, event, g, ap) {
		e.queue.UpdateCustomField(ctx, path, field, value)
	}
}

// runSampler feeds instantaneous rates to the bandwidth aggregator and the
// queue every 200 ms until done is closed.
func (e *Engine) runSampler(ctx context.Context, path string, bytes *atomic.Int64, done chan struct{}) {
	ticker := time.NewTicker(samplerInterval)
	defer ticker.Stop()

	var last int64

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			cur := bytes.Load()
			delta := cur - last
			last = cur

			kbps := float64(delta) / 1024 / samplerInterval.Seconds()

			e.bw.RecordSample(bandwidthSource, kbps)
			e.queue.SetCurrentRate(ctx, path, kbps)
		}
	}
}

func (e *Engine) setFinalRate(ctx context.Context, path string, g *gallery.Gallery) {
	elapsed := clock.Now().Unix() - g.StartTime
	if elapsed <= 0 {
		elapsed = 1
	}

	kibps := float64(g.UploadedBytes) / 1024 / float64(elapsed)
	e.queue.SetFinalRate(ctx, path, kibps)
}

// publishQueueStats emits a queue snapshot to subscribers, throttled to once
// per second unless forced.
func (e *Engine) publishQueueStats(ctx context.Context, force bool) {
	e.statsMu.Lock()

	now := clock.Now()
	if !force && now.Sub(e.lastStatsAt) < time.Second {
		e.statsMu.Unlock()
		return
	}

	e.lastStatsAt = now
	e.statsMu.Unlock()

	stats := e.queue.GetQueueStats()
	e.events.QueueStatsUpdated.Publish(QueueStatsUpdated{Stats: stats})

	var queued, completed int

	for status, agg := range stats {
		switch status {
		case gallery.StatusQueued:
			queued = agg.Count
		case gallery.StatusCompleted:
			completed = agg.Count
		}
	}

	log(ctx).Debugf("queue: %v waiting, %v completed", queued, completed)
}

func partialFailureMessage(res *uploadOutcome) string {
	if res.fatal != "" {
		return res.fatal
	}

	return "failed to upload " + strings.Join(res.failed, ", ")
}

// remainingImages lists the gallery's images that are not yet uploaded,
// sorted by name.
func remainingImages(dir string, uploaded gallery.StringSet) ([]imx.ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	var out []imx.ImageFile

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !queue.IsImageFile(entry.Name()) || uploaded.Contains(entry.Name()) {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}

		out = append(out, imx.ImageFile{
			Path: filepath.Join(dir, entry.Name()),
			Name: entry.Name(),
			Size: fi.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}
