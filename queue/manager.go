// Package queue holds the authoritative in-memory state of every gallery:
// status transitions, the FIFO run queue, the folder scanner and the
// batched persistence scope. All durable writes go through the store.
package queue

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/clock"
	"github.com/imxup/imxup/logging"
	"github.com/imxup/imxup/store"
)

var log = logging.Module("queue")

// Manager owns the items map and the run queue. All in-memory mutations are
// guarded by a single mutex; nothing performs blocking I/O while holding it
// (persistence goes through the store's async writer).
type Manager struct {
	store   *store.Store
	scanCfg ScanConfig
	signals *Signals

	mu            sync.Mutex
	items         map[string]*gallery.Gallery
	runQueue      []string
	queuedSet     map[string]struct{}
	pendingUpload string
	failedFiles   map[string][]string
	nextOrder     int64
	batchDepth    int
	batchDirty    map[string]struct{}

	version atomic.Int64

	scanMu      sync.Mutex
	scanCond    *sync.Cond
	scanPending []string
	scanClosed  bool
	scanDone    chan struct{}
}

// NewManager builds a manager bound to the given store. Call Load to restore
// persisted items and Start to launch the scanner.
func NewManager(s *store.Store, scanCfg ScanConfig) *Manager {
	m := &Manager{
		store:       s,
		scanCfg:     scanCfg.withDefaults(),
		signals:     newSignals(),
		items:       map[string]*gallery.Gallery{},
		queuedSet:   map[string]struct{}{},
		failedFiles: map[string][]string{},
		batchDirty:  map[string]struct{}{},
		scanDone:    make(chan struct{}),
	}
	m.scanCond = sync.NewCond(&m.scanMu)

	return m
}

// Signals exposes the manager's observable events.
func (m *Manager) Signals() *Signals { return m.signals }

// Load restores persisted items into memory. Records that were mid-upload
// during a dirty shutdown come back as ready (store-level normalization).
func (m *Manager) Load(ctx context.Context) error {
	items, err := m.store.LoadAllItems(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range items {
		m.items[g.Path] = g

		if g.InsertionOrder >= m.nextOrder {
			m.nextOrder = g.InsertionOrder + 1
		}
	}

	m.version.Add(1)

	log(ctx).Infof("loaded %v galleries", len(items))

	return nil
}

// Start launches the background scanner.
func (m *Manager) Start(ctx context.Context) {
	go m.runScanner(ctx)
}

// Close stops the scanner and the event buses and flushes pending writes.
func (m *Manager) Close() {
	m.scanMu.Lock()
	m.scanClosed = true
	m.scanCond.Signal()
	m.scanMu.Unlock()

	<-m.scanDone

	m.store.Flush()
	m.signals.close()
}

// AddItem creates a new gallery in the validating state and enqueues a scan.
// Returns false if the path is already present.
func (m *Manager) AddItem(ctx context.Context, path, name, template, tab string) bool {
	m.mu.Lock()

	if _, exists := m.items[path]; exists {
		m.mu.Unlock()
		return false
	}

	g := gallery.New(path)
	if name != "" {
		g.Name = name
	}

	if template != "" {
		g.TemplateName = template
	}

	if tab != "" {
		g.TabName = tab
	}

	g.AddedTime = clock.Now().Unix()
	g.InsertionOrder = m.nextOrder
	m.nextOrder++

	m.items[path] = g
	m.version.Add(1)
	m.markDirtyLocked(path)
	m.mu.Unlock()

	m.signals.GalleryAdded.Publish(GalleryAdded{Path: path})
	m.enqueueScan(path)

	return true
}

// AddResult summarizes a batched add.
type AddResult struct {
	Added          int
	Duplicates     int
	Failed         int
	AddedPaths     []string
	DuplicatePaths []string
	FailedPaths    []string
}

// AddMultipleItems adds many folders at once. Per-item errors are collected,
// never raised; the whole batch produces a single trailing persistent write.
func (m *Manager) AddMultipleItems(ctx context.Context, paths []string, template string) AddResult {
	var res AddResult

	//nolint:errcheck
	m.BatchUpdates(func() error {
		for _, p := range paths {
			fi, err := os.Stat(p)
			if err != nil || !fi.IsDir() {
				res.Failed++
				res.FailedPaths = append(res.FailedPaths, p)

				continue
			}

			if m.AddItem(ctx, p, "", template, "") {
				res.Added++
				res.AddedPaths = append(res.AddedPaths, p)
			} else {
				res.Duplicates++
				res.DuplicatePaths = append(res.DuplicatePaths, p)
			}
		}

		return nil
	})

	return res
}

// RemoveItem deletes a gallery from memory and the store. Returns false if
// the item is missing or currently uploading.
func (m *Manager) RemoveItem(ctx context.Context, path string) bool {
	m.mu.Lock()

	g, ok := m.items[path]
	if !ok || g.Status == gallery.StatusUploading {
		m.mu.Unlock()
		return false
	}

	delete(m.items, path)
	delete(m.failedFiles, path)
	m.removeFromRunQueueLocked(path)
	m.version.Add(1)
	m.mu.Unlock()

	if err := m.store.DeleteByPaths(ctx, []string{path}); err != nil {
		log(ctx).Warnf("unable to delete %v from store: %v", path, err)
	}

	m.signals.GalleryRemoved.Publish(GalleryRemoved{Path: path})

	return true
}

// UpdateItemStatus performs an atomic status transition and emits
// StatusChanged. Completed items get progress 100; terminal states record
// the finish time. No-op if the path is unknown.
func (m *Manager) UpdateItemStatus(ctx context.Context, path string, newStatus gallery.Status) {
	m.mu.Lock()

	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return
	}

	old := g.Status
	g.Status = newStatus

	if newStatus == gallery.StatusCompleted {
		g.Progress = 100
	}

	if newStatus.IsTerminalForDisplay() {
		g.FinishedTime = clock.Now().Unix()
	}

	m.version.Add(1)
	m.markDirtyLocked(path)
	m.mu.Unlock()

	m.signals.StatusChanged.Publish(StatusChanged{Path: path, Old: old, New: newStatus})
}

// StartItem moves a startable gallery to the run queue. Each path appears in
// the run queue at most once.
func (m *Manager) StartItem(ctx context.Context, path string) bool {
	m.mu.Lock()

	g, ok := m.items[path]
	if !ok || !g.Status.CanStart() {
		m.mu.Unlock()
		return false
	}

	old := g.Status
	g.Status = gallery.StatusQueued

	if _, queued := m.queuedSet[path]; !queued {
		m.runQueue = append(m.runQueue, path)
		m.queuedSet[path] = struct{}{}
	}

	m.version.Add(1)
	m.markDirtyLocked(path)
	m.mu.Unlock()

	m.signals.StatusChanged.Publish(StatusChanged{Path: path, Old: old, New: gallery.StatusQueued})

	return true
}

// GetNextItem pops the FIFO run queue and marks the popped item as the
// pending upload target. Returns nil when the queue is empty.
func (m *Manager) GetNextItem() *gallery.Gallery {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.runQueue) > 0 {
		path := m.runQueue[0]
		m.runQueue = m.runQueue[1:]
		delete(m.queuedSet, path)

		if g, ok := m.items[path]; ok {
			m.pendingUpload = path
			return g.Clone()
		}
	}

	return nil
}

// PendingUpload returns the path most recently dequeued for upload.
func (m *Manager) PendingUpload() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pendingUpload
}

// RetryFailedUpload resets a failed gallery: a full retry (ready) when
// nothing was uploaded or no gallery exists on the host yet, otherwise a
// resume (incomplete) preserving the gallery id and uploaded files.
func (m *Manager) RetryFailedUpload(ctx context.Context, path string) {
	m.mu.Lock()

	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return
	}

	old := g.Status

	var target gallery.Status

	if g.UploadedImages == 0 || g.GalleryID == "" {
		target = gallery.StatusReady
		g.UploadedImages = 0
		g.UploadedFiles = gallery.StringSet{}
		g.Progress = 0
	} else {
		target = gallery.StatusIncomplete
	}

	g.Status = target
	g.ErrorMessage = ""
	delete(m.failedFiles, path)
	m.version.Add(1)
	m.markDirtyLocked(path)
	m.mu.Unlock()

	m.signals.StatusChanged.Publish(StatusChanged{Path: path, Old: old, New: target})
}

// RescanGalleryAdditive re-enqueues a scan that updates counts without
// losing the uploaded-files record.
func (m *Manager) RescanGalleryAdditive(ctx context.Context, path string) {
	m.enqueueScan(path)
}

// ResetGalleryComplete wipes upload results and enqueues a fresh scan.
func (m *Manager) ResetGalleryComplete(ctx context.Context, path string) {
	m.mu.Lock()

	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return
	}

	old := g.Status
	g.GalleryID = ""
	g.GalleryURL = ""
	g.UploadedImages = 0
	g.UploadedFiles = gallery.StringSet{}
	g.Progress = 0
	g.ScanComplete = false
	g.Status = gallery.StatusScanning
	m.version.Add(1)
	m.markDirtyLocked(path)
	m.mu.Unlock()

	m.signals.StatusChanged.Publish(StatusChanged{Path: path, Old: old, New: gallery.StatusScanning})
	m.enqueueScan(path)
}

// MarkUploadFailed records a failed upload with a diagnostic message and an
// optional per-image failure list.
func (m *Manager) MarkUploadFailed(ctx context.Context, path, msg string, failedFiles []string) {
	m.mu.Lock()

	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return
	}

	old := g.Status
	g.Status = gallery.StatusUploadFailed
	g.ErrorMessage = msg
	g.FinishedTime = clock.Now().Unix()

	if len(failedFiles) > 0 {
		m.failedFiles[path] = append([]string(nil), failedFiles...)
	}

	m.version.Add(1)
	m.markDirtyLocked(path)
	m.mu.Unlock()

	m.signals.StatusChanged.Publish(StatusChanged{Path: path, Old: old, New: gallery.StatusUploadFailed})
}

// FailedFiles returns the per-image failure list from the last failed upload.
func (m *Manager) FailedFiles(path string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.failedFiles[path]...)
}

// MarkScanFailed records a failed scan with a diagnostic message.
func (m *Manager) MarkScanFailed(ctx context.Context, path, msg string) {
	m.mu.Lock()

	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return
	}

	old := g.Status
	g.Status = gallery.StatusScanFailed
	g.ErrorMessage = msg
	g.FinishedTime = clock.Now().Unix()
	m.version.Add(1)
	m.markDirtyLocked(path)
	m.mu.Unlock()

	m.signals.StatusChanged.Publish(StatusChanged{Path: path, Old: old, New: gallery.StatusScanFailed})
}

// UpdateCustomField validates and writes one custom/ext field. Unlike other
// mutations this persists immediately (synchronously).
func (m *Manager) UpdateCustomField(ctx context.Context, path, field, value string) bool {
	if !gallery.ValidCustomField(field) {
		return false
	}

	m.mu.Lock()

	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return false
	}

	g.SetCustomField(field, value)
	m.version.Add(1)
	m.mu.Unlock()

	if err := m.store.UpdateItemCustomField(ctx, path, field, value); err != nil {
		log(ctx).Warnf("unable to persist %v for %v: %v", field, path, err)
		return false
	}

	return true
}

// MoveItemsToTab reassigns the given galleries to tab, in memory and in the
// store. Unknown paths are skipped.
func (m *Manager) MoveItemsToTab(ctx context.Context, paths []string, tab string) error {
	m.mu.Lock()

	var known []string

	for _, p := range paths {
		if g, ok := m.items[p]; ok {
			g.TabName = tab
			known = append(known, p)
		}
	}

	if len(known) > 0 {
		m.version.Add(1)
	}

	m.mu.Unlock()

	if len(known) == 0 {
		return nil
	}

	// drain queued snapshots first so the update below is not overwritten
	m.store.Flush()

	return m.store.MoveGalleriesToTab(ctx, known, tab)
}

// BatchUpdates runs fn inside a batching scope: all mutations inside produce
// a single trailing persistent write spanning every touched path. Scopes
// nest; only the outermost exit flushes, and only if something was dirtied.
func (m *Manager) BatchUpdates(fn func() error) error {
	m.mu.Lock()
	m.batchDepth++
	m.mu.Unlock()

	err := fn()

	m.mu.Lock()
	m.batchDepth--

	var flush []*gallery.Gallery

	if m.batchDepth == 0 && len(m.batchDirty) > 0 {
		for p := range m.batchDirty {
			if g, ok := m.items[p]; ok {
				flush = append(flush, g.Clone())
			}
		}

		m.batchDirty = map[string]struct{}{}
	}
	m.mu.Unlock()

	if len(flush) > 0 {
		m.store.BulkUpsertAsync(flush)
	}

	return err
}

// GetVersion returns a counter that strictly increases on every mutation.
// The UI uses it to debounce refreshes.
func (m *Manager) GetVersion() int64 {
	return m.version.Load()
}

// GetItem returns a snapshot of one gallery.
func (m *Manager) GetItem(path string) (*gallery.Gallery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.items[path]
	if !ok {
		return nil, false
	}

	return g.Clone(), true
}

// GetAllItems returns snapshots of all galleries sorted by insertion order
// then db id.
func (m *Manager) GetAllItems() []*gallery.Gallery {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*gallery.Gallery, 0, len(m.items))
	for _, g := range m.items {
		out = append(out, g.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].InsertionOrder != out[j].InsertionOrder {
			return out[i].InsertionOrder < out[j].InsertionOrder
		}

		return out[i].DBID < out[j].DBID
	})

	return out
}

// markDirtyLocked schedules a persistent write for path: deferred to the
// scope exit inside BatchUpdates, asynchronous otherwise. Callers hold m.mu.
func (m *Manager) markDirtyLocked(path string) {
	if m.batchDepth > 0 {
		m.batchDirty[path] = struct{}{}
		return
	}

	if g, ok := m.items[path]; ok {
		m.store.BulkUpsertAsync([]*gallery.Gallery{g})
	}
}

func (m *Manager) removeFromRunQueueLocked(path string) {
	if _, ok := m.queuedSet[path]; !ok {
		return
	}

	delete(m.queuedSet, path)

	for i, p := range m.runQueue {
		if p == path {
			m.runQueue = append(m.runQueue[:i], m.runQueue[i+1:]...)
			break
		}
	}
}

// RecordImageUploaded atomically records one successfully uploaded image:
// membership in the uploaded-files set, counters, progress, and the
// ProgressUpdated signal.
func (m *Manager) RecordImageUploaded(ctx context.Context, path, filename string, size int64) {
	m.mu.Lock()

	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return
	}

	if !g.UploadedFiles.Contains(filename) {
		g.UploadedFiles.Add(filename)
		g.UploadedImages = len(g.UploadedFiles)
		g.UploadedBytes += size
	}

	if g.TotalImages > 0 {
		g.Progress = 100 * g.UploadedImages / g.TotalImages
	}

	completed, total, percent := g.UploadedImages, g.TotalImages, float64(g.Progress)
	m.version.Add(1)
	m.markDirtyLocked(path)
	m.mu.Unlock()

	m.signals.ProgressUpdated.Publish(ProgressUpdated{
		Path:         path,
		Completed:    completed,
		Total:        total,
		Percent:      percent,
		CurrentImage: filename,
	})
}

// SetGalleryCreated records the host-assigned gallery id and URL.
func (m *Manager) SetGalleryCreated(ctx context.Context, path, galleryID, galleryURL string) {
	m.mutate(path, func(g *gallery.Gallery) {
		g.GalleryID = galleryID
		g.GalleryURL = galleryURL
	})
}

// SetStartTime stamps the upload start.
func (m *Manager) SetStartTime(ctx context.Context, path string) {
	m.mutate(path, func(g *gallery.Gallery) {
		g.StartTime = clock.Now().Unix()
	})
}

// SetCurrentRate records the live per-gallery transfer rate.
func (m *Manager) SetCurrentRate(ctx context.Context, path string, kibps float64) {
	m.mutate(path, func(g *gallery.Gallery) {
		g.CurrentKiBps = kibps
	})
}

// SetFinalRate records the closing transfer rate of a finished upload.
func (m *Manager) SetFinalRate(ctx context.Context, path string, kibps float64) {
	m.mutate(path, func(g *gallery.Gallery) {
		g.FinalKiBps = kibps
		g.CurrentKiBps = 0
	})
}

// SetIMXStatus records the latest online/total result from a status check.
func (m *Manager) SetIMXStatus(ctx context.Context, path string, online, total int) {
	m.mutate(path, func(g *gallery.Gallery) {
		g.IMXStatus = fmt.Sprintf("%d/%d", online, total)
		g.IMXStatusChecked = clock.Now().Unix()
	})
}

func (m *Manager) mutate(path string, fn func(*gallery.Gallery)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.items[path]
	if !ok {
		return
	}

	fn(g)
	m.version.Add(1)
	m.markDirtyLocked(path)
}
