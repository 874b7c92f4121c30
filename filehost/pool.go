package filehost

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/bandwidth"
	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/zipstore"
	"github.com/imxup/imxup/store"
)

// progressInterval paces UploadProgress events and bandwidth samples.
const progressInterval = 200 * time.Millisecond

// Pool runs one worker per enabled host. Workers sleep until kicked and pull
// their pending records from the store FIFO.
type Pool struct {
	store   *store.Store
	bw      *bandwidth.Aggregator
	tempDir string
	events  *Events

	workers map[string]*worker

	closeOnce sync.Once
}

// NewPool builds a pool over the given hosts. Call Start to launch workers.
func NewPool(s *store.Store, bw *bandwidth.Aggregator, tempDir string, hosts []Host) *Pool {
	p := &Pool{
		store:   s,
		bw:      bw,
		tempDir: tempDir,
		events:  newEvents(),
		workers: map[string]*worker{},
	}

	for _, h := range hosts {
		w := &worker{host: h, pool: p, done: make(chan struct{})}
		w.cond = sync.NewCond(&w.mu)
		p.workers[h.Name()] = w
	}

	return p
}

// Events exposes the pool's notifications.
func (p *Pool) Events() *Events { return p.events }

// Hosts lists the configured host names.
func (p *Pool) Hosts() []string {
	out := make([]string, 0, len(p.workers))
	for name := range p.workers {
		out = append(out, name)
	}

	return out
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.run(ctx)
	}
}

// Close stops all workers after their current job and closes the event
// buses.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		for _, w := range p.workers {
			w.stop()
		}

		for _, w := range p.workers {
			<-w.done
		}

		p.events.close()
	})
}

// EnqueueUpload marks the gallery at path pending for the given host and
// wakes its worker.
func (p *Pool) EnqueueUpload(ctx context.Context, path, hostName string) error {
	w, ok := p.workers[hostName]
	if !ok {
		return errors.Errorf("unknown host %q", hostName)
	}

	g, err := p.store.GalleryByPath(ctx, path)
	if err != nil {
		return err
	}

	rec := &gallery.FileHostUpload{
		GalleryDBID: g.DBID,
		HostName:    hostName,
		Status:      gallery.FileHostPending,
		TotalBytes:  g.TotalSize,
	}

	if err := p.store.UpsertFileHostUpload(ctx, rec); err != nil {
		return err
	}

	w.kick()

	return nil
}

// Trigger wakes a host's worker so it re-reads its pending queue.
func (p *Pool) Trigger(hostName string) {
	if w, ok := p.workers[hostName]; ok {
		w.kick()
	}
}

// worker owns one host session and drains that host's pending records.
type worker struct {
	host Host
	pool *Pool

	mu     sync.Mutex
	cond   *sync.Cond
	kicked bool
	closed bool
	done   chan struct{}

	authenticated bool
}

func (w *worker) kick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.kicked = true
	w.cond.Signal()
}

func (w *worker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.cond.Signal()
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)

	name := w.host.Name()

	w.spinUp(ctx)

	for {
		w.mu.Lock()

		for !w.kicked && !w.closed {
			w.cond.Wait()
		}

		if w.closed {
			w.mu.Unlock()
			return
		}

		w.kicked = false
		w.mu.Unlock()

		if err := w.drain(ctx); err != nil {
			log(ctx).Warnf("worker for %v: %v", name, err)
		}
	}
}

// spinUp performs the startup authentication and signals the outcome. A
// failure here is retried on the first drain.
func (w *worker) spinUp(ctx context.Context) {
	name := w.host.Name()

	if err := w.host.Authenticate(ctx); err != nil {
		log(ctx).Warnf("unable to authenticate to %v: %v", name, err)
		w.pool.events.SpinUpComplete.Publish(SpinUpComplete{Host: name, Err: err.Error()})

		return
	}

	w.authenticated = true

	log(ctx).Infof("authenticated to %v", name)
	w.pool.events.SpinUpComplete.Publish(SpinUpComplete{Host: name})
	w.publishQuota(ctx)
}

// drain processes the pending queue FIFO, re-authenticating first when the
// spin-up attempt failed.
func (w *worker) drain(ctx context.Context) error {
	name := w.host.Name()

	if !w.authenticated {
		if err := w.host.Authenticate(ctx); err != nil {
			return errors.Wrapf(err, "unable to authenticate to %v", name)
		}

		w.authenticated = true

		log(ctx).Infof("authenticated to %v", name)
		w.publishQuota(ctx)
	}

	for {
		pending, err := w.pool.store.PendingForHost(ctx, name)
		if err != nil {
			return err
		}

		if len(pending) == 0 {
			return nil
		}

		for _, rec := range pending {
			w.mu.Lock()
			closed := w.closed
			w.mu.Unlock()

			if closed {
				return nil
			}

			w.process(ctx, rec)
		}
	}
}

func (w *worker) process(ctx context.Context, rec *gallery.FileHostUpload) {
	name := w.host.Name()

	g, err := w.pool.store.GalleryByDBID(ctx, rec.GalleryDBID)
	if err != nil {
		w.fail(ctx, rec, errors.Wrap(err, "gallery lookup failed"))
		return
	}

	rec.Status = gallery.FileHostUploading
	if err := w.pool.store.UpsertFileHostUpload(ctx, rec); err != nil {
		log(ctx).Warnf("unable to mark %v uploading: %v", g.Path, err)
	}

	w.pool.events.UploadStarted.Publish(UploadStarted{GalleryDBID: rec.GalleryDBID, Host: name})

	archive, err := zipstore.CreateTemp(ctx, g.Path, w.pool.tempDir)
	if err != nil {
		w.fail(ctx, rec, errors.Wrap(err, "unable to create archive"))
		return
	}

	defer zipstore.RemoveWithRetry(ctx, archive)

	downloadURL, err := w.uploadWithProgress(ctx, rec, archive)
	if err != nil {
		w.fail(ctx, rec, err)
		return
	}

	rec.Status = gallery.FileHostCompleted
	rec.DownloadURL = downloadURL
	rec.UploadedBytes = rec.TotalBytes
	rec.Error = ""

	if err := w.pool.store.UpsertFileHostUpload(ctx, rec); err != nil {
		log(ctx).Warnf("unable to persist completion for %v: %v", g.Path, err)
	}

	log(ctx).Infof("uploaded %v to %v: %v", g.Name, name, downloadURL)

	w.pool.events.UploadCompleted.Publish(UploadCompleted{
		GalleryDBID: rec.GalleryDBID, Host: name, DownloadURL: downloadURL,
	})

	w.publishQuota(ctx)
}

// uploadWithProgress streams the archive while a sampler goroutine feeds the
// bandwidth aggregator and progress subscribers.
func (w *worker) uploadWithProgress(ctx context.Context, rec *gallery.FileHostUpload, archive string) (string, error) {
	name := w.host.Name()
	source := "filehost:" + name

	var uploaded, total atomic.Int64

	samplerDone := make(chan struct{})

	go func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		var last int64

		for {
			select {
			case <-samplerDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur := uploaded.Load()
				delta := cur - last
				last = cur

				kbps := float64(delta) / 1024 / progressInterval.Seconds()
				w.pool.bw.RecordSample(source, kbps)

				w.pool.events.UploadProgress.Publish(UploadProgress{
					GalleryDBID: rec.GalleryDBID,
					Host:        name,
					Uploaded:    cur,
					Total:       total.Load(),
					KBps:        kbps,
				})
			}
		}
	}()

	defer func() {
		close(samplerDone)
		w.pool.bw.RemoveSource(source)
	}()

	return w.host.UploadArchive(ctx, archive, func(up, tot int64) {
		uploaded.Store(up)
		total.Store(tot)
	})
}

func (w *worker) fail(ctx context.Context, rec *gallery.FileHostUpload, err error) {
	name := w.host.Name()

	log(ctx).Warnf("upload of gallery %v to %v failed: %v", rec.GalleryDBID, name, err)

	rec.Status = gallery.FileHostFailed
	rec.Error = err.Error()

	if uerr := w.pool.store.UpsertFileHostUpload(ctx, rec); uerr != nil {
		log(ctx).Warnf("unable to persist failure: %v", uerr)
	}

	w.pool.events.UploadFailed.Publish(UploadFailed{
		GalleryDBID: rec.GalleryDBID, Host: name, Error: err.Error(),
	})
}

func (w *worker) publishQuota(ctx context.Context) {
	total, left, err := w.host.Quota(ctx)
	if err != nil {
		log(ctx).Debugf("quota query to %v failed: %v", w.host.Name(), err)
		return
	}

	w.pool.events.StorageUpdated.Publish(StorageUpdated{Host: w.host.Name(), Total: total, Left: left})
}
