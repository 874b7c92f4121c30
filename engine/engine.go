// Package engine is the primary-host upload scheduler: it consumes queued
// galleries FIFO, drives parallel per-image uploads with retries, accounts
// transferred bytes and leaves each gallery in a terminal state.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imxup/imxup/artifacts"
	"github.com/imxup/imxup/bandwidth"
	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/hooks"
	"github.com/imxup/imxup/imx"
	"github.com/imxup/imxup/logging"
	"github.com/imxup/imxup/queue"
)

var log = logging.Module("engine")

const (
	// idleSleep is how long the loop waits when the run queue is empty.
	idleSleep = 100 * time.Millisecond

	// samplerInterval paces bandwidth sampling during an upload.
	samplerInterval = 200 * time.Millisecond

	// bandwidthSource identifies the engine in the aggregator.
	bandwidthSource = "imx"

	defaultParallelBatchSize = 4
	defaultMaxRetries        = 3
)

// RenameEnqueuer receives freshly created galleries whose server-side name
// still needs to be set.
type RenameEnqueuer interface {
	EnqueueRename(ctx context.Context, galleryID, name string)
}

// Options tunes the engine.
type Options struct {
	ParallelBatchSize int
	MaxRetries        int
	ThumbnailSize     int
	ThumbnailFormat   string
}

func (o Options) withDefaults() Options {
	if o.ParallelBatchSize <= 0 {
		o.ParallelBatchSize = defaultParallelBatchSize
	}

	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}

	return o
}

// Engine runs the upload loop. Construct with New, then call Run on its own
// goroutine.
type Engine struct {
	opt     Options
	queue   *queue.Manager
	client  imx.Client
	bw      *bandwidth.Aggregator
	writer  *artifacts.Writer
	hooks   *hooks.Executor
	renamer RenameEnqueuer
	events  *Events

	softStop atomic.Bool

	// totalBytes counts bytes sent across all galleries since start.
	totalBytes atomic.Int64

	// statsMu guards the queue-stats emission throttle.
	statsMu     sync.Mutex
	lastStatsAt time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

// New wires the engine to its collaborators. renamer may be nil when gallery
// renames are not wanted.
func New(q *queue.Manager, client imx.Client, bw *bandwidth.Aggregator, writer *artifacts.Writer, hx *hooks.Executor, renamer RenameEnqueuer, opt Options) *Engine {
	return &Engine{
		opt:     opt.withDefaults(),
		queue:   q,
		client:  client,
		bw:      bw,
		writer:  writer,
		hooks:   hx,
		renamer: renamer,
		events:  newEvents(),
		closed:  make(chan struct{}),
	}
}

// Events exposes the engine's lifecycle notifications.
func (e *Engine) Events() *Events { return e.events }

// RequestSoftStop asks the current upload to stop at the next image
// boundary. In-flight images complete.
func (e *Engine) RequestSoftStop() { e.softStop.Store(true) }

// ClearSoftStop re-arms the engine after a soft stop.
func (e *Engine) ClearSoftStop() { e.softStop.Store(false) }

// TotalBytes returns bytes uploaded across all galleries since start.
func (e *Engine) TotalBytes() int64 { return e.totalBytes.Load() }

// Run consumes the run queue until ctx is canceled. A failure inside one
// gallery never stops the loop.
func (e *Engine) Run(ctx context.Context) {
	log(ctx).Infof("upload engine started (batch size %v)", e.opt.ParallelBatchSize)

	for {
		select {
		case <-ctx.Done():
			log(ctx).Infof("upload engine stopping")
			return

		case <-e.closed:
			return

		default:
		}

		item := e.queue.GetNextItem()
		if item == nil {
			time.Sleep(idleSleep)
			continue
		}

		// the item may have been paused or removed between queueing
		// and the pop.
		current, ok := e.queue.GetItem(item.Path)
		if !ok || current.Status != gallery.StatusQueued {
			continue
		}

		e.uploadGallery(ctx, current.Path)
	}
}

// Close stops the loop and the event buses.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.events.close()
	})
}
