package store

import (
	"context"
	"sync"

	"github.com/imxup/imxup/gallery"
)

// asyncWriter serializes all asynchronous persistence through a single
// goroutine. Pending writes are deduplicated by gallery path, keeping the
// latest snapshot; enqueue order of first appearance is preserved.
type asyncWriter struct {
	store *Store
	ctx   context.Context

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string]*gallery.Gallery
	order   []string
	writing bool
	closed  bool
	done    chan struct{}
}

func newAsyncWriter(ctx context.Context, s *Store) *asyncWriter {
	w := &asyncWriter{
		store:   s,
		ctx:     ctx,
		pending: map[string]*gallery.Gallery{},
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	go w.run()

	return w
}

func (w *asyncWriter) enqueue(items []*gallery.Gallery) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	for _, it := range items {
		if _, dup := w.pending[it.Path]; !dup {
			w.order = append(w.order, it.Path)
		}

		// snapshot so later in-memory mutation does not race the write.
		w.pending[it.Path] = it.Clone()
	}

	w.cond.Signal()
}

func (w *asyncWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.pending) > 0 || w.writing {
		w.cond.Wait()
	}
}

func (w *asyncWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	<-w.done
}

func (w *asyncWriter) run() {
	defer close(w.done)

	for {
		w.mu.Lock()

		for len(w.pending) == 0 && !w.closed {
			w.cond.Wait()
		}

		if len(w.pending) == 0 && w.closed {
			w.mu.Unlock()
			return
		}

		batch := make([]*gallery.Gallery, 0, len(w.order))
		for _, p := range w.order {
			batch = append(batch, w.pending[p])
		}

		w.pending = map[string]*gallery.Gallery{}
		w.order = nil
		w.writing = true
		w.mu.Unlock()

		if err := w.store.BulkUpsert(w.ctx, batch); err != nil {
			log(w.ctx).Warnf("async save of %v item(s) failed: %v", len(batch), err)
		}

		w.mu.Lock()
		w.writing = false
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}
