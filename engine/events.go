package engine

import (
	"github.com/imxup/imxup/internal/fanout"
	"github.com/imxup/imxup/queue"
)

// GalleryStarted fires when an upload begins.
type GalleryStarted struct {
	Path        string
	TotalImages int
}

// GalleryCompleted fires when a gallery reaches a terminal state. Artifacts
// holds the artifact paths written (completed uploads only).
type GalleryCompleted struct {
	Path      string
	Succeeded int
	Failed    int
	Artifacts []string
}

// QueueStatsUpdated carries a per-status aggregate snapshot, published after
// a gallery reaches a terminal state.
type QueueStatsUpdated struct {
	Stats queue.QueueStats
}

// Events exposes the engine's observable lifecycle.
type Events struct {
	GalleryStarted    *fanout.Bus[GalleryStarted]
	GalleryCompleted  *fanout.Bus[GalleryCompleted]
	QueueStatsUpdated *fanout.Bus[QueueStatsUpdated]
}

func newEvents() *Events {
	return &Events{
		GalleryStarted:    fanout.NewBus[GalleryStarted](),
		GalleryCompleted:  fanout.NewBus[GalleryCompleted](),
		QueueStatsUpdated: fanout.NewBus[QueueStatsUpdated](),
	}
}

func (e *Events) close() {
	e.GalleryStarted.Close()
	e.GalleryCompleted.Close()
	e.QueueStatsUpdated.Close()
}
