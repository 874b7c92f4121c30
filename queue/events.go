package queue

import (
	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/fanout"
)

// StatusChanged is emitted on every status transition of a gallery.
type StatusChanged struct {
	Path string
	Old  gallery.Status
	New  gallery.Status
}

// ProgressUpdated is emitted as images of a gallery finish uploading.
type ProgressUpdated struct {
	Path         string
	Completed    int
	Total        int
	Percent      float64
	CurrentImage string
}

// GalleryAdded is emitted when a new gallery enters the queue.
type GalleryAdded struct {
	Path string
}

// GalleryRemoved is emitted when a gallery is removed.
type GalleryRemoved struct {
	Path string
}

// Signals groups the manager's observable event buses. Events are delivered
// asynchronously; ordering per path follows publication order.
type Signals struct {
	StatusChanged   *fanout.Bus[StatusChanged]
	ProgressUpdated *fanout.Bus[ProgressUpdated]
	GalleryAdded    *fanout.Bus[GalleryAdded]
	GalleryRemoved  *fanout.Bus[GalleryRemoved]
}

func newSignals() *Signals {
	return &Signals{
		StatusChanged:   fanout.NewBus[StatusChanged](),
		ProgressUpdated: fanout.NewBus[ProgressUpdated](),
		GalleryAdded:    fanout.NewBus[GalleryAdded](),
		GalleryRemoved:  fanout.NewBus[GalleryRemoved](),
	}
}

func (s *Signals) close() {
	s.StatusChanged.Close()
	s.ProgressUpdated.Close()
	s.GalleryAdded.Close()
	s.GalleryRemoved.Close()
}
