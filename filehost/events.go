package filehost

import "github.com/imxup/imxup/internal/fanout"

// UploadStarted fires when a worker picks up a pending record.
type UploadStarted struct {
	GalleryDBID int64
	Host        string
}

// UploadProgress reports streaming progress of one archive upload.
type UploadProgress struct {
	GalleryDBID int64
	Host        string
	Uploaded    int64
	Total       int64
	KBps        float64
}

// UploadCompleted fires on success with the host's download URL.
type UploadCompleted struct {
	GalleryDBID int64
	Host        string
	DownloadURL string
}

// UploadFailed fires when an upload gives up.
type UploadFailed struct {
	GalleryDBID int64
	Host        string
	Error       string
}

// StorageUpdated reports a quota query. Total and Left are -1 when the host
// is unlimited.
type StorageUpdated struct {
	Host  string
	Total int64
	Left  int64
}

// SpinUpComplete fires exactly once per worker after its startup
// authentication attempt. Err is empty on success.
type SpinUpComplete struct {
	Host string
	Err  string
}

// Events exposes the pool's notifications.
type Events struct {
	SpinUpComplete  *fanout.Bus[SpinUpComplete]
	UploadStarted   *fanout.Bus[UploadStarted]
	UploadProgress  *fanout.Bus[UploadProgress]
	UploadCompleted *fanout.Bus[UploadCompleted]
	UploadFailed    *fanout.Bus[UploadFailed]
	StorageUpdated  *fanout.Bus[StorageUpdated]
}

func newEvents() *Events {
	return &Events{
		SpinUpComplete:  fanout.NewBus[SpinUpComplete](),
		UploadStarted:   fanout.NewBus[UploadStarted](),
		UploadProgress:  fanout.NewBus[UploadProgress](),
		UploadCompleted: fanout.NewBus[UploadCompleted](),
		UploadFailed:    fanout.NewBus[UploadFailed](),
		StorageUpdated:  fanout.NewBus[StorageUpdated](),
	}
}

func (e *Events) close() {
	e.SpinUpComplete.Close()
	e.UploadStarted.Close()
	e.UploadProgress.Close()
	e.UploadCompleted.Close()
	e.UploadFailed.Close()
	e.StorageUpdated.Close()
}
