package gallery

// Status describes where a gallery is in its lifecycle. The string values
// are the wire tokens persisted by the store.
type Status string

// Gallery lifecycle states.
const (
	StatusValidating   Status = "validating"
	StatusScanning     Status = "scanning"
	StatusReady        Status = "ready"
	StatusQueued       Status = "queued"
	StatusUploading    Status = "uploading"
	StatusPaused       Status = "paused"
	StatusIncomplete   Status = "incomplete"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusScanFailed   Status = "scan_failed"
	StatusUploadFailed Status = "upload_failed"
)

// AllStatuses lists every valid status token.
var AllStatuses = []Status{
	StatusValidating, StatusScanning, StatusReady, StatusQueued,
	StatusUploading, StatusPaused, StatusIncomplete, StatusCompleted,
	StatusFailed, StatusScanFailed, StatusUploadFailed,
}

// IsTerminalForDisplay reports whether the status is terminal for display
// purposes. Only StatusCompleted is terminal for further work.
func (s Status) IsTerminalForDisplay() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusUploadFailed, StatusScanFailed:
		return true
	default:
		return false
	}
}

// CanStart reports whether StartItem may move the gallery to the run queue.
func (s Status) CanStart() bool {
	switch s {
	case StatusReady, StatusPaused, StatusIncomplete, StatusUploadFailed:
		return true
	default:
		return false
	}
}
