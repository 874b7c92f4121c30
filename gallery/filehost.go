package gallery

// FileHostStatus describes the state of one gallery's upload to one file host.
type FileHostStatus string

// File-host upload states.
const (
	FileHostNotUploaded FileHostStatus = "not_uploaded"
	FileHostPending     FileHostStatus = "pending"
	FileHostUploading   FileHostStatus = "uploading"
	FileHostCompleted   FileHostStatus = "completed"
	FileHostFailed      FileHostStatus = "failed"
)

// FileHostUpload is the per-(gallery, host) upload record. Multiple records
// may exist per gallery, one per destination host.
type FileHostUpload struct {
	GalleryDBID int64          `gorm:"column:gallery_db_id;primaryKey;autoIncrement:false;index" json:"gallery_db_id"`
	HostName    string         `gorm:"column:host_name;primaryKey" json:"host_name"`
	Status      FileHostStatus `gorm:"column:status" json:"status"`

	UploadedBytes int64  `gorm:"column:uploaded_bytes" json:"uploaded_bytes"`
	TotalBytes    int64  `gorm:"column:total_bytes" json:"total_bytes"`
	DownloadURL   string `gorm:"column:download_url" json:"download_url"`
	Error         string `gorm:"column:error" json:"error"`
	UpdatedTS     int64  `gorm:"column:updated_ts" json:"updated_ts"`
}

// TableName implements gorm's table naming.
func (FileHostUpload) TableName() string { return "file_host_uploads" }
