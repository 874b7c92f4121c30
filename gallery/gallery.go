// Package gallery defines the data model shared by the queue manager, the
// upload engine and the persistent store: galleries, per-host uploads and tabs.
package gallery

import (
	"path/filepath"
)

// Gallery is the central entity: one folder of images treated as a single
// upload unit. Identified by its absolute folder path; DBID is assigned on
// first persistence.
type Gallery struct {
	DBID int64  `gorm:"column:db_id;primaryKey;autoIncrement" json:"db_id"`
	Path string `gorm:"column:path;uniqueIndex;not null" json:"path"`

	Name         string `gorm:"column:name" json:"name"`
	TabName      string `gorm:"column:tab_name;default:Main" json:"tab_name"`
	TemplateName string `gorm:"column:template_name" json:"template_name"`
	Status       Status `gorm:"column:status;index" json:"status"`

	Progress       int   `gorm:"column:progress" json:"progress"`
	TotalImages    int   `gorm:"column:total_images" json:"total_images"`
	UploadedImages int   `gorm:"column:uploaded_images" json:"uploaded_images"`
	UploadedBytes  int64 `gorm:"column:uploaded_bytes" json:"uploaded_bytes"`
	TotalSize      int64 `gorm:"column:total_size" json:"total_size"`
	AvgWidth       int   `gorm:"column:avg_width" json:"avg_width"`
	AvgHeight      int   `gorm:"column:avg_height" json:"avg_height"`
	ScanComplete   bool  `gorm:"column:scan_complete" json:"scan_complete"`

	AddedTime    int64 `gorm:"column:added_time" json:"added_time"`
	StartTime    int64 `gorm:"column:start_time" json:"start_time"`
	FinishedTime int64 `gorm:"column:finished_time" json:"finished_time"`

	GalleryID    string `gorm:"column:gallery_id" json:"gallery_id"`
	GalleryURL   string `gorm:"column:gallery_url" json:"gallery_url"`
	ErrorMessage string `gorm:"column:error_message" json:"error_message"`

	UploadedFiles  StringSet `gorm:"column:uploaded_files" json:"uploaded_files"`
	InsertionOrder int64     `gorm:"column:insertion_order" json:"insertion_order"`

	Custom1 string `gorm:"column:custom1" json:"custom1"`
	Custom2 string `gorm:"column:custom2" json:"custom2"`
	Custom3 string `gorm:"column:custom3" json:"custom3"`
	Custom4 string `gorm:"column:custom4" json:"custom4"`
	Ext1    string `gorm:"column:ext1" json:"ext1"`
	Ext2    string `gorm:"column:ext2" json:"ext2"`
	Ext3    string `gorm:"column:ext3" json:"ext3"`
	Ext4    string `gorm:"column:ext4" json:"ext4"`

	IMXStatus        string `gorm:"column:imx_status" json:"imx_status"`
	IMXStatusChecked int64  `gorm:"column:imx_status_checked" json:"imx_status_checked"`

	FinalKiBps   float64 `gorm:"column:final_kibps" json:"final_kibps"`
	CurrentKiBps float64 `gorm:"column:current_kibps" json:"current_kibps"`
}

// TableName implements gorm's table naming.
func (Gallery) TableName() string { return "galleries" }

// New returns a Gallery for the given folder path in the initial state.
// The display name defaults to the folder basename.
func New(path string) *Gallery {
	return &Gallery{
		Path:          path,
		Name:          filepath.Base(path),
		TabName:       DefaultTabName,
		Status:        StatusValidating,
		UploadedFiles: StringSet{},
	}
}

// Clone returns a deep copy of the gallery.
func (g *Gallery) Clone() *Gallery {
	c := *g
	c.UploadedFiles = g.UploadedFiles.Clone()

	return &c
}

// RemainingImages returns how many images still need uploading.
func (g *Gallery) RemainingImages() int {
	n := g.TotalImages - len(g.UploadedFiles)
	if n < 0 {
		n = 0
	}

	return n
}

// Image is the working representation of a single image during an upload.
// Images are not persisted individually; UploadedFiles is the durable record.
type Image struct {
	Filename string `json:"original_filename"`
	Size     int64  `json:"size_bytes"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	URL      string `json:"image_url,omitempty"`
	ThumbURL string `json:"thumbnail_url,omitempty"`
	BBCode   string `json:"bbcode,omitempty"`
}

// CustomField names a user- or hook-writable free-text field on a gallery.
type CustomField string

// The closed set of settable fields.
const (
	FieldCustom1 CustomField = "custom1"
	FieldCustom2 CustomField = "custom2"
	FieldCustom3 CustomField = "custom3"
	FieldCustom4 CustomField = "custom4"
	FieldExt1    CustomField = "ext1"
	FieldExt2    CustomField = "ext2"
	FieldExt3    CustomField = "ext3"
	FieldExt4    CustomField = "ext4"
)

// ValidCustomField reports whether the given name is a settable field.
func ValidCustomField(name string) bool {
	switch CustomField(name) {
	case FieldCustom1, FieldCustom2, FieldCustom3, FieldCustom4,
		FieldExt1, FieldExt2, FieldExt3, FieldExt4:
		return true
	default:
		return false
	}
}

// SetCustomField writes the named field. Returns false for unknown fields.
func (g *Gallery) SetCustomField(name string, value string) bool {
	switch CustomField(name) {
	case FieldCustom1:
		g.Custom1 = value
	case FieldCustom2:
		g.Custom2 = value
	case FieldCustom3:
		g.Custom3 = value
	case FieldCustom4:
		g.Custom4 = value
	case FieldExt1:
		g.Ext1 = value
	case FieldExt2:
		g.Ext2 = value
	case FieldExt3:
		g.Ext3 = value
	case FieldExt4:
		g.Ext4 = value
	default:
		return false
	}

	return true
}

// CustomFieldValue reads the named field; empty string for unknown names.
func (g *Gallery) CustomFieldValue(name string) string {
	switch CustomField(name) {
	case FieldCustom1:
		return g.Custom1
	case FieldCustom2:
		return g.Custom2
	case FieldCustom3:
		return g.Custom3
	case FieldCustom4:
		return g.Custom4
	case FieldExt1:
		return g.Ext1
	case FieldExt2:
		return g.Ext2
	case FieldExt3:
		return g.Ext3
	case FieldExt4:
		return g.Ext4
	default:
		return ""
	}
}
