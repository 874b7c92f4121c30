package gallery

// TabType distinguishes built-in tabs from user-created ones.
type TabType string

// Tab types.
const (
	TabTypeSystem TabType = "system"
	TabTypeUser   TabType = "user"
)

// Names of the system tabs that always exist.
const (
	DefaultTabName = "Main"
	ArchiveTabName = "Archive"
)

// Tab is a named display bucket. Galleries reference tabs by name, not by
// foreign key, so tab lifecycle is orthogonal to gallery lifecycle.
type Tab struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name         string  `gorm:"column:name;uniqueIndex;not null" json:"name"`
	DisplayOrder int     `gorm:"column:display_order" json:"display_order"`
	ColorHint    string  `gorm:"column:color_hint" json:"color_hint"`
	TabType      TabType `gorm:"column:tab_type" json:"tab_type"`
}

// TableName implements gorm's table naming.
func (Tab) TableName() string { return "tabs" }

// UnnamedGallery records a gallery that was created on the host but whose
// rename has not succeeded yet. The rename worker drains these on startup.
type UnnamedGallery struct {
	GalleryID   string `gorm:"column:gallery_id;primaryKey" json:"gallery_id"`
	DesiredName string `gorm:"column:desired_name" json:"desired_name"`
}

// TableName implements gorm's table naming.
func (UnnamedGallery) TableName() string { return "unnamed_galleries" }
