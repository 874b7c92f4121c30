package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/clock"
)

// UpsertFileHostUpload inserts or replaces the record for
// (upload.GalleryDBID, upload.HostName), stamping UpdatedTS.
func (s *Store) UpsertFileHostUpload(ctx context.Context, upload *gallery.FileHostUpload) error {
	upload.UpdatedTS = clock.Now().Unix()

	err := s.db.WithContext(ctx).Save(upload).Error

	return errors.Wrap(err, "error saving file host upload")
}

// GetFileHostUploads returns all per-host records for the gallery at path.
func (s *Store) GetFileHostUploads(ctx context.Context, path string) ([]*gallery.FileHostUpload, error) {
	g, err := s.GalleryByPath(ctx, path)
	if err != nil {
		return nil, err
	}

	var uploads []*gallery.FileHostUpload

	if err := s.db.WithContext(ctx).
		Where("gallery_db_id = ?", g.DBID).
		Order("host_name").
		Find(&uploads).Error; err != nil {
		return nil, errors.Wrap(err, "error loading file host uploads")
	}

	return uploads, nil
}

// GetAllFileHostUploadsBatch returns every record grouped by gallery db id,
// in a single query.
func (s *Store) GetAllFileHostUploadsBatch(ctx context.Context) (map[int64][]*gallery.FileHostUpload, error) {
	var uploads []*gallery.FileHostUpload

	if err := s.db.WithContext(ctx).
		Order("gallery_db_id, host_name").
		Find(&uploads).Error; err != nil {
		return nil, errors.Wrap(err, "error loading file host uploads")
	}

	byGallery := map[int64][]*gallery.FileHostUpload{}
	for _, u := range uploads {
		byGallery[u.GalleryDBID] = append(byGallery[u.GalleryDBID], u)
	}

	return byGallery, nil
}

// PendingStats summarizes the backlog for one host.
type PendingStats struct {
	Count      int
	TotalBytes int64
}

// GetFileHostPendingStats returns the number of pending uploads and their
// total byte size for the given host.
func (s *Store) GetFileHostPendingStats(ctx context.Context, host string) (PendingStats, error) {
	var row struct {
		Count      int
		TotalBytes int64
	}

	err := s.db.WithContext(ctx).Model(&gallery.FileHostUpload{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total_bytes),0) AS total_bytes").
		Where("host_name = ? AND status = ?", host, gallery.FileHostPending).
		Scan(&row).Error
	if err != nil {
		return PendingStats{}, errors.Wrap(err, "error computing pending stats")
	}

	return PendingStats{Count: row.Count, TotalBytes: row.TotalBytes}, nil
}

// PendingForHost returns the pending records for one host, FIFO by UpdatedTS.
func (s *Store) PendingForHost(ctx context.Context, host string) ([]*gallery.FileHostUpload, error) {
	var uploads []*gallery.FileHostUpload

	if err := s.db.WithContext(ctx).
		Where("host_name = ? AND status = ?", host, gallery.FileHostPending).
		Order("updated_ts, gallery_db_id").
		Find(&uploads).Error; err != nil {
		return nil, errors.Wrap(err, "error loading pending uploads")
	}

	return uploads, nil
}

// GalleryByDBID returns the gallery with the given persistent id.
func (s *Store) GalleryByDBID(ctx context.Context, dbid int64) (*gallery.Gallery, error) {
	var g gallery.Gallery

	if err := s.db.WithContext(ctx).Where("db_id = ?", dbid).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, errors.Wrap(err, "error loading gallery")
	}

	if g.UploadedFiles == nil {
		g.UploadedFiles = gallery.StringSet{}
	}

	return &g, nil
}
