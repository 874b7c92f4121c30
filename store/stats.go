package store

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/imxup/imxup/gallery"
)

// statEntry is a row in the key/value stats table.
type statEntry struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

func (statEntry) TableName() string { return "stats" }

// Stats keys of record.
const (
	statFastestKBps          = "fastest_kbps"
	statFastestKBpsTimestamp = "fastest_kbps_timestamp"
	statLifetimeBytes        = "lifetime_uploaded_bytes"
	statLifetimeImages       = "lifetime_uploaded_images"
)

// GetStat reads one stats value; empty string when unset.
func (s *Store) GetStat(ctx context.Context, key string) (string, error) {
	var e statEntry

	err := s.db.WithContext(ctx).Where("key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}

	if err != nil {
		return "", errors.Wrapf(err, "error reading stat %v", key)
	}

	return e.Value, nil
}

// SetStat writes one stats value.
func (s *Store) SetStat(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Save(&statEntry{Key: key, Value: value}).Error

	return errors.Wrapf(err, "error writing stat %v", key)
}

// PeakThroughput returns the all-time fastest observed rate in KB/s and the
// time it was recorded; zero values when never set.
func (s *Store) PeakThroughput(ctx context.Context) (float64, time.Time, error) {
	v, err := s.GetStat(ctx, statFastestKBps)
	if err != nil || v == "" {
		return 0, time.Time{}, err
	}

	kbps, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, time.Time{}, errors.Wrap(err, "invalid persisted peak")
	}

	ts, _ := s.GetStat(ctx, statFastestKBpsTimestamp)

	when, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		when = time.Time{}
	}

	return kbps, when, nil
}

// SetPeakThroughput persists the peak rate with an ISO-8601 timestamp.
func (s *Store) SetPeakThroughput(ctx context.Context, kbps float64, when time.Time) error {
	if err := s.SetStat(ctx, statFastestKBps, strconv.FormatFloat(kbps, 'f', 2, 64)); err != nil {
		return err
	}

	return s.SetStat(ctx, statFastestKBpsTimestamp, when.UTC().Format(time.RFC3339))
}

// ResetPeakThroughput clears the persisted peak.
func (s *Store) ResetPeakThroughput(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Where("key IN ?", []string{statFastestKBps, statFastestKBpsTimestamp}).
		Delete(&statEntry{}).Error

	return errors.Wrap(err, "error resetting peak")
}

// AddLifetimeTotals accumulates all-time uploaded bytes and image counts.
func (s *Store) AddLifetimeTotals(ctx context.Context, bytes int64, images int) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, kv := range []struct {
			key   string
			delta int64
		}{
			{statLifetimeBytes, bytes},
			{statLifetimeImages, int64(images)},
		} {
			var e statEntry

			err := tx.Where("key = ?", kv.key).First(&e).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(err, "error reading total")
			}

			cur, _ := strconv.ParseInt(e.Value, 10, 64)

			if err := tx.Save(&statEntry{Key: kv.key, Value: strconv.FormatInt(cur+kv.delta, 10)}).Error; err != nil {
				return errors.Wrap(err, "error writing total")
			}
		}

		return nil
	})

	return errors.Wrap(err, "error accumulating totals")
}

// LifetimeTotals returns the accumulated all-time uploaded bytes and images.
func (s *Store) LifetimeTotals(ctx context.Context) (bytes, images int64, err error) {
	bv, err := s.GetStat(ctx, statLifetimeBytes)
	if err != nil {
		return 0, 0, err
	}

	iv, err := s.GetStat(ctx, statLifetimeImages)
	if err != nil {
		return 0, 0, err
	}

	bytes, _ = strconv.ParseInt(bv, 10, 64)
	images, _ = strconv.ParseInt(iv, 10, 64)

	return bytes, images, nil
}

// PutUnnamedGallery records a gallery whose rename has not succeeded yet.
func (s *Store) PutUnnamedGallery(ctx context.Context, galleryID, desiredName string) error {
	err := s.db.WithContext(ctx).Save(&gallery.UnnamedGallery{
		GalleryID:   galleryID,
		DesiredName: desiredName,
	}).Error

	return errors.Wrap(err, "error saving unnamed gallery")
}

// DeleteUnnamedGallery removes an entry once the rename succeeded.
func (s *Store) DeleteUnnamedGallery(ctx context.Context, galleryID string) error {
	err := s.db.WithContext(ctx).
		Where("gallery_id = ?", galleryID).
		Delete(&gallery.UnnamedGallery{}).Error

	return errors.Wrap(err, "error deleting unnamed gallery")
}

// AllUnnamedGalleries returns the pending rename queue.
func (s *Store) AllUnnamedGalleries(ctx context.Context) ([]*gallery.UnnamedGallery, error) {
	var out []*gallery.UnnamedGallery

	if err := s.db.WithContext(ctx).Order("gallery_id").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "error loading unnamed galleries")
	}

	return out, nil
}
