// Package store persists gallery records, per-host upload records, tabs,
// the unnamed-gallery queue and stats in a single SQLite database.
package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/logging"
)

var log = logging.Module("store")

// Store is the durable persistence layer. All writes go through either the
// synchronous transactional API or the single background writer; reads are
// consistent with the most recent synchronously completed write.
type Store struct {
	db     *gorm.DB
	writer *asyncWriter
}

// Open opens (creating if necessary) the database at the given path.
// SQLite pragmas: WAL for concurrent readers with a single writer, and a
// 5 second busy timeout while the writer holds the lock.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "error creating database directory")
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error opening database")
	}

	if err := db.AutoMigrate(
		&gallery.Gallery{},
		&gallery.FileHostUpload{},
		&gallery.Tab{},
		&gallery.UnnamedGallery{},
		&statEntry{},
	); err != nil {
		return nil, errors.Wrap(err, "error migrating database schema")
	}

	s := &Store{db: db}
	s.writer = newAsyncWriter(ctx, s)

	return s, nil
}

// Close flushes pending asynchronous writes and closes the database.
func (s *Store) Close() error {
	s.writer.close()

	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "error getting underlying database")
	}

	return errors.Wrap(sqlDB.Close(), "error closing database")
}

// LoadAllItems restores every persisted gallery, ordered by insertion order
// then db id. Records observed with status "uploading" are from a dirty
// shutdown and are normalized to "ready", both in the returned slice and in
// the database.
func (s *Store) LoadAllItems(ctx context.Context) ([]*gallery.Gallery, error) {
	var items []*gallery.Gallery

	if err := s.db.WithContext(ctx).
		Order("insertion_order, db_id").
		Find(&items).Error; err != nil {
		return nil, errors.Wrap(err, "error loading galleries")
	}

	var recovered []*gallery.Gallery

	for _, g := range items {
		if g.UploadedFiles == nil {
			g.UploadedFiles = gallery.StringSet{}
		}

		if g.Status == gallery.StatusUploading {
			g.Status = gallery.StatusReady
			recovered = append(recovered, g)
		}
	}

	if len(recovered) > 0 {
		log(ctx).Infof("normalized %v interrupted upload(s) to ready", len(recovered))

		if err := s.BulkUpsert(ctx, recovered); err != nil {
			return nil, errors.Wrap(err, "error persisting crash recovery")
		}
	}

	return items, nil
}

// BulkUpsert persists the given items in one transaction: either all land or
// none do. Items without a db id that match an existing path adopt its id;
// genuinely new items get a fresh monotonic id assigned by the database and
// written back into the passed structs.
func (s *Store) BulkUpsert(ctx context.Context, items []*gallery.Gallery) error {
	if len(items) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			if it.DBID == 0 {
				var existing gallery.Gallery

				err := tx.Select("db_id").Where("path = ?", it.Path).First(&existing).Error

				switch {
				case err == nil:
					it.DBID = existing.DBID
				case errors.Is(err, gorm.ErrRecordNotFound):
					// first persistence, id assigned on insert
				default:
					return errors.Wrap(err, "error resolving gallery id")
				}
			}

			if err := tx.Save(it).Error; err != nil {
				return errors.Wrapf(err, "error saving gallery %v", it.Path)
			}
		}

		return nil
	})

	return errors.Wrap(err, "bulk upsert failed")
}

// BulkUpsertAsync queues the items for the background writer and returns
// immediately. Pending writes for the same path are deduplicated, keeping the
// latest value. Write errors are logged; the next save tick re-attempts.
func (s *Store) BulkUpsertAsync(items []*gallery.Gallery) {
	s.writer.enqueue(items)
}

// Flush blocks until the background writer has drained its queue.
func (s *Store) Flush() {
	s.writer.flush()
}

// DeleteByPaths removes the galleries with the given paths along with their
// file-host upload records.
func (s *Store) DeleteByPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64

		if err := tx.Model(&gallery.Gallery{}).
			Where("path IN ?", paths).
			Pluck("db_id", &ids).Error; err != nil {
			return errors.Wrap(err, "error resolving gallery ids")
		}

		if len(ids) > 0 {
			if err := tx.Where("gallery_db_id IN ?", ids).
				Delete(&gallery.FileHostUpload{}).Error; err != nil {
				return errors.Wrap(err, "error deleting file host uploads")
			}
		}

		if err := tx.Where("path IN ?", paths).
			Delete(&gallery.Gallery{}).Error; err != nil {
			return errors.Wrap(err, "error deleting galleries")
		}

		return nil
	})

	return errors.Wrap(err, "delete failed")
}

// UpdateItemCustomField writes one custom/ext field directly, bypassing the
// async writer. The field name must be one of custom1..4 or ext1..4.
func (s *Store) UpdateItemCustomField(ctx context.Context, path, field, value string) error {
	if !gallery.ValidCustomField(field) {
		return errors.Errorf("unknown custom field %q", field)
	}

	res := s.db.WithContext(ctx).Model(&gallery.Gallery{}).
		Where("path = ?", path).
		Update(field, value)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "error updating %v", field)
	}

	if res.RowsAffected == 0 {
		return errors.Errorf("no gallery with path %v", path)
	}

	return nil
}

// GalleryByPath returns a single persisted gallery record.
func (s *Store) GalleryByPath(ctx context.Context, path string) (*gallery.Gallery, error) {
	var g gallery.Gallery

	if err := s.db.WithContext(ctx).Where("path = ?", path).First(&g).Error; err != nil {
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

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")
