package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/imxup/imxup/gallery"
)

// InitializeDefaultTabs makes sure the system tabs exist.
func (s *Store) InitializeDefaultTabs(ctx context.Context) error {
	defaults := []gallery.Tab{
		{Name: gallery.DefaultTabName, DisplayOrder: 0, TabType: gallery.TabTypeSystem},
		{Name: gallery.ArchiveTabName, DisplayOrder: 1, TabType: gallery.TabTypeSystem},
	}

	for _, tab := range defaults {
		err := s.db.WithContext(ctx).
			Where("name = ?", tab.Name).
			FirstOrCreate(&gallery.Tab{}, tab).Error
		if err != nil {
			return errors.Wrapf(err, "error ensuring tab %v", tab.Name)
		}
	}

	return nil
}

// ListTabs returns all tabs in display order.
func (s *Store) ListTabs(ctx context.Context) ([]*gallery.Tab, error) {
	var tabs []*gallery.Tab

	if err := s.db.WithContext(ctx).Order("display_order, id").Find(&tabs).Error; err != nil {
		return nil, errors.Wrap(err, "error listing tabs")
	}

	return tabs, nil
}

// CreateTab adds a user tab at the end of the display order.
func (s *Store) CreateTab(ctx context.Context, name, colorHint string) (*gallery.Tab, error) {
	var maxOrder int

	if err := s.db.WithContext(ctx).Model(&gallery.Tab{}).
		Select("COALESCE(MAX(display_order),0)").
		Scan(&maxOrder).Error; err != nil {
		return nil, errors.Wrap(err, "error computing tab order")
	}

	tab := &gallery.Tab{
		Name:         name,
		DisplayOrder: maxOrder + 1,
		ColorHint:    colorHint,
		TabType:      gallery.TabTypeUser,
	}

	if err := s.db.WithContext(ctx).Create(tab).Error; err != nil {
		return nil, errors.Wrapf(err, "error creating tab %v", name)
	}

	return tab, nil
}

// RenameTab renames a user tab and updates the gallery references to it.
// System tabs cannot be renamed.
func (s *Store) RenameTab(ctx context.Context, oldName, newName string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tab gallery.Tab

		if err := tx.Where("name = ?", oldName).First(&tab).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}

			return errors.Wrap(err, "error loading tab")
		}

		if tab.TabType == gallery.TabTypeSystem {
			return errors.Errorf("cannot rename system tab %v", oldName)
		}

		if err := tx.Model(&tab).Update("name", newName).Error; err != nil {
			return errors.Wrap(err, "error renaming tab")
		}

		if err := tx.Model(&gallery.Gallery{}).
			Where("tab_name = ?", oldName).
			Update("tab_name", newName).Error; err != nil {
			return errors.Wrap(err, "error moving galleries to renamed tab")
		}

		return nil
	})

	return errors.Wrap(err, "rename tab failed")
}

// DeleteTab removes a user tab; its galleries move to the Main tab.
func (s *Store) DeleteTab(ctx context.Context, name string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tab gallery.Tab

		if err := tx.Where("name = ?", name).First(&tab).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}

			return errors.Wrap(err, "error loading tab")
		}

		if tab.TabType == gallery.TabTypeSystem {
			return errors.Errorf("cannot delete system tab %v", name)
		}

		if err := tx.Model(&gallery.Gallery{}).
			Where("tab_name = ?", name).
			Update("tab_name", gallery.DefaultTabName).Error; err != nil {
			return errors.Wrap(err, "error reassigning galleries")
		}

		if err := tx.Delete(&tab).Error; err != nil {
			return errors.Wrap(err, "error deleting tab")
		}

		return nil
	})

	return errors.Wrap(err, "delete tab failed")
}

// SetTabOrder rewrites the display order to match the given name sequence.
func (s *Store) SetTabOrder(ctx context.Context, names []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, name := range names {
			if err := tx.Model(&gallery.Tab{}).
				Where("name = ?", name).
				Update("display_order", i).Error; err != nil {
				return errors.Wrapf(err, "error ordering tab %v", name)
			}
		}

		return nil
	})

	return errors.Wrap(err, "set tab order failed")
}

// MoveGalleriesToTab reassigns the given gallery paths to a tab.
func (s *Store) MoveGalleriesToTab(ctx context.Context, paths []string, tab string) error {
	if len(paths) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Model(&gallery.Gallery{}).
		Where("path IN ?", paths).
		Update("tab_name", tab).Error

	return errors.Wrap(err, "error moving galleries")
}
