package queue

import (
	"context"
	"sort"
	"time"

	"github.com/imxup/imxup/gallery"
	"github.com/imxup/imxup/internal/clock"
)

// RenumberInsertionOrders compacts gaps in the insertion order while
// preserving the current display order. One trailing write covers all
// renumbered items.
func (m *Manager) RenumberInsertionOrders(ctx context.Context) {
	//nolint:errcheck
	m.BatchUpdates(func() error {
		m.mu.Lock()

		paths := make([]string, 0, len(m.items))
		for p := range m.items {
			paths = append(paths, p)
		}

		sort.Slice(paths, func(i, j int) bool {
			a, b := m.items[paths[i]], m.items[paths[j]]
			if a.InsertionOrder != b.InsertionOrder {
				return a.InsertionOrder < b.InsertionOrder
			}

			return a.DBID < b.DBID
		})

		for i, p := range paths {
			g := m.items[p]
			if g.InsertionOrder != int64(i) {
				g.InsertionOrder = int64(i)
				m.batchDirty[p] = struct{}{}
			}
		}

		m.nextOrder = int64(len(paths))
		m.version.Add(1)
		m.mu.Unlock()

		return nil
	})
}

// ExecuteAutoArchive is the single canonical archival path: completed
// galleries whose finish time is older than maxAge move to the Archive tab.
// Returns the paths archived.
func (m *Manager) ExecuteAutoArchive(ctx context.Context, maxAge time.Duration) []string {
	cutoff := clock.Now().Add(-maxAge).Unix()

	var archived []string

	m.mu.Lock()

	for p, g := range m.items {
		if g.Status != gallery.StatusCompleted || g.TabName == gallery.ArchiveTabName {
			continue
		}

		if g.FinishedTime > 0 && g.FinishedTime <= cutoff {
			g.TabName = gallery.ArchiveTabName
			archived = append(archived, p)
		}
	}

	if len(archived) > 0 {
		m.version.Add(1)
	}
	m.mu.Unlock()

	if len(archived) == 0 {
		return nil
	}

	sort.Strings(archived)

	if err := m.store.MoveGalleriesToTab(ctx, archived, gallery.ArchiveTabName); err != nil {
		log(ctx).Warnf("auto-archive persistence failed: %v", err)
	}

	log(ctx).Infof("auto-archived %v galleries", len(archived))

	return archived
}
