package queue

import (
	"github.com/imxup/imxup/gallery"
)

// StatusAggregate summarizes all galleries sharing one status.
type StatusAggregate struct {
	Count  int
	Images int
	Bytes  int64
}

// QueueStats is the per-status aggregate view.
type QueueStats map[gallery.Status]StatusAggregate

// GetQueueStats returns per-status {count, images, bytes} aggregates.
func (m *Manager) GetQueueStats() QueueStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := QueueStats{}

	for _, g := range m.items {
		agg := stats[g.Status]
		agg.Count++
		agg.Images += g.TotalImages
		agg.Bytes += g.TotalSize
		stats[g.Status] = agg
	}

	return stats
}
