package buffer

import (
	"fmt"
	"sync"

	"github.com/guildlytics/guildlytics-backend/internal/events"
	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
)

// Buffer accumulates pending records partitioned by category. Each category
// has its own lock, so producers for unrelated streams never contend and a
// slow drain of one category cannot stall appends to another.
type Buffer struct {
	partitions map[events.Category]*partition
}

type partition struct {
	mu      sync.Mutex
	records []events.Record
}

// New creates a buffer with one partition per known category.
func New() *Buffer {
	partitions := make(map[events.Category]*partition, len(events.Categories()))
	for _, category := range events.Categories() {
		partitions[category] = &partition{}
	}
	return &Buffer{partitions: partitions}
}

// Append queues a record for the next flush of its category. Safe for
// concurrent use; the only failure mode is a record with an unknown category.
func (b *Buffer) Append(record events.Record) error {
	p, ok := b.partitions[record.Category()]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown buffer category %q", record.Category()))
	}
	p.mu.Lock()
	p.records = append(p.records, record)
	p.mu.Unlock()
	return nil
}

// Drain atomically removes and returns everything buffered for the category.
// Records appended while the drained batch is being written land in the next
// cycle. Unknown categories drain empty.
func (b *Buffer) Drain(category events.Category) []events.Record {
	p, ok := b.partitions[category]
	if !ok {
		return nil
	}
	p.mu.Lock()
	drained := p.records
	p.records = nil
	p.mu.Unlock()
	return drained
}

// Requeue puts records back at the front of the category after a failed
// write, so a later Drain returns them ahead of newer arrivals.
func (b *Buffer) Requeue(category events.Category, records []events.Record) {
	if len(records) == 0 {
		return
	}
	p, ok := b.partitions[category]
	if !ok {
		return
	}
	p.mu.Lock()
	merged := make([]events.Record, 0, len(records)+len(p.records))
	merged = append(merged, records...)
	merged = append(merged, p.records...)
	p.records = merged
	p.mu.Unlock()
}

// Size reports how many records are waiting in the category. Observability
// only; the value may be stale by the time the caller reads it.
func (b *Buffer) Size(category events.Category) int {
	p, ok := b.partitions[category]
	if !ok {
		return 0
	}
	p.mu.Lock()
	n := len(p.records)
	p.mu.Unlock()
	return n
}

// Sizes reports the waiting count for every category.
func (b *Buffer) Sizes() map[events.Category]int {
	sizes := make(map[events.Category]int, len(b.partitions))
	for category := range b.partitions {
		sizes[category] = b.Size(category)
	}
	return sizes
}
