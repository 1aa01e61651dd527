// Package logbuf keeps a bounded history of log records and hands each named
// consumer only the records it has not seen yet.
package logbuf

import "n2nmaid"

const (
	// DefaultCapacity is the number of records retained when New is given zero.
	DefaultCapacity = 2000
	// DefaultMaxConsumers bounds the cursors kept at once. Draining as a new
	// consumer past the bound evicts the least recently drained cursor.
	DefaultMaxConsumers = 16
)

type cursor struct {
	seq  uint64 // next sequence number to hand out
	used uint64 // drain tick of the last Drain
}

// Buffer is a ring of log records with per-consumer cursors. It is not safe
// for concurrent use; callers serialize access.
type Buffer struct {
	recs    []n2nmaid.LogRecord
	start   int    // index of the oldest retained record in recs
	count   int    // number of retained records
	first   uint64 // sequence number of the oldest retained record
	next    uint64 // sequence number the next Append receives
	dropped uint64

	cursors      map[string]*cursor
	maxConsumers int
	tick         uint64
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		recs:         make([]n2nmaid.LogRecord, capacity),
		cursors:      make(map[string]*cursor),
		maxConsumers: DefaultMaxConsumers,
	}
}

// Append stores rec and returns its sequence number. When the buffer is full
// the oldest record is overwritten.
func (b *Buffer) Append(rec n2nmaid.LogRecord) uint64 {
	seq := b.next
	b.next++
	if b.count == len(b.recs) {
		b.recs[b.start] = rec
		b.start = (b.start + 1) % len(b.recs)
		b.first++
		b.dropped++
		return seq
	}
	b.recs[(b.start+b.count)%len(b.recs)] = rec
	b.count++
	return seq
}

// Drain returns every retained record consumer has not received, oldest
// first, and advances its cursor. A consumer seen for the first time, or
// one whose cursor was evicted, starts at the oldest retained record.
func (b *Buffer) Drain(consumer string) []n2nmaid.LogRecord {
	b.tick++
	c, ok := b.cursors[consumer]
	if !ok {
		if len(b.cursors) >= b.maxConsumers {
			b.Forget(b.leastRecent())
		}
		c = &cursor{seq: b.first}
		b.cursors[consumer] = c
	}
	c.used = b.tick

	cur := max(c.seq, b.first)
	c.seq = b.next
	n := int(b.next - cur)
	if n <= 0 {
		return nil
	}
	out := make([]n2nmaid.LogRecord, 0, n)
	for i := int(cur - b.first); i < b.count; i++ {
		out = append(out, b.recs[(b.start+i)%len(b.recs)])
	}
	return out
}

func (b *Buffer) leastRecent() string {
	var (
		name   string
		oldest uint64
		found  bool
	)
	for n, c := range b.cursors {
		if !found || c.used < oldest {
			name, oldest, found = n, c.used, true
		}
	}
	return name
}

// Consumers reports how many cursors are held.
func (b *Buffer) Consumers() int { return len(b.cursors) }

// Dropped reports how many records were overwritten since the buffer was
// created. Consumers that lagged behind never see them.
func (b *Buffer) Dropped() uint64 { return b.dropped }

// Forget releases the cursor held for consumer.
func (b *Buffer) Forget(consumer string) {
	delete(b.cursors, consumer)
}
