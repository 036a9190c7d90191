// Package consumer reads a topic as a bounded sequence of records, starting from offsets
// resolved once when the reader is opened.
package consumer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	metrics "github.com/armon/go-metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/CefBoud/monkafs/admin"
	"github.com/CefBoud/monkafs/logging"
	"github.com/CefBoud/monkafs/offsets"
	"github.com/CefBoud/monkafs/serde"
	"github.com/CefBoud/monkafs/types"
)

// Unlimited as a Fold or Read limit consumes every remaining record.
const Unlimited = -1

// Options configure a Reader.
type Options struct {
	KeyType   serde.PayloadType
	ValueType serde.PayloadType

	// Offsets pins the start offset of some partitions. A negative offset n starts n
	// records before the high watermark, never below the low watermark.
	Offsets map[types.PartitionIndex]int64
	// AutoOffsetReset applies to partitions with neither a pinned nor a committed offset.
	// Empty means the configured default.
	AutoOffsetReset string

	// Group names the consumer group committed offsets are stored under. Empty means a
	// fresh group with the configured prefix.
	Group      types.GroupID
	AutoCommit bool
}

// Record is a message with its key and value converted to the reader's payload types.
type Record struct {
	Key       any
	Value     any
	Timestamp types.Timestamp
	Headers   []types.Header
	Partition types.PartitionIndex
	Offset    int64
}

// Reader folds over a snapshot of a topic's segments taken at Open. Segments written
// afterwards are not visited.
type Reader struct {
	admin  *admin.Admin
	store  *offsets.Store
	topic  string
	group  types.GroupID
	meta   types.TopicMetadata
	opts   Options
	logger hclog.Logger

	mu      sync.Mutex
	closed  bool
	marks   map[types.PartitionIndex]types.Watermark
	start   map[types.PartitionIndex]int64
	cursor  map[types.PartitionIndex]int64
	queue   []types.Segment // interleaved: the nth segment of every partition before any (n+1)th
	next    int             // index in queue of the next segment to load
	current types.Segment
	it      *serde.RecordIterator
	pending *types.Message // taken from it but not folded; handed out again first
}

// Open resolves the start offsets of every partition of the single topic in topics and
// snapshots the segments to visit. store may be nil, which disables committed offsets.
func Open(ctx context.Context, a *admin.Admin, store *offsets.Store, topics []string, opts Options) (*Reader, error) {
	if len(topics) > 1 {
		return nil, fmt.Errorf("%w: a reader serves one topic, got %v", types.ErrUnsupportedOperation, topics)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: no topic to read", types.ErrInvalidConfig)
	}
	topic := topics[0]
	cfg := a.Config()

	reset := strings.ToLower(opts.AutoOffsetReset)
	if reset == "" {
		reset = strings.ToLower(cfg.AutoOffsetReset)
	}
	if reset != types.OffsetResetEarliest && reset != types.OffsetResetLatest {
		return nil, fmt.Errorf("%w: unknown auto offset reset %q", types.ErrInvalidConfig, reset)
	}
	group := opts.Group
	if group == "" {
		group = types.GroupID(cfg.ConsumerGroupPrefix + uuid.NewString())
	}

	meta, err := a.Metadata(ctx, topic)
	if err != nil {
		return nil, err
	}
	for p := range opts.Offsets {
		if p < 0 || int(p) >= meta.Partitions {
			return nil, fmt.Errorf("%w: topic %s has no partition %d", types.ErrNotFound, topic, p)
		}
	}
	// one listing backs both the watermarks and the segments to visit
	indexes, err := a.Segments(ctx, topic)
	if err != nil {
		return nil, err
	}
	committed := map[types.PartitionIndex]int64{}
	if store != nil {
		if committed, err = store.Committed(group, topic); err != nil {
			return nil, err
		}
	}

	r := &Reader{
		admin:  a,
		store:  store,
		topic:  topic,
		group:  group,
		meta:   meta,
		opts:   opts,
		logger: logging.Named("consumer").With("topic", topic, "group", group),
		marks:  make(map[types.PartitionIndex]types.Watermark, meta.Partitions),
		start:  make(map[types.PartitionIndex]int64, meta.Partitions),
		cursor: make(map[types.PartitionIndex]int64, meta.Partitions),
	}
	perPartition := make([][]types.Segment, meta.Partitions)
	for i := 0; i < meta.Partitions; i++ {
		p := types.PartitionIndex(i)
		idx := indexes[p]
		mark := idx.Watermark()
		start := resolveOffset(p, mark, opts.Offsets, committed, reset)
		r.marks[p] = mark
		r.start[p] = start
		r.cursor[p] = start
		if start < mark.High {
			perPartition[i] = idx.From(start)
		}
	}
	r.queue = interleave(perPartition)
	r.logger.Debug("opened reader", "start", r.start, "segments", len(r.queue))
	return r, nil
}

func resolveOffset(p types.PartitionIndex, mark types.Watermark, pinned, committed map[types.PartitionIndex]int64, reset string) int64 {
	if off, ok := pinned[p]; ok {
		if off >= 0 {
			return off
		}
		if off = mark.High + off; off > mark.Low {
			return off
		}
		return mark.Low
	}
	if off, ok := committed[p]; ok {
		return off
	}
	if reset == types.OffsetResetLatest {
		return mark.High
	}
	return mark.Low
}

func interleave(perPartition [][]types.Segment) []types.Segment {
	var queue []types.Segment
	for n := 0; ; n++ {
		added := false
		for _, segs := range perPartition {
			if n < len(segs) {
				queue = append(queue, segs[n])
				added = true
			}
		}
		if !added {
			return queue
		}
	}
}

// Topic returns the topic being read
func (r *Reader) Topic() string {
	return r.topic
}

// Group returns the consumer group of the reader
func (r *Reader) Group() types.GroupID {
	return r.group
}

// Watermarks returns the watermarks snapshotted at Open
func (r *Reader) Watermarks() map[types.PartitionIndex]types.Watermark {
	res := make(map[types.PartitionIndex]types.Watermark, len(r.marks))
	for p, w := range r.marks {
		res[p] = w
	}
	return res
}

// Cursor returns the next offset to read for every partition.
func (r *Reader) Cursor() map[types.PartitionIndex]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make(map[types.PartitionIndex]int64, len(r.cursor))
	for p, o := range r.cursor {
		res[p] = o
	}
	return res
}

// nextMessage returns the next message at or past the cursor of its partition.
// ok is false once every snapshotted segment is consumed.
func (r *Reader) nextMessage(ctx context.Context) (msg types.Message, ok bool, err error) {
	if r.pending != nil {
		msg, r.pending = *r.pending, nil
		return msg, true, nil
	}
	for {
		if r.it != nil {
			if r.it.Next() {
				m := r.it.Message()
				if m.Offset < r.cursor[r.current.Partition] {
					continue
				}
				return m, true, nil
			}
			if err := r.it.Err(); err != nil {
				return msg, false, fmt.Errorf("segment %s: %w", r.current, err)
			}
			r.it = nil
		}
		if r.next >= len(r.queue) {
			return msg, false, nil
		}
		if err := ctx.Err(); err != nil {
			return msg, false, err
		}
		seg := r.queue[r.next]
		data, err := r.admin.ReadSegment(ctx, r.meta, seg)
		if err != nil {
			return msg, false, err
		}
		r.next++
		r.current = seg
		r.it = serde.NewRecordIterator(data, r.admin.Separator())
	}
}

func (r *Reader) toRecord(m types.Message) (Record, error) {
	key, err := r.opts.KeyType.Decode(m.Key)
	if err != nil {
		return Record{}, fmt.Errorf("%w: key at %s-%d@%d: %v", types.ErrMalformedRecord, r.topic, m.Partition, m.Offset, err)
	}
	value, err := r.opts.ValueType.Decode(m.Value)
	if err != nil {
		return Record{}, fmt.Errorf("%w: value at %s-%d@%d: %v", types.ErrMalformedRecord, r.topic, m.Partition, m.Offset, err)
	}
	return Record{
		Key:       key,
		Value:     value,
		Timestamp: m.Timestamp,
		Headers:   m.Headers,
		Partition: r.current.Partition,
		Offset:    m.Offset,
	}, nil
}

// Fold feeds up to limit records to combine, continuing where the previous call on r
// stopped. It returns the accumulator and the first error met. A record that fails to
// decode or that combine rejects is not consumed: the cursor stays on it and the next
// call starts with it.
func Fold[A any](ctx context.Context, r *Reader, initial A, combine func(A, Record) (A, error), limit int) (A, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc := initial
	if r.closed {
		return acc, fmt.Errorf("%w: reader for topic %s", types.ErrClosed, r.topic)
	}
	count := 0
	defer func() {
		metrics.IncrCounterWithLabels([]string{"consumer", "messages"}, float32(count), []metrics.Label{{Name: "topic", Value: r.topic}})
	}()
	for limit < 0 || count < limit {
		m, ok, err := r.nextMessage(ctx)
		if err != nil {
			return acc, err
		}
		if !ok {
			break
		}
		rec, err := r.toRecord(m)
		if err != nil {
			r.pending = &m
			return acc, err
		}
		next, err := combine(acc, rec)
		if err != nil {
			r.pending = &m
			return next, err
		}
		acc = next
		r.cursor[r.current.Partition] = m.Offset + 1
		count++
	}
	return acc, nil
}

// Read returns up to limit records in fold order.
func (r *Reader) Read(ctx context.Context, limit int) ([]Record, error) {
	return Fold(ctx, r, []Record(nil), func(acc []Record, rec Record) ([]Record, error) {
		return append(acc, rec), nil
	}, limit)
}

// Commit stores the cursor as the group's committed offsets.
func (r *Reader) Commit(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("%w: no offsets store configured", types.ErrUnsupportedOperation)
	}
	cursor := r.Cursor()
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.store.Commit(r.group, r.topic, cursor)
}

// Offsets returns the group's committed offsets for every partition, OffsetInvalid
// for partitions never committed.
func (r *Reader) Offsets(ctx context.Context) (map[types.PartitionIndex]int64, error) {
	res := make(map[types.PartitionIndex]int64, r.meta.Partitions)
	for p := 0; p < r.meta.Partitions; p++ {
		res[types.PartitionIndex(p)] = types.OffsetInvalid
	}
	if r.store == nil {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	committed, err := r.store.Committed(r.group, r.topic)
	if err != nil {
		return nil, err
	}
	for p, o := range committed {
		if _, ok := res[p]; ok {
			res[p] = o
		}
	}
	return res, nil
}

// Close ends the session, committing the cursor first when AutoCommit is set.
func (r *Reader) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.it = nil
	r.mu.Unlock()
	if r.opts.AutoCommit && r.store != nil {
		return r.Commit(ctx)
	}
	return nil
}
