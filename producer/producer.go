// Package producer appends messages to a topic by writing one new segment per partition and call.
package producer

import (
	"context"
	"fmt"
	"sync"

	metrics "github.com/armon/go-metrics"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/CefBoud/monkafs/admin"
	"github.com/CefBoud/monkafs/logging"
	"github.com/CefBoud/monkafs/serde"
	"github.com/CefBoud/monkafs/types"
	"github.com/CefBoud/monkafs/utils"
)

// NoPartition in Batch.Partitions lets the writer pick the partition.
const NoPartition types.PartitionIndex = -1

// Options configure a Writer. The payload types are fixed for the writer's lifetime.
type Options struct {
	KeyType   serde.PayloadType
	ValueType serde.PayloadType

	// KeepPartitions honors Batch.Partitions. A non-empty Batch.Partitions implies it.
	KeepPartitions bool
	// KeepTimestamps stores unset timestamps as they are instead of stamping the current time.
	KeepTimestamps bool

	// Partitions and Compression are used when Open has to create the topic.
	Partitions  int
	Compression string
}

// Batch is the input of one Write call. Values drives the batch length; Keys and Headers
// may hold a single entry applied to every value.
type Batch struct {
	Values     []any
	Keys       []any
	Timestamps []types.Timestamp
	Headers    [][]types.Header
	Partitions []types.PartitionIndex
}

// Writer produces to a single topic. Writes through one Writer are serialized; nothing
// protects against another Writer targeting the same partitions concurrently.
type Writer struct {
	admin  *admin.Admin
	topic  string
	meta   types.TopicMetadata
	opts   Options
	logger hclog.Logger
	now    func() int64

	mu     sync.Mutex
	closed bool
}

// Open returns a Writer for topic, creating the topic when it does not exist.
func Open(ctx context.Context, a *admin.Admin, topic string, opts Options) (*Writer, error) {
	err := a.Create(ctx, topic, admin.CreateOptions{Partitions: opts.Partitions, Compression: opts.Compression, ExistOK: true})
	if err != nil {
		return nil, err
	}
	meta, err := a.Metadata(ctx, topic)
	if err != nil {
		return nil, err
	}
	return &Writer{
		admin:  a,
		topic:  topic,
		meta:   meta,
		opts:   opts,
		logger: logging.Named("producer").With("topic", topic),
		now:    utils.NowAsUnixMilli,
	}, nil
}

// Topic returns the topic the writer produces to
func (w *Writer) Topic() string {
	return w.topic
}

// Partitions returns the partition count of the topic
func (w *Writer) Partitions() int {
	return w.meta.Partitions
}

func (b Batch) validate(partitions int) error {
	n := len(b.Values)
	if l := len(b.Keys); l > 1 && l != n {
		return fmt.Errorf("%w: %d keys for %d values", types.ErrInvalidConfig, l, n)
	}
	if l := len(b.Headers); l > 1 && l != n {
		return fmt.Errorf("%w: %d header lists for %d values", types.ErrInvalidConfig, l, n)
	}
	if l := len(b.Timestamps); l > 0 && l != n {
		return fmt.Errorf("%w: %d timestamps for %d values", types.ErrInvalidConfig, l, n)
	}
	if l := len(b.Partitions); l > 0 && l != n {
		return fmt.Errorf("%w: %d partitions for %d values", types.ErrInvalidConfig, l, n)
	}
	for _, p := range b.Partitions {
		if p != NoPartition && (p < 0 || int(p) >= partitions) {
			return fmt.Errorf("%w: partition %d not in [0, %d)", types.ErrInvalidPartitions, p, partitions)
		}
	}
	return nil
}

func pick[T any](s []T, i int) (T, bool) {
	var zero T
	switch len(s) {
	case 0:
		return zero, false
	case 1:
		return s[0], true
	}
	return s[i], true
}

// KeyPartition maps a non-null key to a partition.
func KeyPartition(key []byte, partitions int) types.PartitionIndex {
	return types.PartitionIndex(xxhash.Sum64(key) % uint64(partitions))
}

// Write appends the batch and returns the number of messages stored. Partition segments
// are written independently: on failure the count only covers the partitions that succeeded.
func (w *Writer) Write(ctx context.Context, batch Batch) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, fmt.Errorf("%w: writer for topic %s", types.ErrClosed, w.topic)
	}
	partitions := w.meta.Partitions
	if err := batch.validate(partitions); err != nil {
		return 0, err
	}
	if len(batch.Values) == 0 {
		return 0, nil
	}

	marks, err := w.admin.Watermarks(ctx, w.topic)
	if err != nil {
		return 0, err
	}
	next := make([]int64, partitions)
	for p := range next {
		next[p] = marks[types.PartitionIndex(p)].High
	}
	keepPartitions := w.opts.KeepPartitions || len(batch.Partitions) > 0
	roundRobin := 0

	buffers := make([][]byte, partitions)
	counts := make([]int, partitions)
	for i, v := range batch.Values {
		value, err := w.opts.ValueType.Encode(v)
		if err != nil {
			return 0, err
		}
		var key []byte
		if k, ok := pick(batch.Keys, i); ok {
			if key, err = w.opts.KeyType.Encode(k); err != nil {
				return 0, err
			}
		}

		partition := NoPartition
		if keepPartitions && len(batch.Partitions) > 0 {
			partition = batch.Partitions[i]
		}
		if partition == NoPartition {
			if key == nil {
				partition = types.PartitionIndex(roundRobin)
				roundRobin = (roundRobin + 1) % partitions
			} else {
				partition = KeyPartition(key, partitions)
			}
		}

		var ts types.Timestamp
		if len(batch.Timestamps) > 0 {
			ts = batch.Timestamps[i]
		}
		if ts.IsZero() && !w.opts.KeepTimestamps {
			ts = types.Timestamp{Type: types.TimestampCreateTime, Millis: w.now()}
		}
		headers, _ := pick(batch.Headers, i)

		msg := types.Message{
			Key:       key,
			Value:     value,
			Timestamp: ts,
			Headers:   headers,
			Partition: partition,
			Offset:    next[partition],
		}
		buffers[partition] = serde.AppendRecord(buffers[partition], msg, w.admin.Separator())
		next[partition]++
		counts[partition]++
	}

	var result *multierror.Error
	written := 0
	for p, buf := range buffers {
		if counts[p] == 0 {
			continue
		}
		partition := types.PartitionIndex(p)
		start := marks[partition].High
		end := start + int64(counts[p]) - 1
		seg := types.Segment{
			Topic:       w.topic,
			Name:        serde.SegmentName(partition, start, end),
			Partition:   partition,
			StartOffset: start,
			EndOffset:   end,
		}
		if err := w.admin.WriteSegment(ctx, w.meta, seg, buf); err != nil {
			w.logger.Error("segment write failed", "segment", seg.Name, "error", err)
			result = multierror.Append(result, err)
			continue
		}
		written += counts[p]
		w.logger.Trace("wrote segment", "segment", seg.Name, "messages", counts[p])
	}
	metrics.IncrCounterWithLabels([]string{"producer", "messages"}, float32(written), []metrics.Label{{Name: "topic", Value: w.topic}})
	return written, result.ErrorOrNil()
}

// Close releases the writer. Further writes return ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}
