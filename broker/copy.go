package broker

import (
	"context"
	"fmt"

	"github.com/CefBoud/monkafs/admin"
	"github.com/CefBoud/monkafs/consumer"
	"github.com/CefBoud/monkafs/producer"
	"github.com/CefBoud/monkafs/serde"
	"github.com/CefBoud/monkafs/types"
)

const defaultCopyBatchSize = 1000

// CopyOptions control Copy. Zero values copy everything from the reset policy's
// start in batches of 1000.
type CopyOptions struct {
	Group   types.GroupID
	Offsets map[types.PartitionIndex]int64

	BatchSize int
	// Limit caps the number of source records read; 0 or consumer.Unlimited means no cap.
	Limit int

	KeepPartitions bool
	KeepTimestamps bool

	// FlatMap, when set, replaces every source record by zero or more records.
	FlatMap func(consumer.Record) ([]consumer.Record, error)
}

func appendRecord(keepPartitions, keepTimestamps bool) func(producer.Batch, consumer.Record) (producer.Batch, error) {
	return func(batch producer.Batch, rec consumer.Record) (producer.Batch, error) {
		batch.Values = append(batch.Values, rec.Value)
		batch.Keys = append(batch.Keys, rec.Key)
		batch.Headers = append(batch.Headers, rec.Headers)
		if keepTimestamps {
			batch.Timestamps = append(batch.Timestamps, rec.Timestamp)
		}
		if keepPartitions {
			batch.Partitions = append(batch.Partitions, rec.Partition)
		}
		return batch, nil
	}
}

// Copy reads srcTopic from src and writes it to dstTopic on dst, batch by batch. The
// destination is created with the source partition count and compression when missing.
// It returns the number of records read and written.
func Copy(ctx context.Context, src *Broker, srcTopic string, dst *Broker, dstTopic string, opts CopyOptions) (read, written int, err error) {
	meta, err := src.admin.Metadata(ctx, srcTopic)
	if err != nil {
		return 0, 0, err
	}
	err = dst.Create(ctx, dstTopic, admin.CreateOptions{Partitions: meta.Partitions, Compression: meta.Compression, ExistOK: true})
	if err != nil {
		return 0, 0, err
	}
	reader, err := src.OpenReader(ctx, []string{srcTopic}, consumer.Options{
		KeyType:   serde.Bytes,
		ValueType: serde.Bytes,
		Offsets:   opts.Offsets,
		Group:     opts.Group,
	})
	if err != nil {
		return 0, 0, err
	}
	defer reader.Close(ctx)
	writer, err := dst.OpenWriter(ctx, dstTopic, producer.Options{
		KeyType:        serde.Bytes,
		ValueType:      serde.Bytes,
		KeepPartitions: opts.KeepPartitions,
		KeepTimestamps: opts.KeepTimestamps,
	})
	if err != nil {
		return 0, 0, err
	}
	defer writer.Close()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultCopyBatchSize
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = consumer.Unlimited
	}
	combine := appendRecord(opts.KeepPartitions, opts.KeepTimestamps)
	if opts.FlatMap != nil {
		combine = func(batch producer.Batch, rec consumer.Record) (producer.Batch, error) {
			mapped, err := opts.FlatMap(rec)
			if err != nil {
				return batch, fmt.Errorf("copy %s@%d-%d: %w", srcTopic, rec.Partition, rec.Offset, err)
			}
			for _, m := range mapped {
				batch, _ = appendRecord(opts.KeepPartitions, opts.KeepTimestamps)(batch, m)
			}
			return batch, nil
		}
	}

	consumed := 0
	counting := func(batch producer.Batch, rec consumer.Record) (producer.Batch, error) {
		consumed++
		return combine(batch, rec)
	}
	for limit < 0 || read < limit {
		n := batchSize
		if limit >= 0 && limit-read < n {
			n = limit - read
		}
		consumed = 0
		batch, err := consumer.Fold(ctx, reader, producer.Batch{}, counting, n)
		read += consumed
		if err != nil {
			return read, written, err
		}
		if consumed == 0 {
			break
		}
		w, err := writer.Write(ctx, batch)
		written += w
		if err != nil {
			return read, written, err
		}
	}
	src.logger.Info("copied topic", "from", srcTopic, "to", dstTopic, "read", read, "written", written)
	return read, written, nil
}
