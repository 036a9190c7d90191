package types

import (
	"fmt"
)

// PartitionIndex is the index of a partition within a topic, in [0, partitions).
type PartitionIndex = int32

// TimestampType tags how a message timestamp was obtained.
type TimestampType int8

// Timestamp kinds. The tag is stored verbatim with every record.
const (
	TimestampCreateTime TimestampType = 0
	TimestampExternal   TimestampType = 1
)

// Timestamp is a (kind, millis) pair.
type Timestamp struct {
	Type   TimestampType
	Millis int64
}

// IsZero reports whether the timestamp is unset and should be assigned at serialization time.
func (t Timestamp) IsZero() bool {
	return t.Type == TimestampCreateTime && t.Millis == 0
}

// String renders the timestamp as (kind, millis).
func (t Timestamp) String() string {
	return fmt.Sprintf("(%d, %d)", t.Type, t.Millis)
}

// Header is a single record header. Headers keep insertion order and names may repeat.
type Header struct {
	Key   string
	Value []byte
}

// Message is a single log record. A nil Key is a null key, distinct from an empty one.
type Message struct {
	Key       []byte
	Value     []byte
	Timestamp Timestamp
	Headers   []Header
	Partition PartitionIndex
	Offset    int64
}

// Watermark holds the offset bounds of a partition.
// Low is the lowest retained offset, High is the next offset to be assigned.
type Watermark struct {
	Low  int64
	High int64
}

// Size is the number of messages between the watermarks.
func (w Watermark) Size() int64 {
	return w.High - w.Low
}

// Segment identifies one immutable storage object holding the contiguous offsets
// [StartOffset, EndOffset] of a partition.
type Segment struct {
	Topic       string
	Name        string
	Partition   PartitionIndex
	StartOffset int64
	EndOffset   int64
}

// Count is the number of messages in the segment.
func (s Segment) Count() int64 {
	return s.EndOffset - s.StartOffset + 1
}

// Contains reports whether offset falls within the segment range.
func (s Segment) Contains(offset int64) bool {
	return offset >= s.StartOffset && offset <= s.EndOffset
}

// String provides a representation combining the topic, partition and offset range.
func (s Segment) String() string {
	return fmt.Sprintf("%v-%v[%v..%v]", s.Topic, s.Partition, s.StartOffset, s.EndOffset)
}
