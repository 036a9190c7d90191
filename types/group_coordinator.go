package types

// GroupID represents the identifier of a consumer group.
type GroupID string

// OffsetInvalid is reported for partitions a group has never committed.
const OffsetInvalid int64 = -1001

// GroupOffsetKey identifies a committed offset within a group.
type GroupOffsetKey struct {
	TopicName      string
	PartitionIndex PartitionIndex
}
