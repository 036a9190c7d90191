package types

// TopicMetadata is persisted once per topic at creation time. ID changes when a topic
// is deleted and created again under the same name.
type TopicMetadata struct {
	ID          string `json:"id,omitempty"`
	Partitions  int    `json:"partitions"`
	Compression string `json:"compression"`
}

// TopicInfo is a topic listing entry. Size and PartitionSizes are only filled when requested.
type TopicInfo struct {
	Name           string
	Partitions     int
	Size           int64
	PartitionSizes map[PartitionIndex]int64
}
