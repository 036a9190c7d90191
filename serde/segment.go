package serde

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentPrefix is the first comma-separated field of every segment name.
const SegmentPrefix = "partition"

const (
	partitionWidth = 9
	offsetWidth    = 21
)

// SegmentName returns partition,<partition:09d>,<start:021d>,<end:021d>.
// Zero padding keeps lexicographic order equal to numeric order.
func SegmentName(partition int32, startOffset, endOffset int64) string {
	return fmt.Sprintf("%s,%09d,%021d,%021d", SegmentPrefix, partition, startOffset, endOffset)
}

// ParseSegmentName is the inverse of SegmentName.
func ParseSegmentName(name string) (partition int32, startOffset, endOffset int64, err error) {
	fields := strings.Split(name, ",")
	if len(fields) != 4 || fields[0] != SegmentPrefix {
		return 0, 0, 0, fmt.Errorf("not a segment name: %q", name)
	}
	if len(fields[1]) != partitionWidth || len(fields[2]) != offsetWidth || len(fields[3]) != offsetWidth {
		return 0, 0, 0, fmt.Errorf("segment name %q has wrong field widths", name)
	}
	p, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil || p < 0 {
		return 0, 0, 0, fmt.Errorf("segment name %q: bad partition", name)
	}
	startOffset, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil || startOffset < 0 {
		return 0, 0, 0, fmt.Errorf("segment name %q: bad start offset", name)
	}
	endOffset, err = strconv.ParseInt(fields[3], 10, 64)
	if err != nil || endOffset < startOffset {
		return 0, 0, 0, fmt.Errorf("segment name %q: bad end offset", name)
	}
	return int32(p), startOffset, endOffset, nil
}
