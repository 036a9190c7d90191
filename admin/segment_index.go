package admin

import (
	"math"

	"github.com/google/btree"

	"github.com/CefBoud/monkafs/types"
)

// SegmentIndex orders the segments of one partition by start offset.
type SegmentIndex struct {
	tree *btree.BTreeG[types.Segment]
}

func segmentLess(a, b types.Segment) bool {
	if a.StartOffset != b.StartOffset {
		return a.StartOffset < b.StartOffset
	}
	return a.EndOffset < b.EndOffset
}

// NewSegmentIndex indexes segments; input order does not matter.
func NewSegmentIndex(segments []types.Segment) *SegmentIndex {
	tree := btree.NewG[types.Segment](8, segmentLess)
	for _, s := range segments {
		tree.ReplaceOrInsert(s)
	}
	return &SegmentIndex{tree: tree}
}

// Len is the number of segments
func (i *SegmentIndex) Len() int {
	return i.tree.Len()
}

// Segments returns all segments by ascending start offset
func (i *SegmentIndex) Segments() []types.Segment {
	res := make([]types.Segment, 0, i.tree.Len())
	i.tree.Ascend(func(s types.Segment) bool {
		res = append(res, s)
		return true
	})
	return res
}

// Low is the first retained offset, 0 for an empty partition
func (i *SegmentIndex) Low() int64 {
	if first, ok := i.tree.Min(); ok {
		return first.StartOffset
	}
	return 0
}

// High is the next offset to be assigned: the last end offset + 1, or 0
func (i *SegmentIndex) High() int64 {
	var high int64
	// a colliding write may leave a shorter segment after a longer one with the same start
	i.tree.Ascend(func(s types.Segment) bool {
		if s.EndOffset+1 > high {
			high = s.EndOffset + 1
		}
		return true
	})
	return high
}

// Watermark combines Low and High
func (i *SegmentIndex) Watermark() types.Watermark {
	return types.Watermark{Low: i.Low(), High: i.High()}
}

// Find returns the segment whose range contains offset
func (i *SegmentIndex) Find(offset int64) (types.Segment, bool) {
	var found types.Segment
	ok := false
	i.tree.DescendLessOrEqual(types.Segment{StartOffset: offset, EndOffset: math.MaxInt64}, func(s types.Segment) bool {
		if s.Contains(offset) {
			found, ok = s, true
		}
		return false
	})
	return found, ok
}

// From returns the segment containing offset and every later segment. When no segment
// contains offset, it returns the segments starting after it.
func (i *SegmentIndex) From(offset int64) []types.Segment {
	start := offset
	if s, ok := i.Find(offset); ok {
		start = s.StartOffset
	}
	var res []types.Segment
	i.tree.AscendGreaterOrEqual(types.Segment{StartOffset: start}, func(s types.Segment) bool {
		res = append(res, s)
		return true
	})
	return res
}
