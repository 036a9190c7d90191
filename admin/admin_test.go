package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CefBoud/monkafs/serde"
	"github.com/CefBoud/monkafs/storage"
	"github.com/CefBoud/monkafs/types"
)

func newAdmin(t *testing.T) *Admin {
	cfg := types.DefaultConfiguration()
	cfg.Backend = types.BackendMemory
	a, err := New(storage.NewMemory(), cfg)
	require.NoError(t, err)
	return a
}

func writeSegment(t *testing.T, a *Admin, topic string, partition int32, start, end int64) {
	ctx := context.Background()
	meta, err := a.Metadata(ctx, topic)
	require.NoError(t, err)
	var data []byte
	for o := start; o <= end; o++ {
		data = serde.AppendRecord(data, types.Message{Value: []byte("v"), Partition: partition, Offset: o}, a.Separator())
	}
	seg := types.Segment{Topic: topic, Name: serde.SegmentName(partition, start, end), Partition: partition, StartOffset: start, EndOffset: end}
	require.NoError(t, a.WriteSegment(ctx, meta, seg, data))
}

func TestValidateTopicName(t *testing.T) {
	for _, name := range []string{"orders", "test_topic_1", "a.b-c"} {
		assert.NoError(t, ValidateTopicName(name), name)
	}
	for _, name := range []string{"", ".", "..", "a/b", "a b", "*"} {
		assert.ErrorIs(t, ValidateTopicName(name), types.ErrInvalidTopic, name)
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	a := newAdmin(t)

	require.NoError(t, a.Create(ctx, "orders", CreateOptions{Partitions: 3, Compression: "gzip"}))
	meta, err := a.Metadata(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Partitions)
	assert.Equal(t, "gzip", meta.Compression)
	assert.NotEmpty(t, meta.ID)

	err = a.Create(ctx, "orders", CreateOptions{Partitions: 1})
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	require.NoError(t, a.Create(ctx, "orders", CreateOptions{Partitions: 1, ExistOK: true}))
	n, err := a.Partitions(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "ExistOK must not touch existing metadata")

	require.NoError(t, a.Create(ctx, "defaults", CreateOptions{}))
	meta, err = a.Metadata(ctx, "defaults")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Partitions)
	assert.Equal(t, "none", meta.Compression)

	assert.ErrorIs(t, a.Create(ctx, "bad", CreateOptions{Partitions: -1}), types.ErrInvalidPartitions)
	assert.ErrorIs(t, a.Create(ctx, "bad", CreateOptions{Compression: "brotli"}), types.ErrInvalidConfig)
	assert.ErrorIs(t, a.Create(ctx, "a/b", CreateOptions{}), types.ErrInvalidTopic)
}

func TestMetadataNotFound(t *testing.T) {
	ctx := context.Background()
	a := newAdmin(t)
	_, err := a.Metadata(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = a.Watermarks(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	ok, err := a.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTopicsAndDelete(t *testing.T) {
	ctx := context.Background()
	a := newAdmin(t)
	for _, name := range []string{"test_topic_1", "test_topic_2", "other"} {
		require.NoError(t, a.Create(ctx, name, CreateOptions{Partitions: 2}))
	}
	writeSegment(t, a, "test_topic_1", 0, 0, 2)

	names, err := a.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "test_topic_1", "test_topic_2"}, names)

	names, err = a.Topics(ctx, "test_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"test_topic_1", "test_topic_2"}, names)

	_, err = a.Topics(ctx, "[")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	deleted, err := a.Delete(ctx, "nomatch_*")
	require.NoError(t, err)
	assert.Empty(t, deleted)

	deleted, err = a.Delete(ctx, "test_topic_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"test_topic_1"}, deleted)

	keys, err := a.Backend().List(ctx, "test_topic_1/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	deleted, err = a.Delete(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "test_topic_2"}, deleted)
}

func TestListTopicsSizes(t *testing.T) {
	ctx := context.Background()
	a := newAdmin(t)
	require.NoError(t, a.Create(ctx, "orders", CreateOptions{Partitions: 2}))
	require.NoError(t, a.Create(ctx, "empty", CreateOptions{Partitions: 1}))
	writeSegment(t, a, "orders", 0, 0, 2)
	writeSegment(t, a, "orders", 0, 3, 3)
	writeSegment(t, a, "orders", 1, 0, 1)

	infos, err := a.ListTopics(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, types.TopicInfo{Name: "empty", Partitions: 1}, infos[0])
	assert.Equal(t, types.TopicInfo{Name: "orders", Partitions: 2}, infos[1])

	infos, err = a.ListTopics(ctx, ListOptions{Patterns: []string{"orders"}, Size: true, PartitionSizes: true})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(6), infos[0].Size)
	assert.Equal(t, map[types.PartitionIndex]int64{0: 4, 1: 2}, infos[0].PartitionSizes)
}

func TestWatermarksAndFindSegment(t *testing.T) {
	ctx := context.Background()
	a := newAdmin(t)
	require.NoError(t, a.Create(ctx, "orders", CreateOptions{Partitions: 3}))
	writeSegment(t, a, "orders", 0, 0, 2)
	writeSegment(t, a, "orders", 0, 3, 7)
	writeSegment(t, a, "orders", 1, 0, 0)

	marks, err := a.Watermarks(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, map[types.PartitionIndex]types.Watermark{
		0: {Low: 0, High: 8},
		1: {Low: 0, High: 1},
		2: {Low: 0, High: 0},
	}, marks)

	seg, err := a.FindSegment(ctx, "orders", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seg.StartOffset)
	assert.Equal(t, int64(7), seg.EndOffset)

	seg, err = a.FindSegment(ctx, "orders", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, serde.SegmentName(0, 0, 2), seg.Name)

	_, err = a.FindSegment(ctx, "orders", 0, 8)
	assert.ErrorIs(t, err, types.ErrOffsetOutOfRange)
	_, err = a.FindSegment(ctx, "orders", 0, -1)
	assert.ErrorIs(t, err, types.ErrOffsetOutOfRange)
	_, err = a.FindSegment(ctx, "orders", 2, 0)
	assert.ErrorIs(t, err, types.ErrOffsetOutOfRange)
	_, err = a.FindSegment(ctx, "orders", 5, 0)
	assert.ErrorIs(t, err, types.ErrNotFound)

	segs, err := a.ListSegments(ctx, "orders", 0)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, int64(8), segs[0].Count()+segs[1].Count())
}

func TestSegmentsIgnoresForeignObjects(t *testing.T) {
	ctx := context.Background()
	a := newAdmin(t)
	require.NoError(t, a.Create(ctx, "orders", CreateOptions{Partitions: 1}))
	writeSegment(t, a, "orders", 0, 0, 1)
	require.NoError(t, a.Backend().Write(ctx, "orders/partitions/README", []byte("x")))
	require.NoError(t, a.Backend().Write(ctx, "orders/partitions/"+serde.SegmentName(4, 0, 0), []byte("x")))

	segs, err := a.ListSegments(ctx, "orders", 0)
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

func newCachingAdmin(t *testing.T, backend storage.Backend) *Admin {
	cfg := types.DefaultConfiguration()
	cfg.Backend = types.BackendMemory
	cfg.SegmentCacheSize = 16
	a, err := New(backend, cfg)
	require.NoError(t, err)
	return a
}

// failingBackend refuses to delete one topic
type failingBackend struct {
	storage.Backend
	topic string
}

func (b failingBackend) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == b.topic+"/" {
		return errors.New("permission denied")
	}
	return b.Backend.DeletePrefix(ctx, prefix)
}

func TestDeleteIsBestEffort(t *testing.T) {
	ctx := context.Background()
	cfg := types.DefaultConfiguration()
	cfg.Backend = types.BackendMemory
	a, err := New(failingBackend{Backend: storage.NewMemory(), topic: "test_b"}, cfg)
	require.NoError(t, err)
	for _, name := range []string{"test_a", "test_b", "test_c"} {
		require.NoError(t, a.Create(ctx, name, CreateOptions{Partitions: 1}))
		writeSegment(t, a, name, 0, 0, 0)
	}

	deleted, err := a.Delete(ctx, "test_*")
	assert.Equal(t, []string{"test_a", "test_c"}, deleted)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrStorageWriteFailed)
	assert.Contains(t, err.Error(), "test_b")
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)

	names, err := a.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"test_b"}, names)
}

func TestTopicsSkipsDirectoriesWithoutMetadata(t *testing.T) {
	ctx := context.Background()
	a := newAdmin(t)
	require.NoError(t, a.Create(ctx, "orders", CreateOptions{Partitions: 1}))
	require.NoError(t, a.Backend().Write(ctx, "stray/partitions/"+serde.SegmentName(0, 0, 0), []byte("x")))
	require.NoError(t, a.Backend().Write(ctx, "README", []byte("x")))

	names, err := a.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, names)
}

func TestReadSegmentCompressedAndCached(t *testing.T) {
	ctx := context.Background()
	a := newCachingAdmin(t, storage.NewMemory())
	require.NoError(t, a.Create(ctx, "orders", CreateOptions{Partitions: 1, Compression: "zstd"}))
	writeSegment(t, a, "orders", 0, 0, 4)

	meta, err := a.Metadata(ctx, "orders")
	require.NoError(t, err)
	segs, err := a.ListSegments(ctx, "orders", 0)
	require.NoError(t, err)
	require.Len(t, segs, 1)

	data, err := a.ReadSegment(ctx, meta, segs[0])
	require.NoError(t, err)
	msgs, err := serde.DecodeSegment(data, a.Separator())
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, int64(4), msgs[4].Offset)

	// served from cache even when the object disappears underneath
	require.NoError(t, a.Backend().Delete(ctx, "orders/partitions/"+segs[0].Name))
	_, err = a.ReadSegment(ctx, meta, segs[0])
	require.NoError(t, err)

	_, err = a.Delete(ctx, "orders")
	require.NoError(t, err)
	_, err = a.ReadSegment(ctx, meta, segs[0])
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestCachedSegmentsFollowRewrites(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	a := newCachingAdmin(t, backend)
	other := newCachingAdmin(t, backend)

	write := func(a *Admin, value string) types.Segment {
		meta, err := a.Metadata(ctx, "orders")
		require.NoError(t, err)
		data := serde.AppendRecord(nil, types.Message{Value: []byte(value)}, a.Separator())
		seg := types.Segment{Topic: "orders", Name: serde.SegmentName(0, 0, 0), StartOffset: 0, EndOffset: 0}
		require.NoError(t, a.WriteSegment(ctx, meta, seg, data))
		return seg
	}
	read := func(a *Admin, seg types.Segment) string {
		meta, err := a.Metadata(ctx, "orders")
		require.NoError(t, err)
		data, err := a.ReadSegment(ctx, meta, seg)
		require.NoError(t, err)
		msgs, err := serde.DecodeSegment(data, a.Separator())
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		return string(msgs[0].Value)
	}

	require.NoError(t, a.Create(ctx, "orders", CreateOptions{Partitions: 1}))
	seg := write(a, "old")
	assert.Equal(t, "old", read(a, seg))

	// same handle overwrites the same segment name
	write(a, "again")
	assert.Equal(t, "again", read(a, seg))

	// another handle deletes and recreates the topic
	_, err := other.Delete(ctx, "orders")
	require.NoError(t, err)
	require.NoError(t, other.Create(ctx, "orders", CreateOptions{Partitions: 1}))
	write(other, "new")
	assert.Equal(t, "new", read(a, seg))
}

func TestCacheDisabledByDefault(t *testing.T) {
	a := newAdmin(t)
	assert.Nil(t, a.cache)
}

func TestReadSegmentCorrupt(t *testing.T) {
	ctx := context.Background()
	a := newAdmin(t)
	require.NoError(t, a.Create(ctx, "orders", CreateOptions{Partitions: 1, Compression: "gzip"}))
	seg := types.Segment{Topic: "orders", Name: serde.SegmentName(0, 0, 0)}
	require.NoError(t, a.Backend().Write(ctx, "orders/partitions/"+seg.Name, []byte("not gzip")))
	meta, err := a.Metadata(ctx, "orders")
	require.NoError(t, err)
	_, err = a.ReadSegment(ctx, meta, seg)
	assert.ErrorIs(t, err, types.ErrMalformedRecord)
}
