// Package admin manages topics and their segment objects on a storage backend.
//
// Layout, relative to the backend root:
//
//	<topic>/topic.json                    topic metadata
//	<topic>/partitions/<segment name>     one immutable object per write and partition
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	metrics "github.com/armon/go-metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
	"github.com/samber/lo"

	"github.com/CefBoud/monkafs/compress"
	"github.com/CefBoud/monkafs/logging"
	"github.com/CefBoud/monkafs/serde"
	"github.com/CefBoud/monkafs/storage"
	"github.com/CefBoud/monkafs/types"
)

const (
	metadataFile  = "topic.json"
	partitionsDir = "partitions"

	maxTopicNameLength = 249
)

var legalTopicName = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// stored segment buffers; backends are done with data once Write returns
var payloadBuffers = sync.Pool{New: func() any { return new([]byte) }}

// Admin performs topic administration and segment I/O for one backend.
// It is safe for concurrent use.
type Admin struct {
	backend storage.Backend
	config  types.Configuration
	cache   *lru.Cache // decompressed segment bytes by topic ID and key; nil when disabled
	logger  hclog.Logger
}

// New returns an Admin on backend. A positive config.SegmentCacheSize enables the segment cache.
// Cached entries are dropped on this Admin's own writes and deletes. A topic deleted and
// created again by another handle gets a new ID and misses the cache, but a segment
// overwritten in place by another handle keeps being served from it until evicted.
func New(backend storage.Backend, config types.Configuration) (*Admin, error) {
	a := &Admin{
		backend: backend,
		config:  config,
		logger:  logging.Named("admin"),
	}
	if config.SegmentCacheSize > 0 {
		cache, err := lru.New(config.SegmentCacheSize)
		if err != nil {
			return nil, fmt.Errorf("%w: segment cache: %v", types.ErrInvalidConfig, err)
		}
		a.cache = cache
	}
	return a, nil
}

// Backend returns the underlying storage backend
func (a *Admin) Backend() storage.Backend {
	return a.backend
}

// Config returns the configuration the admin was built with
func (a *Admin) Config() types.Configuration {
	return a.config
}

// Separator returns the configured record separator
func (a *Admin) Separator() []byte {
	return a.config.MessageSeparator
}

// ValidateTopicName rejects names that cannot be used as a key prefix.
func ValidateTopicName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", types.ErrInvalidTopic, name)
	}
	if len(name) > maxTopicNameLength {
		return fmt.Errorf("%w: %q is longer than %d characters", types.ErrInvalidTopic, name, maxTopicNameLength)
	}
	if !legalTopicName.MatchString(name) {
		return fmt.Errorf("%w: %q contains characters other than ASCII alphanumerics, '.', '_' and '-'", types.ErrInvalidTopic, name)
	}
	return nil
}

func topicPrefix(topic string) string {
	return topic + "/"
}

func metadataKey(topic string) string {
	return path.Join(topic, metadataFile)
}

func partitionsPrefix(topic string) string {
	return path.Join(topic, partitionsDir) + "/"
}

func segmentKey(topic, name string) string {
	return path.Join(topic, partitionsDir, name)
}

func cacheKey(meta types.TopicMetadata, key string) string {
	return meta.ID + "|" + key
}

// CreateOptions controls topic creation. Zero values fall back to the configuration defaults.
type CreateOptions struct {
	Partitions  int
	Compression string
	ExistOK     bool
}

// Create persists the metadata of a new topic. An existing topic yields ErrAlreadyExists
// unless ExistOK is set, in which case its metadata is left untouched.
func (a *Admin) Create(ctx context.Context, topic string, opts CreateOptions) error {
	if err := ValidateTopicName(topic); err != nil {
		return err
	}
	partitions := opts.Partitions
	if partitions == 0 {
		partitions = a.config.DefaultPartitions
	}
	if partitions < 1 {
		return fmt.Errorf("%w: topic %s, partitions %d", types.ErrInvalidPartitions, topic, partitions)
	}
	compression := opts.Compression
	if compression == "" {
		compression = a.config.Compression
	}
	if compression == "" {
		compression = "none"
	}
	if _, err := compress.Lookup(compression); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}

	exists, err := a.Exists(ctx, topic)
	if err != nil {
		return err
	}
	if exists {
		if opts.ExistOK {
			return nil
		}
		return fmt.Errorf("%w: %s", types.ErrAlreadyExists, topic)
	}

	data, err := json.Marshal(types.TopicMetadata{ID: uuid.NewString(), Partitions: partitions, Compression: compression})
	if err != nil {
		return err
	}
	if err := a.backend.Write(ctx, metadataKey(topic), data); err != nil {
		return fmt.Errorf("%w: create topic %s: %v", types.ErrStorageWriteFailed, topic, err)
	}
	metrics.IncrCounter([]string{"admin", "topics", "created"}, 1)
	a.logger.Info("created topic", "topic", topic, "partitions", partitions, "compression", compression)
	return nil
}

// Exists reports whether topic has metadata.
func (a *Admin) Exists(ctx context.Context, topic string) (bool, error) {
	ok, err := a.backend.Exists(ctx, metadataKey(topic))
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrStorageReadFailed, err)
	}
	return ok, nil
}

// Metadata loads the metadata of topic or returns ErrNotFound.
func (a *Admin) Metadata(ctx context.Context, topic string) (types.TopicMetadata, error) {
	var meta types.TopicMetadata
	data, err := a.backend.Read(ctx, metadataKey(topic))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return meta, fmt.Errorf("%w: topic %s", types.ErrNotFound, topic)
	}
	if err != nil {
		return meta, fmt.Errorf("%w: %v", types.ErrStorageReadFailed, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("%w: metadata of topic %s: %v", types.ErrStorageReadFailed, topic, err)
	}
	if meta.Compression == "" {
		meta.Compression = "none"
	}
	return meta, nil
}

// Partitions returns the partition count of topic.
func (a *Admin) Partitions(ctx context.Context, topic string) (int, error) {
	meta, err := a.Metadata(ctx, topic)
	if err != nil {
		return 0, err
	}
	return meta.Partitions, nil
}

// Topics returns the sorted names of topics matching any of patterns. No pattern matches all.
// Patterns use path.Match syntax.
func (a *Admin) Topics(ctx context.Context, patterns ...string) ([]string, error) {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", types.ErrInvalidConfig, p, err)
		}
	}
	dirs, err := a.backend.ListDirs(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageReadFailed, err)
	}
	candidates := lo.Filter(lo.Map(dirs, func(dir string, _ int) string {
		return strings.TrimSuffix(dir, "/")
	}), func(name string, _ int) bool {
		return len(patterns) == 0 || lo.SomeBy(patterns, func(p string) bool {
			ok, _ := path.Match(p, name)
			return ok
		})
	})
	// directories without metadata are leftovers or foreign data
	names := make([]string, 0, len(candidates))
	for _, name := range candidates {
		ok, err := a.Exists(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListOptions controls ListTopics. Size and PartitionSizes require a segment listing per topic.
type ListOptions struct {
	Patterns       []string
	Size           bool
	PartitionSizes bool
}

// ListTopics describes the topics matching opts.Patterns, sorted by name.
func (a *Admin) ListTopics(ctx context.Context, opts ListOptions) ([]types.TopicInfo, error) {
	names, err := a.Topics(ctx, opts.Patterns...)
	if err != nil {
		return nil, err
	}
	infos := make([]types.TopicInfo, 0, len(names))
	for _, name := range names {
		meta, err := a.Metadata(ctx, name)
		if errors.Is(err, types.ErrNotFound) {
			// deleted between listing and reading
			continue
		}
		if err != nil {
			return nil, err
		}
		info := types.TopicInfo{Name: name, Partitions: meta.Partitions}
		if opts.Size || opts.PartitionSizes {
			marks, err := a.Watermarks(ctx, name)
			if err != nil {
				return nil, err
			}
			info.Size = lo.SumBy(lo.Values(marks), func(w types.Watermark) int64 { return w.Size() })
			if opts.PartitionSizes {
				info.PartitionSizes = lo.MapValues(marks, func(w types.Watermark, _ types.PartitionIndex) int64 { return w.Size() })
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Delete removes every topic matching pattern together with its segments and returns
// the deleted names. An exact topic name is a valid pattern.
func (a *Admin) Delete(ctx context.Context, pattern string) ([]string, error) {
	names, err := a.Topics(ctx, pattern)
	if err != nil {
		return nil, err
	}
	var result *multierror.Error
	deleted := make([]string, 0, len(names))
	for _, name := range names {
		if err := a.backend.DeletePrefix(ctx, topicPrefix(name)); err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: delete topic %s: %v", types.ErrStorageWriteFailed, name, err))
			continue
		}
		deleted = append(deleted, name)
		a.logger.Info("deleted topic", "topic", name)
	}
	if len(names) > 0 && a.cache != nil {
		a.cache.Purge()
	}
	metrics.IncrCounter([]string{"admin", "topics", "deleted"}, float32(len(deleted)))
	return deleted, result.ErrorOrNil()
}

// Segments lists the segments of every partition of topic in one backend listing.
// Every partition in [0, partitions) has an entry, possibly empty.
func (a *Admin) Segments(ctx context.Context, topic string) (map[types.PartitionIndex]*SegmentIndex, error) {
	meta, err := a.Metadata(ctx, topic)
	if err != nil {
		return nil, err
	}
	keys, err := a.backend.List(ctx, partitionsPrefix(topic))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageReadFailed, err)
	}
	byPartition := make(map[types.PartitionIndex][]types.Segment, meta.Partitions)
	for _, key := range keys {
		name := path.Base(key)
		partition, start, end, err := serde.ParseSegmentName(name)
		if err != nil {
			a.logger.Debug("skipping object", "key", key, "error", err)
			continue
		}
		if int(partition) >= meta.Partitions {
			a.logger.Warn("segment outside of partition range", "topic", topic, "segment", name)
			continue
		}
		byPartition[partition] = append(byPartition[partition], types.Segment{
			Topic: topic, Name: name, Partition: partition, StartOffset: start, EndOffset: end,
		})
	}
	res := make(map[types.PartitionIndex]*SegmentIndex, meta.Partitions)
	for p := 0; p < meta.Partitions; p++ {
		res[types.PartitionIndex(p)] = NewSegmentIndex(byPartition[types.PartitionIndex(p)])
	}
	return res, nil
}

// ListSegments returns the segments of one partition by ascending start offset.
func (a *Admin) ListSegments(ctx context.Context, topic string, partition types.PartitionIndex) ([]types.Segment, error) {
	all, err := a.Segments(ctx, topic)
	if err != nil {
		return nil, err
	}
	idx, ok := all[partition]
	if !ok {
		return nil, fmt.Errorf("%w: topic %s has no partition %d", types.ErrNotFound, topic, partition)
	}
	return idx.Segments(), nil
}

// Watermarks returns the watermarks of every partition of topic.
func (a *Admin) Watermarks(ctx context.Context, topic string) (map[types.PartitionIndex]types.Watermark, error) {
	all, err := a.Segments(ctx, topic)
	if err != nil {
		return nil, err
	}
	return lo.MapValues(all, func(idx *SegmentIndex, _ types.PartitionIndex) types.Watermark {
		return idx.Watermark()
	}), nil
}

// FindSegment returns the segment holding offset. Offsets outside [0, high) yield
// ErrOffsetOutOfRange.
func (a *Admin) FindSegment(ctx context.Context, topic string, partition types.PartitionIndex, offset int64) (types.Segment, error) {
	all, err := a.Segments(ctx, topic)
	if err != nil {
		return types.Segment{}, err
	}
	idx, ok := all[partition]
	if !ok {
		return types.Segment{}, fmt.Errorf("%w: topic %s has no partition %d", types.ErrNotFound, topic, partition)
	}
	if offset < 0 || offset >= idx.High() {
		return types.Segment{}, fmt.Errorf("%w: %s-%d offset %d, high watermark %d", types.ErrOffsetOutOfRange, topic, partition, offset, idx.High())
	}
	seg, ok := idx.Find(offset)
	if !ok {
		return types.Segment{}, fmt.Errorf("%w: %s-%d has no segment holding offset %d", types.ErrNotFound, topic, partition, offset)
	}
	return seg, nil
}

// WriteSegment stores the framed records of seg, compressed with the topic codec.
func (a *Admin) WriteSegment(ctx context.Context, meta types.TopicMetadata, seg types.Segment, data []byte) error {
	codec, err := compress.Lookup(meta.Compression)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrStorageWriteFailed, seg, err)
	}
	buf := payloadBuffers.Get().(*[]byte)
	defer payloadBuffers.Put(buf)
	payload, err := codec.AppendEncoded((*buf)[:0], data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrStorageWriteFailed, seg, err)
	}
	*buf = payload[:0]
	key := segmentKey(seg.Topic, seg.Name)
	if a.cache != nil {
		a.cache.Remove(cacheKey(meta, key))
	}
	if err := a.backend.Write(ctx, key, payload); err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrStorageWriteFailed, seg, err)
	}
	metrics.IncrCounter([]string{"admin", "segments", "written"}, 1)
	metrics.IncrCounter([]string{"admin", "segments", "bytes_written"}, float32(len(payload)))
	return nil
}

// ReadSegment returns the framed records of seg, decompressed.
func (a *Admin) ReadSegment(ctx context.Context, meta types.TopicMetadata, seg types.Segment) ([]byte, error) {
	key := segmentKey(seg.Topic, seg.Name)
	if a.cache != nil {
		if v, ok := a.cache.Get(cacheKey(meta, key)); ok {
			metrics.IncrCounter([]string{"admin", "segments", "cache_hit"}, 1)
			return v.([]byte), nil
		}
	}
	payload, err := a.backend.Read(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: segment %s", types.ErrNotFound, seg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrStorageReadFailed, seg, err)
	}
	data, err := compress.Decompress(meta.Compression, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrMalformedRecord, seg, err)
	}
	metrics.IncrCounter([]string{"admin", "segments", "read"}, 1)
	if a.cache != nil {
		a.cache.Add(cacheKey(meta, key), data)
	}
	return data, nil
}
