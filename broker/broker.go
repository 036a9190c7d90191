// Package broker is the entry point of monkafs: a Broker is an open handle on one storage
// backend that hands out topic administration, writers and readers.
package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/CefBoud/monkafs/admin"
	"github.com/CefBoud/monkafs/consumer"
	"github.com/CefBoud/monkafs/logging"
	"github.com/CefBoud/monkafs/offsets"
	"github.com/CefBoud/monkafs/producer"
	"github.com/CefBoud/monkafs/storage"
	"github.com/CefBoud/monkafs/types"
)

// Broker ties a backend to its admin and the optional committed offsets store.
type Broker struct {
	Config types.Configuration

	backend storage.Backend
	admin   *admin.Admin
	offsets *offsets.Store
	logger  hclog.Logger

	mu     sync.Mutex
	closed bool
}

// NewBroker validates config and connects to the backend it selects.
func NewBroker(ctx context.Context, config types.Configuration) (*Broker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	backend, err := storage.New(ctx, config)
	if err != nil {
		return nil, err
	}
	b, err := NewWithBackend(config, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return b, nil
}

// NewWithBackend builds a Broker on an already connected backend. config.Backend is
// only informative here.
func NewWithBackend(config types.Configuration, backend storage.Backend) (*Broker, error) {
	a, err := admin.New(backend, config)
	if err != nil {
		return nil, err
	}
	b := &Broker{
		Config:  config,
		backend: backend,
		admin:   a,
		logger:  logging.Named("broker"),
	}
	if config.OffsetsPath != "" {
		if b.offsets, err = offsets.Open(config.OffsetsPath); err != nil {
			return nil, err
		}
	}
	b.logger.Debug("broker ready", "backend", config.Backend)
	return b, nil
}

// Admin exposes the topic admin of the broker
func (b *Broker) Admin() *admin.Admin {
	return b.admin
}

// Backend exposes the storage backend of the broker
func (b *Broker) Backend() storage.Backend {
	return b.backend
}

// Create creates topic
func (b *Broker) Create(ctx context.Context, topic string, opts admin.CreateOptions) error {
	return b.admin.Create(ctx, topic, opts)
}

// Delete removes the topics matching pattern and returns their names
func (b *Broker) Delete(ctx context.Context, pattern string) ([]string, error) {
	return b.admin.Delete(ctx, pattern)
}

// Exists reports whether topic exists
func (b *Broker) Exists(ctx context.Context, topic string) (bool, error) {
	return b.admin.Exists(ctx, topic)
}

// Topics lists topics, optionally with their sizes
func (b *Broker) Topics(ctx context.Context, opts admin.ListOptions) ([]types.TopicInfo, error) {
	return b.admin.ListTopics(ctx, opts)
}

// Partitions returns the partition count of topic
func (b *Broker) Partitions(ctx context.Context, topic string) (int, error) {
	return b.admin.Partitions(ctx, topic)
}

// Watermarks returns the watermarks of every partition of topic
func (b *Broker) Watermarks(ctx context.Context, topic string) (map[types.PartitionIndex]types.Watermark, error) {
	return b.admin.Watermarks(ctx, topic)
}

// OpenWriter opens a writer on topic, creating the topic if needed.
func (b *Broker) OpenWriter(ctx context.Context, topic string, opts producer.Options) (*producer.Writer, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	return producer.Open(ctx, b.admin, topic, opts)
}

// OpenReader opens a reader on topics, which must name exactly one topic.
func (b *Broker) OpenReader(ctx context.Context, topics []string, opts consumer.Options) (*consumer.Reader, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if opts.AutoCommit && b.offsets == nil {
		b.logger.Warn("auto commit requested without an offsets store", "topics", topics)
	}
	return consumer.Open(ctx, b.admin, b.offsets, topics, opts)
}

func (b *Broker) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: broker", types.ErrClosed)
	}
	return nil
}

// Close releases the offsets store and the backend.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var result *multierror.Error
	if b.offsets != nil {
		if err := b.offsets.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := b.backend.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	b.logger.Info("broker shutdown")
	return result.ErrorOrNil()
}
