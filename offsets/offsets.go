// Package offsets persists committed consumer group offsets in a local bolt file.
package offsets

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/hashicorp/go-hclog"

	"github.com/CefBoud/monkafs/logging"
	"github.com/CefBoud/monkafs/serde"
	"github.com/CefBoud/monkafs/types"
	"github.com/CefBoud/monkafs/utils"
)

var bucketName = []byte("consumer_offsets")

// version prefixed serialization, like the group coordinator records of a broker
const (
	keyVersion   uint8 = 1
	valueVersion uint8 = 1
)

// Store holds committed offsets keyed by (group, topic, partition).
// A bolt file can only be opened once at a time, so a Store is meant to be shared.
type Store struct {
	db     *bolt.DB
	logger hclog.Logger
}

// Open opens or creates the offsets file at path.
func Open(path string) (*Store, error) {
	if err := utils.EnsurePath(path, false); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open offsets store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logging.Named("offsets")}, nil
}

func groupTopicPrefix(group types.GroupID, topic string) []byte {
	encoder := serde.NewEncoder(len(group) + len(topic) + 8)
	encoder.PutInt8(keyVersion)
	encoder.PutCompactString(string(group))
	encoder.PutCompactString(topic)
	return encoder.Bytes()
}

func encodeKey(group types.GroupID, topic string, partition types.PartitionIndex) []byte {
	encoder := serde.NewEncoder(len(group) + len(topic) + 12)
	encoder.PutBytes(groupTopicPrefix(group, topic))
	encoder.PutInt32(uint32(partition))
	return encoder.Bytes()
}

func encodeValue(offset int64) []byte {
	encoder := serde.NewEncoder(17)
	encoder.PutInt8(valueVersion)
	encoder.PutInt64(uint64(offset))
	encoder.PutInt64(uint64(utils.NowAsUnixMilli())) // commit timestamp
	return encoder.Bytes()
}

func decodeValue(b []byte) (int64, error) {
	decoder := serde.NewDecoder(b)
	if v := decoder.UInt8(); v != valueVersion && decoder.Err() == nil {
		return 0, fmt.Errorf("unknown offset value version %d", v)
	}
	offset := int64(decoder.UInt64())
	return offset, decoder.Err()
}

// Commit records the next offset to consume for each partition of topic.
func (s *Store) Commit(group types.GroupID, topic string, offsets map[types.PartitionIndex]int64) error {
	if len(offsets) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for partition, offset := range offsets {
			if err := b.Put(encodeKey(group, topic, partition), encodeValue(offset)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: commit offsets of group %s: %v", types.ErrStorageWriteFailed, group, err)
	}
	s.logger.Debug("committed offsets", "group", group, "topic", topic, "offsets", offsets)
	return nil
}

// Committed returns the committed offsets of group for topic. Partitions never
// committed are absent.
func (s *Store) Committed(group types.GroupID, topic string) (map[types.PartitionIndex]int64, error) {
	res := make(map[types.PartitionIndex]int64)
	prefix := groupTopicPrefix(group, topic)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if len(k) != len(prefix)+4 {
				continue
			}
			offset, err := decodeValue(v)
			if err != nil {
				return err
			}
			res[types.PartitionIndex(serde.Encoding.Uint32(k[len(prefix):]))] = offset
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: committed offsets of group %s: %v", types.ErrStorageReadFailed, group, err)
	}
	return res, nil
}

// Reset drops every offset group committed for topic.
func (s *Store) Reset(group types.GroupID, topic string) error {
	prefix := groupTopicPrefix(group, topic)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the bolt file. Closing twice is a no-op.
func (s *Store) Close() error {
	err := s.db.Close()
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil
	}
	return err
}
