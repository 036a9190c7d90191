package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigurationIsValid(t *testing.T) {
	require.NoError(t, DefaultConfiguration().Validate())
}

func TestConfigurationValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Configuration)
		want   error
	}{
		{"unknown backend", func(c *Configuration) { c.Backend = "ftp" }, ErrInvalidConfig},
		{"empty root", func(c *Configuration) { c.Local.RootDir = "" }, ErrInvalidConfig},
		{"empty separator", func(c *Configuration) { c.MessageSeparator = nil }, ErrInvalidConfig},
		{"bad reset", func(c *Configuration) { c.AutoOffsetReset = "middle" }, ErrInvalidConfig},
		{"unknown compression", func(c *Configuration) { c.Compression = "brotli" }, ErrInvalidConfig},
		{"zero partitions", func(c *Configuration) { c.DefaultPartitions = 0 }, ErrInvalidPartitions},
		{"s3 without endpoint", func(c *Configuration) { c.Backend = BackendS3 }, ErrInvalidConfig},
		{"azure without credentials", func(c *Configuration) { c.Backend = BackendAzureBlob }, ErrInvalidConfig},
		{"memory", func(c *Configuration) { c.Backend = BackendMemory }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfiguration()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSegmentHelpers(t *testing.T) {
	s := Segment{Topic: "t", Partition: 1, StartOffset: 3, EndOffset: 5}
	assert.Equal(t, int64(3), s.Count())
	assert.True(t, s.Contains(3))
	assert.True(t, s.Contains(5))
	assert.False(t, s.Contains(6))
	assert.Equal(t, "t-1[3..5]", s.String())
}

func TestTimestampIsZero(t *testing.T) {
	assert.True(t, Timestamp{}.IsZero())
	assert.False(t, Timestamp{Type: TimestampExternal}.IsZero())
	assert.False(t, Timestamp{Millis: 1}.IsZero())
}
