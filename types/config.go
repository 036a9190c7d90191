package types

import (
	"fmt"
	"strings"

	"github.com/CefBoud/monkafs/compress"
)

// Backend names accepted in Configuration.Backend.
const (
	BackendLocal     = "local"
	BackendAzureBlob = "azure_blob"
	BackendS3        = "s3"
	BackendMemory    = "memory"
)

// Offset reset policies accepted in Configuration.AutoOffsetReset.
const (
	OffsetResetEarliest = "earliest"
	OffsetResetLatest   = "latest"
)

// LocalConfig configures the local filesystem backend.
type LocalConfig struct {
	RootDir string
}

// AzureBlobConfig configures the cloud blob backend. Either ConnectionString or
// ServiceURL+AccountName+AccountKey must be set.
type AzureBlobConfig struct {
	ConnectionString string
	ServiceURL       string
	AccountName      string
	AccountKey       string
	ContainerName    string
}

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string
	Secure     bool
}

// Configuration is passed explicitly when opening an FS handle.
type Configuration struct {
	Backend   string
	Local     LocalConfig
	AzureBlob AzureBlobConfig
	S3        S3Config

	MessageSeparator    []byte
	AutoOffsetReset     string
	DefaultPartitions   int
	Compression         string
	SegmentCacheSize    int // zero disables the segment cache
	OffsetsPath         string // bolt file for committed group offsets, empty disables commits
	ConsumerGroupPrefix string
	EnableAutoCommit    bool
	LogLevel            string
}

// DefaultConfiguration returns a local-backend configuration rooted at the working directory.
func DefaultConfiguration() Configuration {
	return Configuration{
		Backend:             BackendLocal,
		Local:               LocalConfig{RootDir: "."},
		AzureBlob:           AzureBlobConfig{ContainerName: "test"},
		S3:                  S3Config{BucketName: "minio-test-bucket"},
		MessageSeparator:    []byte("\n"),
		AutoOffsetReset:     OffsetResetEarliest,
		DefaultPartitions:   1,
		Compression:         "none",
		ConsumerGroupPrefix: "monkafs-",
		LogLevel:            "INFO",
	}
}

// Validate checks the configuration for values no component could work with.
func (c Configuration) Validate() error {
	switch c.Backend {
	case BackendLocal:
		if c.Local.RootDir == "" {
			return fmt.Errorf("%w: local root dir is empty", ErrInvalidConfig)
		}
	case BackendAzureBlob:
		if c.AzureBlob.ContainerName == "" {
			return fmt.Errorf("%w: azure blob container name is empty", ErrInvalidConfig)
		}
		if c.AzureBlob.ConnectionString == "" && (c.AzureBlob.ServiceURL == "" || c.AzureBlob.AccountName == "") {
			return fmt.Errorf("%w: azure blob needs a connection string or service url and account", ErrInvalidConfig)
		}
	case BackendS3:
		if c.S3.Endpoint == "" || c.S3.BucketName == "" {
			return fmt.Errorf("%w: s3 endpoint and bucket name are required", ErrInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if len(c.MessageSeparator) == 0 {
		return fmt.Errorf("%w: message separator is empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.AutoOffsetReset) {
	case OffsetResetEarliest, OffsetResetLatest:
	default:
		return fmt.Errorf("%w: unknown auto offset reset %q", ErrInvalidConfig, c.AutoOffsetReset)
	}
	if _, err := compress.Lookup(c.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.DefaultPartitions < 1 {
		return fmt.Errorf("%w: default partitions %d", ErrInvalidPartitions, c.DefaultPartitions)
	}
	return nil
}
