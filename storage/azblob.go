package storage

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	log "github.com/CefBoud/monkafs/logging"
	"github.com/CefBoud/monkafs/types"
)

// AzureBlob stores every key as a block blob in one container.
type AzureBlob struct {
	client    *azblob.Client
	container string
}

// NewAzureBlob builds a client from a connection string or a shared key and creates the
// container if it is missing
func NewAzureBlob(ctx context.Context, cfg types.AzureBlobConfig) (*AzureBlob, error) {
	var client *azblob.Client
	var err error
	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(cfg.ServiceURL, cred, nil)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("error creating blob client: %w", err)
	}
	if _, err := client.CreateContainer(ctx, cfg.ContainerName, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil, fmt.Errorf("error creating container %v: %w", cfg.ContainerName, err)
		}
	} else {
		log.Info("created container %v", cfg.ContainerName)
	}
	return &AzureBlob{client: client, container: cfg.ContainerName}, nil
}

func isBlobNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound)
}

// List implements Backend
func (a *AzureBlob) List(ctx context.Context, prefix string) ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	var keys []string
	pager := a.client.NewListBlobsFlatPager(a.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirs implements Backend
func (a *AzureBlob) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	opts := &container.ListBlobsHierarchyOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	var dirs []string
	pager := a.client.ServiceClient().NewContainerClient(a.container).NewListBlobsHierarchyPager("/", opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Segment.BlobPrefixes {
			if p.Name != nil {
				dirs = append(dirs, *p.Name)
			}
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Read implements Backend
func (a *AzureBlob) Read(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if isBlobNotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, key)
		}
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Write implements Backend
func (a *AzureBlob) Write(ctx context.Context, key string, data []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.container, key, data, nil)
	return err
}

// Exists implements Backend
func (a *AzureBlob) Exists(ctx context.Context, key string) (bool, error) {
	blob := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key)
	_, err := blob.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if isBlobNotFound(err) {
		return false, nil
	}
	return false, err
}

// Delete implements Backend
func (a *AzureBlob) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	if err != nil && !isBlobNotFound(err) {
		return err
	}
	return nil
}

// DeletePrefix implements Backend
func (a *AzureBlob) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := a.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := a.Delete(ctx, k); err != nil {
			return fmt.Errorf("error deleting blob %v: %w", k, err)
		}
	}
	return nil
}

// Close implements Backend
func (a *AzureBlob) Close() error {
	return nil
}
