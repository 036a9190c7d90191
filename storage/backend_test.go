package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CefBoud/monkafs/types"
)

func backends(t *testing.T) map[string]Backend {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return map[string]Backend{
		"local":  local,
		"memory": NewMemory(),
	}
}

func TestBackendContract(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			ok, err := b.Exists(ctx, "orders/topic.json")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = b.Read(ctx, "orders/topic.json")
			assert.True(t, errors.Is(err, ErrObjectNotFound))

			require.NoError(t, b.Write(ctx, "orders/topic.json", []byte(`{"partitions":2}`)))
			require.NoError(t, b.Write(ctx, "orders/partitions/b", []byte("2")))
			require.NoError(t, b.Write(ctx, "orders/partitions/a", []byte("1")))
			require.NoError(t, b.Write(ctx, "ordersx/topic.json", []byte("{}")))
			require.NoError(t, b.Write(ctx, "payments/topic.json", []byte("{}")))

			ok, err = b.Exists(ctx, "orders/topic.json")
			require.NoError(t, err)
			assert.True(t, ok)

			data, err := b.Read(ctx, "orders/partitions/a")
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), data)

			keys, err := b.List(ctx, "orders/partitions/")
			require.NoError(t, err)
			assert.Equal(t, []string{"orders/partitions/a", "orders/partitions/b"}, keys)

			keys, err = b.List(ctx, "orders")
			require.NoError(t, err)
			assert.Equal(t, []string{"orders/partitions/a", "orders/partitions/b", "orders/topic.json", "ordersx/topic.json"}, keys)

			dirs, err := b.ListDirs(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"orders/", "ordersx/", "payments/"}, dirs)

			dirs, err = b.ListDirs(ctx, "orders/")
			require.NoError(t, err)
			assert.Equal(t, []string{"orders/partitions/"}, dirs)

			dirs, err = b.ListDirs(ctx, "missing/")
			require.NoError(t, err)
			assert.Empty(t, dirs)

			keys, err = b.List(ctx, "missing/")
			require.NoError(t, err)
			assert.Empty(t, keys)

			// write replaces, never appends
			require.NoError(t, b.Write(ctx, "orders/partitions/a", []byte("one")))
			data, err = b.Read(ctx, "orders/partitions/a")
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), data)

			require.NoError(t, b.Delete(ctx, "orders/partitions/b"))
			require.NoError(t, b.Delete(ctx, "orders/partitions/b"))

			require.NoError(t, b.DeletePrefix(ctx, "orders/"))
			keys, err = b.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"ordersx/topic.json", "payments/topic.json"}, keys)
		})
	}
}

func TestLocalKeysStayUnderRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	local, err := NewLocal(filepath.Join(root, "data"))
	require.NoError(t, err)

	require.NoError(t, local.Write(ctx, "../../escape", []byte("x")))
	_, err = os.Stat(filepath.Join(local.Root(), "escape"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "escape"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalListSkipsTempFiles(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, local.Write(ctx, "t/partitions/x", []byte("x")))
	require.NoError(t, os.WriteFile(filepath.Join(local.Root(), "t", "partitions", tempPrefix+"123"), []byte("partial"), 0644))

	keys, err := local.List(ctx, "t/")
	require.NoError(t, err)
	assert.Equal(t, []string{"t/partitions/x"}, keys)
}

func TestMemoryClosed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Write(ctx, "k", nil), ErrStorageClosed)
	_, err := m.List(ctx, "")
	assert.ErrorIs(t, err, ErrStorageClosed)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	data := []byte("abc")
	require.NoError(t, m.Write(ctx, "k", data))
	data[0] = 'x'
	got, err := m.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	got[1] = 'y'
	again, _ := m.Read(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()
	cfg := types.DefaultConfiguration()
	cfg.Local.RootDir = t.TempDir()
	b, err := New(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, b)

	cfg.Backend = types.BackendMemory
	b, err = New(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	cfg.Backend = "tape"
	_, err = New(ctx, cfg)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestNotFoundClassification(t *testing.T) {
	assert.True(t, isS3NotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isS3NotFound(minio.ErrorResponse{StatusCode: 404}))
	assert.False(t, isS3NotFound(errors.New("connection reset")))
	assert.False(t, isBlobNotFound(errors.New("connection reset")))
}

func TestForwardObjectsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	listing := make(chan minio.ObjectInfo, 2)
	listing <- minio.ObjectInfo{Key: "t/partitions/a"}
	listing <- minio.ObjectInfo{Key: "t/partitions/b"}
	close(listing)
	// nobody drains objects
	objects := make(chan minio.ObjectInfo)

	done := make(chan error, 1)
	go func() { done <- forwardObjects(ctx, listing, objects) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("forwarding blocked after cancel")
	}
	_, open := <-objects
	assert.False(t, open)
}

func TestForwardObjectsReportsListError(t *testing.T) {
	listing := make(chan minio.ObjectInfo, 2)
	listing <- minio.ObjectInfo{Key: "t/partitions/a"}
	listing <- minio.ObjectInfo{Err: errors.New("access denied")}
	close(listing)
	objects := make(chan minio.ObjectInfo, 2)

	err := forwardObjects(context.Background(), listing, objects)
	assert.EqualError(t, err, "access denied")
	var keys []string
	for obj := range objects {
		keys = append(keys, obj.Key)
	}
	assert.Equal(t, []string{"t/partitions/a"}, keys)
}
