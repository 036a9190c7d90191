package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/CefBoud/monkafs/logging"
	"github.com/CefBoud/monkafs/utils"
)

// tempPrefix marks in-flight writes; listings skip them
const tempPrefix = ".tmp-"

// Local stores every key as a file under a root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsurePath(abs, true); err != nil {
		return nil, fmt.Errorf("error creating root dir %v: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

// Root is the absolute root directory
func (l *Local) Root() string {
	return l.root
}

// cleanKey keeps keys inside the root
func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(cleanKey(key)))
}

// List implements Backend. It walks only the deepest directory named by prefix.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	dir := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}
	start := l.path(dir)
	if _, err := os.Stat(start); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	var keys []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirs implements Backend
func (l *Local) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.path(prefix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, prefix+e.Name()+"/")
		}
	}
	// ReadDir sorts by file name
	return dirs, nil
}

// Read implements Backend
func (l *Local) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, key)
	}
	return data, err
}

// Write implements Backend. Data lands in a temp file that is renamed into place,
// so readers never observe a partial object.
func (l *Local) Write(_ context.Context, key string, data []byte) error {
	target := l.path(key)
	if err := utils.EnsurePath(target, false); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), tempPrefix+"*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	log.Debug("wrote %v (%d bytes)", target, len(data))
	return nil
}

// Exists implements Backend
func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Delete implements Backend
func (l *Local) Delete(_ context.Context, key string) error {
	err := os.Remove(l.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// DeletePrefix implements Backend. A prefix ending in "/" removes the whole directory.
func (l *Local) DeletePrefix(ctx context.Context, prefix string) error {
	if strings.HasSuffix(prefix, "/") && cleanKey(prefix) != "" {
		return os.RemoveAll(l.path(prefix))
	}
	keys, err := l.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := l.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Backend
func (l *Local) Close() error {
	return nil
}
