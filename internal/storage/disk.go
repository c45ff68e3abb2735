package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Disk stores shard files in a single directory. Reads may be served from an LRU cache which is
// validated against the file's size and modification time on every access, so changes made
// behind the store's back are still picked up.
type Disk struct {
	root  string
	cache *lru.Cache
}

type cacheEntry struct {
	size    int64
	modTime time.Time
	data    []byte
}

// NewDisk returns a Disk rooted at root. A cacheSize of zero disables caching.
func NewDisk(root string, cacheSize int) (*Disk, error) {
	d := &Disk{root: root}

	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating cache: %w", err)
		}
		d.cache = cache
	}

	return d, nil
}

// Root returns the directory the shard files live in.
func (d *Disk) Root() string {
	return d.root
}

// Path returns the absolute location of the file addressed by key.
func (d *Disk) Path(key Key) string {
	return filepath.Join(d.root, key.Name())
}

// List returns a classification of all shard files in the data directory. Entries which do not
// decode into a key, such as temporary files or the index, are ignored.
func (d *Disk) List(ctx context.Context) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return Listing{}, fmt.Errorf("listing shard files: %w", err)
	}

	keys := make([]Key, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		key, err := ParseKey(entry.Name())
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}

	return NewListing(keys), nil
}

// Read returns the contents of the file addressed by key. The returned slice is owned by the
// caller.
func (d *Disk) Read(ctx context.Context, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := d.Path(key)

	if d.cache == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		return data, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		d.cache.Remove(key)
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	if cached, ok := d.cache.Get(key); ok {
		entry := cached.(cacheEntry)
		if entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
			return append([]byte(nil), entry.data...), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		d.cache.Remove(key)
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	d.cache.Add(key, cacheEntry{
		size:    info.Size(),
		modTime: info.ModTime(),
		data:    append([]byte(nil), data...),
	})

	return data, nil
}

// ReadMany reads all keys with at most concurrency reads in flight. The result holds the
// contents of keys[i] at index i. The first failing read cancels the others and is returned.
func (d *Disk) ReadMany(ctx context.Context, keys []Key, concurrency int) ([][]byte, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([][]byte, len(keys))
	sem := semaphore.NewWeighted(int64(concurrency))
	group, groupCtx := errgroup.WithContext(ctx)

	var acquireErr error
	for i, key := range keys {
		i, key := i, key

		if err := sem.Acquire(groupCtx, 1); err != nil {
			acquireErr = err
			break
		}

		group.Go(func() error {
			defer sem.Release(1)

			data, err := d.Read(groupCtx, key)
			if err != nil {
				return err
			}
			results[i] = data

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		return nil, acquireErr
	}

	return results, nil
}

// Begin starts a transaction against the data directory.
func (d *Disk) Begin() *Tx {
	return newTx(d)
}

func (d *Disk) invalidate(keys []Key) {
	if d.cache == nil {
		return
	}

	for _, key := range keys {
		d.cache.Remove(key)
	}
}
