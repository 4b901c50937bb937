// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainio

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileCacheSize bounds the number of blk*.dat file handles kept
// open at once. A full mainnet blocks/ directory holds thousands of blk
// files; an indexer replaying the whole chain must not try to keep every
// one of them open simultaneously.
const DefaultFileCacheSize = 16

// FileCache is an LRU cache of open *os.File handles for a node's
// blk<NNNNN>.dat files, opened lazily on first access and evicted
// (closed) in least-recently-used order once the cache is full.
type FileCache struct {
	dir      string
	capacity int

	mu      sync.Mutex
	items   map[uint32]*list.Element
	order   *list.List
}

type fileCacheEntry struct {
	index uint32
	file  *os.File
}

// NewFileCache creates a cache rooted at dir (normally
// "<btc_data_dir>/blocks") with the given capacity. A non-positive
// capacity falls back to DefaultFileCacheSize.
func NewFileCache(dir string, capacity int) *FileCache {
	if capacity <= 0 {
		capacity = DefaultFileCacheSize
	}
	return &FileCache{
		dir:      dir,
		capacity: capacity,
		items:    make(map[uint32]*list.Element),
		order:    list.New(),
	}
}

// Get returns the open file handle for blk<index>.dat, opening it if
// necessary and evicting the least-recently-used handle if the cache is
// full. The returned file must not be closed by the caller; use
// FileCache.CloseAll to release it.
func (c *FileCache) Get(index uint32) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[index]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*fileCacheEntry).file, nil
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			entry := oldest.Value.(*fileCacheEntry)
			entry.file.Close()
			delete(c.items, entry.index)
			c.order.Remove(oldest)
		}
	}

	name := filepath.Join(c.dir, fmt.Sprintf("blk%05d.dat", index))
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	elem := c.order.PushFront(&fileCacheEntry{index: index, file: f})
	c.items[index] = elem
	return f, nil
}

// CloseAll closes every open handle the cache holds.
func (c *FileCache) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for e := c.order.Front(); e != nil; e = e.Next() {
		if err := e.Value.(*fileCacheEntry).file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.items = make(map[uint32]*list.Element)
	c.order = list.New()
	return firstErr
}
