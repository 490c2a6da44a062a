// Package pathkv is an embedded, hierarchical key/value store: keys are
// slash-delimited paths, values are scalar strings, and a subtree of paths
// can be read, replaced, or deleted as a unit. Writes are durable once
// Set/Delete/DeleteSubtree return an error of nil followed by a Flush, or
// sooner via the background group-commit WAL.
package pathkv

import (
	"github.com/pathkv/pathkv/internal/store"
	"github.com/pathkv/pathkv/pkg/options"
	"github.com/pathkv/pathkv/render"
)

// Option configures a DB at Open time. See pkg/options for the available
// functional options (WithMemtableThreshold, WithBlockSize, WithCacheSize,
// WithBloomParams, WithGroupCommitInterval, WithWalBufferLimit).
type Option = options.OptionFunc

// DB is an open handle on a pathkv store rooted at one directory.
type DB struct {
	store *store.Store
}

// Open creates or recovers a store rooted at dir.
func Open(dir string, opts ...Option) (*DB, error) {
	s, err := store.Open(dir, opts...)
	if err != nil {
		return nil, err
	}
	return &DB{store: s}, nil
}

// Set installs value at path. If replaceSubtree is true, every path
// currently live under path is atomically removed first, so the result is
// exactly the single scalar at path — a prior scalar at path is replaced
// either way.
func (db *DB) Set(path, value string, replaceSubtree bool) error {
	return db.store.Set(path, value, replaceSubtree)
}

// Get resolves path to its current scalar value. found is false if no live
// value exists at path.
func (db *DB) Get(path string) (value string, found bool, err error) {
	return db.store.Get(path)
}

// GetSubtree renders every live value under prefix as a flat JSON object
// keyed by path relative to prefix. Returns "{}" if the subtree is empty.
func (db *DB) GetSubtree(prefix string) (string, error) {
	entries, err := db.store.GetSubtree(prefix)
	if err != nil {
		return "", err
	}
	if len(prefix) == 0 || prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return render.Subtree(entries, prefix), nil
}

// Delete removes the value at path, if any.
func (db *DB) Delete(path string) error {
	return db.store.Delete(path)
}

// DeleteSubtree removes every value under prefix.
func (db *DB) DeleteSubtree(prefix string) error {
	return db.store.DeleteSubtree(prefix)
}

// Flush forces the current memtable to a durable on-disk segment and syncs
// the WAL, regardless of the memtable's size.
func (db *DB) Flush() error {
	return db.store.Flush()
}

// Close flushes outstanding data and releases the store's file handles.
func (db *DB) Close() error {
	return db.store.Close()
}
