/*
 * vrift: virtual filesystem acceleration layer
 * Copyright © 2026 Mario Finelli
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package manifest is the embedded, ordered store of path -> content
// mapping for one project: a single bbolt file holding every ingested
// path's kind, digest, size and mode. It is named manifest.lmdb on disk
// for operational familiarity with prior tooling in this space, though
// the backing engine is bbolt, not LMDB (see DESIGN.md).
package manifest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mfinelli/vrift/internal/pathutil"
)

var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")
)

const (
	metaKeySchema      = "schema"
	metaKeyProjectRoot = "project_root_hash"
	metaKeyIngestMode  = "ingest_mode"
	metaKeyRootDigest  = "root_digest"

	schemaVersion = "1"
)

// Store wraps one project's manifest database. A Store is safe for
// concurrent readers; bbolt serializes writers internally.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the manifest database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{
		Timeout: time.Second,
		NoSync:  true, // manifest content is derived, rebuildable by re-ingest
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get([]byte(metaKeySchema)) == nil {
			if err := meta.Put([]byte(metaKeySchema), []byte(schemaVersion)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manifest: init buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing manifest database without creating it.
// bbolt takes a shared file lock for a read-only open, so while another
// process (such as the project's daemon) holds the database open for
// writing, this waits up to one second and then fails.
func OpenReadOnly(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{
		Timeout:  time.Second,
		ReadOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: open read-only %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetMeta records a project-level metadata field (ingest mode, root
// digest, project root hash) in the meta bucket.
func (s *Store) SetMeta(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(key), []byte(value))
	})
}

// Meta reads a project-level metadata field, returning "" if unset.
func (s *Store) Meta(key string) (string, error) {
	var v string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketMeta).Get([]byte(key)); b != nil {
			v = string(b)
		}
		return nil
	})
	return v, err
}

// Lookup returns the Entry stored for path, if any.
func (s *Store) Lookup(path string) (Entry, bool, error) {
	key := []byte(pathutil.Normalize(path))

	var e Entry
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries).Get(key)
		if b == nil {
			return nil
		}
		found = true
		return e.UnmarshalBinary(b)
	})
	return e, found, err
}

// ScanPrefix calls fn for every entry whose normalized path starts with
// prefix, in lexicographic key order, stopping early if fn returns an
// error.
func (s *Store) ScanPrefix(prefix string, fn func(path string, e Entry) error) error {
	normPrefix := []byte(pathutil.Normalize(prefix))

	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		for k, v := c.Seek(normPrefix); k != nil && hasPrefix(k, normPrefix); k, v = c.Next() {
			var e Entry
			if err := e.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("manifest: decode entry %q: %w", k, err)
			}
			if err := fn(string(k), e); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(k, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Txn batches many Put/DeletePrefix calls into a single bbolt write
// transaction, letting Ingest commit an entire run atomically and in one
// page-layout pass (stable serialization: identical insert order
// produces identical B+tree page layout).
type Txn struct {
	tx      *bbolt.Tx
	entries *bbolt.Bucket
}

// BeginWrite starts a write transaction. Callers must call Commit or
// Rollback.
func (s *Store) BeginWrite(ctx context.Context) (*Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("manifest: begin write: %w", err)
	}
	return &Txn{tx: tx, entries: tx.Bucket(bucketEntries)}, nil
}

// Put records path -> e. Callers that Put many paths in one Txn should
// insert them in sorted order for stable page layout; PutSorted does
// this for a caller-supplied batch.
func (t *Txn) Put(path string, e Entry) error {
	b, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	return t.entries.Put([]byte(pathutil.Normalize(path)), b)
}

// PutSorted inserts every (path, Entry) pair in m in sorted-path order.
func (t *Txn) PutSorted(m map[string]Entry) error {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, pathutil.Normalize(p))
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := t.Put(p, m[p]); err != nil {
			return err
		}
	}
	return nil
}

// DeletePrefix removes the entry at dir and every entry under dir/, used
// when a path or directory disappears between ingests. Entries that only
// share a name prefix with dir (dir2, dir.bak) are kept.
func (t *Txn) DeletePrefix(dir string) error {
	prefix := []byte(pathutil.Normalize(dir))
	c := t.entries.Cursor()

	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
		if len(prefix) > 0 && len(k) > len(prefix) && k[len(prefix)] != '/' {
			continue
		}
		dup := make([]byte, len(k))
		copy(dup, k)
		keys = append(keys, dup)
	}
	for _, k := range keys {
		if err := t.entries.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Commit finalizes the transaction.
func (t *Txn) Commit() error {
	return t.tx.Commit()
}

// Rollback discards the transaction.
func (t *Txn) Rollback() error {
	return t.tx.Rollback()
}
