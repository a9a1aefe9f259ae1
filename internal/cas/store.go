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

// Package cas implements the content-addressable blob store: a
// two-level sharded directory tree keyed by sha256 digest, with
// hardlink ("Solid") and rename ("Phantom") zero-copy ingest paths and a
// streaming fallback for sources that cross a filesystem boundary.
package cas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mfinelli/vrift/internal/cas/fdcache"
	"github.com/mfinelli/vrift/internal/digest"
	"github.com/mfinelli/vrift/internal/vrifterr"
)

// PutResult reports the outcome of a Put* call.
type PutResult struct {
	Digest  digest.Digest
	Size    int64
	Existed bool // true if the blob was already present (dedup hit)
}

// Store is the on-disk content-addressable blob store rooted at Root.
// A Store must be opened with Open; the zero value is not usable.
type Store struct {
	Root string

	mu      sync.Mutex
	bits    *presenceBits
	fdCache *fdcache.Cache
}

// Open validates root, pre-creates the 256 first-level shard directories
// and opens (creating if absent) the second-level presence bitset. Open is
// idempotent: calling it again against an already-initialized root is a
// cheap no-op beyond the directory stats.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cas: mkdir root: %w", err)
	}

	for i := 0; i < 256; i++ {
		dir := filepath.Join(root, l1Name(i))
		if err := os.Mkdir(dir, 0o755); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("cas: mkdir l1 shard %s: %w", dir, err)
		}
	}

	bits, err := openPresenceBits(filepath.Join(root, ".l2shards"))
	if err != nil {
		return nil, err
	}

	fc, err := fdcache.New(fdcache.DefaultCapacity())
	if err != nil {
		bits.close()
		return nil, fmt.Errorf("cas: open fd cache: %w", err)
	}

	return &Store{Root: root, bits: bits, fdCache: fc}, nil
}

// Close releases the presence bitset mapping and the fd cache. It does not
// remove any blob.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if err := s.fdCache.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.bits.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PathFor returns the on-disk path for d under the store's root.
func (s *Store) PathFor(d digest.Digest) string {
	return PathFor(s.Root, d)
}

// ensureShard lazily creates the second-level shard directory for d,
// consulting (and updating) the presence bitset first to avoid a stat
// round-trip on the common repeat-ingest path.
func (s *Store) ensureShard(d digest.Digest) error {
	l1, l2 := shardOf(d)
	idx := shardIndex(l1, l2)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bits.test(idx) {
		return nil
	}

	dir := filepath.Join(s.Root, l1Name(int(l1)), l2Name(l2))
	if err := os.Mkdir(dir, 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("cas: mkdir l2 shard %s: %w", dir, err)
	}
	s.bits.set(idx)
	return nil
}

// Has reports whether d is present in the store, consulting the presence
// bitset before falling back to a stat of the expected path.
func (s *Store) Has(d digest.Digest) bool {
	l1, l2 := shardOf(d)
	idx := shardIndex(l1, l2)

	s.mu.Lock()
	shardKnown := s.bits.test(idx)
	s.mu.Unlock()
	if !shardKnown {
		return false
	}

	var st unix.Stat_t
	err := unix.Fstatat(unix.AT_FDCWD, s.PathFor(d), &st, unix.AT_SYMLINK_NOFOLLOW)
	return err == nil
}

// PutHardlink ingests srcPath by hardlinking it into the store under d,
// the Solid ingest mode's zero-copy path. A pre-existing blob with a
// matching size is treated as a successful dedup, not an error. Crossing
// a filesystem boundary (EXDEV) falls back to PutStream.
func (s *Store) PutHardlink(ctx context.Context, srcPath string, d digest.Digest) (PutResult, error) {
	st, err := os.Stat(srcPath)
	if err != nil {
		return PutResult{}, fmt.Errorf("cas: stat src: %w", err)
	}

	if err := s.ensureShard(d); err != nil {
		return PutResult{}, err
	}

	dest := s.PathFor(d)
	if err := unix.Link(srcPath, dest); err != nil {
		if errors.Is(err, unix.EEXIST) {
			return s.dedupResult(d, st.Size())
		}
		if errors.Is(err, unix.EXDEV) {
			f, openErr := os.Open(srcPath)
			if openErr != nil {
				return PutResult{}, fmt.Errorf("cas: open src for stream fallback: %w", openErr)
			}
			defer f.Close()
			return s.PutStream(ctx, f, d)
		}
		return PutResult{}, fmt.Errorf("cas: link blob: %w", err)
	}

	if err := setImmutable(dest); err != nil && !errors.Is(err, vrifterr.ErrNotSupported) {
		return PutResult{}, fmt.Errorf("cas: set immutable: %w", err)
	}

	return PutResult{Digest: d, Size: st.Size()}, nil
}

// PutRename ingests srcPath by renaming it into the store under d, the
// Phantom ingest mode's zero-copy path. Unlike PutHardlink, a cross-device
// rename is not silently retried as a stream copy: Phantom's contract is
// that the source disappears, and the ingest engine (not this layer)
// decides whether that invariant can be relaxed.
func (s *Store) PutRename(ctx context.Context, srcPath string, d digest.Digest) (PutResult, error) {
	st, err := os.Stat(srcPath)
	if err != nil {
		return PutResult{}, fmt.Errorf("cas: stat src: %w", err)
	}

	if err := s.ensureShard(d); err != nil {
		return PutResult{}, err
	}

	dest := s.PathFor(d)
	if err := os.Rename(srcPath, dest); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, unix.EXDEV) {
			return PutResult{}, vrifterr.ErrCrossDevice
		}
		if os.IsExist(err) {
			return s.dedupResult(d, st.Size())
		}
		return PutResult{}, fmt.Errorf("cas: rename blob: %w", err)
	}

	if err := setImmutable(dest); err != nil && !errors.Is(err, vrifterr.ErrNotSupported) {
		return PutResult{}, fmt.Errorf("cas: set immutable: %w", err)
	}

	return PutResult{Digest: d, Size: st.Size()}, nil
}

// PutStream ingests r by writing it to a temp file beside the destination
// shard, fsyncing, and renaming into place — the fallback path used when
// no zero-copy placement is available. It re-hashes while copying and
// returns ErrCorruption if the stream does not actually hash to d, since
// callers (the ingest engine) already computed d in an earlier pass and a
// mismatch here means the source mutated underneath them.
func (s *Store) PutStream(ctx context.Context, r io.Reader, d digest.Digest) (PutResult, error) {
	if err := s.ensureShard(d); err != nil {
		return PutResult{}, err
	}

	dest := s.PathFor(d)
	destDir := filepath.Dir(dest)

	tmp, err := os.CreateTemp(destDir, ".ingest-*")
	if err != nil {
		return PutResult{}, fmt.Errorf("cas: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	h := digest.NewHasher()
	w := io.MultiWriter(tmp, h)

	n, err := copyWithContext(ctx, w, r)
	if err != nil {
		return PutResult{}, fmt.Errorf("cas: copy: %w", err)
	}

	got := digest.Sum(h)
	if got != d {
		return PutResult{}, fmt.Errorf("cas: stream digest mismatch: %w", vrifterr.ErrCorruption)
	}

	if err := tmp.Sync(); err != nil {
		return PutResult{}, fmt.Errorf("cas: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return PutResult{}, fmt.Errorf("cas: close temp: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		if os.IsExist(err) {
			return s.dedupResult(d, n)
		}
		return PutResult{}, fmt.Errorf("cas: rename temp into place: %w", err)
	}

	_ = fsyncDir(destDir)

	if err := setImmutable(dest); err != nil && !errors.Is(err, vrifterr.ErrNotSupported) {
		return PutResult{}, fmt.Errorf("cas: set immutable: %w", err)
	}

	return PutResult{Digest: d, Size: n}, nil
}

// dedupResult builds the PutResult for a blob that was already present,
// sanity-checking that the existing blob's size matches what the caller
// just measured; a mismatch means two different contents produced the
// same digest, which is corruption, not a benign race.
func (s *Store) dedupResult(d digest.Digest, wantSize int64) (PutResult, error) {
	st, err := os.Stat(s.PathFor(d))
	if err != nil {
		return PutResult{}, fmt.Errorf("cas: stat existing blob: %w", err)
	}
	if st.Size() != wantSize {
		return PutResult{}, fmt.Errorf("cas: size mismatch for %s: have %d want %d: %w",
			d, st.Size(), wantSize, vrifterr.ErrCorruption)
	}
	return PutResult{Digest: d, Size: st.Size(), Existed: true}, nil
}

// OpenBlob opens d read-only, serving from the fd cache when possible. The
// returned *os.File is always the caller's own descriptor (dup'd off the
// cache's entry on a hit, and on a miss dup'd off the entry just inserted
// for the freshly opened file); the
// cache's own entry is never handed out directly, so a caller's Close
// never invalidates the next cache hit.
func (s *Store) OpenBlob(d digest.Digest) (*os.File, error) {
	if f, ok := s.fdCache.Get(d); ok {
		return f, nil
	}

	f, err := os.Open(s.PathFor(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("cas: %s: %w", d, vrifterr.ErrNotFound)
		}
		return nil, fmt.Errorf("cas: open blob: %w", err)
	}

	s.fdCache.Put(d, f)

	dup, ok := s.fdCache.Get(d)
	if !ok {
		// Evicted (and so closed by the cache) by another Put racing us
		// into the same shard before we could dup it back out; give the
		// caller a descriptor of its own instead.
		fresh, err := os.Open(s.PathFor(d))
		if err != nil {
			return nil, fmt.Errorf("cas: open blob: %w", err)
		}
		return fresh, nil
	}
	return dup, nil
}

// Delete removes d from the store, clearing the immutable flag first.
// Callers must hold whatever reference-count guarantee (GC's mark phase)
// makes this safe; Delete itself performs no liveness check.
func (s *Store) Delete(d digest.Digest) error {
	path := s.PathFor(d)

	if err := clearImmutable(path); err != nil && !errors.Is(err, vrifterr.ErrNotSupported) {
		return fmt.Errorf("cas: clear immutable before delete: %w", err)
	}

	s.fdCache.Evict(d)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cas: delete blob: %w", err)
	}
	return nil
}

// copyWithContext copies src into dst using a reusable 1MiB buffer,
// checking ctx for cancellation between reads so large ingests remain
// interruptible.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 1<<20)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			if nw > 0 {
				total += int64(nw)
			}
			if ew != nil {
				return total, ew
			}
			if nw != nr {
				return total, io.ErrShortWrite
			}
		}
		if er != nil {
			if errors.Is(er, io.EOF) {
				return total, nil
			}
			return total, er
		}
	}
}

// fsyncDir forces the directory entry created by a rename to stable
// storage; best-effort, non-fatal on filesystems that ignore it.
func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
