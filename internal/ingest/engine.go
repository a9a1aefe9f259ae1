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

// Package ingest walks a project tree, content-hashes every file in
// parallel, commits unique content into the CAS store, and writes the
// resulting path -> digest mapping into the project's manifest.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mfinelli/vrift/internal/cas"
	"github.com/mfinelli/vrift/internal/digest"
	"github.com/mfinelli/vrift/internal/manifest"
	"github.com/mfinelli/vrift/internal/pathutil"
	"github.com/mfinelli/vrift/internal/registry"
)

// Mode selects how a regular file's content is committed to the CAS
// store once hashed.
type Mode int

const (
	// ModeSolid hardlinks the source into the CAS, leaving the original
	// file in place; since it shares the blob's inode, it also gets the
	// immutable flag where the filesystem supports one.
	ModeSolid Mode = iota
	// ModePhantom renames the source into the CAS, replacing it at the
	// project path with nothing; callers are expected to reconstruct the
	// working tree view through the shim/daemon rather than the raw
	// filesystem.
	ModePhantom
)

// IngestOptions configures one Ingest call.
type IngestOptions struct {
	ProjectRoot    string
	ManifestPath   string
	Mode           Mode
	IgnorePatterns []string // path.Match-style globs, matched against project-relative paths
	TierThresholds TierThresholds
	MaxParallelism int // defaults to runtime.NumCPU()
}

// Summary reports the outcome of one ingest run.
type Summary struct {
	FilesSeen      int
	FilesIngested  int
	FilesDeduped   int
	DirsSeen       int
	SymlinksSeen   int
	BytesIngested  int64
	PermissionSkip int
}

// Engine ties a CAS store and the project manifest registry together to
// perform ingest runs.
type Engine struct {
	Store    *cas.Store
	Registry *registry.Registry
}

// New builds an Engine over an already-open CAS store and registry.
func New(store *cas.Store, reg *registry.Registry) *Engine {
	return &Engine{Store: store, Registry: reg}
}

type hashedFile struct {
	relPath string
	digest  digest.Digest
	size    int64
	mode    fs.FileMode
	absPath string
	symlink bool
	target  string // symlink target bytes, set only when symlink is true
}

// Ingest walks opts.ProjectRoot, hashes every file, commits unique
// content to the CAS, and writes the resulting entries into the project
// manifest at opts.ManifestPath. IngestOne does the same for a single
// path against an already-open manifest.
func (e *Engine) Ingest(ctx context.Context, opts IngestOptions) (Summary, error) {
	var summary Summary

	parallelism := opts.MaxParallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	thresholds := opts.TierThresholds
	if thresholds == (TierThresholds{}) {
		thresholds = DefaultTierThresholds
	}

	paths, dirs, symlinks, err := e.walk(opts.ProjectRoot, opts.IgnorePatterns, &summary)
	if err != nil {
		return summary, err
	}
	summary.DirsSeen = len(dirs)
	summary.SymlinksSeen = len(symlinks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var mu sync.Mutex
	hashed := make([]hashedFile, 0, len(paths))

	for _, p := range paths {
		p := p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			hf, err := e.hashOne(p, opts.ProjectRoot, thresholds)
			if err != nil {
				if errors.Is(err, os.ErrPermission) {
					logrus.WithField("path", p).Warn("ingest: permission denied, skipping")
					mu.Lock()
					summary.PermissionSkip++
					mu.Unlock()
					return nil
				}
				return err
			}

			mu.Lock()
			hashed = append(hashed, hf)
			summary.FilesSeen++
			mu.Unlock()
			return nil
		})
	}

	for _, l := range symlinks {
		hf, err := e.hashSymlink(l, opts.ProjectRoot)
		if err != nil {
			return summary, err
		}
		hashed = append(hashed, hf)
	}

	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("ingest: hash pass: %w", err)
	}

	dedup := newDedupSet()
	entries := make(map[string]manifest.Entry, len(hashed))

	for _, hf := range hashed {
		seen := dedup.addIfAbsent(hf.digest)
		if seen {
			summary.FilesDeduped++
		} else {
			if _, err := e.commit(ctx, hf, opts.Mode); err != nil {
				return summary, err
			}
			summary.FilesIngested++
			summary.BytesIngested += hf.size
		}

		kind := manifest.KindFile
		if hf.symlink {
			kind = manifest.KindSymlink
		}

		entries[hf.relPath] = manifest.Entry{
			Kind:   kind,
			Digest: hf.digest,
			Size:   hf.size,
			Mode:   uint32(hf.mode),
		}
	}

	for _, d := range dirs {
		rel := pathutil.Normalize(relPath(opts.ProjectRoot, d))
		entries[rel] = manifest.Entry{Kind: manifest.KindDir}
	}

	if err := e.writeManifest(ctx, opts.ManifestPath, entries); err != nil {
		return summary, err
	}

	if e.Registry != nil {
		if err := e.Registry.Add(opts.ManifestPath, opts.ProjectRoot); err != nil {
			return summary, fmt.Errorf("ingest: register manifest: %w", err)
		}
	}

	return summary, nil
}

func (e *Engine) walk(root string, ignore []string, summary *Summary) (files, dirs, symlinks []string, err error) {
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrPermission) {
				logrus.WithField("path", p).Warn("ingest: permission denied, skipping")
				summary.PermissionSkip++
				return nil
			}
			return walkErr
		}

		rel := relPath(root, p)
		if rel == ".vrift" || strings.HasPrefix(rel, ".vrift/") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if matchesAny(ignore, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if rel == "." {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			symlinks = append(symlinks, p)
			return nil
		}

		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}

		files = append(files, p)
		return nil
	})
	return files, dirs, symlinks, err
}

func matchesAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

func (e *Engine) hashOne(absPath, root string, thresholds TierThresholds) (hashedFile, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return hashedFile{}, fmt.Errorf("ingest: open %s: %w", absPath, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return hashedFile{}, fmt.Errorf("ingest: stat %s: %w", absPath, err)
	}

	d, n, err := digest.FromReader(f)
	if err != nil {
		return hashedFile{}, fmt.Errorf("ingest: hash %s: %w", absPath, err)
	}

	tier := thresholds.Classify(n)
	logrus.WithFields(logrus.Fields{"path": absPath, "tier": tier, "size": n}).Debug("ingest: hashed file")

	return hashedFile{
		relPath: pathutil.Normalize(relPath(root, absPath)),
		digest:  d,
		size:    n,
		mode:    st.Mode(),
		absPath: absPath,
	}, nil
}

func (e *Engine) hashSymlink(absPath, root string) (hashedFile, error) {
	target, err := os.Readlink(absPath)
	if err != nil {
		return hashedFile{}, fmt.Errorf("ingest: readlink %s: %w", absPath, err)
	}

	st, err := os.Lstat(absPath)
	if err != nil {
		return hashedFile{}, fmt.Errorf("ingest: lstat %s: %w", absPath, err)
	}

	d := digest.Hash([]byte(target))

	return hashedFile{
		relPath: pathutil.Normalize(relPath(root, absPath)),
		digest:  d,
		size:    int64(len(target)),
		mode:    st.Mode(),
		absPath: absPath,
		symlink: true,
		target:  target,
	}, nil
}

// commit places hf's content into the CAS per mode. Phantom mode requires
// the source to disappear (it's renamed away); a cross-device source is
// returned as an explicit error rather than silently falling back to a
// copy, since that would leave the source behind and violate Phantom's
// contract.
//
// Symlinks have no on-disk blob to hardlink or rename: §4.D's "target
// bytes are hashed and stored as a blob" describes synthetic content (the
// target string), not the source path itself, so symlinks always commit
// via PutStream regardless of Solid/Phantom mode.
func (e *Engine) commit(ctx context.Context, hf hashedFile, mode Mode) (cas.PutResult, error) {
	if hf.symlink {
		return e.Store.PutStream(ctx, strings.NewReader(hf.target), hf.digest)
	}

	switch mode {
	case ModePhantom:
		return e.Store.PutRename(ctx, hf.absPath, hf.digest)
	default:
		return e.Store.PutHardlink(ctx, hf.absPath, hf.digest)
	}
}

// IngestOne hashes and commits a single file into an already-open
// manifest Store, for the daemon's per-path re-ingest path where
// re-walking the whole tree (and reopening the manifest database) on
// every watcher event would be wasteful and would contend with the
// daemon's own open handle on manifestPath.
func (e *Engine) IngestOne(ctx context.Context, store *manifest.Store, projectRoot, absPath string, mode Mode, thresholds TierThresholds) error {
	if thresholds == (TierThresholds{}) {
		thresholds = DefaultTierThresholds
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return fmt.Errorf("ingest: lstat %s: %w", absPath, err)
	}

	var hf hashedFile
	if info.Mode()&fs.ModeSymlink != 0 {
		hf, err = e.hashSymlink(absPath, projectRoot)
	} else if info.IsDir() {
		hf = hashedFile{
			relPath: pathutil.Normalize(relPath(projectRoot, absPath)),
			symlink: false,
		}
	} else {
		hf, err = e.hashOne(absPath, projectRoot, thresholds)
	}
	if err != nil {
		return err
	}

	entry := manifest.Entry{Kind: manifest.KindFile, Digest: hf.digest, Size: hf.size, Mode: uint32(hf.mode)}
	switch {
	case info.IsDir():
		entry = manifest.Entry{Kind: manifest.KindDir}
	case hf.symlink:
		entry.Kind = manifest.KindSymlink
		if _, err := e.commit(ctx, hf, mode); err != nil {
			return err
		}
	default:
		if _, err := e.commit(ctx, hf, mode); err != nil {
			return err
		}
	}

	txn, err := store.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("ingest: begin manifest write: %w", err)
	}
	if err := txn.Put(hf.relPath, entry); err != nil {
		_ = txn.Rollback()
		return fmt.Errorf("ingest: write entry: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("ingest: commit manifest: %w", err)
	}
	return nil
}

func (e *Engine) writeManifest(ctx context.Context, manifestPath string, entries map[string]manifest.Entry) error {
	store, err := manifest.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("ingest: open manifest: %w", err)
	}
	defer store.Close()

	txn, err := store.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("ingest: begin manifest write: %w", err)
	}

	if err := txn.PutSorted(entries); err != nil {
		_ = txn.Rollback()
		return fmt.Errorf("ingest: write entries: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("ingest: commit manifest: %w", err)
	}
	return nil
}

func relPath(root, target string) string {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return target
	}
	return rel
}
