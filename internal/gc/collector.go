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

// Package gc implements mark-and-sweep reclamation of CAS blobs that no
// project manifest references anymore.
package gc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mfinelli/vrift/internal/cas"
	"github.com/mfinelli/vrift/internal/digest"
	"github.com/mfinelli/vrift/internal/manifest"
	"github.com/mfinelli/vrift/internal/registry"
)

// GCOptions configures one Collector.Run call.
type GCOptions struct {
	DryRun         bool
	PruneStale     bool // also drop dead registry entries after mark
	MaxConcurrency int  // defaults to 4, mirroring the teacher's GCOpts default
}

// Report summarizes one GC run.
type Report struct {
	Reachable      int
	Orphans        int
	BytesReclaimed int64
	DryRun         bool
}

// Collector reclaims CAS blobs unreferenced by any live project manifest.
type Collector struct {
	Store    *cas.Store
	Registry *registry.Registry
	LockPath string
}

// New builds a Collector over an already-open CAS store and registry.
func New(store *cas.Store, reg *registry.Registry, lockPath string) *Collector {
	return &Collector{Store: store, Registry: reg, LockPath: lockPath}
}

// Run performs one mark-and-sweep pass.
func (c *Collector) Run(ctx context.Context, opts GCOptions) (Report, error) {
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = 4
	}

	lock, err := AcquireRegistryLock(c.LockPath)
	if err != nil {
		return Report{}, err
	}
	defer lock.Release()

	marked, err := c.mark(ctx, opts)
	if err != nil {
		return Report{}, err
	}

	if opts.PruneStale {
		if err := c.Registry.PruneStale(); err != nil {
			return Report{}, fmt.Errorf("gc: prune stale registry entries: %w", err)
		}
	}

	report, err := c.sweep(marked, opts)
	if err != nil {
		return Report{}, err
	}
	report.Reachable = len(marked)
	report.DryRun = opts.DryRun
	return report, nil
}

// mark unions every digest referenced by any live project manifest.
func (c *Collector) mark(ctx context.Context, opts GCOptions) (map[digest.Digest]struct{}, error) {
	records, err := c.Registry.List()
	if err != nil {
		return nil, fmt.Errorf("gc: list registry: %w", err)
	}

	var markMu sync.Mutex
	marked := make(map[digest.Digest]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrency)

	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			store, err := manifest.OpenReadOnly(rec.ManifestPath)
			if err != nil {
				// Skipping it would let sweep delete blobs it references.
				return fmt.Errorf("gc: open manifest during mark: %w", err)
			}
			defer store.Close()

			return store.ScanPrefix("", func(path string, e manifest.Entry) error {
				if e.Kind == manifest.KindDir {
					return nil
				}
				markMu.Lock()
				marked[e.Digest] = struct{}{}
				markMu.Unlock()
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gc: mark phase: %w", err)
	}
	return marked, nil
}

// sweep scans the CAS directory tree and deletes (or, in DryRun, merely
// reports) any blob digest not present in marked.
func (c *Collector) sweep(marked map[digest.Digest]struct{}, opts GCOptions) (Report, error) {
	var report Report

	for l1 := 0; l1 < 256; l1++ {
		l1Dir := filepath.Join(c.Store.Root, hexByte(l1))
		l2Entries, err := os.ReadDir(l1Dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return report, fmt.Errorf("gc: read l1 shard %s: %w", l1Dir, err)
		}

		for _, l2 := range l2Entries {
			if !l2.IsDir() {
				continue
			}
			l2Dir := filepath.Join(l1Dir, l2.Name())
			leaves, err := os.ReadDir(l2Dir)
			if err != nil {
				return report, fmt.Errorf("gc: read l2 shard %s: %w", l2Dir, err)
			}

			for _, leaf := range leaves {
				if leaf.IsDir() {
					continue
				}
				d, err := digestFromPathComponents(l1, l2.Name(), leaf.Name())
				if err != nil {
					logrus.WithField("path", filepath.Join(l2Dir, leaf.Name())).
						Warn("gc: skipping unparsable blob filename")
					continue
				}

				if _, live := marked[d]; live {
					continue
				}

				info, err := leaf.Info()
				if err != nil {
					return report, fmt.Errorf("gc: stat orphan %s: %w", d, err)
				}

				report.Orphans++
				report.BytesReclaimed += info.Size()

				if !opts.DryRun {
					if err := c.Store.Delete(d); err != nil {
						return report, fmt.Errorf("gc: delete orphan %s: %w", d, err)
					}
				}
			}
		}
	}

	return report, nil
}

func hexByte(i int) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[i>>4], digits[i&0xf]})
}

func digestFromPathComponents(l1 int, l2Name, leafName string) (digest.Digest, error) {
	hexStr := hexByte(l1) + l2Name + leafName
	return digest.Parse(hexStr)
}
