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

// Package registry tracks every project manifest that has ever been
// ingested, so the garbage collector knows which CAS blobs across all
// projects sharing a store are still reachable.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Record describes one ingested project's manifest.
type Record struct {
	ManifestPath string    `json:"manifest_path"`
	ProjectRoot  string    `json:"project_root"`
	LastSeen     time.Time `json:"last_seen"`
}

type document struct {
	Records []Record `json:"records"`
}

// Registry is the append-oriented JSON file at
// <XDG_STATE_HOME>/vrift/registry/manifests.json recording every project
// manifest the GC's mark phase must account for.
type Registry struct {
	path string
}

// Open resolves the registry file's path under XDG state, without
// requiring it to already exist.
func Open() (*Registry, error) {
	p, err := xdg.StateFile(filepath.Join("vrift", "registry", "manifests.json"))
	if err != nil {
		return nil, fmt.Errorf("registry: resolve state path: %w", err)
	}
	return &Registry{path: p}, nil
}

func (r *Registry) load() (document, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return document{}, fmt.Errorf("registry: read %s: %w", r.path, err)
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return document{}, fmt.Errorf("registry: parse %s: %w", r.path, err)
	}
	return doc, nil
}

func (r *Registry) save(doc document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}
	b = append(b, '\n')

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("registry: write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("registry: rename %s -> %s: %w", tmp, r.path, err)
	}
	return nil
}

// Add records manifestPath/projectRoot as seen now. A second Add for the
// same manifest path refreshes LastSeen rather than duplicating the
// entry.
func (r *Registry) Add(manifestPath, projectRoot string) error {
	doc, err := r.load()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range doc.Records {
		if doc.Records[i].ManifestPath == manifestPath {
			doc.Records[i].ProjectRoot = projectRoot
			doc.Records[i].LastSeen = now
			return r.save(doc)
		}
	}

	doc.Records = append(doc.Records, Record{
		ManifestPath: manifestPath,
		ProjectRoot:  projectRoot,
		LastSeen:     now,
	})
	return r.save(doc)
}

// List returns every record whose manifest file still exists on disk,
// without mutating the registry file. Stale entries (manifest deleted
// out-of-band) are simply omitted from the result.
func (r *Registry) List() ([]Record, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	live := make([]Record, 0, len(doc.Records))
	for _, rec := range doc.Records {
		if _, err := os.Stat(rec.ManifestPath); err == nil {
			live = append(live, rec)
		}
	}
	return live, nil
}

// PruneStale rewrites the registry file keeping only records whose
// manifest still exists, compacting away dead entries.
func (r *Registry) PruneStale() error {
	doc, err := r.load()
	if err != nil {
		return err
	}

	live := make([]Record, 0, len(doc.Records))
	for _, rec := range doc.Records {
		if _, err := os.Stat(rec.ManifestPath); err == nil {
			live = append(live, rec)
		}
	}
	doc.Records = live
	return r.save(doc)
}
