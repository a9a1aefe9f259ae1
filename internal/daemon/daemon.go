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

// Package daemon is the long-lived process that keeps one project's
// manifest and CAS store warm, serves the shim's RPCs over a Unix
// socket, and re-ingests files as the watcher reports them changing.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/mfinelli/vrift/internal/cas"
	"github.com/mfinelli/vrift/internal/daemon/proto"
	"github.com/mfinelli/vrift/internal/digest"
	"github.com/mfinelli/vrift/internal/ingest"
	"github.com/mfinelli/vrift/internal/manifest"
	"github.com/mfinelli/vrift/internal/registry"
	"github.com/mfinelli/vrift/internal/watch"
)

const (
	connIdleTimeout   = 60 * time.Second
	defaultQueueDepth = 1024
	contentCacheSize  = 512

	// cowSweepInterval and cowStagingMaxAge bound the CoW engine's
	// failure-atomicity invariant (K4): a crash between the CoW copy
	// and the final rename leaves an orphaned staging file under
	// cowStagingDir, which this daemon-owned sweep removes once it's
	// old enough that no in-flight CoW could still be using it. The
	// sweeper runs daemon-side rather than inside the shim itself,
	// since the shim must not spawn threads.
	cowSweepInterval = 10 * time.Minute
	cowStagingMaxAge = time.Hour
	cowStagingDir    = "/tmp"
	cowStagingGlob   = "vrift_cow_*.tmp"
)

// Config configures one Daemon instance.
type Config struct {
	SocketPath   string
	ProjectRoot  string
	ManifestPath string
	CASRoot      string
	Mode         ingest.Mode
	QueueDepth   int
}

// Daemon serves one project's manifest/CAS over a Unix socket and keeps
// them current via a filesystem watcher.
type Daemon struct {
	cfg Config

	manifestStore *manifest.Store
	casStore      *cas.Store
	watcher       *watch.Watcher
	engine        *ingest.Engine

	sf       singleflight.Group
	content  *lru.Cache[digest.Digest, []byte]
	inFlight map[string]*sync.Mutex
	inFlMu   sync.Mutex

	events chan watch.Event

	listener net.Listener
}

// New opens (never trusting any prior snapshot) the manifest and CAS
// store for cfg.ProjectRoot and starts a watcher over it.
func New(cfg Config) (*Daemon, error) {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}

	mstore, err := manifest.Open(cfg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: open manifest: %w", err)
	}

	cstore, err := cas.Open(cfg.CASRoot)
	if err != nil {
		mstore.Close()
		return nil, fmt.Errorf("daemon: open cas: %w", err)
	}

	w, err := watch.New(cfg.ProjectRoot, nil)
	if err != nil {
		mstore.Close()
		cstore.Close()
		return nil, fmt.Errorf("daemon: start watcher: %w", err)
	}

	reg, err := registry.Open()
	if err != nil {
		mstore.Close()
		cstore.Close()
		w.Close()
		return nil, fmt.Errorf("daemon: open registry: %w", err)
	}

	content, err := lru.New[digest.Digest, []byte](contentCacheSize)
	if err != nil {
		mstore.Close()
		cstore.Close()
		w.Close()
		return nil, fmt.Errorf("daemon: content cache: %w", err)
	}

	d := &Daemon{
		cfg:           cfg,
		manifestStore: mstore,
		casStore:      cstore,
		watcher:       w,
		engine:        ingest.New(cstore, reg),
		content:       content,
		inFlight:      make(map[string]*sync.Mutex),
		events:        make(chan watch.Event, cfg.QueueDepth),
	}

	return d, nil
}

// Close shuts down the watcher and both stores. It does not remove the
// socket file.
func (d *Daemon) Close() error {
	d.watcher.Close()
	errManifest := d.manifestStore.Close()
	errCAS := d.casStore.Close()
	if errManifest != nil {
		return errManifest
	}
	return errCAS
}

// Serve listens on cfg.SocketPath and accepts connections until ctx is
// canceled. It also starts the watcher event pump in the background.
func (d *Daemon) Serve(ctx context.Context) error {
	_ = os.Remove(d.cfg.SocketPath)

	l, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("daemon: listen on %s: %w", d.cfg.SocketPath, err)
	}
	d.listener = l
	defer l.Close()

	go d.watcher.Run()
	go d.pumpEvents(ctx)
	go d.reingestLoop(ctx)
	go d.sweepStagingFiles(ctx)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("daemon: accept: %w", err)
			}
		}
		go d.handleConn(conn)
	}
}

// pumpEvents drains the watcher's own channel into the daemon's bounded
// queue, dropping the oldest pending event on overflow rather than
// blocking the watcher's read loop.
func (d *Daemon) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			select {
			case d.events <- ev:
			default:
				select {
				case <-d.events:
				default:
				}
				logrus.WithField("path", ev.Path).Warn("daemon: event queue full, dropped oldest")
				d.events <- ev
			}
		}
	}
}

// reingestLoop re-ingests individual changed files, serialized per path
// so two rapid-fire events for the same file never race each other's
// hash/commit pass.
func (d *Daemon) reingestLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.events:
			if !ok {
				return
			}
			d.reingestOne(ctx, ev)
		}
	}
}

// sweepStagingFiles periodically removes CoW staging files left behind
// by a shim that crashed between writing its staging copy and
// atomically renaming it over the original path (K4). It never touches
// a staging file younger than cowStagingMaxAge, so it can't race a
// still-in-progress CoW.
func (d *Daemon) sweepStagingFiles(ctx context.Context) {
	ticker := time.NewTicker(cowSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepStagingFilesOnce()
		}
	}
}

func (d *Daemon) sweepStagingFilesOnce() {
	matches, err := filepath.Glob(filepath.Join(cowStagingDir, cowStagingGlob))
	if err != nil {
		logrus.WithError(err).Warn("daemon: staging sweep glob failed")
		return
	}

	cutoff := time.Now().Add(-cowStagingMaxAge)
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).WithField("path", p).Warn("daemon: failed to sweep orphaned CoW staging file")
		}
	}
}

func (d *Daemon) pathLock(path string) *sync.Mutex {
	d.inFlMu.Lock()
	defer d.inFlMu.Unlock()

	m, ok := d.inFlight[path]
	if !ok {
		m = &sync.Mutex{}
		d.inFlight[path] = m
	}
	return m
}

func (d *Daemon) reingestOne(ctx context.Context, ev watch.Event) {
	lock := d.pathLock(ev.Path)
	lock.Lock()
	defer lock.Unlock()

	if ev.Kind == watch.Deleted {
		d.deleteManifestEntry(ctx, ev.Path)
		return
	}

	if _, err := os.Stat(ev.Path); err != nil {
		if ev.Kind == watch.Renamed {
			// fsnotify (and the kqueue/inotify backends it wraps) reports
			// a rename as a Rename op on the vacated source path only; it
			// exposes no cookie pairing it with the destination's Create,
			// so the destination side is already handled by the ordinary
			// Created branch below and this path is purely the old one
			// disappearing. Without this, the manifest entry at the old
			// path is never removed.
			d.deleteManifestEntry(ctx, ev.Path)
			return
		}
		logrus.WithError(err).WithField("path", ev.Path).Debug("daemon: path vanished before re-ingest")
		return
	}

	if err := d.engine.IngestOne(ctx, d.manifestStore, d.cfg.ProjectRoot, ev.Path, d.cfg.Mode, ingest.TierThresholds{}); err != nil {
		logrus.WithError(err).WithField("path", ev.Path).Warn("daemon: re-ingest failed")
	}
}

// deleteManifestEntry removes absPath's entry (and, for a directory, every
// entry under it) from the manifest in one transaction.
func (d *Daemon) deleteManifestEntry(ctx context.Context, absPath string) {
	rel, err := filepath.Rel(d.cfg.ProjectRoot, absPath)
	if err != nil {
		logrus.WithError(err).WithField("path", absPath).Warn("daemon: cannot relativize deleted path")
		return
	}

	txn, err := d.manifestStore.BeginWrite(ctx)
	if err != nil {
		logrus.WithError(err).WithField("path", absPath).Warn("daemon: begin delete txn failed")
		return
	}
	if err := txn.DeletePrefix(rel); err != nil {
		_ = txn.Rollback()
		logrus.WithError(err).WithField("path", absPath).Warn("daemon: delete entry failed")
		return
	}
	if err := txn.Commit(); err != nil {
		logrus.WithError(err).WithField("path", absPath).Warn("daemon: commit delete failed")
	}
}

// handleConn drives one connection's per-connection state machine:
// Idle -> AwaitingRequest -> Processing -> Idle, until the peer closes
// the socket or the idle deadline trips.
func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		if err := conn.SetDeadline(time.Now().Add(connIdleTimeout)); err != nil {
			return
		}

		req, err := proto.ReadMessage(conn)
		if err != nil {
			return
		}

		resp := d.dispatch(req)

		if err := proto.WriteMessage(conn, resp); err != nil {
			return
		}
	}
}

func (d *Daemon) dispatch(req proto.Message) proto.Message {
	switch req.Kind {
	case proto.KindStat:
		return d.handleStat(req)
	case proto.KindOpen:
		return d.handleOpen(req)
	case proto.KindRegister:
		return d.handleRegister(req)
	case proto.KindHealth:
		return proto.Message{Kind: proto.KindHealth, OK: true, Healthy: true}
	default:
		return proto.Message{Kind: req.Kind, OK: false, Error: "unknown message kind"}
	}
}

func (d *Daemon) handleStat(req proto.Message) proto.Message {
	e, found, err := d.manifestStore.Lookup(req.Path)
	if err != nil {
		return proto.Message{Kind: proto.KindStat, OK: false, Error: err.Error()}
	}
	if !found {
		return proto.Message{Kind: proto.KindStat, OK: false, Error: "not found"}
	}

	return proto.Message{
		Kind:   proto.KindStat,
		OK:     true,
		Size:   e.Size,
		Mode:   e.Mode,
		Digest: e.Digest,
		IsDir:  e.Kind == manifest.KindDir,
	}
}

// handleOpen resolves a path to its blob content, using singleflight so
// concurrent requests for the same hot digest share one CAS read, and
// caching the result for subsequent requests.
func (d *Daemon) handleOpen(req proto.Message) proto.Message {
	e, found, err := d.manifestStore.Lookup(req.Path)
	if err != nil {
		return proto.Message{Kind: proto.KindOpen, OK: false, Error: err.Error()}
	}
	if !found {
		return proto.Message{Kind: proto.KindOpen, OK: false, Error: "not found"}
	}

	if _, ok := d.content.Get(e.Digest); !ok {
		_, err, _ := d.sf.Do(e.Digest.String(), func() (any, error) {
			f, err := d.casStore.OpenBlob(e.Digest)
			if err != nil {
				return nil, err
			}
			defer f.Close()

			buf := make([]byte, e.Size)
			if _, err := f.ReadAt(buf, 0); err != nil {
				return nil, err
			}
			d.content.Add(e.Digest, buf)
			return buf, nil
		})
		if err != nil {
			return proto.Message{Kind: proto.KindOpen, OK: false, Error: err.Error()}
		}
	}

	return proto.Message{Kind: proto.KindOpen, OK: true, Size: e.Size, Digest: e.Digest}
}

func (d *Daemon) handleRegister(req proto.Message) proto.Message {
	if err := d.engine.Registry.Add(req.ManifestPath, req.ProjectRoot); err != nil {
		return proto.Message{Kind: proto.KindRegister, OK: false, Error: err.Error()}
	}
	return proto.Message{Kind: proto.KindRegister, OK: true}
}
