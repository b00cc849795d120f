package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"sync"

	"github.com/spf13/afero"
)

// Gateway writes best-effort snapshots of the whole room map to an
// external store, modelled as an afero filesystem so production uses
// the OS (or any mounted object store) and tests use MemMapFs.
//
// Snapshots are fire-and-forget: failures are logged and swallowed,
// and a snapshot racing the next mutation simply captures slightly
// stale state. Only the in-memory copy is authoritative.
type Gateway struct {
	cfg  *Config
	fs   afero.Fs
	path string

	mu sync.Mutex
}

func newGateway(cfg *Config, storeFS afero.Fs, path string) *Gateway {
	return &Gateway{
		cfg:  cfg,
		fs:   storeFS,
		path: path,
	}
}

// snapshot serializes the registry and overwrites the prior stored
// value. Never called while holding a room lock; export takes and
// releases each room lock itself. Writes are serialized so concurrent
// snapshots cannot interleave on the store.
func (g *Gateway) snapshot(reg *Registry) {
	rooms := reg.export()

	g.mu.Lock()
	defer g.mu.Unlock()

	data, err := json.MarshalIndent(rooms, "", "  ")
	if err != nil {
		logf(g.cfg, "STATE: Snapshot marshal failed: %v", err)

		return
	}

	if err := afero.WriteFile(g.fs, g.path, data, 0o644); err != nil {
		logf(g.cfg, "STATE: Snapshot write failed: %v", err)

		return
	}

	logf(g.cfg, "STATE: Snapshotted %d room(s) (%s) to %s",
		len(rooms),
		humanReadableSize(int64(len(data))),
		g.path,
	)
}

// restore loads the stored room map into the registry at process start.
// A missing store object is not an error: the registry starts empty and
// an initial snapshot is written so the object exists from then on.
func (g *Gateway) restore(reg *Registry) error {
	data, err := afero.ReadFile(g.fs, g.path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		logf(g.cfg, "STATE: No snapshot at %s, starting fresh", g.path)
		g.snapshot(reg)

		return nil
	case err != nil:
		return err
	}

	var rooms map[string]RoomState
	if err := json.Unmarshal(data, &rooms); err != nil {
		return err
	}

	reg.restoreRooms(rooms)
	logf(g.cfg, "STATE: Restored %d room(s) from %s", len(rooms), g.path)

	return nil
}
