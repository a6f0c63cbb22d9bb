// Package store implements the crash-safe persistent index of
// replication tasks described by the engine's task store component: a
// waiting/ and running/ directory pair, with atomic rename as the sole
// concurrency primitive.
package store

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vcsreplica/engine/pkgs/cache"
	"github.com/vcsreplica/engine/pkgs/logger"
)

const (
	waitingDirName = "waiting"
	runningDirName = "running"
	tmpDirName     = "tmp"

	// staleTempAge is how old a leftover tmp/ file must be before the
	// startup sweep considers it garbage from an interrupted create.
	staleTempAge = 1 * time.Hour

	existenceCacheSize = 4096
)

// Store is a filesystem-backed index of waiting and running
// replication tasks, shared safely across multiple readers and
// writers via POSIX rename atomicity.
type Store struct {
	root       string
	waitingDir string
	runningDir string
	tmpDir     string
	log        logger.Logger

	createMu sync.Mutex
	seen     *cache.Cache // key -> struct{}, recently created/seen, avoids redundant stat calls
}

// Open creates (if absent) the on-disk layout rooted at dir and
// returns a Store over it. Safe to call from multiple processes
// sharing the same directory.
func Open(dir string, log logger.Logger) (*Store, error) {
	s := &Store{
		root:       dir,
		waitingDir: filepath.Join(dir, waitingDirName),
		runningDir: filepath.Join(dir, runningDirName),
		tmpDir:     filepath.Join(dir, tmpDirName),
		log:        log.Module("task-store"),
	}

	for _, d := range []string{s.waitingDir, s.runningDir, s.tmpDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", d)
		}
	}

	s.seen = cache.NewCache(existenceCacheSize)

	s.sweepStaleTemp()

	return s, nil
}

// sweepStaleTemp removes temp files left behind by a create that
// crashed between write and rename (spec §4.A "Failure handling").
func (s *Store) sweepStaleTemp() {
	entries, err := ioutil.ReadDir(s.tmpDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-staleTempAge)
	for _, e := range entries {
		if e.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.tmpDir, e.Name())); err != nil && !os.IsNotExist(err) {
				s.log.Warn("failed to remove stale temp file", "File", e.Name(), "Err", err.Error())
			}
		}
	}
}

// Create persists u as a waiting task and returns its key. If a task
// with the same key already exists (in either state), Create is a
// no-op dedupe and returns the existing key (I1).
func (s *Store) Create(u RefUpdate) (string, error) {
	key := u.Key()

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if s.seen.Has(key) || s.exists(key) {
		s.seen.Add(key, struct{}{})
		return key, nil
	}

	data, err := json.Marshal(u)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode ref update")
	}

	tmpFile, err := ioutil.TempFile(s.tmpDir, key+".*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", errors.Wrap(err, "failed to write temp file")
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrap(err, "failed to close temp file")
	}

	if err := os.Rename(tmpPath, filepath.Join(s.waitingDir, key)); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrap(err, "failed to rename into waiting")
	}

	s.seen.Add(key, struct{}{})
	return key, nil
}

func (s *Store) exists(key string) bool {
	if _, err := os.Stat(filepath.Join(s.waitingDir, key)); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(s.runningDir, key)); err == nil {
		return true
	}
	return false
}

// Start moves each RefUpdate in group from waiting to running. A
// RefUpdate with no corresponding waiting file is tolerated (already
// started by another worker, or already running).
func (s *Store) Start(group []RefUpdate) error {
	for _, u := range group {
		key := u.Key()
		err := os.Rename(filepath.Join(s.waitingDir, key), filepath.Join(s.runningDir, key))
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to start task %s", key)
		}
	}
	return nil
}

// Finish removes each RefUpdate in group from running. Missing files
// are tolerated (I5 — idempotent completion).
func (s *Store) Finish(group []RefUpdate) error {
	for _, u := range group {
		key := u.Key()
		s.seen.Remove(key)
		if err := os.Remove(filepath.Join(s.runningDir, key)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to finish task %s", key)
		}
	}
	return nil
}

// Reset is the inverse of Start: it moves each RefUpdate in group
// from running back to waiting. Missing files are tolerated.
func (s *Store) Reset(group []RefUpdate) error {
	for _, u := range group {
		key := u.Key()
		err := os.Rename(filepath.Join(s.runningDir, key), filepath.Join(s.waitingDir, key))
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to reset task %s", key)
		}
	}
	return nil
}

// ResetAll moves every task currently in running back to waiting.
// Startup MUST call this before any worker begins dispatching (I4):
// a task found in running at process start cannot actually be
// in-flight on any worker.
func (s *Store) ResetAll() error {
	entries, err := ioutil.ReadDir(s.runningDir)
	if err != nil {
		return errors.Wrap(err, "failed to list running tasks")
	}
	for _, e := range entries {
		src := filepath.Join(s.runningDir, e.Name())
		dst := filepath.Join(s.waitingDir, e.Name())
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			s.log.Error("failed to reset task during resetAll", "Key", e.Name(), "Err", err.Error())
		}
	}
	return nil
}

// ListWaiting enumerates all waiting tasks. A file that disappears
// mid-scan or fails to parse is skipped, not an error.
func (s *Store) ListWaiting() ([]RefUpdate, error) {
	return s.list(s.waitingDir)
}

// ListRunning enumerates all running tasks.
func (s *Store) ListRunning() ([]RefUpdate, error) {
	return s.list(s.runningDir)
}

func (s *Store) list(dir string) ([]RefUpdate, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", dir)
	}

	out := make([]RefUpdate, 0, len(entries))
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			s.log.Warn("failed to read task file", "Path", path, "Err", err.Error())
			continue
		}

		var u RefUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			s.log.Warn("failed to parse task file, skipping", "Path", path, "Err", err.Error())
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// Stats returns the current waiting/running counts, served by the
// control API's /stats endpoint.
func (s *Store) Stats() (waiting, running int, err error) {
	w, err := ioutil.ReadDir(s.waitingDir)
	if err != nil {
		return 0, 0, err
	}
	r, err := ioutil.ReadDir(s.runningDir)
	if err != nil {
		return 0, 0, err
	}
	return len(w), len(r), nil
}
