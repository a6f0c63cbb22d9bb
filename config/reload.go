package config

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vcsreplica/engine/pkgs/logger"
)

// Controller watches the on-disk configuration and swaps in a new
// Snapshot when its version fingerprint changes, per spec §4.F.
//
// It never reloads while the replication queue is replaying
// (isReplaying returns true) or stopped, so an in-flight push is never
// disrupted by a destination being rebuilt out from under it.
type Controller struct {
	loader *Loader
	log    logger.Logger

	isReplaying func() bool
	onReload    func(*Snapshot) error

	mu                sync.Mutex
	loadedVersion     string
	lastFailedVersion string

	current atomic.Value // *Snapshot

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped int32
}

// NewController creates a reload Controller. onReload is invoked with
// the freshly parsed Snapshot whenever the version changes; it is
// expected to quiesce and rebuild destinations and return an error if
// that fails (in which case the previous Snapshot stays in effect).
func NewController(loader *Loader, log logger.Logger, isReplaying func() bool, onReload func(*Snapshot) error) *Controller {
	return &Controller{
		loader:      loader,
		log:         log.Module("config-reload"),
		isReplaying: isReplaying,
		onReload:    onReload,
		stopCh:      make(chan struct{}),
	}
}

// Current returns the currently published Snapshot, or nil if Start
// has not yet completed its initial load.
func (c *Controller) Current() *Snapshot {
	v, _ := c.current.Load().(*Snapshot)
	return v
}

// Start performs the initial load and begins the periodic reload poll.
// autoReload, if false, disables the background poller but the initial
// load still happens so the engine has a Snapshot to run with.
func (c *Controller) Start() error {
	snapshot, err := c.loader.Load()
	if err != nil {
		return err
	}
	if err := c.onReload(snapshot); err != nil {
		return err
	}

	c.mu.Lock()
	c.loadedVersion = snapshot.Version
	c.mu.Unlock()
	c.current.Store(snapshot)

	if !snapshot.AutoReload {
		return nil
	}

	interval := snapshot.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	if w, err := fsnotify.NewWatcher(); err == nil {
		c.watcher = w
		_ = w.Add(c.loader.dataDir)
		_ = os.MkdirAll(c.loader.remotesDir(), 0755)
		_ = w.Add(c.loader.remotesDir())
	} else {
		c.log.Warn("failed to start config filesystem watcher, falling back to polling only", "Err", err.Error())
	}

	c.wg.Add(1)
	go c.run(interval)

	return nil
}

func (c *Controller) run(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	if c.watcher != nil {
		events = c.watcher.Events
	}

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cycle()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.cycle()
		}
	}
}

// cycle implements the single auto-reload protocol step of spec §4.F.
func (c *Controller) cycle() {
	if atomic.LoadInt32(&c.stopped) == 1 {
		return
	}
	if c.isReplaying() {
		return
	}

	pendingVersion, err := c.loader.PendingVersion()
	if err != nil {
		c.log.Error("failed to compute pending config version", "Err", err.Error())
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pendingVersion == c.loadedVersion || pendingVersion == c.lastFailedVersion {
		return
	}

	snapshot, err := c.loader.Load()
	if err != nil {
		c.log.Error("config reload: parse failed, retaining previous snapshot", "Version", pendingVersion, "Err", err.Error())
		c.lastFailedVersion = pendingVersion
		return
	}

	if err := c.onReload(snapshot); err != nil {
		c.log.Error("config reload: rebuild failed, retaining previous snapshot", "Version", pendingVersion, "Err", err.Error())
		c.lastFailedVersion = pendingVersion
		return
	}

	c.loadedVersion = pendingVersion
	c.lastFailedVersion = ""
	c.current.Store(snapshot)
	c.log.Info("config reloaded", "Version", pendingVersion)
}

// Stop halts the reload poller. In-flight pushes are unaffected; it
// only prevents further Snapshot swaps.
func (c *Controller) Stop() {
	if !atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		return
	}
	close(c.stopCh)
	if c.watcher != nil {
		c.watcher.Close()
	}
	c.wg.Wait()
}
