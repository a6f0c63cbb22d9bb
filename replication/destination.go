// Package replication implements the destination & scheduler control
// plane described by spec §4.C: per-remote queueing, delay batching,
// worker-pool dispatch, and retry, plus best-effort admin operations
// dispatched outside the task store.
package replication

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/vcsreplica/engine/config"
	"github.com/vcsreplica/engine/pkgs/logger"
	"github.com/vcsreplica/engine/pkgs/queue"
	"github.com/vcsreplica/engine/push"
	"github.com/vcsreplica/engine/store"
)

// Pusher performs a single push attempt and classifies its outcome.
// Satisfied by *push.Worker; expressed as an interface so tests can
// substitute a fake without a real git repository.
type Pusher interface {
	Push(ctx context.Context, job push.Job) (push.Result, error)
}

// AdminTransport performs project lifecycle operations against a
// destination's admin endpoint (spec §6). Implementations live in the
// admin package; Destination only depends on this contract.
type AdminTransport interface {
	CreateProject(ctx context.Context, name, head string) error
	DeleteProject(ctx context.Context, name string) error
	UpdateHead(ctx context.Context, name, newHead string) error
}

// adminTask is one best-effort lifecycle operation dispatched through
// the destination's admin worker pool.
type adminTask struct {
	id          string
	op          string
	projectName string
	head        string
}

func (t *adminTask) GetID() interface{} { return t.id }

const (
	opCreateProject = "create"
	opDeleteProject = "delete"
	opUpdateHead    = "updateHead"
)

// Destination owns one remote's scheduling state: the RemoteConfig, a
// PushOne table keyed by URI, a bounded worker pool, and the admin
// operation queue.
type Destination struct {
	cfg    *config.RemoteConfig
	store  *store.Store
	worker Pusher
	admin  AdminTransport
	log    logger.Logger

	mu    sync.Mutex
	table map[string]*pushOne

	sem chan struct{}

	adminQueue *queue.UniqueQueue
	adminWG    sync.WaitGroup

	stopped int32
	wg      sync.WaitGroup
}

// New builds a Destination for cfg. admin may be nil if cfg has no
// admin transport configured.
func New(cfg *config.RemoteConfig, st *store.Store, worker Pusher, admin AdminTransport, log logger.Logger) *Destination {
	return &Destination{
		cfg:        cfg,
		store:      st,
		worker:     worker,
		admin:      admin,
		log:        log.Module("destination." + cfg.Name),
		table:      make(map[string]*pushOne),
		sem:        make(chan struct{}, cfg.Threads),
		adminQueue: queue.NewUnique(),
	}
}

// Name returns the destination's configured name.
func (d *Destination) Name() string { return d.cfg.Name }

// Start launches the admin-operation worker pool. The caller
// (Manager) is responsible for the store-wide resetAll and replay
// sequencing described in spec §4.C "Start-up recovery", since those
// are process-wide, not per-destination.
func (d *Destination) Start() {
	atomic.StoreInt32(&d.stopped, 0)
	for i := 0; i < d.cfg.Threads; i++ {
		d.wg.Add(1)
		go d.adminWorker()
	}
}

// Stop halts admin workers and cancels the armed timers of Scheduled
// PushOnes. A Retrying PushOne's timer stays armed; when it fires on a
// stopped destination it dispatches nothing. In-flight pushes are
// allowed to finish; callers should poll IsReplaying before considering
// the destination quiesced.
func (d *Destination) Stop() {
	atomic.StoreInt32(&d.stopped, 1)

	d.mu.Lock()
	for _, p := range d.table {
		if p.timer != nil && (p.state == stateScheduled || p.state == statePending) {
			p.timer.Stop()
		}
	}
	d.mu.Unlock()

	for i := 0; i < d.cfg.Threads; i++ {
		d.adminQueue.Append(&adminTask{id: "__stop__"})
	}
	d.wg.Wait()
}

func (d *Destination) isStopped() bool {
	return atomic.LoadInt32(&d.stopped) == 1
}

// IsReplaying reports whether any PushOne is Running or Retrying,
// i.e. whether outstanding work would be lost by an immediate reload.
func (d *Destination) IsReplaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.table {
		if p.state == stateRunning || p.state == stateRetrying {
			return true
		}
	}
	return false
}

// Schedule implements the enqueue protocol of spec §4.C for u, which
// has already been persisted to the task store by the router.
func (d *Destination) Schedule(u store.RefUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.table[u.URI]
	if !ok {
		p = newPushOne(u.Project, u.URI, u.Ref, d.cfg.ReplicationRetry)
		d.table[u.URI] = p
		d.armTimer(p, d.cfg.ReplicationDelay)
		return
	}

	switch p.state {
	case stateScheduled, statePending, stateRetrying:
		p.addPending(u.Ref)
	case stateRunning:
		p.addShadow(u.Ref)
	}
}

// armTimer schedules p's dispatch after delay. Each firing runs on its
// own goroutine so a busy worker pool does not stall the timer
// machinery for other URIs.
func (d *Destination) armTimer(p *pushOne, delay time.Duration) {
	uri := p.uri
	p.timer = time.AfterFunc(delay, func() {
		d.waitForSlotAndDispatch(uri)
	})
}

// waitForSlotAndDispatch blocks until a worker-pool slot is free, then
// dispatches uri's PushOne. Spec: "If no worker slot is free, the
// PushOne stays Scheduled; the pool signals back when a slot opens" —
// expressed here as a blocking acquire rather than an explicit signal,
// since the semaphore channel already provides that wakeup.
func (d *Destination) waitForSlotAndDispatch(uri string) {
	if d.isStopped() {
		return
	}
	d.sem <- struct{}{}
	defer func() { <-d.sem }()
	d.dispatch(uri)
}

func (d *Destination) dispatch(uri string) {
	d.mu.Lock()
	p, ok := d.table[uri]
	if !ok || d.isStopped() {
		d.mu.Unlock()
		return
	}
	p.state = stateRunning
	refs := p.pendingRefNames()
	project := p.project
	correlationID := p.correlationID
	d.mu.Unlock()

	group := make([]store.RefUpdate, 0, len(refs))
	for _, ref := range refs {
		group = append(group, store.RefUpdate{Project: project, Ref: ref, URI: uri, Remote: d.cfg.Name})
	}

	if err := d.store.Start(group); err != nil {
		d.log.Error("failed to mark tasks running", "URI", uri, "CorrelationID", correlationID, "Err", err.Error())
	}

	d.log.Debug("dispatching push batch", "URI", uri, "CorrelationID", correlationID, "Refs", len(refs))

	ctx := context.Background()
	result, err := d.worker.Push(ctx, push.Job{
		Project: project,
		Remote:  d.cfg.Name,
		URI:     uri,
		Refs:    refs,
		Force:   d.cfg.Force,
	})
	if err != nil {
		d.log.Debug("push attempt failed", "URI", uri, "CorrelationID", correlationID, "Result", result.String(), "Err", err.Error())
	}

	d.onComplete(uri, group, result)
}

// onComplete applies the completion rules of spec §4.C to uri's
// PushOne given the push worker's classified result.
func (d *Destination) onComplete(uri string, group []store.RefUpdate, result push.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.table[uri]
	if !ok {
		return
	}

	switch result {
	case push.Success:
		d.finishAndMaybeRequeue(uri, p, group)

	case push.Permanent:
		d.log.Error("permanent push failure, abandoning batch", "URI", uri, "CorrelationID", p.correlationID, "Refs", len(group))
		d.finishAndMaybeRequeue(uri, p, group)

	case push.Transient:
		if p.retriesLeft > 0 {
			p.retriesLeft--
			if err := d.store.Reset(group); err != nil {
				d.log.Error("failed to reset tasks for retry", "URI", uri, "CorrelationID", p.correlationID, "Err", err.Error())
			}
			p.state = stateRetrying
			d.armTimer(p, d.retryBackoff(p))
			return
		}
		d.log.Error("retries exhausted, treating as permanent", "URI", uri, "CorrelationID", p.correlationID, "Refs", len(group))
		d.finishAndMaybeRequeue(uri, p, group)
	}
}

// finishAndMaybeRequeue marks group finished in the store and, if refs
// accumulated in p's shadow set while it was Running, starts a
// successor PushOne from them rather than losing that work.
func (d *Destination) finishAndMaybeRequeue(uri string, p *pushOne, group []store.RefUpdate) {
	if err := d.store.Finish(group); err != nil {
		d.log.Error("failed to finish tasks", "URI", uri, "Err", err.Error())
	}

	if len(p.shadowRefs) == 0 {
		delete(d.table, uri)
		return
	}

	successor := &pushOne{
		uri:           uri,
		project:       p.project,
		correlationID: uuid.New().String(),
		pendingRefs:   p.shadowRefs,
		state:         stateScheduled,
		retriesLeft:   d.cfg.ReplicationRetry,
		scheduledAt:   time.Now(),
	}
	d.table[uri] = successor
	d.armTimer(successor, d.cfg.ReplicationDelay)
}

// retryBackoff computes the delay before the next retry attempt. A
// fresh ExponentialBackOff is seeded per PushOne so retries of
// unrelated URIs don't share jitter state.
func (d *Destination) retryBackoff(p *pushOne) time.Duration {
	if p.backoffPolicy == nil {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = d.cfg.ReplicationDelay
		eb.MaxInterval = 10 * d.cfg.ReplicationDelay
		eb.MaxElapsedTime = 0
		p.backoffPolicy = eb
	}
	return p.backoffPolicy.NextBackOff()
}

// CreateProject, DeleteProject and UpdateHead enqueue best-effort
// admin operations. They bypass the task store entirely (spec §4.C
// "Admin operations"): failures are logged, never retried through the
// replication mechanism.
func (d *Destination) CreateProject(projectName, head string) {
	d.adminQueue.Append(&adminTask{id: opCreateProject + ":" + projectName, op: opCreateProject, projectName: projectName, head: head})
}

func (d *Destination) DeleteProject(projectName string) {
	d.adminQueue.Append(&adminTask{id: opDeleteProject + ":" + projectName, op: opDeleteProject, projectName: projectName})
}

func (d *Destination) UpdateHead(projectName, newHead string) {
	d.adminQueue.Append(&adminTask{id: opUpdateHead + ":" + projectName, op: opUpdateHead, projectName: projectName, head: newHead})
}

// adminWorker drains the admin queue with a simple poll loop.
func (d *Destination) adminWorker() {
	defer d.wg.Done()
	for {
		item := d.adminQueue.Head()
		if item == nil {
			time.Sleep(50 * time.Millisecond)
			if d.isStopped() {
				return
			}
			continue
		}
		task := item.(*adminTask)
		if task.id == "__stop__" {
			return
		}
		d.runAdminTask(task)
	}
}

func (d *Destination) runAdminTask(task *adminTask) {
	if d.admin == nil {
		d.log.Warn("admin operation requested but no admin transport configured", "Op", task.op, "Project", task.projectName)
		return
	}

	ctx := context.Background()
	var err error
	switch task.op {
	case opCreateProject:
		err = d.admin.CreateProject(ctx, task.projectName, task.head)
	case opDeleteProject:
		err = d.admin.DeleteProject(ctx, task.projectName)
	case opUpdateHead:
		err = d.admin.UpdateHead(ctx, task.projectName, task.head)
	}
	if err != nil {
		d.log.Error("admin operation failed", "Op", task.op, "Project", task.projectName, "Err", err.Error())
	}
}
