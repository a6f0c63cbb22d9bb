package replication

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsreplica/engine/config"
	"github.com/vcsreplica/engine/pkgs/logger"
	"github.com/vcsreplica/engine/push"
	"github.com/vcsreplica/engine/store"
)

type fakePusher struct {
	mu    sync.Mutex
	calls []push.Job
	next  func(push.Job) (push.Result, error)
}

func (f *fakePusher) Push(ctx context.Context, job push.Job) (push.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, job)
	fn := f.next
	f.mu.Unlock()
	if fn != nil {
		return fn(job)
	}
	return push.Success, nil
}

func (f *fakePusher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig(name string) *config.RemoteConfig {
	return &config.RemoteConfig{
		Name:             name,
		ReplicationDelay: 10 * time.Millisecond,
		ReplicationRetry: 2,
		Threads:          2,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestScheduleCoalescesRefsForSameURI(t *testing.T) {
	st, err := store.Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)

	fp := &fakePusher{}
	d := New(testConfig("foo1"), st, fp, nil, logger.NewLogrus())
	d.Start()
	defer d.Stop()

	u1 := store.RefUpdate{Project: "P", Ref: "refs/heads/a", URI: "ssh://x/P.git", Remote: "foo1"}
	u2 := store.RefUpdate{Project: "P", Ref: "refs/heads/b", URI: "ssh://x/P.git", Remote: "foo1"}
	st.Create(u1)
	st.Create(u2)

	d.Schedule(u1)
	d.Schedule(u2)

	waitFor(t, time.Second, func() bool { return fp.callCount() == 1 })
	require.Len(t, fp.calls, 1)
	assert.ElementsMatch(t, []string{"refs/heads/a", "refs/heads/b"}, fp.calls[0].Refs)
}

func TestSuccessfulPushFinishesTasks(t *testing.T) {
	st, err := store.Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)

	fp := &fakePusher{}
	d := New(testConfig("foo1"), st, fp, nil, logger.NewLogrus())
	d.Start()
	defer d.Stop()

	u := store.RefUpdate{Project: "P", Ref: "refs/heads/main", URI: "ssh://x/P.git", Remote: "foo1"}
	st.Create(u)
	d.Schedule(u)

	waitFor(t, time.Second, func() bool { return fp.callCount() == 1 })
	waitFor(t, time.Second, func() bool {
		waiting, _ := st.ListWaiting()
		running, _ := st.ListRunning()
		return len(waiting) == 0 && len(running) == 0
	})
	assert.False(t, d.IsReplaying())
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	st, err := store.Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)

	var attempt int
	fp := &fakePusher{next: func(job push.Job) (push.Result, error) {
		attempt++
		if attempt < 2 {
			return push.Transient, nil
		}
		return push.Success, nil
	}}

	d := New(testConfig("foo1"), st, fp, nil, logger.NewLogrus())
	d.Start()
	defer d.Stop()

	u := store.RefUpdate{Project: "P", Ref: "refs/heads/main", URI: "ssh://x/P.git", Remote: "foo1"}
	st.Create(u)
	d.Schedule(u)

	waitFor(t, 2*time.Second, func() bool { return fp.callCount() >= 2 })
	waitFor(t, time.Second, func() bool {
		waiting, _ := st.ListWaiting()
		running, _ := st.ListRunning()
		return len(waiting) == 0 && len(running) == 0
	})
}

func TestTransientFailureExhaustsRetriesAndFinishes(t *testing.T) {
	st, err := store.Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)

	fp := &fakePusher{next: func(job push.Job) (push.Result, error) {
		return push.Transient, nil
	}}

	cfg := testConfig("foo1")
	cfg.ReplicationRetry = 1
	d := New(cfg, st, fp, nil, logger.NewLogrus())
	d.Start()
	defer d.Stop()

	u := store.RefUpdate{Project: "P", Ref: "refs/heads/main", URI: "ssh://x/P.git", Remote: "foo1"}
	st.Create(u)
	d.Schedule(u)

	// Initial attempt plus exactly one retry, then give up.
	waitFor(t, 2*time.Second, func() bool { return fp.callCount() == 2 })
	waitFor(t, time.Second, func() bool {
		waiting, _ := st.ListWaiting()
		running, _ := st.ListRunning()
		return len(waiting) == 0 && len(running) == 0
	})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, fp.callCount(), "must not retry beyond the configured budget")
}

func TestScheduleWhileRunningUsesSuccessorPushOne(t *testing.T) {
	st, err := store.Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)

	release := make(chan struct{})
	var firstCallRefs []string
	fp := &fakePusher{next: func(job push.Job) (push.Result, error) {
		if firstCallRefs == nil {
			firstCallRefs = job.Refs
			<-release
		}
		return push.Success, nil
	}}

	cfg := testConfig("foo1")
	cfg.ReplicationDelay = 5 * time.Millisecond
	d := New(cfg, st, fp, nil, logger.NewLogrus())
	d.Start()
	defer d.Stop()

	uri := "ssh://x/P.git"
	u1 := store.RefUpdate{Project: "P", Ref: "refs/heads/a", URI: uri, Remote: "foo1"}
	st.Create(u1)
	d.Schedule(u1)

	waitFor(t, time.Second, func() bool { return fp.callCount() == 1 })

	// Second ref arrives while the first batch is still running.
	u2 := store.RefUpdate{Project: "P", Ref: "refs/heads/b", URI: uri, Remote: "foo1"}
	st.Create(u2)
	d.Schedule(u2)

	close(release)

	waitFor(t, time.Second, func() bool { return fp.callCount() == 2 })
	assert.ElementsMatch(t, []string{"refs/heads/a"}, firstCallRefs)

	waitFor(t, time.Second, func() bool {
		waiting, _ := st.ListWaiting()
		running, _ := st.ListRunning()
		return len(waiting) == 0 && len(running) == 0
	})
}
