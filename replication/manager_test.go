package replication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsreplica/engine/config"
	"github.com/vcsreplica/engine/pkgs/logger"
	"github.com/vcsreplica/engine/push"
	"github.com/vcsreplica/engine/store"
)

func TestManagerDispatchRoutesToNamedDestination(t *testing.T) {
	st, err := store.Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)

	fp := &fakePusher{}
	m := NewManager(st, fp, nil, logger.NewLogrus())

	snap := &config.Snapshot{Version: "v1", Destinations: []*config.RemoteConfig{testConfig("foo1")}}
	require.NoError(t, m.Reload(snap))
	defer m.Stop()

	u := store.RefUpdate{Project: "P", Ref: "refs/heads/main", URI: "ssh://x/P.git", Remote: "foo1"}
	st.Create(u)
	m.Dispatch("foo1", u)

	waitFor(t, time.Second, func() bool { return fp.callCount() == 1 })
}

func TestManagerReplaysWaitingTasksOnReload(t *testing.T) {
	st, err := store.Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)

	u := store.RefUpdate{Project: "P", Ref: "refs/heads/main", URI: "ssh://x/P.git", Remote: "foo1"}
	_, err = st.Create(u)
	require.NoError(t, err)

	fp := &fakePusher{}
	m := NewManager(st, fp, nil, logger.NewLogrus())

	snap := &config.Snapshot{Version: "v1", Destinations: []*config.RemoteConfig{testConfig("foo1")}}
	require.NoError(t, m.Reload(snap))
	defer m.Stop()

	waitFor(t, time.Second, func() bool { return fp.callCount() == 1 })
}

func TestManagerIsReplayingReflectsDestinations(t *testing.T) {
	st, err := store.Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)

	release := make(chan struct{})
	fp := &fakePusher{next: func(job push.Job) (push.Result, error) {
		<-release
		return push.Success, nil
	}}
	m := NewManager(st, fp, nil, logger.NewLogrus())

	snap := &config.Snapshot{Version: "v1", Destinations: []*config.RemoteConfig{testConfig("foo1")}}
	require.NoError(t, m.Reload(snap))

	u := store.RefUpdate{Project: "P", Ref: "refs/heads/main", URI: "ssh://x/P.git", Remote: "foo1"}
	st.Create(u)
	m.Dispatch("foo1", u)

	waitFor(t, time.Second, func() bool { return m.IsReplaying() })
	close(release)
	waitFor(t, time.Second, func() bool { return !m.IsReplaying() })
	m.Stop()
}

func TestManagerDispatchToUnknownDestinationIsDropped(t *testing.T) {
	st, err := store.Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)

	fp := &fakePusher{}
	m := NewManager(st, fp, nil, logger.NewLogrus())
	require.NoError(t, m.Reload(&config.Snapshot{Version: "v1"}))
	defer m.Stop()

	assert.NotPanics(t, func() {
		m.Dispatch("ghost", store.RefUpdate{Project: "P", Ref: "refs/heads/main", URI: "x", Remote: "ghost"})
	})
	assert.Equal(t, 0, fp.callCount())
}
