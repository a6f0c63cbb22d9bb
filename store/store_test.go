package store

import (
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsreplica/engine/pkgs/logger"
)

func newTestStore(t *testing.T) *Store {
	s, err := Open(t.TempDir(), logger.NewLogrus())
	require.NoError(t, err)
	return s
}

func sampleUpdate() RefUpdate {
	return RefUpdate{Project: "proj", Ref: "refs/heads/mybranch", URI: "ssh://remote/proj.git", Remote: "foo1"}
}

func TestCreateDedupe(t *testing.T) {
	s := newTestStore(t)
	u := sampleUpdate()

	k1, err := s.Create(u)
	require.NoError(t, err)
	k2, err := s.Create(u)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	waiting, err := s.ListWaiting()
	require.NoError(t, err)
	assert.Len(t, waiting, 1)
}

func TestStateDisjointness(t *testing.T) {
	s := newTestStore(t)
	u := sampleUpdate()
	_, err := s.Create(u)
	require.NoError(t, err)

	require.NoError(t, s.Start([]RefUpdate{u}))

	waiting, _ := s.ListWaiting()
	running, _ := s.ListRunning()
	assert.Len(t, waiting, 0)
	assert.Len(t, running, 1)
}

func TestStartRoundTrip(t *testing.T) {
	s := newTestStore(t)
	u := sampleUpdate()
	_, err := s.Create(u)
	require.NoError(t, err)
	require.NoError(t, s.Start([]RefUpdate{u}))

	waiting, _ := s.ListWaiting()
	running, _ := s.ListRunning()
	assert.Empty(t, waiting)
	require.Len(t, running, 1)
	assert.Equal(t, u, running[0])
}

func TestFinishEmpties(t *testing.T) {
	s := newTestStore(t)
	u := sampleUpdate()
	_, err := s.Create(u)
	require.NoError(t, err)
	require.NoError(t, s.Start([]RefUpdate{u}))
	require.NoError(t, s.Finish([]RefUpdate{u}))

	waiting, _ := s.ListWaiting()
	running, _ := s.ListRunning()
	assert.Empty(t, waiting)
	assert.Empty(t, running)
}

func TestFinishIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	u := sampleUpdate()

	require.NoError(t, s.Finish([]RefUpdate{u}))

	_, err := s.Create(u)
	require.NoError(t, err)
	require.NoError(t, s.Start([]RefUpdate{u}))
	require.NoError(t, s.Finish([]RefUpdate{u}))
	require.NoError(t, s.Finish([]RefUpdate{u}))
}

func TestResetInverse(t *testing.T) {
	s := newTestStore(t)
	u := sampleUpdate()
	_, err := s.Create(u)
	require.NoError(t, err)
	require.NoError(t, s.Start([]RefUpdate{u}))
	require.NoError(t, s.Reset([]RefUpdate{u}))

	waiting, _ := s.ListWaiting()
	running, _ := s.ListRunning()
	require.Len(t, waiting, 1)
	assert.Equal(t, u, waiting[0])
	assert.Empty(t, running)
}

func TestResetAll(t *testing.T) {
	s := newTestStore(t)
	u := sampleUpdate()
	_, err := s.Create(u)
	require.NoError(t, err)
	require.NoError(t, s.Start([]RefUpdate{u}))
	require.NoError(t, s.ResetAll())

	waiting, _ := s.ListWaiting()
	running, _ := s.ListRunning()
	assert.Len(t, waiting, 1)
	assert.Empty(t, running)

	require.NoError(t, s.Start([]RefUpdate{u}))
	require.NoError(t, s.Finish([]RefUpdate{u}))
	waiting, _ = s.ListWaiting()
	running, _ = s.ListRunning()
	assert.Empty(t, waiting)
	assert.Empty(t, running)
}

func TestPersistentView(t *testing.T) {
	dir := t.TempDir()
	log := logger.NewLogrus()
	s1, err := Open(dir, log)
	require.NoError(t, err)
	s2, err := Open(dir, log)
	require.NoError(t, err)

	u := sampleUpdate()
	_, err = s1.Create(u)
	require.NoError(t, err)

	waiting, err := s2.ListWaiting()
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, u, waiting[0])
}

func TestSchemeDistinguishesTasks(t *testing.T) {
	s := newTestStore(t)
	u1 := RefUpdate{Project: "p", Ref: "refs/heads/main", URI: "http://example.com/p.git", Remote: "r"}
	u2 := RefUpdate{Project: "p", Ref: "refs/heads/main", URI: "ssh://example.com/p.git", Remote: "r"}

	k1, err := s.Create(u1)
	require.NoError(t, err)
	k2, err := s.Create(u2)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	waiting, _ := s.ListWaiting()
	assert.Len(t, waiting, 2)
}

func TestListToleratesUnparseableFile(t *testing.T) {
	s := newTestStore(t)
	u := sampleUpdate()
	_, err := s.Create(u)
	require.NoError(t, err)

	badKey := "not-a-real-task-key"
	require.NoError(t, ioutil.WriteFile(s.waitingDir+"/"+badKey, []byte("{not json"), 0644))

	waiting, err := s.ListWaiting()
	require.NoError(t, err)
	assert.Len(t, waiting, 1)
}
