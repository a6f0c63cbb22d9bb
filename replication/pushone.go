package replication

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// pushOneState is the lifecycle state of a PushOne record, per spec §4.C.
type pushOneState int

const (
	statePending pushOneState = iota
	stateScheduled
	stateRunning
	stateRetrying
)

func (s pushOneState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateScheduled:
		return "scheduled"
	case stateRunning:
		return "running"
	case stateRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// pushOne tracks the scheduling state for a single (remote, uri) pair:
// the set of refs waiting to be pushed together, and whether a batch
// is currently dispatched to a worker.
type pushOne struct {
	uri     string
	project string

	// correlationID identifies this batch across its log lines
	// (dispatch, retries, failed completion). A successor PushOne
	// spawned from a Running batch's shadow refs gets a fresh one.
	correlationID string

	pendingRefs map[string]struct{}
	// shadowRefs accumulates refs that arrive while this PushOne is
	// Running; they are not lost, but are not part of the in-flight
	// batch either. Merged into a successor PushOne at completion.
	shadowRefs map[string]struct{}

	state       pushOneState
	retriesLeft int
	scheduledAt time.Time

	timer         *time.Timer
	backoffPolicy backoff.BackOff
}

func newPushOne(project, uri string, ref string, retryBudget int) *pushOne {
	return &pushOne{
		uri:           uri,
		project:       project,
		correlationID: uuid.New().String(),
		pendingRefs:   map[string]struct{}{ref: {}},
		state:         stateScheduled,
		retriesLeft:   retryBudget,
		scheduledAt:   time.Now(),
	}
}

func (p *pushOne) addPending(ref string) {
	p.pendingRefs[ref] = struct{}{}
}

func (p *pushOne) addShadow(ref string) {
	if p.shadowRefs == nil {
		p.shadowRefs = make(map[string]struct{})
	}
	p.shadowRefs[ref] = struct{}{}
}

func (p *pushOne) pendingRefNames() []string {
	out := make([]string, 0, len(p.pendingRefs))
	for ref := range p.pendingRefs {
		out = append(out, ref)
	}
	return out
}
