package push

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gogiterrors "github.com/pkg/errors"
	"github.com/vcsreplica/engine/pkgs/logger"
)

// Job describes one push attempt: a set of refs from a single local
// project, bound for a single (remote, uri) destination.
type Job struct {
	Project string
	Remote  string
	URI     string
	Refs    []string
	Force   bool
}

// Worker performs pushes against the configured git transport
// (ssh://, http(s)://, git://, file://) via go-git, and classifies
// the result per spec §4.D.
type Worker struct {
	repoRoot string
	creds    CredentialProvider
	log      logger.Logger
}

// NewWorker creates a Worker that pushes from bare repositories rooted
// at repoRoot/<project>.
func NewWorker(repoRoot string, creds CredentialProvider, log logger.Logger) *Worker {
	if creds == nil {
		creds = NoAuth{}
	}
	return &Worker{repoRoot: repoRoot, creds: creds, log: log.Module("push-worker")}
}

// Push performs job and returns its classified outcome. It emits no
// per-ref replication events: it reports through the returned result
// and error, and logs a debug line only for each skipped superseded ref.
func (w *Worker) Push(ctx context.Context, job Job) (Result, error) {
	repoPath := filepath.Join(w.repoRoot, job.Project)
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Permanent, gogiterrors.Wrapf(err, "failed to open local repository %s", repoPath)
	}

	refspecs := make([]config.RefSpec, 0, len(job.Refs))
	for _, ref := range job.Refs {
		if _, err := repo.Reference(plumbing.ReferenceName(ref), true); err != nil {
			// The source object no longer exists locally: the ref has
			// been superseded. Replicate current truth, not history —
			// skip it, it is not a failure.
			w.log.Debug("skipping superseded ref", "Ref", ref, "Project", job.Project)
			continue
		}
		refspecs = append(refspecs, buildRefSpec(ref, job.Force))
	}

	if len(refspecs) == 0 {
		return Success, nil
	}

	remoteName := fmt.Sprintf("replication-%s", job.Remote)
	remote := git.NewRemote(repo.Storer, &config.RemoteConfig{
		Name: remoteName,
		URLs: []string{job.URI},
	})

	err = remote.PushContext(ctx, &git.PushOptions{
		RefSpecs: refspecs,
		Auth:     w.creds.For(job.Remote),
		Force:    job.Force,
	})

	return classify(err)
}

func buildRefSpec(ref string, force bool) config.RefSpec {
	prefix := ""
	if force {
		prefix = "+"
	}
	return config.RefSpec(fmt.Sprintf("%s%s:%s", prefix, ref, ref))
}

// classify maps a go-git push error to a disposition.
func classify(err error) (Result, error) {
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return Success, nil
	}

	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, git.ErrForceNeeded):
		return Permanent, err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient, err
	}

	switch {
	case errors.Is(err, transport.ErrInvalidAuthMethod):
		return Permanent, err
	}

	// Unrecognised transport failures (connection refused, remote
	// busy, lock contention) default to Transient: the retry budget
	// bounds the cost of guessing wrong, and guessing Permanent on an
	// unknown error would silently drop work that might have
	// succeeded on the next attempt.
	return Transient, err
}
