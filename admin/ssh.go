package admin

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vcsreplica/engine/pkgs/logger"
	"golang.org/x/crypto/ssh"
)

// SSH implements project lifecycle operations by running a fixed
// admin command over an SSH session, for ssh:// admin endpoints.
type SSH struct {
	addr       string
	clientConf *ssh.ClientConfig
	log        logger.Logger
}

// NewSSH builds an SSH admin transport dialing addr (host:port) with
// clientConf.
func NewSSH(addr string, clientConf *ssh.ClientConfig, log logger.Logger) *SSH {
	return &SSH{addr: addr, clientConf: clientConf, log: log.Module("admin-ssh")}
}

func (s *SSH) run(ctx context.Context, command string) error {
	if s.clientConf == nil {
		return errors.Errorf("no ssh client configuration for admin endpoint %s", s.addr)
	}
	client, err := ssh.Dial("tcp", s.addr, s.clientConf)
	if err != nil {
		return errors.Wrapf(err, "failed to dial admin ssh endpoint %s", s.addr)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return errors.Wrap(err, "failed to open ssh session")
	}
	defer session.Close()

	if err := session.Run(command); err != nil {
		return errors.Wrapf(err, "admin command failed: %s", command)
	}
	return nil
}

// CreateProject runs the remote's project-create command.
func (s *SSH) CreateProject(ctx context.Context, name, head string) error {
	return s.run(ctx, fmt.Sprintf("vcsreplica-admin create-project %q %q", name, head))
}

// DeleteProject runs the remote's project-delete command.
func (s *SSH) DeleteProject(ctx context.Context, name string) error {
	return s.run(ctx, fmt.Sprintf("vcsreplica-admin delete-project %q", name))
}

// UpdateHead runs the remote's HEAD-update command.
func (s *SSH) UpdateHead(ctx context.Context, name, newHead string) error {
	return s.run(ctx, fmt.Sprintf("vcsreplica-admin update-head %q %q", name, newHead))
}
