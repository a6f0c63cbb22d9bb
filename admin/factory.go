package admin

import (
	"fmt"
	"net/url"

	"github.com/vcsreplica/engine/pkgs/logger"
	"github.com/vcsreplica/engine/replication"
	"golang.org/x/crypto/ssh"
)

// New selects and builds the admin transport for adminURL, dispatching
// on URI scheme per spec §6: file:// -> LocalFS, ssh:// -> SSH,
// http(s):// -> REST. sshConf is used only for ssh:// URLs and may be
// nil otherwise. An empty adminURL yields a nil Transport.
func New(adminURL string, sshConf *ssh.ClientConfig, log logger.Logger) (replication.AdminTransport, error) {
	if adminURL == "" {
		return nil, nil
	}

	u, err := url.Parse(adminURL)
	if err != nil {
		return nil, fmt.Errorf("invalid admin URL %q: %w", adminURL, err)
	}

	switch u.Scheme {
	case "file":
		return NewLocalFS(u.Path, log), nil
	case "ssh":
		return NewSSH(u.Host, sshConf, log), nil
	case "http", "https":
		return NewREST(adminURL, log), nil
	default:
		return nil, fmt.Errorf("unsupported admin transport scheme %q", u.Scheme)
	}
}
