package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math/rand"
	"net/http"
	"time"

	gorillajson "github.com/gorilla/rpc/v2/json"
	"github.com/pkg/errors"
	"github.com/vcsreplica/engine/pkgs/logger"
)

// requestTimeout bounds a single admin RPC call.
const requestTimeout = 15 * time.Second

// REST implements project lifecycle operations as JSON-RPC 2.0 calls
// against an HTTP admin endpoint, for http(s):// admin URLs.
type REST struct {
	url  string
	http *http.Client
	log  logger.Logger
}

// NewREST builds a REST admin transport calling url.
func NewREST(url string, log logger.Logger) *REST {
	return &REST{url: url, http: &http.Client{Timeout: requestTimeout}, log: log.Module("admin-rest")}
}

func (r *REST) call(ctx context.Context, method string, params interface{}) error {
	body := map[string]interface{}{
		"method":  method,
		"params":  [1]interface{}{params},
		"id":      rand.Uint64(),
		"jsonrpc": "2.0",
	}

	msg, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to encode admin request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewBuffer(msg))
	if err != nil {
		return errors.Wrap(err, "failed to build admin request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "admin call %s failed", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := ioutil.ReadAll(resp.Body)
		return fmt.Errorf("admin call %s returned status %d: %s", method, resp.StatusCode, string(respBody))
	}

	var result interface{}
	if err := gorillajson.DecodeClientResponse(resp.Body, &result); err != nil {
		return errors.Wrapf(err, "admin call %s returned an RPC error", method)
	}
	return nil
}

type projectParams struct {
	Name string `json:"name"`
	Head string `json:"head,omitempty"`
}

// CreateProject calls the remote's createProject RPC method.
func (r *REST) CreateProject(ctx context.Context, name, head string) error {
	return r.call(ctx, "Admin.CreateProject", projectParams{Name: name, Head: head})
}

// DeleteProject calls the remote's deleteProject RPC method.
func (r *REST) DeleteProject(ctx context.Context, name string) error {
	return r.call(ctx, "Admin.DeleteProject", projectParams{Name: name})
}

// UpdateHead calls the remote's updateHead RPC method.
func (r *REST) UpdateHead(ctx context.Context, name, newHead string) error {
	return r.call(ctx, "Admin.UpdateHead", projectParams{Name: name, Head: newHead})
}
