package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsreplica/engine/pkgs/logger"
)

func TestRESTCreateProjectSendsJSONRPCRequest(t *testing.T) {
	var gotMethod string
	var gotParams []projectParams

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Method string          `json:"method"`
			Params []projectParams `json:"params"`
			ID     uint64          `json:"id"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		gotMethod = body.Method
		gotParams = body.Params

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","result":true,"id":1}`))
	}))
	defer srv.Close()

	r := NewREST(srv.URL, logger.NewLogrus())
	err := r.CreateProject(context.Background(), "myproject", "refs/heads/main")
	require.NoError(t, err)

	assert.Equal(t, "Admin.CreateProject", gotMethod)
	require.Len(t, gotParams, 1)
	assert.Equal(t, "myproject", gotParams[0].Name)
	assert.Equal(t, "refs/heads/main", gotParams[0].Head)
}

func TestRESTNonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewREST(srv.URL, logger.NewLogrus())
	err := r.DeleteProject(context.Background(), "myproject")
	assert.Error(t, err)
}

func TestRESTRPCErrorResponseIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32000,"message":"boom"},"id":1}`))
	}))
	defer srv.Close()

	r := NewREST(srv.URL, logger.NewLogrus())
	err := r.UpdateHead(context.Background(), "myproject", "refs/heads/main")
	assert.Error(t, err)
}
