package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/lalalune/babylon-sub000/pkg/agentnet"
)

func gameWithEndpoints(endpoints agentnet.GameEndpoints) agentnet.DiscoverableGame {
	return agentnet.DiscoverableGame{
		TokenID:   1,
		Name:      "Babylon",
		Type:      GamePlatformType,
		Endpoints: endpoints,
	}
}

func TestValidate_NoProbeableEndpointsFails(t *testing.T) {
	v := NewEndpointValidator(logrus.New(), nil)

	ok := v.Validate(context.Background(), gameWithEndpoints(agentnet.GameEndpoints{
		Docs: "https://docs.example", // docs are not probed
	}))
	assert.False(t, ok)
}

func TestValidate_SingleLiveChannelIsEnough(t *testing.T) {
	// MCP endpoint is down, API answers with an auth challenge. OR
	// semantics: the auth challenge proves the service is reachable.
	mcp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer mcp.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	v := NewEndpointValidator(logrus.New(), nil)

	ok := v.Validate(context.Background(), gameWithEndpoints(agentnet.GameEndpoints{
		MCP: mcp.URL,
		API: api.URL,
	}))
	assert.True(t, ok)
}

func TestValidate_AllChannelsDownFails(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	v := NewEndpointValidator(logrus.New(), nil)

	ok := v.Validate(context.Background(), gameWithEndpoints(agentnet.GameEndpoints{
		MCP: down.URL,
		API: down.URL,
	}))
	assert.False(t, ok)
}

func TestProbeMCP_AcceptsWellFormedDescriptor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"babylon-mcp","tools":[{"name":"get_markets","inputSchema":{"type":"object"}}]}`))
	}))
	defer server.Close()

	v := NewEndpointValidator(logrus.New(), nil)
	assert.True(t, v.probeMCP(context.Background(), server.URL))
}

func TestProbeMCP_RejectsDescriptorWithoutTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"babylon-mcp"}`))
	}))
	defer server.Close()

	v := NewEndpointValidator(logrus.New(), nil)
	assert.False(t, v.probeMCP(context.Background(), server.URL))
}

func TestProbeMCP_RejectsMalformedTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"babylon-mcp","tools":{"not":"a list"}}`))
	}))
	defer server.Close()

	v := NewEndpointValidator(logrus.New(), nil)
	assert.False(t, v.probeMCP(context.Background(), server.URL))
}

func TestProbeAPI_TrailingSlashNormalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	v := NewEndpointValidator(logrus.New(), nil)
	assert.True(t, v.probeAPI(context.Background(), server.URL+"/"))
}

func TestProbeAPI_ConnectionRefusedFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	v := NewEndpointValidator(logrus.New(), nil)
	assert.False(t, v.probeAPI(context.Background(), server.URL))
}
