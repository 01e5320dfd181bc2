// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport_test

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fiberplane/mcpcore/internal/mcp/dispatch"
	"github.com/fiberplane/mcpcore/internal/transport"
)

func TestHTTP_PostDispatchesAndReturnsResponse(t *testing.T) {
	s := dispatch.NewServer(dispatch.ServerInfo{Name: "test", Version: "0.0.0"})
	ht := &transport.HTTP{Server: s, Logger: nopLogger{}}
	srv := httptest.NewServer(ht.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHTTP_PostNotificationReturnsAccepted(t *testing.T) {
	s := dispatch.NewServer(dispatch.ServerInfo{Name: "test", Version: "0.0.0"})
	ht := &transport.HTTP{Server: s, Logger: nopLogger{}}
	srv := httptest.NewServer(ht.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHTTP_PostMalformedBodyIsBadDispatch(t *testing.T) {
	s := dispatch.NewServer(dispatch.ServerInfo{Name: "test", Version: "0.0.0"})
	ht := &transport.HTTP{Server: s, Logger: nopLogger{}}
	srv := httptest.NewServer(ht.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	defer resp.Body.Close()

	// Malformed JSON-RPC is still a dispatchable message for HandleRaw,
	// which replies with a JSON-RPC parse error rather than failing the
	// HTTP request outright.
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_SSEEndpointSendsSessionEvent(t *testing.T) {
	s := dispatch.NewServer(dispatch.ServerInfo{Name: "test", Version: "0.0.0"})
	ht := &transport.HTTP{Server: s, Logger: nopLogger{}}
	srv := httptest.NewServer(ht.Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)

	client := &http.Client{}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: endpoint\n", line)

	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dataLine, "data: /mcp?sessionId="))
}

func TestHTTP_MetricsRouteOnlyMountedWhenConfigured(t *testing.T) {
	s := dispatch.NewServer(dispatch.ServerInfo{Name: "test", Version: "0.0.0"})
	ht := &transport.HTTP{Server: s, Logger: nopLogger{}}
	srv := httptest.NewServer(ht.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_MetricsRouteServesHandler(t *testing.T) {
	s := dispatch.NewServer(dispatch.ServerInfo{Name: "test", Version: "0.0.0"})
	ht := &transport.HTTP{
		Server:  s,
		Logger:  nopLogger{},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	}
	srv := httptest.NewServer(ht.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_DeleteReturnsOK(t *testing.T) {
	s := dispatch.NewServer(dispatch.ServerInfo{Name: "test", Version: "0.0.0"})
	ht := &transport.HTTP{Server: s, Logger: nopLogger{}}
	srv := httptest.NewServer(ht.Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}
