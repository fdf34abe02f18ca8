package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkermao/accord/raft"
)

func newTestServer() *Server {
	node := raft.NewNode(raft.Config{
		ID:                 1,
		Peers:              []int{1, 2, 3},
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
	}, nil)
	// The node is never started: it stays a quiet follower, which is
	// exactly what the redirect paths need.
	return NewServer(node, ":0")
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	s := newTestServer()

	rec := doRequest(s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var status statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, 1, status.ID)
	assert.Equal(t, "Follower", status.Role)
	assert.Equal(t, 0, status.Term)
	assert.Equal(t, -1, status.CommitIndex)
	assert.Equal(t, -1, status.Leader)
}

func TestLogEmpty(t *testing.T) {
	s := newTestServer()

	rec := doRequest(s, http.MethodGet, "/api/log", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp logResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, -1, resp.CommitIndex)
	assert.Empty(t, resp.Entries)
}

func TestProposeRedirectsNonLeader(t *testing.T) {
	s := newTestServer()

	rec := doRequest(s, http.MethodPost, "/api/propose",
		`{"op": "SET", "key": "x", "value": 1}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "not leader", resp.Error)
	assert.Equal(t, -1, resp.Leader)
}

func TestProposeRejectsUnknownOp(t *testing.T) {
	s := newTestServer()

	rec := doRequest(s, http.MethodPost, "/api/propose",
		`{"op": "INCR", "key": "x", "value": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProposeRejectsMalformedBody(t *testing.T) {
	s := newTestServer()

	rec := doRequest(s, http.MethodPost, "/api/propose", `{"op":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
