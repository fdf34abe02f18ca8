// Package api exposes a small HTTP surface over a single raft node:
// status, the committed log, and a propose endpoint that redirects
// non-leaders. One server fronts one node; in a real deployment every
// node runs its own.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/accord/raft"
	"github.com/thinkermao/accord/raft/proto"
)

// Server serves the HTTP API of one raft node.
type Server struct {
	node   *raft.Node
	router *mux.Router
	http   *http.Server
}

// NewServer builds the server for node, listening on addr once Start
// is called.
func NewServer(node *raft.Node, addr string) *Server {
	s := &Server{
		node:   node,
		router: mux.NewRouter(),
	}

	s.router.Use(s.requestLog)
	s.router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/log", s.handleLog).Methods(http.MethodGet)
	s.router.HandleFunc("/api/propose", s.handlePropose).Methods(http.MethodPost)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	return s
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Infof("%d api listening on %s", s.node.ID(), s.http.Addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.http.Close()
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLog tags every request with an id and logs it on the way in.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)

		start := time.Now()
		next.ServeHTTP(w, r)

		log.Debugf("%d api %s %s [req: %s, took: %v]",
			s.node.ID(), r.Method, r.URL.Path, reqID, time.Since(start))
	})
}

type statusResponse struct {
	ID          int    `json:"id"`
	Role        string `json:"role"`
	Term        int    `json:"term"`
	CommitIndex int    `json:"commitIndex"`
	Leader      int    `json:"leader"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		ID:          s.node.ID(),
		Role:        s.node.Role().String(),
		Term:        s.node.Term(),
		CommitIndex: s.node.CommitIndex(),
		Leader:      s.node.LeaderID(),
	})
}

type logResponse struct {
	CommitIndex int            `json:"commitIndex"`
	Entries     []raftpd.Entry `json:"entries"`
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	entries := s.node.CommittedEntries()
	writeJSON(w, http.StatusOK, logResponse{
		CommitIndex: s.node.CommitIndex(),
		Entries:     entries,
	})
}

type proposeRequest struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value int    `json:"value"`
}

type proposeResponse struct {
	Term  int `json:"term"`
	Index int `json:"index"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Leader int    `json:"leader,omitempty"`
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed body"})
		return
	}

	op := raftpd.Operation(req.Op)
	if op != raftpd.OpSet && op != raftpd.OpDelete {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown op"})
		return
	}

	entry, err := s.node.ProposeEntry(raftpd.Command{
		Op:    op,
		Key:   req.Key,
		Value: req.Value,
	})
	if errors.Is(err, raft.ErrNotLeader) {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:  "not leader",
			Leader: s.node.LeaderID(),
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, proposeResponse{Term: entry.Term, Index: entry.Index})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("api encode response: %v", err)
	}
}
