// Package solrtest provides an in-process fake of the Solr Collections API.
package solrtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/rowjay/solr-backups/internal/solr"
)

// Server answers CLUSTERSTATUS, BACKUP, RESTORE, REQUESTSTATUS and
// DELETESTATUS.
type Server struct {
	*httptest.Server

	// States returns the states successive polls report for a submission;
	// the last one repeats. Nil means running then completed.
	States func(req solr.AsyncRequest) []solr.State
	// Reject returns a non-zero HTTP status to refuse a submission.
	Reject func(req solr.AsyncRequest) int
	// LiveNodes is reported by CLUSTERSTATUS. Nil reports one local node.
	LiveNodes []string

	mu          sync.Mutex
	collections []string
	submissions []solr.AsyncRequest
	deleted     []string
	tasks       map[string]*task
	polls       int
}

type task struct {
	states []solr.State
	next   int
}

// New starts a fake cluster holding the given collections.
func New(collections ...string) *Server {
	s := &Server{collections: collections, tasks: map[string]*task{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Submissions returns every accepted or rejected BACKUP/RESTORE call in order.
func (s *Server) Submissions() []solr.AsyncRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]solr.AsyncRequest(nil), s.submissions...)
}

// Deleted returns the request ids passed to DELETESTATUS.
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// Polls returns the number of REQUESTSTATUS calls served.
func (s *Server) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/solr/admin/collections" {
		writeError(w, http.StatusNotFound, "no handler for "+r.URL.Path)
		return
	}
	q := r.URL.Query()
	switch solr.Action(q.Get("action")) {
	case solr.ActionClusterStatus:
		s.clusterStatus(w)
	case solr.ActionBackup, solr.ActionRestore:
		s.submit(w, solr.AsyncRequest{
			Action:     solr.Action(q.Get("action")),
			Collection: q.Get("collection"),
			Name:       q.Get("name"),
			Location:   q.Get("location"),
			Repository: q.Get("repository"),
			RequestID:  q.Get("async"),
		})
	case solr.ActionRequestStatus:
		s.requestStatus(w, q.Get("requestid"))
	case solr.ActionDeleteStatus:
		s.mu.Lock()
		s.deleted = append(s.deleted, q.Get("requestid"))
		delete(s.tasks, q.Get("requestid"))
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"responseHeader": header(0), "status": "successfully removed stored response"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action "+q.Get("action"))
	}
}

func (s *Server) clusterStatus(w http.ResponseWriter) {
	s.mu.Lock()
	cols := map[string]any{}
	for _, c := range s.collections {
		cols[c] = map[string]any{"configName": "_default", "shards": map[string]any{}}
	}
	nodes := s.LiveNodes
	if nodes == nil {
		nodes = []string{"127.0.0.1:8983_solr"}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"responseHeader": header(0),
		"cluster":        map[string]any{"collections": cols, "live_nodes": nodes},
	})
}

func (s *Server) submit(w http.ResponseWriter, req solr.AsyncRequest) {
	s.mu.Lock()
	s.submissions = append(s.submissions, req)
	_, dup := s.tasks[req.RequestID]
	s.mu.Unlock()

	if s.Reject != nil {
		if code := s.Reject(req); code != 0 {
			writeError(w, code, fmt.Sprintf("rejected %s of %s", req.Action, req.Collection))
			return
		}
	}
	if dup {
		writeError(w, http.StatusBadRequest, "Task with the same requestid already exists.")
		return
	}
	states := []solr.State{solr.StateRunning, solr.StateCompleted}
	if s.States != nil {
		states = s.States(req)
	}
	s.mu.Lock()
	s.tasks[req.RequestID] = &task{states: states}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"responseHeader": header(0), "requestid": req.RequestID})
}

func (s *Server) requestStatus(w http.ResponseWriter, id string) {
	s.mu.Lock()
	s.polls++
	state := solr.StateNotFound
	if t, ok := s.tasks[id]; ok && len(t.states) > 0 {
		state = t.states[t.next]
		if t.next < len(t.states)-1 {
			t.next++
		}
	}
	s.mu.Unlock()

	body := map[string]any{
		"responseHeader": header(0),
		"status":         map[string]any{"state": string(state), "msg": fmt.Sprintf("found [%s] in %s tasks", id, state)},
	}
	if state == solr.StateFailed {
		body["exception"] = map[string]any{"msg": "backup failed on shard1", "rspCode": 500}
	}
	writeJSON(w, http.StatusOK, body)
}

func header(status int) map[string]any {
	return map[string]any{"status": status, "QTime": 1}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"responseHeader": header(code),
		"error":          map[string]any{"msg": msg, "code": code},
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
