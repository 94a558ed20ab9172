package manager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/rtsync/internal/log"
	"github.com/cuemby/rtsync/internal/wire"
)

// Server is the reference manager: an HTTP front end over a bbolt
// Store, implementing the worker-facing and client-facing endpoints
// named in spec §6. It exists so a worker (internal/worker.Worker) can
// be exercised against a real manager in local/dev setups; production
// deployments may run any manager that honours the same contract.
type Server struct {
	store *Store
	token string
	mux   *http.ServeMux
}

// NewServer wires handlers onto a fresh mux. token, if non-empty,
// is required as a bearer token on every request.
func NewServer(store *Store, token string) *Server {
	s := &Server{store: store, token: token, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("/workers", s.auth(s.handleWorkers))
	s.mux.HandleFunc("/workers/", s.auth(s.handleWorkerSub))
	s.mux.HandleFunc("/jobs", s.auth(s.handleAllJobs))
	s.mux.HandleFunc("/jobs/disabled", s.auth(s.handleDeleteDisabled))
	s.mux.HandleFunc("/cmd", s.auth(s.handleCmd))
	s.mux.HandleFunc("/ping", s.handlePing)
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != s.token {
				writeJSON(w, http.StatusUnauthorized, wire.MsgResponse{Msg: "invalid or missing token"})
				return
			}
		}
		next(w, r)
	}
}

// handleWorkers: POST /workers registers (or re-registers) a worker,
// and GET /workers lists every known worker (spec §4.8 step 2 and the
// client-facing worker list).
func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var ws wire.WorkerStatus
		if err := json.NewDecoder(r.Body).Decode(&ws); err != nil {
			writeJSON(w, http.StatusBadRequest, wire.MsgResponse{Msg: err.Error()})
			return
		}
		out, err := s.store.PutWorker(ws)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodGet:
		list, err := s.store.ListWorkers()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, wire.MsgResponse{Msg: "method not allowed"})
	}
}

// handleWorkerSub dispatches /workers/<id>/... sub-resources: jobs,
// a single job's status or size, schedules, and deregistration.
func (s *Server) handleWorkerSub(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/workers/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeJSON(w, http.StatusNotFound, wire.MsgResponse{Msg: "not found"})
		return
	}
	workerID := parts[0]

	switch {
	case len(parts) == 1:
		s.handleWorkerDelete(w, r, workerID)
	case len(parts) == 2 && parts[1] == "jobs":
		s.handleJobsList(w, r, workerID)
	case len(parts) == 2 && parts[1] == "schedules":
		s.handleSchedules(w, r, workerID)
	case len(parts) == 3 && parts[1] == "jobs":
		s.handleJobStatus(w, r, workerID, parts[2])
	case len(parts) == 4 && parts[1] == "jobs" && parts[3] == "size":
		s.handleJobSize(w, r, workerID, parts[2])
	default:
		writeJSON(w, http.StatusNotFound, wire.MsgResponse{Msg: "not found"})
	}
}

func (s *Server) handleWorkerDelete(w http.ResponseWriter, r *http.Request, workerID string) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, wire.MsgResponse{Msg: "method not allowed"})
		return
	}
	if err := s.store.DeleteWorker(workerID); err != nil {
		writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, wire.MsgResponse{Msg: "deregistered"})
}

func (s *Server) handleJobsList(w http.ResponseWriter, r *http.Request, workerID string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, wire.MsgResponse{Msg: "method not allowed"})
		return
	}
	list, err := s.store.ListJobs(workerID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleJobStatus: POST /workers/<id>/jobs/<mirror> applies a status
// report through the invariant-enforcing Store.UpdateStatus (spec §3
// and §4.8 step 6: "worker reports each status change").
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request, workerID, mirror string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, wire.MsgResponse{Msg: "method not allowed"})
		return
	}
	var ms wire.MirrorStatus
	if err := json.NewDecoder(r.Body).Decode(&ms); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.MsgResponse{Msg: err.Error()})
		return
	}
	ms.Name = mirror
	merged, err := s.store.UpdateStatus(workerID, ms)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

// handleJobSize: POST /workers/<id>/jobs/<mirror>/size lets a provider
// report a data size out of band from a status transition (e.g. a
// size probe that completes mid-sync).
func (s *Server) handleJobSize(w http.ResponseWriter, r *http.Request, workerID, mirror string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, wire.MsgResponse{Msg: "method not allowed"})
		return
	}
	var body struct {
		Size string `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.MsgResponse{Msg: err.Error()})
		return
	}
	merged, err := s.store.UpdateStatus(workerID, wire.MirrorStatus{Name: mirror, Size: body.Size})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request, workerID string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, wire.MsgResponse{Msg: "method not allowed"})
		return
	}
	var snap wire.MirrorSchedules
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.MsgResponse{Msg: err.Error()})
		return
	}
	if err := s.store.PutSchedules(workerID, snap); err != nil {
		writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, wire.MsgResponse{Msg: "ok"})
}

// handleAllJobs serves GET /jobs: every mirror across every worker, in
// the enriched WebMirrorStatus shape clients consume.
func (s *Server) handleAllJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, wire.MsgResponse{Msg: "method not allowed"})
		return
	}
	list, err := s.store.AllJobs()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
		return
	}
	out := make([]wire.WebMirrorStatus, 0, len(list))
	for _, ms := range list {
		out = append(out, wire.NewWebMirrorStatus(ms))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteDisabled(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, wire.MsgResponse{Msg: "method not allowed"})
		return
	}
	if err := s.store.DeleteDisabled(); err != nil {
		writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, wire.MsgResponse{Msg: "disabled mirrors removed"})
}

// handleCmd forwards a client command to the named worker's own
// control endpoint (spec §6: the manager is a relay, not the
// authority, for live control actions — only status reads are
// served from the store).
func (s *Server) handleCmd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, wire.MsgResponse{Msg: "method not allowed"})
		return
	}
	var cmd wire.ClientCmd
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.MsgResponse{Msg: err.Error()})
		return
	}
	if !cmd.Cmd.Valid() {
		writeJSON(w, http.StatusBadRequest, wire.MsgResponse{Msg: "invalid cmd"})
		return
	}
	workers, err := s.store.ListWorkers()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, wire.MsgResponse{Msg: err.Error()})
		return
	}
	var target *wire.WorkerStatus
	for i := range workers {
		if workers[i].ID == cmd.WorkerID {
			target = &workers[i]
			break
		}
	}
	if target == nil {
		writeJSON(w, http.StatusNotFound, wire.MsgResponse{Msg: fmt.Sprintf("worker %s not found", cmd.WorkerID)})
		return
	}

	forward := wire.WorkerCmd{Cmd: cmd.Cmd, MirrorID: cmd.MirrorID, Args: cmd.Args, Options: cmd.Options}
	body, _ := json.Marshal(forward)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, wire.MsgResponse{Msg: err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if target.Token != "" {
		req.Header.Set("Authorization", "Bearer "+target.Token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Logger.Warn().Err(err).Str("worker", cmd.WorkerID).Msg("forward command failed")
		writeJSON(w, http.StatusBadGateway, wire.MsgResponse{Msg: err.Error()})
		return
	}
	defer resp.Body.Close()
	var out wire.MsgResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	writeJSON(w, resp.StatusCode, out)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.MsgResponse{Msg: "pong"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
