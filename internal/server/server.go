package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/branchopt/internal/config"
	"github.com/copyleftdev/branchopt/internal/errors"
	"github.com/copyleftdev/branchopt/internal/logging"
	"github.com/copyleftdev/branchopt/internal/metrics"
	"github.com/copyleftdev/branchopt/internal/optimization"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// historyLimit is the number of most recent evaluations kept per job.
const historyLimit = 1000

// JobState represents the state of a solver job.
// Every field is guarded by Server.jobsMu; the solver goroutine updates it
// through its progress reporter.
type JobState struct {
	ID              string
	Algorithm       string
	Status          string
	StartTime       time.Time
	EndTime         *time.Time
	Iteration       int
	TotalIterations int
	Progress        float64
	BestSolution    *optimization.Solution
	History         []optimization.Evaluation
	Error           string
	CancelFunc      context.CancelFunc
	LastUpdated     time.Time
}

func (s *JobState) terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Server implements the HTTP and JSON-RPC server for the solver service.
// It manages solver jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg      *config.Config
	logger   Logger
	recorder *metrics.Recorder

	// Job state management
	jobs   map[string]*JobState
	jobsMu sync.RWMutex // Protects the jobs map and every JobState
	seq    atomic.Uint64
	wg     sync.WaitGroup
}

// NewServer creates a new server instance with the given config and logger.
// recorder may be nil.
func NewServer(cfg *config.Config, logger Logger, recorder *metrics.Recorder) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		jobs:     make(map[string]*JobState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/solve", s.handleSolve)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/solve/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

type jobRef struct {
	JobID string `json:"job_id"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(s.limitBody(w, r)).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	// Route to appropriate handler
	var result interface{}
	var err error

	switch request.Method {
	case "solver.start":
		var req SolveRequest
		if err := decodeParam(request.Params, &req); err != nil {
			s.respondWithError(w, codeInvalidParams, "Invalid params: "+err.Error(), request.ID)
			return
		}
		result, err = s.startJob(&req)
	case "solver.status":
		var ref jobRef
		if err := decodeParam(request.Params, &ref); err != nil {
			s.respondWithError(w, codeInvalidParams, "Invalid params: "+err.Error(), request.ID)
			return
		}
		result, err = s.jobStatus(ref.JobID)
	case "solver.cancel":
		var ref jobRef
		if err := decodeParam(request.Params, &ref); err != nil {
			s.respondWithError(w, codeInvalidParams, "Invalid params: "+err.Error(), request.ID)
			return
		}
		err = s.cancelJob(ref.JobID)
		result = map[string]string{"status": "cancellation requested"}
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, codeServerError, err.Error(), request.ID)
		return
	}

	// Send successful response
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// decodeParam decodes the first positional parameter into dst.
func decodeParam(params []json.RawMessage, dst interface{}) error {
	if len(params) == 0 {
		return fmt.Errorf("missing required parameters")
	}
	if err := json.Unmarshal(params[0], dst); err != nil {
		return fmt.Errorf("invalid parameter format: %v", err)
	}
	return nil
}

// startJob validates req, builds its solver and starts it in a goroutine.
// Returns: {"job_id": "job_...", "status": "pending"}
func (s *Server) startJob(req *SolveRequest) (map[string]interface{}, error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	active := 0
	for _, job := range s.jobs {
		if !job.terminal() {
			active++
		}
	}
	if active >= s.cfg.Solver.MaxJobs {
		return nil, errors.Wrapf(errors.ErrTooManyJobs, "%d jobs running", active)
	}

	// Generate a unique ID for this job
	id := fmt.Sprintf("job_%d_%d", time.Now().UnixNano(), s.seq.Add(1))
	now := time.Now()
	state := &JobState{
		ID:          id,
		Algorithm:   req.Algorithm,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
	}

	jobLogger := s.logger.WithFields(map[string]interface{}{
		"job_id":    id,
		"algorithm": req.Algorithm,
	})

	job, err := newSolver(s.cfg, req,
		optimization.WithLogger(logging.NewZapLogger(jobLogger)),
		optimization.WithProgress(s.progressReporter(state)),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s solver", req.Algorithm)
	}
	state.TotalIterations = job.Iterations
	state.BestSolution = job.Optimizer.GetBestSolution()

	// Create a cancellable context
	ctx, cancel := context.WithCancel(context.Background())
	state.CancelFunc = cancel
	s.jobs[id] = state

	s.wg.Add(1)
	go s.runJob(ctx, state, job.Optimizer)

	s.logger.Info("Job started", map[string]interface{}{
		"job_id":    id,
		"algorithm": req.Algorithm,
		"sites":     len(req.Distances),
	})

	return map[string]interface{}{
		"job_id": id,
		"status": StatusPending,
	}, nil
}

// progressReporter returns a reporter that copies each evaluation into state.
func (s *Server) progressReporter(state *JobState) optimization.ProgressReporter {
	return func(eval optimization.Evaluation) {
		s.jobsMu.Lock()
		defer s.jobsMu.Unlock()

		state.Iteration = eval.Iteration + 1
		if state.TotalIterations > 0 {
			state.Progress = float64(state.Iteration) / float64(state.TotalIterations)
		}
		state.BestSolution = eval.Solution
		state.History = append(state.History, eval)
		if len(state.History) > historyLimit {
			state.History = state.History[len(state.History)-historyLimit:]
		}
		state.LastUpdated = time.Now()
	}
}

// runJob executes the solver and records its outcome.
func (s *Server) runJob(ctx context.Context, state *JobState, optimizer optimization.Optimizer) {
	defer s.wg.Done()
	defer state.CancelFunc()

	s.jobsMu.Lock()
	if state.Status == StatusPending {
		state.Status = StatusRunning
	}
	s.jobsMu.Unlock()

	s.recorder.JobStarted()
	started := time.Now()

	result, err := optimizer.Optimize(ctx)
	took := time.Since(started)

	// Update state with results
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	var best float64
	switch {
	case err != nil && ctx.Err() != nil:
		state.Status = StatusCancelled
	case err != nil:
		s.logger.Error("Job failed", map[string]interface{}{
			"job_id": state.ID,
			"error":  err.Error(),
		})
		state.Status = StatusFailed
		state.Error = err.Error()
	default:
		state.Status = StatusCompleted
		state.BestSolution = result.BestSolution
		state.Progress = 1
		best = result.BestSolution.Fitness
		s.logger.Info("Job completed", map[string]interface{}{
			"job_id":   state.ID,
			"fitness":  best,
			"duration": took.String(),
		})
	}
	s.recorder.JobFinished(state.Algorithm, state.Status, took, best)

	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
}

// jobStatus returns the current status and results of a job.
func (s *Server) jobStatus(id string) (map[string]interface{}, error) {
	if id == "" {
		return nil, optimization.NewConfigError("server", "job_id is required")
	}

	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	state, exists := s.jobs[id]
	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}

	response := map[string]interface{}{
		"job_id":      state.ID,
		"algorithm":   state.Algorithm,
		"status":      state.Status,
		"iteration":   state.Iteration,
		"iterations":  state.TotalIterations,
		"progress":    state.Progress,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}

	// Add end time if available
	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Error != "" {
		response["error"] = state.Error
	}

	// Add best solution if available
	if state.BestSolution != nil {
		response["best_solution"] = map[string]interface{}{
			"candidate": state.BestSolution.Candidate,
			"fitness":   state.BestSolution.Fitness,
		}
	}

	if len(state.History) > 0 {
		historyData := make([]map[string]interface{}, len(state.History))
		for i, eval := range state.History {
			historyData[i] = map[string]interface{}{
				"iteration": eval.Iteration,
				"fitness":   eval.Solution.Fitness,
				"mean":      eval.Mean,
				"stddev":    eval.StdDev,
			}
		}
		response["history"] = historyData
	}

	return response, nil
}

// cancelJob cancels a pending or running job.
func (s *Server) cancelJob(id string) error {
	if id == "" {
		return optimization.NewConfigError("server", "job_id is required")
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	state, exists := s.jobs[id]
	if !exists {
		return errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}

	if state.terminal() {
		return errors.Wrapf(errors.ErrConflict, "cannot cancel job with status %s", state.Status)
	}

	// Cancel the job; runJob records the final state once the solver stops.
	state.CancelFunc()
	state.LastUpdated = time.Now()

	s.logger.Info("Job cancelled", map[string]interface{}{
		"job_id": id,
	})

	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// Close cancels every job and waits for the solver goroutines to return.
func (s *Server) Close() error {
	s.jobsMu.RLock()
	for _, job := range s.jobs {
		if job.CancelFunc != nil {
			job.CancelFunc()
		}
	}
	s.jobsMu.RUnlock()

	s.wg.Wait()
	return nil
}

// limitBody caps the request body at HTTP_MAX_BODY_BYTES.
func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) io.Reader {
	return http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxBodyBytes)
}

// handleSolve handles POST /api/v1/solve
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	dec := json.NewDecoder(s.limitBody(w, r))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		errors.WriteJSON(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}

	result, err := s.startJob(&req)
	if err != nil {
		errors.WriteJSON(w, errors.HTTPStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(result)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.jobStatus(chi.URLParam(r, "id"))
	if err != nil {
		errors.WriteJSON(w, errors.HTTPStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// handleCancel handles DELETE /api/v1/solve/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.cancelJob(chi.URLParam(r, "id")); err != nil {
		errors.WriteJSON(w, errors.HTTPStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "cancellation requested",
	})
}
