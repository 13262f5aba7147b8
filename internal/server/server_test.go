package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/branchopt/internal/config"
	"github.com/copyleftdev/branchopt/internal/logging"
	"github.com/copyleftdev/branchopt/internal/metrics"
	"github.com/copyleftdev/branchopt/internal/optimization"
	"github.com/copyleftdev/branchopt/internal/problem"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
	}

	// Set up HTTP config
	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second
	cfg.HTTP.MaxBodyBytes = 1 << 20

	// Set up logging
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stdout"

	// Set up solvers
	cfg.Solver.Seed = 1
	cfg.Solver.MaxJobs = 4
	cfg.Solver.MaxSites = 50
	cfg.Solver.MaxEvaluations = 1 << 31

	cfg.Genetic.CrossoverP = 0.1
	cfg.Genetic.MutationP = 0.1
	cfg.Genetic.NumSims = 20
	cfg.Genetic.PopulationSize = 10
	cfg.Genetic.TournamentSize = 9
	cfg.Genetic.Crossover = "ordered"
	cfg.Genetic.Best = "minimize"

	cfg.Annealing.StartTemp = 100
	cfg.Annealing.StopTemp = 0.1
	cfg.Annealing.Alpha = 0.9
	cfg.Annealing.NumSims = 5

	cfg.Swarm.Particles = 5
	cfg.Swarm.NumSims = 20
	cfg.Swarm.W = 0.75
	cfg.Swarm.C0 = 0.5
	cfg.Swarm.C1 = 1.5

	require.NoError(t, cfg.Validate())
	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(logging.DebugLevel, io.Discard)
}

// testServer builds a server with its own metrics registry and a router.
func testServer(t *testing.T, cfg *config.Config) (*Server, chi.Router, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	srv := NewServer(cfg, testLogger(t), metrics.MustNewRecorder(reg))
	t.Cleanup(func() { _ = srv.Close() })

	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r, reg
}

// fourSites is the N=4 line instance: d[i][j] = |i-j|, c[i][j] = 1 off the diagonal.
func fourSites() ([][]float64, [][]float64) {
	d := make([][]float64, 4)
	c := make([][]float64, 4)
	for i := range d {
		d[i] = make([]float64, 4)
		c[i] = make([]float64, 4)
		for j := range d[i] {
			if i > j {
				d[i][j] = float64(i - j)
			} else {
				d[i][j] = float64(j - i)
			}
			if i != j {
				c[i][j] = 1
			}
		}
	}
	return d, c
}

func solveBody(t *testing.T, algorithm string, params interface{}) []byte {
	t.Helper()
	d, c := fourSites()
	body := map[string]interface{}{
		"algorithm": algorithm,
		"distances": d,
		"costs":     c,
	}
	if params != nil {
		body["params"] = params
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return data
}

func do(t *testing.T, r http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var decoded map[string]interface{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded), "body %q", rr.Body.String())
	}
	return rr, decoded
}

func waitForStatus(t *testing.T, srv *Server, id, want string) map[string]interface{} {
	t.Helper()
	var last map[string]interface{}
	require.Eventually(t, func() bool {
		st, err := srv.jobStatus(id)
		if err != nil {
			return false
		}
		last = st
		return st["status"] == want
	}, 10*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return last
}

// longRunning keeps a job busy until it is cancelled.
var longRunning = map[string]interface{}{"particles": 1, "num_sims": 1 << 30}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), nil)
	assert.NotNil(t, srv, "Server should be created")
}

func TestRegisterRoutes(t *testing.T) {
	_, r, _ := testServer(t, testConfig(t))

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/solve", true},
		{"GET", "/api/v1/status/123", true},
		{"DELETE", "/api/v1/solve/123", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false},     // Not registered by server package
		{"GET", "/nonexistent", false}, // Should not exist
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			// A chi 404 has a text body; our handlers answer in JSON
			isJSON := rr.Header().Get("Content-Type") == "application/json"
			assert.Equal(t, tt.shouldExist, isJSON, "status %d", rr.Code)
		})
	}
}

func TestSolveLifecycle(t *testing.T) {
	for _, algorithm := range Algorithms {
		t.Run(algorithm, func(t *testing.T) {
			srv, r, reg := testServer(t, testConfig(t))

			rr, body := do(t, r, http.MethodPost, "/api/v1/solve", solveBody(t, algorithm, nil))
			require.Equal(t, http.StatusAccepted, rr.Code, "body %v", body)
			id, _ := body["job_id"].(string)
			require.NotEmpty(t, id)
			assert.Equal(t, StatusPending, body["status"])

			waitForStatus(t, srv, id, StatusCompleted)

			rr, status := do(t, r, http.MethodGet, "/api/v1/status/"+id, nil)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, algorithm, status["algorithm"])
			assert.Equal(t, 1.0, status["progress"])
			assert.Contains(t, status, "end_time")
			assert.NotEmpty(t, status["history"])

			best := status["best_solution"].(map[string]interface{})
			assert.Equal(t, 10.0, best["fitness"])
			raw := best["candidate"].([]interface{})
			candidate := make(optimization.Candidate, len(raw))
			for i, v := range raw {
				candidate[i] = int(v.(float64))
			}
			optimization.AssertPermutation(t, candidate, 4)

			rr, _ = do(t, r, http.MethodDelete, "/api/v1/solve/"+id, nil)
			assert.Equal(t, http.StatusConflict, rr.Code)

			n, err := testutil.GatherAndCount(reg, "branchopt_solver_runs_total")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestSolveRejectsBadRequests(t *testing.T) {
	cfg := testConfig(t)
	_, r, _ := testServer(t, cfg)

	d, c := fourSites()
	big := make([][]float64, cfg.Solver.MaxSites+1)
	for i := range big {
		big[i] = make([]float64, len(big))
	}
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("{")},
		{"unknown field", []byte(`{"algorithm":"swarm","flows":[]}`)},
		{"unknown algorithm", mustJSON(t, map[string]interface{}{"algorithm": "tabu", "distances": d, "costs": c})},
		{"too many sites", mustJSON(t, map[string]interface{}{"algorithm": "swarm", "distances": big, "costs": big})},
		{"bad params", solveBody(t, AlgorithmAnnealing, map[string]interface{}{"alpha": 1.5})},
		{"unknown param", solveBody(t, AlgorithmGenetic, map[string]interface{}{"elitism": true})},
		{"over evaluation budget", solveBody(t, AlgorithmSwarm, map[string]interface{}{"particles": 1 << 20, "num_sims": 1 << 20})},
		{"asymmetric", mustJSON(t, map[string]interface{}{
			"algorithm": "annealing",
			"distances": [][]float64{{0, 1}, {2, 0}},
			"costs":     [][]float64{{0, 1}, {1, 0}},
		})},
		{"missing matrices", []byte(`{"algorithm":"genetic"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := do(t, r, http.MethodPost, "/api/v1/solve", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestUnknownJob(t *testing.T) {
	_, r, _ := testServer(t, testConfig(t))

	rr, body := do(t, r, http.MethodGet, "/api/v1/status/job_missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, body["error"], "job_missing")

	rr, _ = do(t, r, http.MethodDelete, "/api/v1/solve/job_missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelRunningJob(t *testing.T) {
	srv, r, _ := testServer(t, testConfig(t))

	rr, body := do(t, r, http.MethodPost, "/api/v1/solve", solveBody(t, AlgorithmSwarm, longRunning))
	require.Equal(t, http.StatusAccepted, rr.Code, "body %v", body)
	id := body["job_id"].(string)

	waitForStatus(t, srv, id, StatusRunning)

	rr, body = do(t, r, http.MethodDelete, "/api/v1/solve/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cancellation requested", body["status"])

	status := waitForStatus(t, srv, id, StatusCancelled)
	assert.Less(t, status["progress"], 1.0)
	assert.NotNil(t, status["best_solution"])
}

func TestCancelWithinAnnealingRepetition(t *testing.T) {
	cfg := testConfig(t)
	cfg.Solver.MaxEvaluations = math.MaxInt64
	srv, r, _ := testServer(t, cfg)

	// A single repetition of this schedule never finishes on its own.
	slow := map[string]interface{}{"start_temp": 1e300, "stop_temp": 1e-300, "alpha": 0.999999999999, "num_sims": 1}
	rr, body := do(t, r, http.MethodPost, "/api/v1/solve", solveBody(t, AlgorithmAnnealing, slow))
	require.Equal(t, http.StatusAccepted, rr.Code, "body %v", body)
	id := body["job_id"].(string)

	waitForStatus(t, srv, id, StatusRunning)

	rr, _ = do(t, r, http.MethodDelete, "/api/v1/solve/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	status := waitForStatus(t, srv, id, StatusCancelled)
	assert.Equal(t, 0.0, status["progress"])

	closed := make(chan error, 1)
	go func() { closed <- srv.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestJobLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Solver.MaxJobs = 1
	srv, r, _ := testServer(t, cfg)

	rr, body := do(t, r, http.MethodPost, "/api/v1/solve", solveBody(t, AlgorithmSwarm, longRunning))
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := body["job_id"].(string)

	rr, _ = do(t, r, http.MethodPost, "/api/v1/solve", solveBody(t, AlgorithmAnnealing, nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	require.NoError(t, srv.cancelJob(id))
	waitForStatus(t, srv, id, StatusCancelled)

	rr, _ = do(t, r, http.MethodPost, "/api/v1/solve", solveBody(t, AlgorithmAnnealing, nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func rpc(t *testing.T, r http.Handler, method string, params ...interface{}) map[string]interface{} {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if len(params) > 0 {
		payload["params"] = params
	}
	rr, body := do(t, r, http.MethodPost, "/rpc", mustJSON(t, payload))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2.0", body["jsonrpc"])
	return body
}

func TestJSONRPC(t *testing.T) {
	srv, r, _ := testServer(t, testConfig(t))
	d, c := fourSites()

	resp := rpc(t, r, "solver.start", map[string]interface{}{
		"algorithm": "genetic",
		"distances": d,
		"costs":     c,
		"seed":      3,
		"params":    map[string]interface{}{"num_sims": 5, "crossover": "repair"},
	})
	require.Nil(t, resp["error"], "%v", resp["error"])
	id := resp["result"].(map[string]interface{})["job_id"].(string)

	waitForStatus(t, srv, id, StatusCompleted)

	resp = rpc(t, r, "solver.status", map[string]interface{}{"job_id": id})
	result := resp["result"].(map[string]interface{})
	assert.Equal(t, StatusCompleted, result["status"])
	assert.Equal(t, 5.0, result["iterations"])
	assert.Len(t, result["history"], 5)

	resp = rpc(t, r, "solver.cancel", map[string]interface{}{"job_id": id})
	rpcErr := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(codeServerError), rpcErr["code"])
	assert.Contains(t, rpcErr["message"], "cannot cancel")
}

func TestJSONRPCErrors(t *testing.T) {
	_, r, _ := testServer(t, testConfig(t))

	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{"jsonrpc":`, codeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"solver.status"}`, codeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"solver.pause"}`, codeMethodNotFound},
		{"missing params", `{"jsonrpc":"2.0","id":1,"method":"solver.status"}`, codeInvalidParams},
		{"bad params", `{"jsonrpc":"2.0","id":1,"method":"solver.cancel","params":[42]}`, codeInvalidParams},
		{"unknown job", `{"jsonrpc":"2.0","id":1,"method":"solver.status","params":[{"job_id":"nope"}]}`, codeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := do(t, r, http.MethodPost, "/rpc", []byte(tt.body))
			assert.Equal(t, http.StatusOK, rr.Code)
			rpcErr, ok := body["error"].(map[string]interface{})
			require.True(t, ok, "body %v", body)
			assert.Equal(t, float64(tt.code), rpcErr["code"])
		})
	}
}

func TestRespondWithError(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), nil)

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{
			name:       "string id",
			code:       codeInvalidParams,
			message:    "invalid input",
			id:         "123",
			expectedID: "123",
		},
		{
			name:       "nil id",
			code:       codeServerError,
			message:    "server error",
			id:         nil,
			expectedID: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			assert.Equal(t, http.StatusOK, rr.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, "2.0", body["jsonrpc"])
			assert.Equal(t, tt.expectedID, body["id"])
			rpcErr := body["error"].(map[string]interface{})
			assert.Equal(t, float64(tt.code), rpcErr["code"])
			assert.Equal(t, tt.message, rpcErr["message"])
		})
	}
}

func TestClose(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := NewServer(testConfig(t), testLogger(t), metrics.MustNewRecorder(reg))

	d, c := fourSites()
	started, err := srv.startJob(&SolveRequest{
		Algorithm: AlgorithmSwarm,
		Instance:  problem.Instance{Distances: d, Costs: c},
		Params:    mustJSON(t, longRunning),
	})
	require.NoError(t, err)
	id := started["job_id"].(string)

	assert.NoError(t, srv.Close(), "Close should not return an error")

	status, err := srv.jobStatus(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status["status"])

	n, err := testutil.GatherAndCount(reg, "branchopt_solver_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
