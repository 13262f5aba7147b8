package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/branchopt/internal/logging"
	"github.com/copyleftdev/branchopt/internal/optimization"
)

func TestErrorString(t *testing.T) {
	err := New("load problem").WithOperation("parse").WithComponent("problem")
	assert.Equal(t, "load problem: operation=parse, component=problem", err.Error())
	assert.NotEmpty(t, err.StackTrace())

	wrapped := Wrap(stderrors.New("eof"), "read instance")
	assert.Equal(t, "read instance: eof", wrapped.Error())

	assert.Equal(t, "job 7 missing", Errorf("job %d missing", 7).Error())
}

func TestWrapKeepsChain(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))

	cfgErr := optimization.NewConfigError("annealing", "alpha out of range")
	err := Wrapf(cfgErr, "build solver %q", "annealing")

	assert.True(t, Is(err, optimization.ErrConfig))
	assert.Equal(t, cfgErr, Unwrap(err))

	var optErr *optimization.Error
	require.True(t, As(err, &optErr))
	assert.Equal(t, "annealing", optErr.Component)

	var own *Error
	assert.True(t, As(Wrap(err, "outer"), &own))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{Wrap(ErrNotFound, "job"), http.StatusNotFound},
		{Wrap(ErrConflict, "job"), http.StatusConflict},
		{ErrTooManyJobs, http.StatusTooManyRequests},
		{optimization.NewConfigError("genetic", "bad"), http.StatusBadRequest},
		{optimization.NewInvalidCandidateError("bad"), http.StatusBadRequest},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "HTTPStatus(%v)", tt.err)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.ErrorLevel, &buf)

	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("solver exploded")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/solve", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "Internal Server Error", body["error"])
	assert.Contains(t, buf.String(), "solver exploded")
}

func TestErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.InfoLevel, &buf)

	ok := ErrorHandler(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, buf.String())

	bad := ErrorHandler(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusBadRequest, stderrors.New("bad matrix"))
	}))
	rr := httptest.NewRecorder()
	bad.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x?y=1", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, buf.String(), "Request error")
	assert.Contains(t, buf.String(), "y=1")
}
