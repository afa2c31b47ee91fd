package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientReplaysQueuedResponses(t *testing.T) {
	t.Parallel()

	mock := NewMockHTTPClient()
	mock.AddResponse(200, `{"ok":true}`).AddResponse(503, "busy")

	req, err := http.NewRequest(http.MethodGet, "http://example/api/pose", nil)
	require.NoError(t, err)

	resp, err := mock.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(body))

	resp, err = mock.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)

	// Exhausted queue falls back to an empty 200.
	resp, err = mock.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, mock.RequestCount())
}

func TestMockClientErrorResponse(t *testing.T) {
	t.Parallel()

	mock := NewMockHTTPClient()
	mock.AddErrorResponse(errors.New("connection refused"))

	req, err := http.NewRequest(http.MethodGet, "http://example/api/pose", nil)
	require.NoError(t, err)

	_, err = mock.Do(req)
	assert.Error(t, err)
}

func TestMockClientRecordsBodies(t *testing.T) {
	t.Parallel()

	mock := NewMockHTTPClient()
	req, err := http.NewRequest(http.MethodPost, "http://example/api/ingest",
		strings.NewReader(`{"lat":35.0}`))
	require.NoError(t, err)

	resp, err := mock.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, `{"lat":35.0}`, mock.RequestBody(0))
	assert.Equal(t, "", mock.RequestBody(5))
}

func TestWriteJSONHelpers(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"n": 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	BadRequest(rec, "missing lat")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"missing lat"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	MethodNotAllowed(rec)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	Unauthorized(rec, "bad token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	InternalServerError(rec, "boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
