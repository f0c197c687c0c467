package handler_test

import (
	"encoding/json"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Domain-specific assertions
// --------------------------

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "Should decode response body: %s", rec.Body.String())
	return out
}

func assertAPIError(t *testing.T, rec *httptest.ResponseRecorder, code int, message string) {
	t.Helper()

	require.Equal(t, code, rec.Code)
	body := decode[struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}](t, rec)
	assert.Equal(t, code, body.Code)
	assert.Contains(t, body.Message, message)
}

// Mock implementations
// --------------------

type fakeRecorder struct {
	mu       sync.Mutex
	searches []string
	exports  []string
}

func (f *fakeRecorder) Searched(index string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, index)
}

func (f *fakeRecorder) Exported(kind, format string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, kind+"/"+format)
}

func (f *fakeRecorder) searched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.searches)
}

func (f *fakeRecorder) exported() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.exports)
}
