package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triagecore/internal/incidents"
)

func TestFailStatusMapping(t *testing.T) {
	h := &Handler{Logger: slog.New(slog.DiscardHandler)}
	tests := []struct {
		err    error
		code   int
		detail string
	}{
		{fmt.Errorf("get: %w", incidents.ErrNotFound), http.StatusNotFound, "Incident not found"},
		{incidents.ErrAlreadyResolved, http.StatusBadRequest, "Incident already resolved"},
		{incidents.ErrConflict, http.StatusConflict, "Incident was modified concurrently, retry"},
		{&incidents.PersistenceError{Op: "write", Err: errors.New("disk full")}, http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.fail(rec, "op", tt.err)
		assert.Equal(t, tt.code, rec.Code, tt.err.Error())

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.detail, body["detail"])
	}
}

func TestDecodeRejectsOversizedBody(t *testing.T) {
	h := &Handler{Logger: slog.New(slog.DiscardHandler)}
	body := `{"logs": "` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	var req SubmitRequest
	ok := h.decode(rec, httptest.NewRequest(http.MethodPost, "/incident", strings.NewReader(body)), &req)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewResolveResponse(t *testing.T) {
	inc := incidents.Incident{ID: 3, Status: incidents.StatusResolved}
	assert.Equal(t, "Incident resolved and stored in memory for future reference",
		NewResolveResponse(&ResolveResult{Incident: inc}).Message)
	assert.Equal(t, "Incident was already resolved",
		NewResolveResponse(&ResolveResult{Incident: inc, AlreadyResolved: true}).Message)
}
