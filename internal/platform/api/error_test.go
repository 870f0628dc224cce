package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadRequest_Envelope(t *testing.T) {
	rr := httptest.NewRecorder()
	BadRequest(rr, "INVALID_CURSOR", "cursor must be a positive integer", "rid-1", nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, "INVALID_CURSOR", resp.Error.Code)
	require.Equal(t, "rid-1", resp.Error.RequestID)
	require.Nil(t, resp.Error.Details)
}

func TestInternal_HidesCause(t *testing.T) {
	rr := httptest.NewRecorder()
	Internal(rr, "")

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, "INTERNAL", resp.Error.Code)
	require.Empty(t, resp.Error.RequestID)
}
