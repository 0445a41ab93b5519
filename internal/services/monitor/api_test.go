package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_Operator(t *testing.T) {
	h := startView(t, ModeOperator, nil, lift("a"), lift("b"))
	api := NewAPIHandler(h.view, zap.NewNop())

	rec := serve(t, api, http.MethodGet, "/api/lifts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lifts []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lifts))
	assert.Len(t, lifts, 2)

	rec = serve(t, api, http.MethodPut, "/api/selection", `{"liftId":"a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "selected", st["phase"])
	assert.Equal(t, "a", st["liftId"])

	rec = serve(t, api, http.MethodPut, "/api/selection", `{"liftId":"zzz"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, api, http.MethodPut, "/api/selection", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.tr.Emit("skilift.a.logs.sensor.wind", []byte(`{"value": 4}`))
	require.Eventually(t, func() bool {
		rec := serve(t, api, http.MethodGet, "/api/logs", "")
		var logs SelectionLogs
		_ = json.Unmarshal(rec.Body.Bytes(), &logs)
		return len(logs.Winds) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec = serve(t, api, http.MethodPost, "/api/lifts/a/emergency-stop", `{"message":"stop","abortTime":10}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	rec = serve(t, api, http.MethodPost, "/api/lifts/a/suggestions", `{"severity":"WARNING","message":"queue"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = serve(t, api, http.MethodPost, "/api/lifts/a/suggestions", `{"severity":"LOUD","message":"queue"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, h.tr.Published(), 2)

	h.tr.SetConnected(false)
	rec = serve(t, api, http.MethodPost, "/api/lifts/a/suggestions", `{"message":"queue"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPI_Public(t *testing.T) {
	h := startView(t, ModePublic, nil, lift("a"))
	api := NewAPIHandler(h.view, zap.NewNop())

	rec := serve(t, api, http.MethodPut, "/api/selection", `{"liftId":"a"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, api, http.MethodGet, "/api/overview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []OverviewEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Visual)

	rec = serve(t, api, http.MethodPost, "/api/lifts/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, api, http.MethodDelete, "/api/lifts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
