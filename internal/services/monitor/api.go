package monitor

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/services/metadata"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq"
)

type apiError struct {
	Error string `json:"error"`
}

type selectRequest struct {
	LiftID string `json:"liftId"`
}

type emergencyStopRequest struct {
	Message   string `json:"message"`
	AbortTime int    `json:"abortTime"`
}

type suggestionRequest struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// NewAPIHandler exposes the view as JSON.
//
//	GET  /api/lifts
//	POST /api/lifts/refresh
//	GET  /api/overview
//	GET  /api/overview/history
//	GET  /api/selection
//	PUT  /api/selection                     {"liftId": "..."}; same id again clears it
//	GET  /api/logs                          live table of the selected lift
//	GET  /api/history                       stored logs from the backend
//	POST /api/lifts/{id}/emergency-stop     {"message": "...", "abortTime": 15}
//	POST /api/lifts/{id}/suggestions        {"severity": "INFO", "message": "..."}
func NewAPIHandler(v *View, logger *zap.Logger) http.Handler {
	h := &apiHandler{view: v, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/lifts", h.lifts)
	mux.HandleFunc("POST /api/lifts/refresh", h.refresh)
	mux.HandleFunc("GET /api/overview", h.overview)
	mux.HandleFunc("GET /api/overview/history", h.broadcasts)
	mux.HandleFunc("GET /api/selection", h.selection)
	mux.HandleFunc("PUT /api/selection", h.selectLift)
	mux.HandleFunc("GET /api/logs", h.logs)
	mux.HandleFunc("GET /api/history", h.history)
	mux.HandleFunc("POST /api/lifts/{id}/emergency-stop", h.emergencyStop)
	mux.HandleFunc("POST /api/lifts/{id}/suggestions", h.suggestion)
	return mux
}

type apiHandler struct {
	view   *View
	logger *zap.Logger
}

func (h *apiHandler) lifts(w http.ResponseWriter, r *http.Request) {
	out, err := h.view.Lifts(r.Context())
	h.reply(w, out, err)
}

func (h *apiHandler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.view.Refresh(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.view.Lifts(r.Context())
	h.reply(w, out, err)
}

func (h *apiHandler) overview(w http.ResponseWriter, r *http.Request) {
	out, err := h.view.Overview(r.Context())
	h.reply(w, out, err)
}

func (h *apiHandler) broadcasts(w http.ResponseWriter, r *http.Request) {
	out, err := h.view.Broadcasts(r.Context())
	h.reply(w, out, err)
}

func (h *apiHandler) selection(w http.ResponseWriter, r *http.Request) {
	out, err := h.view.Selection(r.Context())
	h.reply(w, out, err)
}

func (h *apiHandler) selectLift(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid body"})
		return
	}
	out, err := h.view.Select(r.Context(), req.LiftID)
	h.reply(w, out, err)
}

func (h *apiHandler) logs(w http.ResponseWriter, r *http.Request) {
	out, err := h.view.Logs(r.Context())
	h.reply(w, out, err)
}

func (h *apiHandler) history(w http.ResponseWriter, r *http.Request) {
	out, err := h.view.History(r.Context())
	h.reply(w, out, err)
}

func (h *apiHandler) emergencyStop(w http.ResponseWriter, r *http.Request) {
	var req emergencyStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid body"})
		return
	}
	out, err := h.view.SendEmergencyStop(r.Context(), r.PathValue("id"), req.Message, req.AbortTime)
	h.replyStatus(w, http.StatusAccepted, out, err)
}

func (h *apiHandler) suggestion(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid body"})
		return
	}
	out, err := h.view.SendSuggestion(r.Context(), r.PathValue("id"), req.Severity, req.Message)
	h.replyStatus(w, http.StatusAccepted, out, err)
}

func (h *apiHandler) reply(w http.ResponseWriter, body any, err error) {
	h.replyStatus(w, http.StatusOK, body, err)
}

func (h *apiHandler) replyStatus(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, status, body)
}

func (h *apiHandler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrSelectionDisabled):
		status = http.StatusForbidden
	case errors.Is(err, ErrUnknownLift):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidLiftID), errors.Is(err, ErrInvalidSeverity):
		status = http.StatusBadRequest
	case errors.Is(err, ErrViewClosed), errors.Is(err, metadata.ErrBreakerOpen), errors.Is(err, rabbitmq.ErrNotConnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, metadata.ErrUnauthorized):
		status = http.StatusBadGateway
	default:
		var se *metadata.StatusError
		if errors.As(err, &se) {
			status = http.StatusBadGateway
		}
	}
	if status >= 500 {
		h.logger.Error("api request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, apiError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
