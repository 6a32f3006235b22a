// Package handlers implements the Sync Engine's HTTP request API (§6): the
// eight engine operations plus the server time probe. Grounded on the
// teacher's internal/api/handlers/history style (a struct holding its
// collaborators and a logger, JSON request/response helpers, Swagger
// annotations on exported handlers) adapted from a read-only reporting
// surface to one that drives engine.Engine mutations.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	apierrors "github.com/vitaliisemenov/turnsync/internal/api/errors"
	"github.com/vitaliisemenov/turnsync/internal/api/middleware"
	"github.com/vitaliisemenov/turnsync/internal/clock"
	"github.com/vitaliisemenov/turnsync/internal/engine"
)

// SessionHandlers exposes the Sync Engine's eight operations over HTTP.
type SessionHandlers struct {
	engine *engine.Engine
	clock  clock.Clock
	logger *slog.Logger
}

// NewSessionHandlers constructs handlers bound to eng. clk of nil selects the
// real clock (used only for the /time probe; the engine has its own).
func NewSessionHandlers(eng *engine.Engine, clk clock.Clock, logger *slog.Logger) *SessionHandlers {
	if clk == nil {
		clk = clock.NewReal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandlers{engine: eng, clock: clk, logger: logger.With("component", "session_handlers")}
}

// switchCycleRequest is the optional JSON body of POST .../switch.
type switchCycleRequest struct {
	NextParticipantID *string `json:"next_participant_id,omitempty"`
}

// timeResponse is the /time probe's body.
type timeResponse struct {
	ServerMs int64 `json:"server_ms"`
}

// Create handles POST /api/v1/sessions.
//
// @Summary Create a session
// @Description Creates a new pending session from a validated configuration
// @Tags Sessions
// @Accept json
// @Produce json
// @Success 201 {object} engine.Session
// @Failure 400 {object} apierrors.ErrorResponse
// @Router /sessions [post]
func (h *SessionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var cfg engine.CreateConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeError(w, r, apierrors.ValidationError("malformed request body: "+err.Error()))
		return
	}

	session, err := h.engine.Create(r.Context(), &cfg)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, session)
}

// Get handles GET /api/v1/sessions/{sessionID}.
//
// @Summary Get current session state
// @Tags Sessions
// @Produce json
// @Success 200 {object} engine.Session
// @Failure 404 {object} apierrors.ErrorResponse
// @Router /sessions/{sessionID} [get]
func (h *SessionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	session, err := h.engine.GetCurrentState(r.Context(), sessionID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, session)
}

// Start handles POST /api/v1/sessions/{sessionID}/start.
//
// @Summary Start a pending session
// @Tags Sessions
// @Produce json
// @Success 200 {object} engine.Session
// @Failure 400 {object} apierrors.ErrorResponse
// @Failure 404 {object} apierrors.ErrorResponse
// @Router /sessions/{sessionID}/start [post]
func (h *SessionHandlers) Start(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	session, err := h.engine.Start(r.Context(), sessionID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, session)
}

// SwitchCycle handles POST /api/v1/sessions/{sessionID}/switch — the hot path.
//
// @Summary Switch the active participant
// @Tags Sessions
// @Accept json
// @Produce json
// @Success 200 {object} engine.SwitchResult
// @Failure 400 {object} apierrors.ErrorResponse
// @Failure 404 {object} apierrors.ErrorResponse
// @Failure 409 {object} apierrors.ErrorResponse
// @Router /sessions/{sessionID}/switch [post]
func (h *SessionHandlers) SwitchCycle(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	var body switchCycleRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.writeError(w, r, apierrors.ValidationError("malformed request body: "+err.Error()))
			return
		}
	}

	result, err := h.engine.SwitchCycle(r.Context(), sessionID, body.NextParticipantID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, result)
}

// Pause handles POST /api/v1/sessions/{sessionID}/pause.
//
// @Summary Pause a running session
// @Tags Sessions
// @Produce json
// @Success 200 {object} engine.Session
// @Failure 400 {object} apierrors.ErrorResponse
// @Failure 404 {object} apierrors.ErrorResponse
// @Router /sessions/{sessionID}/pause [post]
func (h *SessionHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	session, err := h.engine.Pause(r.Context(), sessionID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, session)
}

// Resume handles POST /api/v1/sessions/{sessionID}/resume.
//
// @Summary Resume a paused session
// @Tags Sessions
// @Produce json
// @Success 200 {object} engine.Session
// @Failure 400 {object} apierrors.ErrorResponse
// @Failure 404 {object} apierrors.ErrorResponse
// @Router /sessions/{sessionID}/resume [post]
func (h *SessionHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	session, err := h.engine.Resume(r.Context(), sessionID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, session)
}

// Complete handles POST /api/v1/sessions/{sessionID}/complete.
//
// @Summary Complete a session (terminal, idempotent)
// @Tags Sessions
// @Produce json
// @Success 200 {object} engine.Session
// @Failure 404 {object} apierrors.ErrorResponse
// @Router /sessions/{sessionID}/complete [post]
func (h *SessionHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	session, err := h.engine.Complete(r.Context(), sessionID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, session)
}

// Delete handles DELETE /api/v1/sessions/{sessionID}.
//
// @Summary Delete a session
// @Tags Sessions
// @Success 204
// @Failure 404 {object} apierrors.ErrorResponse
// @Router /sessions/{sessionID} [delete]
func (h *SessionHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	if err := h.engine.Delete(r.Context(), sessionID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Time handles GET /time, letting clients measure skew against the server.
//
// @Summary Server time probe
// @Tags System
// @Produce json
// @Success 200 {object} timeResponse
// @Router /time [get]
func (h *SessionHandlers) Time(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, timeResponse{ServerMs: clock.NowMillis(h.clock).UnixMilli()})
}

// writeEngineError translates an *engine.Error into the framing layer's
// apierrors.APIError and writes it. Any other error is treated as internal.
func (h *SessionHandlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		h.logger.Error("unexpected non-engine error", "error", err)
		h.writeError(w, r, apierrors.InternalError(err.Error()))
		return
	}

	switch engErr.Kind {
	case engine.KindSessionNotFound:
		h.writeError(w, r, apierrors.NewAPIError(apierrors.CodeSessionNotFound, engErr.Message))
	case engine.KindInvalidStateTransition:
		h.writeError(w, r, apierrors.InvalidStateTransitionError(engErr.Message))
	case engine.KindConcurrencyError:
		h.writeError(w, r, apierrors.VersionConflictError(engErr.ExpectedVersion, engErr.ActualVersion))
	case engine.KindValidationError:
		apiErr := apierrors.ValidationError(engErr.Message)
		if len(engErr.Fields) > 0 {
			apiErr = apiErr.WithDetails(engErr.Fields)
		}
		h.writeError(w, r, apiErr)
	case engine.KindStateDeserializationErr:
		h.writeError(w, r, apierrors.NewAPIError(apierrors.CodeStateDeserializationErr, engErr.Message))
	default:
		h.logger.Error("internal engine error", "error", engErr)
		h.writeError(w, r, apierrors.InternalError(engErr.Message))
	}
}

func (h *SessionHandlers) writeError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	apiErr.WithRequestID(middleware.GetRequestID(r.Context()))
	apierrors.WriteError(w, apiErr)
}

func (h *SessionHandlers) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
