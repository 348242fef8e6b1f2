package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/application/command"
	"github.com/alem-hub/tournament-hub/internal/application/query"
	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListTournaments handles GET /api/v1/tournaments?status=ACTIVE
func (s *Server) handleListTournaments(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListTournaments == nil {
		notConfigured(w)
		return
	}
	result, err := s.deps.ListTournaments.Handle(r.Context(), query.ListTournamentsQuery{
		Status: r.URL.Query().Get("status"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetLeaderboard handles GET /api/v1/tournaments/{id}/leaderboard?limit=10
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboard == nil {
		notConfigured(w)
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	result, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		TournamentID: r.PathValue("id"),
		Limit:        limit,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetStanding handles GET /api/v1/tournaments/{id}/participants/{pid}
func (s *Server) handleGetStanding(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStanding == nil {
		notConfigured(w)
		return
	}
	result, err := s.deps.GetStanding.Handle(r.Context(), query.GetStandingQuery{
		TournamentID:  r.PathValue("id"),
		ParticipantID: r.PathValue("pid"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetNeighbors handles GET /api/v1/tournaments/{id}/participants/{pid}/neighbors?range=5
func (s *Server) handleGetNeighbors(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetNeighbors == nil {
		notConfigured(w)
		return
	}
	rangeSize, ok := queryInt(w, r, "range")
	if !ok {
		return
	}
	result, err := s.deps.GetNeighbors.Handle(r.Context(), query.GetNeighborsQuery{
		TournamentID:  r.PathValue("id"),
		ParticipantID: r.PathValue("pid"),
		RangeSize:     rangeSize,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetOnlineNow handles GET /api/v1/online?tournament=weekly&limit=50
func (s *Server) handleGetOnlineNow(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetOnlineNow == nil {
		notConfigured(w)
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	result, err := s.deps.GetOnlineNow.Handle(r.Context(), query.GetOnlineNowQuery{
		TournamentID: r.URL.Query().Get("tournament"),
		Limit:        limit,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetRunHistory handles GET /api/v1/tournaments/{id}/history?limit=10
func (s *Server) handleGetRunHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetRunHistory == nil {
		notConfigured(w)
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	result, err := s.deps.GetRunHistory.Handle(r.Context(), query.GetRunHistoryQuery{
		TournamentID: r.PathValue("id"),
		Limit:        limit,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type startRequest struct {
	// ClearParticipants defaults to true.
	ClearParticipants *bool `json:"clear_participants"`
}

// handleStartTournament handles POST /api/v1/tournaments/{id}/start
func (s *Server) handleStartTournament(w http.ResponseWriter, r *http.Request) {
	if s.deps.StartTournament == nil {
		notConfigured(w)
		return
	}
	var req startRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	clearParticipants := req.ClearParticipants == nil || *req.ClearParticipants

	result, err := s.deps.StartTournament.Handle(r.Context(), command.StartTournamentCommand{
		TournamentID:      r.PathValue("id"),
		ClearParticipants: clearParticipants,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleStopTournament handles POST /api/v1/tournaments/{id}/stop
func (s *Server) handleStopTournament(w http.ResponseWriter, r *http.Request) {
	if s.deps.StopTournament == nil {
		notConfigured(w)
		return
	}
	result, err := s.deps.StopTournament.Handle(r.Context(), command.StopTournamentCommand{
		TournamentID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type joinRequest struct {
	ParticipantID string   `json:"participant_id"`
	Permissions   []string `json:"permissions"`
}

// handleJoinTournament handles POST /api/v1/tournaments/{id}/participants
func (s *Server) handleJoinTournament(w http.ResponseWriter, r *http.Request) {
	if s.deps.JoinTournament == nil {
		notConfigured(w)
		return
	}
	var req joinRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	result, err := s.deps.JoinTournament.Handle(r.Context(), command.JoinTournamentCommand{
		TournamentID:  r.PathValue("id"),
		ParticipantID: req.ParticipantID,
		Permissions:   req.Permissions,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	code := http.StatusOK
	if result.Joined {
		code = http.StatusCreated
	}
	writeJSON(w, r, code, result)
}

type scoreRequest struct {
	ParticipantID string `json:"participant_id"`
	Amount        int    `json:"amount"`
	Replace       bool   `json:"replace"`
	Objective     string `json:"objective"`
	World         string `json:"world"`
	Mode          string `json:"mode"`
}

// handleSubmitScore handles POST /api/v1/tournaments/{id}/scores
func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	if s.deps.SubmitScore == nil {
		notConfigured(w)
		return
	}
	var req scoreRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	result, err := s.deps.SubmitScore.Handle(r.Context(), command.SubmitScoreCommand{
		TournamentID:  r.PathValue("id"),
		ParticipantID: req.ParticipantID,
		Amount:        req.Amount,
		Replace:       req.Replace,
		Objective:     req.Objective,
		World:         req.World,
		Mode:          req.Mode,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type presenceRequest struct {
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// handleUpdatePresence handles PUT /api/v1/players/{pid}/presence
func (s *Server) handleUpdatePresence(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdatePresence == nil {
		notConfigured(w)
		return
	}
	var req presenceRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	result, err := s.deps.UpdatePresence.Handle(r.Context(), command.UpdatePresenceCommand{
		ParticipantID: r.PathValue("pid"),
		Name:          req.Name,
		Online:        req.Online,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every successful response.
type JSONResponse struct {
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Data:      data,
		RequestID: handlers.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func notConfigured(w http.ResponseWriter) {
	handlers.WriteError(w, http.StatusNotImplemented, "not_implemented", "Handler not configured")
}

// writeDomainError maps domain error kinds to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		handlers.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		handlers.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
	case shared.IsStateTransition(err), shared.IsAlreadyExists(err):
		handlers.WriteError(w, http.StatusConflict, "conflict", err.Error())
	case shared.IsValidation(err):
		handlers.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsExternalService(err):
		s.log.Warn("backend unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		handlers.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Backend unavailable")
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		handlers.WriteError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}

// decode reads a JSON body. With optional set an empty body is accepted.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "invalid_request", key+" must be an integer")
		return 0, false
	}
	return n, true
}
