package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"call-insights-go/internal/dispatch"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/roster"
	"call-insights-go/internal/stats"
	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

type server struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	stats      *stats.Service
	importer   *roster.Importer
}

func (s *server) routes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/calls", s.handleCreateCall).Methods(http.MethodPost)
	api.HandleFunc("/calls/{id:[0-9]+}/reprocess", s.handleReprocess).Methods(http.MethodPost)
	api.HandleFunc("/calls/{id:[0-9]+}/status", s.handleCallStatus).Methods(http.MethodGet)
	api.HandleFunc("/coaching/generate", s.handleGenerateCoaching).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id:[0-9]+}/stats", s.handleAgentStats).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id:[0-9]+}/coaching", s.handleCoachingHistory).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/overview", s.handleOverview).Methods(http.MethodGet)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	logger.New().WithRequest(r).Debug("health check")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createCallRequest struct {
	EmployeeID   string `json:"employee_id"`
	AgentName    string `json:"agent_name"`
	Department   string `json:"department"`
	AudioPath    string `json:"audio_path"`
	CallDate     string `json:"call_date"`
	CallerNumber string `json:"caller_number"`
}

// handleCreateCall registers a call and starts its pipeline run.
func (s *server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "create_call")

	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EmployeeID == "" || req.AudioPath == "" {
		writeError(w, http.StatusBadRequest, "employee_id and audio_path are required")
		return
	}
	callDate := time.Now().UTC()
	if req.CallDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.CallDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "call_date must be RFC3339")
			return
		}
		callDate = parsed
	}
	if req.AgentName == "" {
		req.AgentName = req.EmployeeID
	}

	agent, err := s.store.GetOrCreateAgent(r.Context(), req.EmployeeID, req.AgentName, req.Department)
	if err != nil {
		reqLog.WithError(err).Error("agent lookup failed")
		writeError(w, http.StatusInternalServerError, "agent lookup failed")
		return
	}
	call, err := s.store.CreateCall(r.Context(), store.NewCall{
		AgentID:      agent.ID,
		AudioPath:    req.AudioPath,
		CallDate:     callDate,
		CallerNumber: req.CallerNumber,
	})
	if err != nil {
		reqLog.WithError(err).Error("create call failed")
		writeError(w, http.StatusInternalServerError, "create call failed")
		return
	}

	task, err := s.dispatcher.TriggerPipeline(r.Context(), call.ID)
	if err != nil {
		reqLog.WithError(err).Error("trigger pipeline failed")
		writeError(w, http.StatusInternalServerError, "trigger pipeline failed")
		return
	}
	reqLog.WithField("call_id", call.ID).Info("call accepted")
	writeJSON(w, http.StatusAccepted, map[string]any{"call": call, "task": task})
}

// handleReprocess restarts the pipeline for an existing call, superseding any
// prior results.
func (s *server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "reprocess")
	callID := pathID(r)

	task, err := s.dispatcher.TriggerPipeline(r.Context(), callID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "call not found")
		return
	case errors.Is(err, store.ErrPipelineInFlight):
		writeError(w, http.StatusConflict, "a pipeline run for this call is already in progress")
		return
	case err != nil:
		reqLog.WithError(err).Error("trigger pipeline failed")
		writeError(w, http.StatusInternalServerError, "trigger pipeline failed")
		return
	}
	reqLog.WithField("call_id", callID).Info("reprocess accepted")
	writeJSON(w, http.StatusAccepted, map[string]any{"task": task})
}

func (s *server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.stats.CallStatus(r.Context(), pathID(r))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "call not found")
		return
	case err != nil:
		logger.New().WithRequest(r).WithError(err).Error("call status failed")
		writeError(w, http.StatusInternalServerError, "call status failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type generateCoachingRequest struct {
	AgentID int64  `json:"agent_id"`
	Date    string `json:"date"`
}

// handleGenerateCoaching starts a coaching run for an agent-day. Today when
// the date is omitted.
func (s *server) handleGenerateCoaching(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "generate_coaching")

	var req generateCoachingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == 0 {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if req.Date != "" {
		if _, err := time.Parse(types.DateLayout, req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	if _, err := s.store.GetAgent(r.Context(), req.AgentID); err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	task, err := s.dispatcher.TriggerCoaching(r.Context(), req.AgentID, req.Date)
	switch {
	case errors.Is(err, store.ErrCoachingExists):
		writeError(w, http.StatusConflict, "coaching already exists for this agent and date")
		return
	case err != nil:
		reqLog.WithError(err).Error("trigger coaching failed")
		writeError(w, http.StatusInternalServerError, "trigger coaching failed")
		return
	}
	reqLog.WithField("agent_id", req.AgentID).Info("coaching run accepted")
	writeJSON(w, http.StatusAccepted, map[string]any{"task": task})
}

func (s *server) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.stats.AgentStats(r.Context(), pathID(r),
		r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "agent not found")
		return
	case err != nil:
		logger.New().WithRequest(r).WithError(err).Error("agent stats failed")
		writeError(w, http.StatusInternalServerError, "agent stats failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleCoachingHistory(w http.ResponseWriter, r *http.Request) {
	agentID := pathID(r)
	if _, err := s.store.GetAgent(r.Context(), agentID); err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	history, err := s.store.ListCoachingByAgent(r.Context(), agentID)
	if err != nil {
		logger.New().WithRequest(r).WithError(err).Error("coaching history failed")
		writeError(w, http.StatusInternalServerError, "coaching history failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coaching": history})
}

func (s *server) handleOverview(w http.ResponseWriter, r *http.Request) {
	report, err := s.stats.DashboardOverview(r.Context(),
		r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		logger.New().WithRequest(r).WithError(err).Error("overview failed")
		writeError(w, http.StatusInternalServerError, "overview failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type importRequest struct {
	Path    string `json:"path"`
	Process bool   `json:"process"`
}

// handleImport ingests a roster spreadsheet. With process=true every
// imported call is queued for the pipeline immediately.
func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "import")

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	result, err := s.importer.Import(r.Context(), req.Path)
	if err != nil {
		reqLog.WithError(err).Error("roster import failed")
		writeError(w, http.StatusInternalServerError, "roster import failed")
		return
	}
	if req.Process {
		for _, callID := range result.CallIDs {
			if _, err := s.dispatcher.TriggerPipeline(r.Context(), callID); err != nil {
				reqLog.WithField("call_id", callID).WithError(err).Warn("could not queue imported call")
			}
		}
	}
	reqLog.WithField("imported", result.Imported).Info("roster import finished")
	writeJSON(w, http.StatusOK, result)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(body); err != nil {
		logger.New().WithError(err).Error("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
