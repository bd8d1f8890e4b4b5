package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixops/ruleflow/internal/engine"
	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/pkg/schema"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Rules ---

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Key           string          `json:"key"`
		Name          string          `json:"name"`
		TriggerType   string          `json:"trigger_type"`
		TriggerConfig json.RawMessage `json:"trigger_config"`
		Conditions    json.RawMessage `json:"conditions"`
		Actions       json.RawMessage `json:"actions"`
		IsActive      *bool           `json:"is_active"`
		Priority      int             `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if body.TriggerType == "" {
		writeError(w, http.StatusBadRequest, "trigger_type is required")
		return
	}

	// Reject malformed condition/action payloads at write time; the engine
	// re-validates at execution time for rules written by other paths.
	if _, err := s.deps.Validator.DecodeConditions(body.Conditions); err != nil {
		writeRuleError(w, err)
		return
	}
	if _, err := s.deps.Validator.DecodeActions(body.Actions); err != nil {
		writeRuleError(w, err)
		return
	}

	active := true
	if body.IsActive != nil {
		active = *body.IsActive
	}
	rule := &schema.Rule{
		Key:           body.Key,
		Name:          body.Name,
		TriggerType:   body.TriggerType,
		TriggerConfig: body.TriggerConfig,
		Conditions:    body.Conditions,
		Actions:       body.Actions,
		IsActive:      active,
		Priority:      body.Priority,
	}
	if err := s.deps.Store.CreateRule(ctx, rule); err != nil {
		writeRuleError(w, err)
		return
	}

	created, err := s.deps.Store.GetRule(ctx, rule.ID)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	filter := store.RuleFilter{
		IsActive:    boolQuery(r, "is_active"),
		TriggerType: r.URL.Query().Get("trigger_type"),
		Limit:       intQuery(r, "limit", 100),
		Offset:      intQuery(r, "offset", 0),
	}
	rules, err := s.deps.Store.ListRules(r.Context(), filter)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	if rules == nil {
		rules = []*schema.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.deps.Store.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var update store.RuleUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if update.Conditions != nil {
		if _, err := s.deps.Validator.DecodeConditions(update.Conditions); err != nil {
			writeRuleError(w, err)
			return
		}
	}
	if update.Actions != nil {
		if _, err := s.deps.Validator.DecodeActions(update.Actions); err != nil {
			writeRuleError(w, err)
			return
		}
	}

	if err := s.deps.Store.UpdateRule(ctx, id, update); err != nil {
		writeRuleError(w, err)
		return
	}
	rule, err := s.deps.Store.GetRule(ctx, id)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeRuleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvokeRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var body struct {
		TriggerData map[string]any `json:"trigger_data"`
		TriggeredBy string         `json:"triggered_by"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
	}
	resp, err := s.deps.Runner.Invoke(ctx, engine.InvokeRequest{
		RuleID:      id,
		TriggerData: body.TriggerData,
		TriggeredBy: body.TriggeredBy,
	})
	if err != nil {
		writeRuleError(w, err)
		return
	}
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

// --- Executions ---

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	s.listExecutions(w, r, r.URL.Query().Get("rule_id"))
}

func (s *Server) handleListRuleExecutions(w http.ResponseWriter, r *http.Request) {
	s.listExecutions(w, r, chi.URLParam(r, "id"))
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request, ruleID string) {
	filter := store.ExecutionFilter{
		RuleID: ruleID,
		Limit:  intQuery(r, "limit", 100),
		Offset: intQuery(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := schema.ExecutionStatus(raw)
		filter.Status = &status
	}

	executions, err := s.deps.Store.ListExecutions(r.Context(), filter)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	if executions == nil {
		executions = []*schema.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": executions, "count": len(executions)})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.deps.Store.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// --- Actions and audit ---

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Registry.List()
	writeJSON(w, http.StatusOK, map[string]any{"actions": infos, "count": len(infos)})
}

func (s *Server) handleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter := store.AuditFilter{
		RuleID:      r.URL.Query().Get("rule_id"),
		ExecutionID: r.URL.Query().Get("execution_id"),
		Limit:       intQuery(r, "limit", 100),
	}
	events, err := s.deps.Store.ListAuditEvents(r.Context(), filter)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	if events == nil {
		events = []*store.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
