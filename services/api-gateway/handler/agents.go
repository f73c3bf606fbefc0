package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/domain"
)

// AgentStore is the agent catalog behind the /agents routes.
type AgentStore interface {
	Create(ctx context.Context, a *domain.Agent) error
	Update(ctx context.Context, a *domain.Agent) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Agent, error)
	List(ctx context.Context) ([]domain.Agent, error)
	ListByRole(ctx context.Context, role string) ([]domain.Agent, error)
	SetActive(ctx context.Context, ids []string, active bool) (int64, error)
}

// BatchUpdateRequest is the body of POST /agents/batch-update.
type BatchUpdateRequest struct {
	IDs    []string `json:"ids"`
	Active bool     `json:"active"`
}

// agentCheck builds the capability an agent describes without keeping it,
// so a bad kind or missing config is rejected at write time.
var agentCheck = &capability.Factory{}

func (h *REST) mountAgents(r chi.Router) {
	r.Get("/agents", h.ListAgents)
	r.Post("/agents", h.CreateAgent)
	r.Post("/agents/batch-update", h.BatchUpdateAgents)
	r.Get("/agents/role/{role}", h.ListAgentsByRole)
	r.Get("/agents/{id}", h.GetAgent)
	r.Put("/agents/{id}", h.UpdateAgent)
	r.Delete("/agents/{id}", h.DeleteAgent)
}

// ListAgents handles GET /api/v1/agents.
func (h *REST) ListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := h.agents.List(r.Context())
	h.writeAgents(w, list, err)
}

// ListAgentsByRole handles GET /api/v1/agents/role/{role}.
func (h *REST) ListAgentsByRole(w http.ResponseWriter, r *http.Request) {
	list, err := h.agents.ListByRole(r.Context(), chi.URLParam(r, "role"))
	h.writeAgents(w, list, err)
}

func (h *REST) writeAgents(w http.ResponseWriter, list []domain.Agent, err error) {
	if err != nil {
		h.fail(w, err, "list agents")
		return
	}
	if list == nil {
		list = []domain.Agent{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetAgent handles GET /api/v1/agents/{id}.
func (h *REST) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "get agent")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CreateAgent handles POST /api/v1/agents.
func (h *REST) CreateAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := decodeAgent(w, r)
	if !ok {
		return
	}
	if err := h.agents.Create(r.Context(), &a); err != nil {
		h.fail(w, err, "create agent")
		return
	}
	h.logger.Info("agent created",
		slog.String("agent_id", a.ID),
		slog.String("role", a.RoleName),
		slog.String("kind", string(a.Kind)),
	)
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAgent handles PUT /api/v1/agents/{id}.
func (h *REST) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := decodeAgent(w, r)
	if !ok {
		return
	}
	a.ID = chi.URLParam(r, "id")
	if err := h.agents.Update(r.Context(), &a); err != nil {
		h.fail(w, err, "update agent")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAgent handles DELETE /api/v1/agents/{id}.
func (h *REST) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.agents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err, "delete agent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchUpdateAgents handles POST /api/v1/agents/batch-update.
func (h *REST) BatchUpdateAgents(w http.ResponseWriter, r *http.Request) {
	var req BatchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "field 'ids' is required")
		return
	}
	n, err := h.agents.SetActive(r.Context(), req.IDs, req.Active)
	if err != nil {
		h.fail(w, err, "batch update agents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func decodeAgent(w http.ResponseWriter, r *http.Request) (domain.Agent, bool) {
	var a domain.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return domain.Agent{}, false
	}
	if a.Kind == "" {
		a.Kind = domain.AgentKindSimulated
	}
	if _, err := agentCheck.Build(a); err != nil {
		code, msg := httpStatus(err)
		writeError(w, code, msg)
		return domain.Agent{}, false
	}
	return a, true
}
