package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/kafka"
)

// ExecutionLister returns the audit trail of a project's task runs.
type ExecutionLister interface {
	ListByProject(ctx context.Context, projectID string, limit int) ([]domain.TaskExecution, error)
}

// REST handles HTTP requests for the API Gateway.
type REST struct {
	svc        *Service
	agents     AgentStore
	executions ExecutionLister
	hub        *Hub
	ready      func(ctx context.Context) error
	createMW   []func(http.Handler) http.Handler
	logger     *slog.Logger
}

// RESTOption configures optional REST dependencies.
type RESTOption func(*REST)

// WithAgents enables the /agents routes.
func WithAgents(a AgentStore) RESTOption { return func(h *REST) { h.agents = a } }

// WithExecutions enables GET /projects/{id}/executions.
func WithExecutions(e ExecutionLister) RESTOption { return func(h *REST) { h.executions = e } }

// WithHub enables GET /projects/{id}/events.
func WithHub(hub *Hub) RESTOption { return func(h *REST) { h.hub = hub } }

// WithReadiness sets the check behind /readyz.
func WithReadiness(fn func(ctx context.Context) error) RESTOption {
	return func(h *REST) { h.ready = fn }
}

// WithCreateMiddleware wraps POST /projects, e.g. with a rate limiter.
func WithCreateMiddleware(mw ...func(http.Handler) http.Handler) RESTOption {
	return func(h *REST) { h.createMW = append(h.createMW, mw...) }
}

// NewREST creates a new REST handler.
func NewREST(svc *Service, logger *slog.Logger, opts ...RESTOption) *REST {
	h := &REST{svc: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount registers the health checks and /api/v1 routes on r.
func (h *REST) Mount(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.With(h.createMW...).Post("/projects", h.CreateProject)
		r.Get("/projects", h.ListProjects)
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", h.GetProject)
			r.Delete("/", h.DeleteProject)
			r.Get("/status", h.GetProjectStatus)
			r.Post("/execute", h.command(kafka.CommandExecute))
			r.Post("/resume", h.command(kafka.CommandResume))
			r.Post("/retry", h.command(kafka.CommandRetry))
			r.Post("/cancel", h.command(kafka.CommandCancel))
			if h.hub != nil {
				r.Get("/events", h.StreamEvents)
			}
			if h.executions != nil {
				r.Get("/executions", h.ListExecutions)
			}
		})
		if h.agents != nil {
			h.mountAgents(r)
		}
	})
}

// CreateProjectResponse is the 201 response body of POST /projects.
type CreateProjectResponse struct {
	domain.Summary
	Queued bool `json:"queued"`
}

// ProjectDetail is the GET /projects/{id} response body.
type ProjectDetail struct {
	domain.Summary
	Counts  domain.Counts                          `json:"counts"`
	Columns map[domain.Status][]domain.TaskSummary `json:"columns"`
}

// ProjectStatus is the GET /projects/{id}/status response body.
type ProjectStatus struct {
	ProjectID     string               `json:"project_id"`
	OverallStatus domain.ProjectStatus `json:"overall_status"`
	Round         int                  `json:"round"`
	Counts        domain.Counts        `json:"counts"`
	LastUpdated   time.Time            `json:"last_updated"`
}

// CommandAccepted is the 202 response body of the command endpoints.
type CommandAccepted struct {
	ProjectID string            `json:"project_id"`
	Command   kafka.CommandType `json:"command"`
	CommandID string            `json:"command_id"`
}

var columnOrder = []domain.Status{
	domain.StatusPending,
	domain.StatusRunning,
	domain.StatusRetrying,
	domain.StatusCompleted,
	domain.StatusFailed,
}

// kanban groups tasks by status. Every column is present, possibly empty.
func kanban(tasks []domain.TaskSummary) map[domain.Status][]domain.TaskSummary {
	cols := make(map[domain.Status][]domain.TaskSummary, len(columnOrder))
	for _, s := range columnOrder {
		cols[s] = []domain.TaskSummary{}
	}
	for _, t := range tasks {
		cols[t.Status] = append(cols[t.Status], t)
	}
	return cols
}

// CreateProject handles POST /api/v1/projects.
func (h *REST) CreateProject(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api-gateway").Start(r.Context(), "api_gateway.create_project")
	defer span.End()

	var req Submission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sum, queued, err := h.svc.Submit(ctx, req, "rest")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		h.fail(w, err, "create project")
		return
	}
	span.SetAttributes(
		attribute.String("project.id", sum.ProjectID),
		attribute.Int("project.tasks", len(sum.Tasks)),
	)
	writeJSON(w, http.StatusCreated, CreateProjectResponse{Summary: sum, Queued: queued})
}

// ListProjects handles GET /api/v1/projects.
func (h *REST) ListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, err, "list projects")
		return
	}
	if list == nil {
		list = []domain.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetProject handles GET /api/v1/projects/{id}.
func (h *REST) GetProject(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "get project")
		return
	}
	writeJSON(w, http.StatusOK, ProjectDetail{Summary: sum, Counts: sum.Counts(), Columns: kanban(sum.Tasks)})
}

// GetProjectStatus handles GET /api/v1/projects/{id}/status.
func (h *REST) GetProjectStatus(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "get project status")
		return
	}
	writeJSON(w, http.StatusOK, ProjectStatus{
		ProjectID:     sum.ProjectID,
		OverallStatus: sum.OverallStatus,
		Round:         sum.Round,
		Counts:        sum.Counts(),
		LastUpdated:   sum.LastUpdated,
	})
}

// DeleteProject handles DELETE /api/v1/projects/{id}.
func (h *REST) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err, "delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// command returns the handler for POST /api/v1/projects/{id}/<typ>.
func (h *REST) command(typ kafka.CommandType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		cmd, err := h.svc.Command(r.Context(), typ, id, "rest")
		if err != nil {
			h.fail(w, err, string(typ)+" project")
			return
		}
		h.logger.Info("command queued",
			slog.String("project_id", id),
			slog.String("command", string(typ)),
			slog.String("command_id", cmd.ID),
		)
		writeJSON(w, http.StatusAccepted, CommandAccepted{ProjectID: id, Command: typ, CommandID: cmd.ID})
	}
}

// ListExecutions handles GET /api/v1/projects/{id}/executions.
func (h *REST) ListExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Summary(r.Context(), id); err != nil {
		h.fail(w, err, "list executions")
		return
	}
	execs, err := h.executions.ListByProject(r.Context(), id, 200)
	if err != nil {
		h.fail(w, err, "list executions")
		return
	}
	if execs == nil {
		execs = []domain.TaskExecution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// fail writes the mapped error and logs anything that is not the client's fault.
func (h *REST) fail(w http.ResponseWriter, err error, op string) {
	code, msg := httpStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
	}
	writeError(w, code, msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
