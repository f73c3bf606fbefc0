package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/kafka"
	"github.com/ramiqadoumi/planflow/internal/planner"
	"github.com/ramiqadoumi/planflow/internal/store"
	"github.com/ramiqadoumi/planflow/pkg/telemetry"
)

// Seeder validates a plan and persists its initial state.
type Seeder interface {
	Seed(ctx context.Context, p domain.Plan) (*domain.ExecutionState, error)
}

// CommandSender publishes project commands to the runners.
type CommandSender interface {
	Send(ctx context.Context, cmd kafka.Command) error
}

// InputError reports a malformed request.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

// Service holds the project operations shared by the REST and gRPC front ends.
type Service struct {
	store    store.ProjectStore
	seeder   Seeder
	planner  planner.Planner
	commands CommandSender
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(st store.ProjectStore, seeder Seeder, p planner.Planner, commands CommandSender, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		seeder:   seeder,
		planner:  p,
		commands: commands,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submission is a request to create a project, either from a free-text
// requirement or from an explicit plan document.
type Submission struct {
	Requirement string            `json:"requirement"`
	Plan        *planner.Document `json:"plan,omitempty"`
	Execute     bool              `json:"execute"`
}

// Submit builds the plan, seeds the project and, when asked, queues its
// execution. The returned bool reports whether an execute command was sent.
func (s *Service) Submit(ctx context.Context, sub Submission, source string) (domain.Summary, bool, error) {
	var (
		plan domain.Plan
		err  error
	)
	switch {
	case sub.Plan != nil:
		plan = sub.Plan.Plan(uuid.New().String(), s.now())
	case strings.TrimSpace(sub.Requirement) != "":
		plan, err = s.planner.Decompose(ctx, sub.Requirement)
		if err != nil {
			return domain.Summary{}, false, err
		}
	default:
		return domain.Summary{}, false, &InputError{Msg: "either 'requirement' or 'plan' is required"}
	}

	st, err := s.seeder.Seed(ctx, plan)
	if err != nil {
		var invalid *domain.PlanValidationError
		if errors.As(err, &invalid) {
			telemetry.APIPlansRejected.WithLabelValues(string(invalid.Kind)).Inc()
		}
		return domain.Summary{}, false, err
	}
	telemetry.APIProjectsSubmitted.WithLabelValues(source).Inc()
	s.logger.Info("project created",
		slog.String("project_id", st.ProjectID()),
		slog.Int("tasks", st.Len()),
		slog.String("source", source),
	)

	if !sub.Execute {
		return st.Summary(), false, nil
	}
	if _, err := s.send(ctx, kafka.CommandExecute, st.ProjectID(), source); err != nil {
		// The project exists; the caller can still POST .../execute.
		s.logger.Error("queue execution failed",
			slog.String("project_id", st.ProjectID()),
			slog.String("error", err.Error()),
		)
		return st.Summary(), false, nil
	}
	return st.Summary(), true, nil
}

func (s *Service) Summary(ctx context.Context, projectID string) (domain.Summary, error) {
	st, err := s.store.Load(ctx, projectID)
	if err != nil {
		return domain.Summary{}, err
	}
	return st.Summary(), nil
}

func (s *Service) List(ctx context.Context) ([]domain.Summary, error) {
	return s.store.List(ctx)
}

// Command publishes typ for an existing project.
func (s *Service) Command(ctx context.Context, typ kafka.CommandType, projectID, source string) (kafka.Command, error) {
	ok, err := s.store.Exists(ctx, projectID)
	if err != nil {
		return kafka.Command{}, err
	}
	if !ok {
		return kafka.Command{}, &domain.ProjectNotFoundError{ProjectID: projectID}
	}
	return s.send(ctx, typ, projectID, source)
}

// Delete cancels any active run of the project and removes its state.
func (s *Service) Delete(ctx context.Context, projectID string) error {
	ok, err := s.store.Exists(ctx, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.ProjectNotFoundError{ProjectID: projectID}
	}
	if _, err := s.send(ctx, kafka.CommandCancel, projectID, "api"); err != nil {
		s.logger.Warn("cancel before delete failed",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.store.Delete(ctx, projectID); err != nil {
		return err
	}
	s.logger.Info("project deleted", slog.String("project_id", projectID))
	return nil
}

func (s *Service) send(ctx context.Context, typ kafka.CommandType, projectID, source string) (kafka.Command, error) {
	cmd := kafka.NewCommand(typ, projectID, source)
	if err := s.commands.Send(ctx, cmd); err != nil {
		return kafka.Command{}, fmt.Errorf("publish %s: %w", typ, err)
	}
	telemetry.APICommandsPublished.WithLabelValues(string(typ)).Inc()
	return cmd, nil
}

// httpStatus maps service errors to a status code and client-facing message.
func httpStatus(err error) (int, string) {
	var (
		input        *InputError
		invalid      *domain.PlanValidationError
		decompose    *domain.DecompositionError
		projectNF    *domain.ProjectNotFoundError
		agentNF      *domain.AgentNotFoundError
		agentInvalid *capability.ConfigError
	)
	switch {
	case errors.As(err, &input):
		return http.StatusBadRequest, input.Msg
	case errors.As(err, &agentInvalid):
		return http.StatusBadRequest, agentInvalid.Error()
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, invalid.Error()
	case errors.As(err, &decompose):
		return http.StatusBadGateway, decompose.Error()
	case errors.As(err, &projectNF):
		return http.StatusNotFound, "project not found"
	case errors.As(err, &agentNF):
		return http.StatusNotFound, "agent not found"
	}
	return http.StatusInternalServerError, "internal error"
}

// grpcCode is the gRPC counterpart of httpStatus.
func grpcCode(err error) (codes.Code, string) {
	code, msg := httpStatus(err)
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return codes.InvalidArgument, msg
	case http.StatusNotFound:
		return codes.NotFound, msg
	case http.StatusBadGateway:
		return codes.Unavailable, msg
	}
	return codes.Internal, msg
}
