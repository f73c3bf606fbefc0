package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/pkg/retry"
)

const maxDocumentBytes = 1 << 20

// HTTPPlanner asks an external decomposition service for a plan document.
// The service receives {"requirement": "..."} and answers with a document in
// the ParseDocument format.
type HTTPPlanner struct {
	endpoint string
	client   *http.Client
	retry    retry.Config
	logger   *slog.Logger
}

// NewHTTPPlanner returns a planner posting to endpoint. Transport errors and
// 5xx answers are retried three times.
func NewHTTPPlanner(endpoint string, client *http.Client, logger *slog.Logger) *HTTPPlanner {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &HTTPPlanner{endpoint: endpoint, client: client, logger: logger}
	p.retry = retry.Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		OnRetry: func(attempt int, err error) {
			p.logger.Warn("planner request failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		},
	}
	return p
}

// statusError is a non-2xx answer. 4xx answers are not retried.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("planner returned %d: %s", e.code, e.body)
}

func (e *statusError) Permanent() bool { return e.code >= 400 && e.code < 500 }

func (p *HTTPPlanner) Decompose(ctx context.Context, requirement string) (domain.Plan, error) {
	ctx, span := otel.Tracer("planner").Start(ctx, "planner.decompose")
	defer span.End()

	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return domain.Plan{}, &domain.DecompositionError{Reason: "requirement is empty"}
	}
	body, _ := json.Marshal(map[string]string{"requirement": requirement})

	var doc []byte
	err := retry.Do(ctx, p.retry, func() error {
		var err error
		doc, err = p.post(ctx, body)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decompose failed")
		return domain.Plan{}, &domain.DecompositionError{Reason: "planner request failed", Err: err}
	}

	plan, err := ParseDocument(doc, uuid.New().String(), time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad plan document")
		return domain.Plan{}, err
	}
	if plan.Description == "" {
		plan.Description = requirement
	}
	span.SetAttributes(
		attribute.String("project.id", plan.ProjectID),
		attribute.Int("plan.tasks", len(plan.Tasks)),
	)
	return plan, nil
}

func (p *HTTPPlanner) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, application/yaml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return data, nil
}
