package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

// WebhookConfig describes the endpoint a webhook agent calls.
type WebhookConfig struct {
	URL     string
	Method  string
	Headers map[string]string
}

// webhookRequest is the JSON body posted for every task.
type webhookRequest struct {
	ProjectID    string   `json:"project_id"`
	TaskID       string   `json:"task_id"`
	Role         string   `json:"role"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies"`
	RetryCount   int      `json:"retry_count"`
}

// Webhook delegates a role's work to an HTTP endpoint. A 2xx response is a
// success; 4xx responses other than 408 and 429 are permanent failures.
type Webhook struct {
	role   string
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhook creates a Webhook capability. A nil client gets a 15s timeout.
func NewWebhook(role string, cfg WebhookConfig, client *http.Client) *Webhook {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Webhook{role: role, cfg: cfg, client: client}
}

func (w *Webhook) RoleName() string { return w.role }

func (w *Webhook) Run(ctx context.Context, task domain.Task) Result {
	ctx, span := otel.Tracer("runner").Start(ctx, "capability.webhook")
	defer span.End()

	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("webhook.url", w.cfg.URL),
		attribute.String("webhook.method", w.cfg.Method),
	)

	body, err := json.Marshal(webhookRequest{
		ProjectID:    ProjectFrom(ctx),
		TaskID:       task.ID,
		Role:         task.Role,
		Description:  task.Description,
		Dependencies: task.Dependencies,
		RetryCount:   task.RetryCount,
	})
	if err != nil {
		return failSpan(span, "encode body failed", fmt.Errorf("encode webhook body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, w.cfg.Method, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return failSpan(span, "build request failed", &PermanentError{Err: fmt.Errorf("build webhook request: %w", err)})
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return failSpan(span, "http call failed", fmt.Errorf("webhook call to %s: %w", w.cfg.URL, err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < http.StatusBadRequest {
		return Success()
	}
	err = fmt.Errorf("webhook %s returned status %d", w.cfg.URL, resp.StatusCode)
	if resp.StatusCode < http.StatusInternalServerError &&
		resp.StatusCode != http.StatusRequestTimeout &&
		resp.StatusCode != http.StatusTooManyRequests {
		err = &PermanentError{Err: err}
	}
	return failSpan(span, "bad status code", err)
}

func failSpan(span trace.Span, msg string, err error) Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return Failure(err)
}
