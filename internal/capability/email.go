package capability

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

// EmailConfig holds SMTP connection details.
type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email hands a task to a human: it mails the task description to the
// agent's address and treats a successful send as completion.
type Email struct {
	role string
	to   []string
	cfg  EmailConfig
	send sendFunc
}

// NewEmail creates an Email capability that writes to the given recipients.
func NewEmail(role string, to []string, cfg EmailConfig) *Email {
	return &Email{role: role, to: to, cfg: cfg, send: smtp.SendMail}
}

func (e *Email) RoleName() string { return e.role }

func (e *Email) Run(ctx context.Context, task domain.Task) Result {
	ctx, span := otel.Tracer("runner").Start(ctx, "capability.email")
	defer span.End()

	if len(e.to) == 0 {
		return failSpan(span, "no recipients", &PermanentError{Err: fmt.Errorf("email agent for %q has no recipients", e.role)})
	}
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("email.to", strings.Join(e.to, ",")),
	)

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	subject := fmt.Sprintf("[%s] task %s (%s)", ProjectFrom(ctx), task.ID, task.Role)
	msg := buildMIME(e.cfg.From, e.to, subject, task.Description)

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	// Run the blocking SMTP call in a goroutine so we respect ctx cancellation.
	done := make(chan error, 1)
	go func() {
		done <- e.send(addr, auth, e.cfg.From, e.to, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return failSpan(span, "smtp send failed", fmt.Errorf("smtp send to %s: %w", strings.Join(e.to, ","), err))
		}
		return Success()
	case <-ctx.Done():
		return failSpan(span, "timeout", fmt.Errorf("email send interrupted: %w", ctx.Err()))
	}
}

func buildMIME(from string, to []string, subject, body string) []byte {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, strings.Join(to, ", "), subject, body,
	)
	return []byte(msg)
}
