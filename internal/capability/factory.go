package capability

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ramiqadoumi/planflow/internal/domain"
)

// Factory turns agent catalog entries into capabilities.
type Factory struct {
	Email  EmailConfig
	Client *http.Client
	Logger *slog.Logger
}

// Build creates the capability described by a.
//
// Recognised config keys:
//
//	simulated: delay (duration), fail_first (int)
//	webhook:   url, method, header.<Name>
//	email:     to (comma separated)
func (f *Factory) Build(a domain.Agent) (Capability, error) {
	if a.RoleName == "" {
		return nil, &ConfigError{AgentID: a.ID, Reason: "empty role name"}
	}
	switch a.Kind {
	case domain.AgentKindSimulated, "":
		delay := defaultDelays[a.RoleName]
		if v, ok := a.Config["delay"]; ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, &ConfigError{AgentID: a.ID, Reason: fmt.Sprintf("invalid delay %q", v)}
			}
			delay = d
		}
		failFirst := 0
		if v, ok := a.Config["fail_first"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, &ConfigError{AgentID: a.ID, Reason: fmt.Sprintf("invalid fail_first %q", v)}
			}
			failFirst = n
		}
		return NewSimulated(a.RoleName, delay, failFirst), nil

	case domain.AgentKindWebhook:
		url := a.Config["url"]
		if url == "" {
			return nil, &ConfigError{AgentID: a.ID, Reason: "webhook agent needs config.url"}
		}
		headers := make(map[string]string)
		for k, v := range a.Config {
			if name, ok := strings.CutPrefix(k, "header."); ok {
				headers[name] = v
			}
		}
		return NewWebhook(a.RoleName, WebhookConfig{URL: url, Method: a.Config["method"], Headers: headers}, f.Client), nil

	case domain.AgentKindEmail:
		var to []string
		for _, addr := range strings.Split(a.Config["to"], ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				to = append(to, addr)
			}
		}
		if len(to) == 0 {
			return nil, &ConfigError{AgentID: a.ID, Reason: "email agent needs config.to"}
		}
		return NewEmail(a.RoleName, to, f.Email), nil
	}
	return nil, &ConfigError{AgentID: a.ID, Reason: fmt.Sprintf("unknown agent kind %q", a.Kind)}
}

// Registry builds a registry from the active agents. When two active agents
// claim the same role the later one wins and a warning is logged.
func (f *Factory) Registry(agents []domain.Agent) (*Registry, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := NewRegistry()
	seen := make(map[string]string)
	for _, a := range agents {
		if !a.Active {
			continue
		}
		c, err := f.Build(a)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[a.RoleName]; ok {
			logger.Warn("role claimed by several agents",
				slog.String("role", a.RoleName),
				slog.String("replaced", prev),
				slog.String("agent_id", a.ID),
			)
		}
		seen[a.RoleName] = a.ID
		reg.Register(c)
	}
	return reg, nil
}

// Sync brings reg in line with agents: roles with an active agent get a
// freshly built capability, every other role is removed. On a build error
// reg is left untouched.
func (f *Factory) Sync(reg *Registry, agents []domain.Agent) error {
	next, err := f.Registry(agents)
	if err != nil {
		return err
	}
	keep := make(map[string]struct{})
	for _, role := range next.Roles() {
		c, _ := next.Lookup(role)
		reg.Register(c)
		keep[role] = struct{}{}
	}
	for _, role := range reg.Roles() {
		if _, ok := keep[role]; !ok {
			reg.Unregister(role)
		}
	}
	return nil
}
