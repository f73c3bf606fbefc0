package domain

import "time"

// AgentKind selects the capability implementation built for an agent.
type AgentKind string

const (
	AgentKindSimulated AgentKind = "simulated"
	AgentKindWebhook   AgentKind = "webhook"
	AgentKindEmail     AgentKind = "email"
)

// Agent is a catalog entry describing who performs the work for a role.
// Config carries kind-specific settings such as "url", "to" or "delay".
type Agent struct {
	ID          string            `json:"id" mapstructure:"id"`
	RoleName    string            `json:"role_name" mapstructure:"role_name"`
	Kind        AgentKind         `json:"kind" mapstructure:"kind"`
	Description string            `json:"description" mapstructure:"description"`
	Active      bool              `json:"active" mapstructure:"active"`
	Config      map[string]string `json:"config,omitempty" mapstructure:"config"`
	CreatedAt   time.Time         `json:"created_at" mapstructure:"-"`
	UpdatedAt   time.Time         `json:"updated_at" mapstructure:"-"`
}
