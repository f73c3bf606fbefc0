package capability_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/domain"
)

func TestFactory_Build(t *testing.T) {
	f := &capability.Factory{}

	tests := []struct {
		name    string
		agent   domain.Agent
		want    any
		wantErr bool
	}{
		{"simulated default", domain.Agent{ID: "1", RoleName: "backend", Kind: domain.AgentKindSimulated}, &capability.Simulated{}, false},
		{"empty kind is simulated", domain.Agent{ID: "2", RoleName: "x"}, &capability.Simulated{}, false},
		{"bad delay", domain.Agent{ID: "3", RoleName: "x", Config: map[string]string{"delay": "soon"}}, nil, true},
		{"bad fail_first", domain.Agent{ID: "4", RoleName: "x", Config: map[string]string{"fail_first": "-1"}}, nil, true},
		{"webhook", domain.Agent{ID: "5", RoleName: "deploy", Kind: domain.AgentKindWebhook, Config: map[string]string{"url": "http://hook"}}, &capability.Webhook{}, false},
		{"webhook without url", domain.Agent{ID: "6", RoleName: "deploy", Kind: domain.AgentKindWebhook}, nil, true},
		{"email", domain.Agent{ID: "7", RoleName: "review", Kind: domain.AgentKindEmail, Config: map[string]string{"to": "a@x, b@x"}}, &capability.Email{}, false},
		{"email without to", domain.Agent{ID: "8", RoleName: "review", Kind: domain.AgentKindEmail, Config: map[string]string{"to": " , "}}, nil, true},
		{"unknown kind", domain.Agent{ID: "9", RoleName: "x", Kind: "robot"}, nil, true},
		{"empty role", domain.Agent{ID: "10"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := f.Build(tt.agent)
			if tt.wantErr {
				require.Error(t, err)
				var cfgErr *capability.ConfigError
				assert.True(t, errors.As(err, &cfgErr))
				assert.Equal(t, tt.agent.ID, cfgErr.AgentID)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
			assert.Equal(t, tt.agent.RoleName, c.RoleName())
		})
	}
}

func TestFactory_RegistrySkipsInactive(t *testing.T) {
	f := &capability.Factory{}
	reg, err := f.Registry([]domain.Agent{
		{ID: "1", RoleName: "backend", Active: true},
		{ID: "2", RoleName: "frontend", Active: false},
		{ID: "3", RoleName: "backend", Active: true, Config: map[string]string{"delay": "1ms"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"backend"}, reg.Roles())
}

func TestFactory_RegistryFailsOnBadAgent(t *testing.T) {
	f := &capability.Factory{}
	_, err := f.Registry([]domain.Agent{{ID: "1", RoleName: "deploy", Kind: domain.AgentKindWebhook, Active: true}})
	require.Error(t, err)
}

func TestFactory_Sync(t *testing.T) {
	f := &capability.Factory{}
	reg := capability.NewRegistry(capability.NewSimulated("legacy", 0, 0), capability.NewSimulated("backend", 0, 0))

	require.NoError(t, f.Sync(reg, []domain.Agent{
		{ID: "1", RoleName: "backend", Active: true},
		{ID: "2", RoleName: "frontend", Active: true},
	}))
	assert.Equal(t, []string{"backend", "frontend"}, reg.Roles())

	err := f.Sync(reg, []domain.Agent{{ID: "3", RoleName: "deploy", Kind: domain.AgentKindWebhook, Active: true}})
	require.Error(t, err)
	assert.Equal(t, []string{"backend", "frontend"}, reg.Roles(), "failed sync leaves the registry alone")
}
