package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAgentsFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAgentsParsesWebhooks(t *testing.T) {
	path := writeAgentsFile(t, `
agents:
  - id: discord
    kind: webhook
    enabled: true
    triggers: [started, stopped]
    conditions:
      media_types: [movie]
    settings:
      url: https://hooks.example.com/a
  - id: disabled-one
    kind: webhook
    enabled: false
    triggers: [started]
    settings:
      url: https://hooks.example.com/b
`)

	configs, agents, err := LoadAgents(path, nil)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Len(t, agents, 1)
	assert.Equal(t, "discord", configs[0].ID)
	assert.Equal(t, []string{"movie"}, configs[0].Conditions.MediaTypes)
	assert.Equal(t, "webhook", agents[0].Kind())
}

func TestLoadAgentsSkipsInvalidEntries(t *testing.T) {
	path := writeAgentsFile(t, `
agents:
  - id: no-url
    kind: webhook
    enabled: true
    triggers: [started]
  - id: weird
    kind: carrier-pigeon
    enabled: true
    triggers: [started]
  - id: ok
    kind: webhook
    enabled: true
    triggers: [started]
    settings:
      url: https://hooks.example.com/ok
`)

	configs, agents, err := LoadAgents(path, nil)
	require.NoError(t, err, "bad entries are disabled, not fatal")
	require.Len(t, agents, 1)
	assert.Equal(t, "ok", configs[0].ID)
}

func TestLoadAgentsMissingFile(t *testing.T) {
	_, _, err := LoadAgents(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadAgentsMalformedYAML(t *testing.T) {
	path := writeAgentsFile(t, "agents: [\n")
	_, _, err := LoadAgents(path, nil)
	assert.Error(t, err)
}
