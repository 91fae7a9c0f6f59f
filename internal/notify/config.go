package notify

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// AgentConfig is one agent entry from the agents YAML file.
type AgentConfig struct {
	ID         string            `yaml:"id"`
	Kind       string            `yaml:"kind"`
	Enabled    bool              `yaml:"enabled"`
	Triggers   []string          `yaml:"triggers"`
	Conditions Conditions        `yaml:"conditions"`
	Settings   map[string]string `yaml:"settings"`
}

// Conditions are allow-list predicates over the event's session snapshot.
// An empty list passes everything.
type Conditions struct {
	Users      []string `yaml:"users"`
	Libraries  []string `yaml:"libraries"`
	MediaTypes []string `yaml:"media_types"`
}

type agentsFile struct {
	Agents []AgentConfig `yaml:"agents"`
}

func (c AgentConfig) validate() error {
	if c.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	if c.Kind == "" {
		return fmt.Errorf("agent kind is required")
	}
	if len(c.Triggers) == 0 {
		return fmt.Errorf("agent %s has no triggers", c.ID)
	}
	return nil
}

// LoadAgents parses the agents YAML file and builds the configured sinks.
// A malformed or unknown agent is logged and disabled; the rest of the file
// still loads.
func LoadAgents(path string, logger *zap.Logger) ([]AgentConfig, []Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read agents config: %w", err)
	}
	var file agentsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parse agents config: %w", err)
	}

	var configs []AgentConfig
	var agents []Agent
	for _, c := range file.Agents {
		if !c.Enabled {
			continue
		}
		if err := c.validate(); err != nil {
			logger.Error("agent disabled, invalid config", zap.Error(err), zap.String("agent_id", c.ID))
			continue
		}
		agent, err := buildAgent(c)
		if err != nil {
			logger.Error("agent disabled", zap.Error(err), zap.String("agent_id", c.ID))
			continue
		}
		configs = append(configs, c)
		agents = append(agents, agent)
	}
	logger.Info("agents loaded", zap.Int("enabled", len(agents)), zap.Int("declared", len(file.Agents)))
	return configs, agents, nil
}

func buildAgent(c AgentConfig) (Agent, error) {
	switch c.Kind {
	case "webhook":
		url := c.Settings["url"]
		if url == "" {
			return nil, fmt.Errorf("webhook agent %s missing settings.url", c.ID)
		}
		return NewWebhookAgent(c.ID, url), nil
	default:
		return nil, fmt.Errorf("unknown agent kind %q", c.Kind)
	}
}
