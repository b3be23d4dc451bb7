package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultHeartbeat    = 60 * time.Second
	DefaultTriggerPoll  = time.Second
	DefaultAgentTimeout = 15 * time.Minute
)

// Config is the full daemon configuration.
//
// Durations are Go duration strings ("60s", "5m"). Unknown fields are
// rejected so typos surface at load time instead of silently defaulting.
type Config struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Log       LogConfig       `json:"log" yaml:"log"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	API       APIConfig       `json:"api" yaml:"api"`
}

type LogConfig struct {
	Level   string        `json:"level" yaml:"level"`
	Console bool          `json:"console" yaml:"console"`
	File    LogFileConfig `json:"file" yaml:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type SchedulerConfig struct {
	Heartbeat    string `json:"heartbeat" yaml:"heartbeat"`
	TriggerPoll  string `json:"trigger_poll" yaml:"trigger_poll"`
	AgentTimeout string `json:"agent_timeout" yaml:"agent_timeout"`
}

// AgentConfig selects and configures the agent capability.
// Exactly one of the per-kind blocks is consulted, chosen by Kind.
type AgentConfig struct {
	Kind string `json:"kind" yaml:"kind"` // "exec", "http" or "static"

	Exec   ExecAgentConfig   `json:"exec" yaml:"exec"`
	HTTP   HTTPAgentConfig   `json:"http" yaml:"http"`
	Static StaticAgentConfig `json:"static" yaml:"static"`
}

type ExecAgentConfig struct {
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
}

type HTTPAgentConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Model    string `json:"model" yaml:"model"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

type StaticAgentConfig struct {
	Output string `json:"output" yaml:"output"`
	Fail   bool   `json:"fail" yaml:"fail"`
}

type APIConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Listen     string `json:"listen" yaml:"listen"`
	RatePerSec int    `json:"rate_per_sec" yaml:"rate_per_sec"`
	Burst      int    `json:"burst" yaml:"burst"`
}

// Validate checks cross-field constraints that the decoder cannot.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if _, err := c.HeartbeatDuration(); err != nil {
		return err
	}
	if _, err := c.TriggerPollDuration(); err != nil {
		return err
	}
	if _, err := c.AgentTimeoutDuration(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Agent.Kind)) {
	case "", "exec", "http", "static":
	default:
		return fmt.Errorf("agent.kind: unknown kind %q", c.Agent.Kind)
	}
	if c.API.Enabled && strings.TrimSpace(c.API.Listen) == "" {
		return errors.New("api.listen is required when api.enabled")
	}
	return nil
}

func (c *Config) HeartbeatDuration() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.heartbeat", c.Scheduler.Heartbeat, DefaultHeartbeat)
}

func (c *Config) TriggerPollDuration() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.trigger_poll", c.Scheduler.TriggerPoll, DefaultTriggerPoll)
}

func (c *Config) AgentTimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.agent_timeout", c.Scheduler.AgentTimeout, DefaultAgentTimeout)
}

// Default returns a config usable without a file on disk.
func Default() *Config {
	return &Config{
		DataDir: "./agentq_data",
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Agent: AgentConfig{
			Kind: "exec",
			Exec: ExecAgentConfig{Command: "claude", Args: []string{"--dangerously-skip-permissions", "-p"}},
		},
		API: APIConfig{
			Enabled:    true,
			Listen:     ":13337",
			RatePerSec: 25,
			Burst:      50,
		},
	}
}
