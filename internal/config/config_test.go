package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
data_dir: /var/lib/agentq
log:
  level: debug
  console: true
scheduler:
  heartbeat: 30s
  trigger_poll: 500ms
  agent_timeout: 5m
agent:
  kind: static
  static:
    output: ok
api:
  enabled: true
  listen: ":8080"
`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DataDir != "/var/lib/agentq" {
		t.Fatalf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Console {
		t.Fatalf("Log = %+v", cfg.Log)
	}
	if cfg.Agent.Kind != "static" || cfg.Agent.Static.Output != "ok" {
		t.Fatalf("Agent = %+v", cfg.Agent)
	}
	if cfg.API.Listen != ":8080" {
		t.Fatalf("API = %+v", cfg.API)
	}

	hb, err := cfg.HeartbeatDuration()
	if err != nil || hb != 30*time.Second {
		t.Fatalf("heartbeat = %v err=%v", hb, err)
	}
	tp, err := cfg.TriggerPollDuration()
	if err != nil || tp != 500*time.Millisecond {
		t.Fatalf("trigger poll = %v err=%v", tp, err)
	}
	at, err := cfg.AgentTimeoutDuration()
	if err != nil || at != 5*time.Minute {
		t.Fatalf("agent timeout = %v err=%v", at, err)
	}
}

func TestParseKeepsDefaultsForOmittedFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
log:
  level: info
`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	def := Default()
	if cfg.DataDir != def.DataDir {
		t.Fatalf("DataDir = %q, want default %q", cfg.DataDir, def.DataDir)
	}
	if cfg.Agent.Kind != def.Agent.Kind {
		t.Fatalf("Agent.Kind = %q, want default %q", cfg.Agent.Kind, def.Agent.Kind)
	}
	hb, err := cfg.HeartbeatDuration()
	if err != nil || hb != DefaultHeartbeat {
		t.Fatalf("heartbeat = %v err=%v", hb, err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
data_dir: /tmp/x
not_a_real_key: true
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults valid", mutate: func(c *Config) {}, ok: true},
		{name: "empty data dir", mutate: func(c *Config) { c.DataDir = "  " }},
		{name: "bad heartbeat", mutate: func(c *Config) { c.Scheduler.Heartbeat = "soon" }},
		{name: "negative trigger poll", mutate: func(c *Config) { c.Scheduler.TriggerPoll = "-1s" }},
		{name: "unknown agent kind", mutate: func(c *Config) { c.Agent.Kind = "quantum" }},
		{name: "api enabled without listen", mutate: func(c *Config) {
			c.API.Enabled = true
			c.API.Listen = ""
		}},
		{name: "api disabled without listen", mutate: func(c *Config) {
			c.API.Enabled = false
			c.API.Listen = ""
		}, ok: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "90s", time.Minute)
	if err != nil || d != 90*time.Second {
		t.Fatalf("d=%v err=%v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("empty should take the default, got d=%v err=%v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "0s", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("zero should take the default, got d=%v err=%v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "five minutes", time.Minute); err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if _, err := ParseDurationOrDefault("x", "-2s", time.Minute); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestLoadCommitGet(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", "data_dir: /tmp/a\n")
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed snapshot")
	}
}

func TestPublishDropsOldestWhenSlow(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", "data_dir: /tmp/a\n")

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := Default()
	first.DataDir = "/tmp/first"
	second := Default()
	second.DataDir = "/tmp/second"

	m.publish(first)
	m.publish(second)

	// The buffer held one item; the newer config wins.
	select {
	case got := <-ch:
		if got.DataDir != "/tmp/second" {
			t.Fatalf("DataDir = %q, want newest", got.DataDir)
		}
	default:
		t.Fatal("no config published to subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", "data_dir: /tmp/a\n")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(Default())
}
