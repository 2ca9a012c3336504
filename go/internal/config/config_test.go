package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	if cfg.Server.Port != want.Server.Port || cfg.Room.IdleTTL != want.Room.IdleTTL || cfg.Room.TickInterval != 250*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeFile(t, `
server:
  port: "9090"
room:
  tick_interval: 100ms
  idle_ttl: 30m
  code_length: 8
nats:
  enabled: true
  subject_prefix: stage.rooms
log:
  level: debug
`)
	t.Setenv("ROOM_IDLE_TTL", "1h")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Room.TickInterval != 100*time.Millisecond || cfg.Room.CodeLength != 8 {
		t.Errorf("room = %+v", cfg.Room)
	}
	if cfg.Room.IdleTTL != time.Hour {
		t.Errorf("idle ttl = %s, want env override", cfg.Room.IdleTTL)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Room.HeartbeatTimeout != 45*time.Second {
		t.Errorf("heartbeat timeout = %s", cfg.Room.HeartbeatTimeout)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://nats:4222" || cfg.NATS.SubjectPrefix != "stage.rooms" {
		t.Errorf("nats = %+v", cfg.NATS)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestMalformedEnvIsIgnored(t *testing.T) {
	t.Setenv("ROOM_TICK_INTERVAL", "soon")
	t.Setenv("ROOM_MESSAGE_HISTORY", "many")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Room.TickInterval != 250*time.Millisecond || cfg.Room.MessageHistory != 10 {
		t.Fatalf("room = %+v", cfg.Room)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "room: [unclosed"},
		{"bad port", "server:\n  port: http"},
		{"short code", "room:\n  code_length: 2"},
		{"zero tick", "room:\n  tick_interval: 0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.body)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CUETIMER_CONFIG", "")
	if got := Path(); got != DefaultPath {
		t.Fatalf("path = %q", got)
	}
	t.Setenv("CUETIMER_CONFIG", "/etc/cuetimer.yaml")
	if got := Path(); got != "/etc/cuetimer.yaml" {
		t.Fatalf("path = %q", got)
	}
}
