package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thawbot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
schema: 2
nodename: testhost
local: true
scan_interval: 6h
http_addr: ":9090"
thresholds:
  hard: 240h
  aggressive: 120h
fetch:
  page_delay: 2s
  max_attempts: 7
bot_ids:
  chat.example.com: 999
rooms:
  - server: chat.example.com
    rooms:
      - id: 1
        name: Den
        role: home
      - id: 5
        name: Sandbox
      - id: 6
        name: Workshop
        role: cc
        bot_id: 1234
  - server: chat.other.com
    rooms:
      - id: 42
        name: Lounge
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Nodename != "testhost" || !cfg.Local {
		t.Errorf("basic fields wrong: %+v", cfg)
	}
	if cfg.ScanInterval != 6*time.Hour || cfg.HTTPAddr != ":9090" {
		t.Errorf("daemon fields wrong: %v %s", cfg.ScanInterval, cfg.HTTPAddr)
	}
	if cfg.HardThreshold != 240*time.Hour || cfg.AggressiveThreshold != 120*time.Hour {
		t.Errorf("thresholds wrong: %v %v", cfg.HardThreshold, cfg.AggressiveThreshold)
	}
	if cfg.PageDelay != 2*time.Second || cfg.MaxAttempts != 7 {
		t.Errorf("fetch tuning wrong: %v %d", cfg.PageDelay, cfg.MaxAttempts)
	}
	// Unset knobs fall back to defaults.
	if cfg.SendDelay != 3*time.Second || cfg.QuietMin != 7*24*time.Hour {
		t.Errorf("defaults not applied: %v %v", cfg.SendDelay, cfg.QuietMin)
	}

	if len(cfg.Rooms) != 4 {
		t.Fatalf("got %d rooms, want 4", len(cfg.Rooms))
	}
	home := cfg.HomeRoom()
	if home == nil || home.ID != 1 {
		t.Fatalf("home room wrong: %+v", home)
	}
	cc := cfg.CCRooms()
	if len(cc) != 1 || cc[0].ID != 6 {
		t.Fatalf("cc rooms wrong: %+v", cc)
	}

	// Per-server bot id applies unless the room carries its own.
	byKey := make(map[string]Room)
	for _, r := range cfg.Rooms {
		byKey[r.Key()] = r
	}
	if byKey["chat.example.com:5"].BotID != 999 {
		t.Errorf("server bot id not inherited: %+v", byKey["chat.example.com:5"])
	}
	if byKey["chat.example.com:6"].BotID != 1234 {
		t.Errorf("room bot id not kept: %+v", byKey["chat.example.com:6"])
	}
	if byKey["chat.other.com:42"].BotID != 0 {
		t.Errorf("bot id leaked across servers: %+v", byKey["chat.other.com:42"])
	}
}

func TestLoadLegacyRoomsLayout(t *testing.T) {
	path := writeConfig(t, `
rooms:
  - chat.example.com:
      - id: 1
        name: Den
        role: home
      - id: 5
        name: Sandbox
  - chat.other.com:
      - id: 42
        name: Lounge
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Rooms) != 3 {
		t.Fatalf("got %d rooms, want 3", len(cfg.Rooms))
	}
	if home := cfg.HomeRoom(); home == nil || home.Server != "chat.example.com" {
		t.Fatalf("home room lost in migration: %+v", home)
	}
}

func TestLoadSkipsDuplicateRooms(t *testing.T) {
	path := writeConfig(t, `
rooms:
  - server: chat.example.com
    rooms:
      - id: 5
        name: Sandbox
      - id: 5
        name: Sandbox Again
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Rooms) != 1 || cfg.Rooms[0].Name != "Sandbox" {
		t.Fatalf("duplicate handling wrong: %+v", cfg.Rooms)
	}
}

func TestLoadRejectsTwoHomeRooms(t *testing.T) {
	path := writeConfig(t, `
rooms:
  - server: chat.example.com
    rooms:
      - id: 1
        name: Den
        role: home
      - id: 2
        name: Other Den
        role: home
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for two home rooms")
	}
}

func TestLoadRejectsBadRooms(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no rooms at all", yaml: "nodename: x\n"},
		{name: "missing id", yaml: "rooms:\n  - server: chat.example.com\n    rooms:\n      - name: Sandbox\n"},
		{name: "missing name", yaml: "rooms:\n  - server: chat.example.com\n    rooms:\n      - id: 5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadUnknownRoleBecomesNone(t *testing.T) {
	path := writeConfig(t, `
rooms:
  - server: chat.example.com
    rooms:
      - id: 5
        name: Sandbox
        role: boss
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rooms[0].Role != RoleNone {
		t.Fatalf("got role %q, want none", cfg.Rooms[0].Role)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("THAWBOT_EMAIL", "bot@example.com")
	t.Setenv("THAWBOT_PASSWORD", "hunter2")
	t.Setenv("THAWBOT_LOCAL", "1")
	t.Setenv("DB_DSN", "postgres://env")
	t.Setenv("SCAN_INTERVAL", "90m")

	path := writeConfig(t, `
db_dsn: postgres://file
rooms:
  - server: chat.example.com
    rooms:
      - id: 5
        name: Sandbox
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Email != "bot@example.com" || cfg.Password != "hunter2" {
		t.Errorf("credentials not taken from env")
	}
	if !cfg.Local {
		t.Errorf("THAWBOT_LOCAL not honored")
	}
	if cfg.DBDSN != "postgres://env" {
		t.Errorf("env DSN should beat the file, got %q", cfg.DBDSN)
	}
	if cfg.ScanInterval != 90*time.Minute {
		t.Errorf("SCAN_INTERVAL not honored: %v", cfg.ScanInterval)
	}
}
