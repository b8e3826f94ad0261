// Package config loads the bot's YAML configuration and applies environment
// overrides. Credentials belong in the environment; the file describes the
// rooms to watch and the tuning knobs.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Nodename string
	Local    bool

	// ScanInterval > 0 runs the bot as a daemon re-scanning on a ticker;
	// zero means a single scan (the nightly-job mode).
	ScanInterval time.Duration

	HTTPAddr string
	DBDSN    string

	Email    string
	Password string

	// Staleness policy.
	HardThreshold       time.Duration
	AggressiveThreshold time.Duration
	QuietMin            time.Duration
	QuietMax            time.Duration

	// Fetch pacing.
	PageDelay   time.Duration
	SearchDelay time.Duration
	SendDelay   time.Duration
	MaxAttempts int

	Rooms []Room
}

// HomeRoom returns the room tagged with the home role, or nil.
func (c *Config) HomeRoom() *Room {
	for i := range c.Rooms {
		if c.Rooms[i].Role == RoleHome {
			return &c.Rooms[i]
		}
	}
	return nil
}

// CCRooms returns the rooms that receive copies of notable status lines.
func (c *Config) CCRooms() []Room {
	var cc []Room
	for _, r := range c.Rooms {
		if r.Role == RoleCC {
			cc = append(cc, r)
		}
	}
	return cc
}

type fileRoom struct {
	ID    int    `koanf:"id"`
	Name  string `koanf:"name"`
	Role  string `koanf:"role"`
	BotID int    `koanf:"bot_id"`
}

type serverBlock struct {
	Server string     `koanf:"server"`
	Rooms  []fileRoom `koanf:"rooms"`
}

type fileConfig struct {
	Schema       int            `koanf:"schema"`
	Nodename     string         `koanf:"nodename"`
	Local        bool           `koanf:"local"`
	ScanInterval time.Duration  `koanf:"scan_interval"`
	HTTPAddr     string         `koanf:"http_addr"`
	DBDSN        string         `koanf:"db_dsn"`
	BotIDs       map[string]int `koanf:"bot_ids"`
	Thresholds   struct {
		Hard       time.Duration `koanf:"hard"`
		Aggressive time.Duration `koanf:"aggressive"`
		QuietMin   time.Duration `koanf:"quiet_min"`
		QuietMax   time.Duration `koanf:"quiet_max"`
	} `koanf:"thresholds"`
	Fetch struct {
		PageDelay   time.Duration `koanf:"page_delay"`
		SearchDelay time.Duration `koanf:"search_delay"`
		SendDelay   time.Duration `koanf:"send_delay"`
		MaxAttempts int           `koanf:"max_attempts"`
	} `koanf:"fetch"`
	Auth struct {
		Email    string `koanf:"email"`
		Password string `koanf:"password"`
	} `koanf:"auth"`
}

// Load reads the YAML file at path and resolves it against environment
// overrides (THAWBOT_EMAIL, THAWBOT_PASSWORD, THAWBOT_LOCAL, DB_DSN,
// HTTP_ADDR, SCAN_INTERVAL).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := k.Unmarshal("", &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := &Config{
		Nodename:            fc.Nodename,
		Local:               fc.Local,
		ScanInterval:        fc.ScanInterval,
		HTTPAddr:            fc.HTTPAddr,
		DBDSN:               fc.DBDSN,
		Email:               fc.Auth.Email,
		Password:            fc.Auth.Password,
		HardThreshold:       fc.Thresholds.Hard,
		AggressiveThreshold: fc.Thresholds.Aggressive,
		QuietMin:            fc.Thresholds.QuietMin,
		QuietMax:            fc.Thresholds.QuietMax,
		PageDelay:           fc.Fetch.PageDelay,
		SearchDelay:         fc.Fetch.SearchDelay,
		SendDelay:           fc.Fetch.SendDelay,
		MaxAttempts:         fc.Fetch.MaxAttempts,
	}
	applyDefaults(cfg)

	if cfg.Email != "" || cfg.Password != "" {
		// Gripe a bit; credentials should come from the environment.
		slog.Warn("chat credentials read from config file", slog.String("path", path))
	}

	blocks, err := roomBlocks(k)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	rooms, err := resolveRooms(blocks, fc.BotIDs, path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Rooms = rooms

	applyEnv(cfg)

	if cfg.Nodename == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Nodename = host
		}
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.HardThreshold <= 0 {
		// The platform freezes after 14 idle days; thaw a little before
		// that to stay on the safe side.
		cfg.HardThreshold = 12 * 24 * time.Hour
	}
	if cfg.AggressiveThreshold <= 0 {
		cfg.AggressiveThreshold = 6 * 24 * time.Hour
	}
	if cfg.QuietMin <= 0 {
		cfg.QuietMin = 7 * 24 * time.Hour
	}
	if cfg.QuietMax <= 0 {
		cfg.QuietMax = 15 * 24 * time.Hour
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = time.Second
	}
	if cfg.SearchDelay <= 0 {
		cfg.SearchDelay = time.Second
	}
	if cfg.SendDelay <= 0 {
		cfg.SendDelay = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("THAWBOT_EMAIL"); v != "" {
		cfg.Email = v
	}
	if v := os.Getenv("THAWBOT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if os.Getenv("THAWBOT_LOCAL") == "1" {
		cfg.Local = true
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ScanInterval = d
		} else {
			slog.Warn("ignoring invalid SCAN_INTERVAL", slog.String("value", v))
		}
	}
}

// roomBlocks reads the rooms section, accepting both the current layout
// (list of {server, rooms} blocks) and the legacy one (a list of
// single-entry mappings keyed by hostname), which is migrated by a pure
// transform.
func roomBlocks(k *koanf.Koanf) ([]serverBlock, error) {
	if !k.Exists("rooms") {
		return nil, fmt.Errorf("no rooms defined")
	}

	var blocks []serverBlock
	if err := k.Unmarshal("rooms", &blocks); err == nil && !legacyShaped(blocks) {
		return blocks, nil
	}

	var legacy []map[string][]fileRoom
	if err := k.Unmarshal("rooms", &legacy); err != nil {
		return nil, fmt.Errorf("unrecognized rooms layout: %w", err)
	}
	slog.Info("migrating legacy rooms layout", slog.Int("servers", len(legacy)))
	return migrateLegacyRooms(legacy), nil
}

func legacyShaped(blocks []serverBlock) bool {
	if len(blocks) == 0 {
		return true
	}
	for _, b := range blocks {
		if b.Server == "" {
			return true
		}
	}
	return false
}

// migrateLegacyRooms converts the old schema, where each list element was a
// mapping of one server hostname to its rooms, into server blocks.
func migrateLegacyRooms(legacy []map[string][]fileRoom) []serverBlock {
	blocks := make([]serverBlock, 0, len(legacy))
	for _, entry := range legacy {
		for server, rooms := range entry {
			blocks = append(blocks, serverBlock{Server: server, Rooms: rooms})
		}
	}
	return blocks
}

func resolveRooms(blocks []serverBlock, botIDs map[string]int, path string) ([]Room, error) {
	var rooms []Room
	seenServers := make(map[string]bool)
	seenRooms := make(map[string]bool)
	homes := 0

	for _, block := range blocks {
		if block.Server == "" {
			return nil, fmt.Errorf("server block without a hostname")
		}
		if seenServers[block.Server] {
			slog.Warn("duplicate server in config", slog.String("server", block.Server), slog.String("path", path))
		}
		seenServers[block.Server] = true

		for _, fr := range block.Rooms {
			if fr.ID <= 0 {
				return nil, fmt.Errorf("room on %s without a positive id", block.Server)
			}
			if fr.Name == "" {
				return nil, fmt.Errorf("room %s:%d without a name", block.Server, fr.ID)
			}
			room := Room{Server: block.Server, ID: fr.ID, Name: fr.Name, BotID: fr.BotID}
			if room.BotID == 0 {
				room.BotID = botIDs[block.Server]
			}
			if seenRooms[room.Key()] {
				slog.Warn("skipping duplicate room",
					slog.String("room", room.Key()), slog.String("name", room.Name), slog.String("path", path))
				continue
			}
			seenRooms[room.Key()] = true

			switch Role(fr.Role) {
			case RoleNone, RoleHome, RoleCC:
				room.Role = Role(fr.Role)
			default:
				slog.Warn("unknown room role, treating as none",
					slog.String("room", room.Key()), slog.String("role", fr.Role))
			}
			if room.Role == RoleHome {
				homes++
				if homes > 1 {
					return nil, fmt.Errorf("more than one home room")
				}
			}
			rooms = append(rooms, room)
		}
	}

	if len(rooms) == 0 {
		return nil, fmt.Errorf("no rooms defined")
	}
	if homes == 0 {
		slog.Warn("no home room configured; status lines go to the log only")
	}
	return rooms, nil
}
