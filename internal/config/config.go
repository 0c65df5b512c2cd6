package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// NodeConfig identifies one GPU node in the fleet.
type NodeConfig struct {
	Name string `toml:"name" validate:"required"`
	Addr string `toml:"addr" validate:"required"`
}

// MonitorConfig configures the aggregator daemon.
type MonitorConfig struct {
	Port      int    `toml:"port" validate:"required,min=1,max=65535"`
	AgentPort int    `toml:"agent_port" validate:"required,min=1,max=65535"`
	Secret    string `toml:"secret"`
	// SecretHash is a bcrypt hash of the shared secret; when set it takes
	// precedence over Secret. Generate with tools/password_tool.
	SecretHash string `toml:"secret_hash"`

	Nodes []NodeConfig `toml:"nodes" validate:"dive"`

	// Intervals and thresholds in seconds. NodeExpirySec should exceed
	// NodePollSec by a safety margin so a single dropped poll does not
	// flap reachability.
	NodePollSec        int `toml:"node_poll_sec" validate:"min=1"`
	NodeExpirySec      int `toml:"node_expire_sec" validate:"min=1"`
	CalendarRefreshSec int `toml:"calendar_refresh_sec" validate:"min=1"`
	ReconcileSec       int `toml:"reconcile_sec" validate:"min=1"`

	CalendarEnabled bool     `toml:"add_calendar"`
	CalendarIDs     []string `toml:"teamup_ids"`
	WindowDays      int      `toml:"num_days" validate:"min=1,max=31"`

	MaxGPUPerUser int `toml:"max_gpu_per_user" validate:"min=1"`
	MaxDaysPerGPU int `toml:"max_days_per_gpu" validate:"min=1"`

	UserListFile string `toml:"user_list"`
	// RankPatterns orders the node listing: nodes whose hostname contains
	// the first pattern come first (alphabetically), then the second, and
	// so on; unmatched hosts sort last.
	RankPatterns []string `toml:"rank_patterns"`

	// DiscordWebhook, when set, receives an alert whenever a user starts
	// occupying a GPU without a booking.
	DiscordWebhook string `toml:"discord_webhook"`

	EnableNAT bool   `toml:"enable_nat"`
	WebDir    string `toml:"web_dir"`
	LogFile   string `toml:"log_file"`
}

// AgentConfig configures the per-node agent.
type AgentConfig struct {
	Port              int    `toml:"port" validate:"required,min=1,max=65535"`
	Secret            string `toml:"secret"`
	SecretHash        string `toml:"secret_hash"`
	SampleIntervalSec int    `toml:"sample_interval_sec" validate:"min=1"`
	ProcIntervalSec   int    `toml:"proc_interval_sec" validate:"min=1"`
}

// Config is the full TOML configuration file.
type Config struct {
	Monitor MonitorConfig `toml:"monitor"`
	Agent   AgentConfig   `toml:"agent"`
}

// Default returns a configuration mirroring the documented defaults.
func Default() Config {
	return Config{
		Monitor: MonitorConfig{
			Port:               7070,
			AgentPort:          7080,
			NodePollSec:        4,
			NodeExpirySec:      60,
			CalendarRefreshSec: 10,
			ReconcileSec:       5,
			CalendarEnabled:    true,
			WindowDays:         5,
			MaxGPUPerUser:      4,
			MaxDaysPerGPU:      3,
			UserListFile:       "user_list.txt",
			RankPatterns:       []string{"asus", "dgx"},
			WebDir:             "./web",
		},
		Agent: AgentConfig{
			Port:              7080,
			SampleIntervalSec: 4,
			ProcIntervalSec:   10,
		},
	}
}

// Load reads and validates the TOML config at path, applying defaults for
// unset fields.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field consistency.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	m := c.Monitor
	if m.NodeExpirySec <= m.NodePollSec {
		return fmt.Errorf("node_expire_sec (%d) must exceed node_poll_sec (%d)", m.NodeExpirySec, m.NodePollSec)
	}
	if m.CalendarEnabled && len(m.CalendarIDs) == 0 {
		return fmt.Errorf("add_calendar is set but no teamup_ids configured")
	}
	return nil
}

func (m MonitorConfig) NodePoll() time.Duration        { return time.Duration(m.NodePollSec) * time.Second }
func (m MonitorConfig) NodeExpiry() time.Duration      { return time.Duration(m.NodeExpirySec) * time.Second }
func (m MonitorConfig) CalendarRefresh() time.Duration { return time.Duration(m.CalendarRefreshSec) * time.Second }
func (m MonitorConfig) Reconcile() time.Duration       { return time.Duration(m.ReconcileSec) * time.Second }

func (a AgentConfig) SampleInterval() time.Duration { return time.Duration(a.SampleIntervalSec) * time.Second }
func (a AgentConfig) ProcInterval() time.Duration   { return time.Duration(a.ProcIntervalSec) * time.Second }
