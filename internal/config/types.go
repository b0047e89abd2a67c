package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"remindbot/internal/reminder/builder"
	"remindbot/internal/services/dispatch"
	"remindbot/internal/services/janitor"
	"remindbot/internal/storage"
)

// Env overrides, applied after parsing so secrets can stay out of the
// config file.
const (
	EnvToken  = "REMINDBOT_TOKEN"
	EnvDBPath = "REMINDBOT_DB"
)

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Dispatch  DispatchConfig  `json:"dispatch,omitempty"`
	Reminders RemindersConfig `json:"reminders,omitempty"`
	Janitor   JanitorConfig   `json:"janitor,omitempty"`
}

type DiscordConfig struct {
	// Token may be omitted in the file and supplied via REMINDBOT_TOKEN.
	Token string `json:"token,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`   // debug|info|warn|error, default info
	Console bool   `json:"console,omitempty"` // pretty console output instead of JSON
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DispatchConfig tunes the delivery loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type DispatchConfig struct {
	Period    string  `json:"period,omitempty"`
	SendRate  float64 `json:"send_rate,omitempty"`
	SendBurst int     `json:"send_burst,omitempty"`
}

type RemindersConfig struct {
	MinInterval     string `json:"min_interval,omitempty"`
	MaxDuration     string `json:"max_duration,omitempty"`
	DefaultTimezone string `json:"default_timezone,omitempty"`
	WebhookName     string `json:"webhook_name,omitempty"`
}

type JanitorConfig struct {
	Schedule  string `json:"schedule,omitempty"` // cron spec or @every/@hourly
	KeepLogs  string `json:"keep_logs,omitempty"`
	RunOnBoot bool   `json:"run_on_boot,omitempty"`
}

// ApplyEnv layers process environment overrides onto the parsed file.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		c.Discord.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDBPath)); v != "" {
		c.Storage.Path = v
	}
}

// Validate checks everything that must hold before services start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return fmt.Errorf("discord.token missing (set it in the config or via %s)", EnvToken)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path missing (set it in the config or via %s)", EnvDBPath)
	}
	if tz := strings.TrimSpace(c.Reminders.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminders.default_timezone: %w", err)
		}
	}
	if _, err := c.DispatchConfig(); err != nil {
		return err
	}
	if _, err := c.BuilderLimits(); err != nil {
		return err
	}
	if _, err := c.JanitorConfig(); err != nil {
		return err
	}
	_, err := c.StorageConfig()
	return err
}

func (c *Config) StorageConfig() (storage.Config, error) {
	bt, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: c.Storage.Path, BusyTimeout: bt}, nil
}

func (c *Config) DispatchConfig() (dispatch.Config, error) {
	period, err := ParseDurationField("dispatch.period", c.Dispatch.Period)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Period:    period,
		SendRate:  c.Dispatch.SendRate,
		SendBurst: c.Dispatch.SendBurst,
	}, nil
}

func (c *Config) BuilderLimits() (builder.Limits, error) {
	min, err := ParseDurationField("reminders.min_interval", c.Reminders.MinInterval)
	if err != nil {
		return builder.Limits{}, err
	}
	max, err := ParseDurationField("reminders.max_duration", c.Reminders.MaxDuration)
	if err != nil {
		return builder.Limits{}, err
	}
	return builder.Limits{
		MinInterval: min,
		MaxDuration: max,
		WebhookName: strings.TrimSpace(c.Reminders.WebhookName),
	}, nil
}

func (c *Config) JanitorConfig() (janitor.Config, error) {
	keep, err := ParseDurationField("janitor.keep_logs", c.Janitor.KeepLogs)
	if err != nil {
		return janitor.Config{}, err
	}
	return janitor.Config{
		Schedule:  strings.TrimSpace(c.Janitor.Schedule),
		KeepLogs:  keep,
		RunOnBoot: c.Janitor.RunOnBoot,
	}, nil
}

// DefaultTimezone returns the zone new reminders fall back to when the
// author has none stored.
func (c *Config) DefaultTimezone() string {
	if tz := strings.TrimSpace(c.Reminders.DefaultTimezone); tz != "" {
		return tz
	}
	return "UTC"
}
