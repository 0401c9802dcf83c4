/*
config.go - Process configuration

PURPOSE:
  Loads configuration once at start-up into a Config value. Nothing reads
  configuration from globals after that.

SOURCES (later wins):
  1. Defaults below
  2. .env file in the working directory, if present (godotenv)
  3. Environment variables with the SCHEDULER_ prefix
  4. Command-line flags bound by cmd/server

KEYS:
  port                      HTTP port (8080)
  db                        SQLite path (scheduler.db; ":memory:" allowed)
  enforce_permissions       Approval process on/off (true)
  default_event_duration    End of events created without one (1h)
  timezone                  IANA zone event days are counted in (UTC)
  reconcile_interval        Over-allocation sweep period (1h, 0 disables)
  mail.provider             console | sendgrid (console)
  mail.sendgrid_key         Required for sendgrid
  mail.from                 Sender address
  mail.app_name             Subject prefix and sender name
  mail.max_tries            Delivery attempts per message (5)
  fixtures                  YAML scenario loaded on an empty database

SEE ALSO:
  - cmd/server/main.go: Flag binding
*/
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/scheduling-engine/generic"
)

const EnvPrefix = "SCHEDULER"

type Config struct {
	Port              int
	DBPath            string
	Settings          generic.Settings
	ReconcileInterval time.Duration
	Mail              Mail
	Fixtures          string
}

type Mail struct {
	Provider    string
	SendGridKey string
	From        string
	AppName     string
	MaxTries    uint
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("port", 8080)
	v.SetDefault("db", "scheduler.db")
	v.SetDefault("enforce_permissions", true)
	v.SetDefault("default_event_duration", time.Hour)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("reconcile_interval", time.Hour)
	v.SetDefault("mail.provider", "console")
	v.SetDefault("mail.sendgrid_key", "")
	v.SetDefault("mail.from", "noreply@localhost")
	v.SetDefault("mail.app_name", "Scheduler")
	v.SetDefault("mail.max_tries", 5)
	v.SetDefault("fixtures", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads path into the environment if it exists. A missing file
// is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	log.Printf("[Config] loaded %s", path)
	return nil
}

// Load reads a Config out of v and validates it.
func Load(v *viper.Viper) (Config, error) {
	loc, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("config: timezone: %w", err)
	}
	c := Config{
		Port:   v.GetInt("port"),
		DBPath: v.GetString("db"),
		Settings: generic.Settings{
			EnforcePermissions:   v.GetBool("enforce_permissions"),
			DefaultEventDuration: v.GetDuration("default_event_duration"),
			Location:             loc,
		},
		ReconcileInterval: v.GetDuration("reconcile_interval"),
		Mail: Mail{
			Provider:    strings.ToLower(v.GetString("mail.provider")),
			SendGridKey: v.GetString("mail.sendgrid_key"),
			From:        v.GetString("mail.from"),
			AppName:     v.GetString("mail.app_name"),
			MaxTries:    v.GetUint("mail.max_tries"),
		},
		Fixtures: v.GetString("fixtures"),
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Port)
	case c.DBPath == "":
		return errors.New("config: db path is required")
	case c.Settings.DefaultEventDuration <= 0:
		return errors.New("config: default_event_duration must be positive")
	case c.ReconcileInterval < 0:
		return errors.New("config: reconcile_interval must not be negative")
	}
	switch c.Mail.Provider {
	case "console":
	case "sendgrid":
		if c.Mail.SendGridKey == "" {
			return errors.New("config: mail.sendgrid_key is required for the sendgrid provider")
		}
	default:
		return fmt.Errorf("config: unknown mail provider %q", c.Mail.Provider)
	}
	return nil
}
