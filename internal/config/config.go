package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the configuration file name looked up when --config is not
// given.
const DefaultFile = "calmigrate.toml"

// GCalConfig configures the direct Google Calendar API destination.
type GCalConfig struct {
	ServiceAccountFile string `toml:"service_account_file"`
}

// CalDAVConfig configures the CalDAV destination.
type CalDAVConfig struct {
	Endpoint     string `toml:"endpoint"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	CalendarName string `toml:"calendar_name"`
}

// Config holds every setting the pipeline needs. Secrets may be supplied
// through the environment instead of the file.
type Config struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`

	// DestinationDomain is combined with the local part of the source
	// address to derive the destination mailbox.
	DestinationDomain string `toml:"destination_domain"`

	// Destination selects the backend: "gam", "gcal" or "caldav".
	Destination string `toml:"destination"`
	GAMPath     string `toml:"gam_path"`

	// WorkDir is where the intermediate JSON and CSV artifacts are written.
	WorkDir string `toml:"work_dir"`

	GCal   GCalConfig   `toml:"gcal"`
	CalDAV CalDAVConfig `toml:"caldav"`
}

// Load reads the TOML configuration, trying the given path first and then
// $HOME/.config/calmigrate/, then overlays secrets from the environment.
// A missing file is fatal.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		home, _ := os.UserHomeDir()
		fallback := filepath.Join(home, ".config", "calmigrate", filepath.Base(path))
		data, err = os.ReadFile(fallback)
		if err != nil {
			return nil, fmt.Errorf("config file %s not found", path)
		}
	}

	cfg := &Config{Destination: "gam", GAMPath: "gam", WorkDir: "."}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	for _, v := range []struct {
		key string
		dst *string
	}{
		{"TENANT_ID", &c.TenantID},
		{"CLIENT_ID", &c.ClientID},
		{"CLIENT_SECRET", &c.ClientSecret},
		{"DESTINATION_DOMAIN", &c.DestinationDomain},
		{"CALDAV_PASSWORD", &c.CalDAV.Password},
	} {
		if val := os.Getenv(v.key); val != "" {
			*v.dst = val
		}
	}
}

// ValidateExport checks the keys the Exporter needs.
func (c *Config) ValidateExport() error {
	return requireKeys([]keyval{
		{"tenant_id", c.TenantID},
		{"client_id", c.ClientID},
		{"client_secret", c.ClientSecret},
	})
}

// ValidateReplay checks the keys the Replayer and its configured destination
// backend need.
func (c *Config) ValidateReplay() error {
	keys := []keyval{{"destination_domain", c.DestinationDomain}}
	switch c.Destination {
	case "gam":
		keys = append(keys, keyval{"gam_path", c.GAMPath})
	case "gcal":
		keys = append(keys, keyval{"gcal.service_account_file", c.GCal.ServiceAccountFile})
	case "caldav":
		keys = append(keys,
			keyval{"caldav.endpoint", c.CalDAV.Endpoint},
			keyval{"caldav.username", c.CalDAV.Username},
			keyval{"caldav.password", c.CalDAV.Password},
			keyval{"caldav.calendar_name", c.CalDAV.CalendarName},
		)
	default:
		return fmt.Errorf("unknown destination %q (want gam, gcal or caldav)", c.Destination)
	}
	return requireKeys(keys)
}

type keyval struct {
	key string
	val string
}

func requireKeys(keys []keyval) error {
	for _, kv := range keys {
		if kv.val == "" {
			return fmt.Errorf("missing required config key %q", kv.key)
		}
	}
	return nil
}
