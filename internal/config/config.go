// Package config loads daemon settings from defaults, an optional YAML file,
// and an optional environment file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/irrigation-controller/internal/flow"
	"github.com/sweeney/irrigation-controller/internal/gpio"
)

// DefaultEnvFile is where pi-helper writes network details.
const DefaultEnvFile = "/run/pi-helper.env"

// Config holds runtime configuration for the controller.
type Config struct {
	Chip string     `yaml:"chip"`
	Pins PinsConfig `yaml:"pins"`
	Flow FlowConfig `yaml:"flow"`

	Poll      time.Duration `yaml:"poll"`
	Settle    time.Duration `yaml:"settle"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	DryRun    time.Duration `yaml:"dry_run"`

	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	HTTPAddr string `yaml:"http"`
}

// PinsConfig holds BCM pin numbers.
type PinsConfig struct {
	Button int `yaml:"button"`
	Flow   int `yaml:"flow"`
	Relay  int `yaml:"relay"`
}

// FlowConfig selects the flow accounting policy.
type FlowConfig struct {
	Policy    string `yaml:"policy"`
	Threshold uint32 `yaml:"threshold"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Chip: "gpiochip0",
		Pins: PinsConfig{
			Button: gpio.DefaultPinButton,
			Flow:   gpio.DefaultPinFlow,
			Relay:  gpio.DefaultPinRelay,
		},
		Flow: FlowConfig{
			Policy:    flow.ExcludeNoise.String(),
			Threshold: flow.DefaultDetectionThreshold,
		},
		Poll:      time.Second,
		Settle:    2 * time.Second,
		Heartbeat: 15 * time.Minute,
		DryRun:    2 * time.Minute,
		Broker:    "tcp://192.168.1.200:1883",
		ClientID:  "irrigation-controller",
		HTTPAddr:  ":80",
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// skips the file. The result is not validated: callers apply their own
// overrides first and then call Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c Config) Validate() error {
	var errs []string
	if c.Poll <= 0 {
		errs = append(errs, "poll must be positive")
	}
	if c.Settle < 0 {
		errs = append(errs, "settle must not be negative")
	}
	if _, ok := flow.ParsePolicy(c.Flow.Policy); !ok {
		errs = append(errs, fmt.Sprintf("unknown flow policy %q", c.Flow.Policy))
	}
	if c.Pins.Button == c.Pins.Flow || c.Pins.Button == c.Pins.Relay || c.Pins.Flow == c.Pins.Relay {
		errs = append(errs, "pins must be distinct")
	}
	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// FlowPolicy returns the parsed flow policy.
func (c Config) FlowPolicy() flow.Policy {
	p, _ := flow.ParsePolicy(c.Flow.Policy)
	return p
}

// Marshal renders c as YAML in the same shape Load reads.
func (c Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

// LoadEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error: pi-helper may not have run yet.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}
