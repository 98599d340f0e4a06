package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's full configuration, loaded from an optional YAML
// file and then overlaid with environment variables (env wins).
type Config struct {
	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`
	MQTT struct {
		Host      string `yaml:"host"`
		Port      int    `yaml:"port"`
		Username  string `yaml:"username"`
		Password  string `yaml:"password"`
		QoS       int    `yaml:"qos"`
		TopicRoot string `yaml:"topic_root"`
	} `yaml:"mqtt"`
	Panel struct {
		UniqueID             string `yaml:"unique_id"`
		Name                 string `yaml:"name"`
		MaxZones             int    `yaml:"max_zones"`
		IgnoredZones         string `yaml:"ignored_zones"` // comma-separated indices
		ZoneDiscoverySpacing string `yaml:"zone_discovery_spacing"`
		Code                 string `yaml:"code"`
		User                 int    `yaml:"user"`
	} `yaml:"panel"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Status struct {
		Listen string `yaml:"listen"`
	} `yaml:"status"`
	Automation struct {
		Enabled    bool   `yaml:"enabled"`
		ScriptsDir string `yaml:"scripts_dir"`
	} `yaml:"automation"`
}

// loadConfig reads path if it exists (a missing file at the default path is
// not an error — every field still has a default or an env override), then
// applies defaults and environment overrides.
func loadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 38400
	}
	if cfg.MQTT.Port == 0 {
		cfg.MQTT.Port = 1883
	}
	if cfg.MQTT.QoS == 0 {
		cfg.MQTT.QoS = 1
	}
	if cfg.MQTT.TopicRoot == "" {
		cfg.MQTT.TopicRoot = "homeassistant"
	}
	if cfg.Panel.UniqueID == "" {
		cfg.Panel.UniqueID = "caddx_panel"
	}
	if cfg.Panel.Name == "" {
		cfg.Panel.Name = "Caddx Alarm Panel"
	}
	if cfg.Panel.MaxZones == 0 {
		cfg.Panel.MaxZones = 8
	}
	if cfg.Panel.ZoneDiscoverySpacing == "" {
		cfg.Panel.ZoneDiscoverySpacing = "1s"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "caddx-mqtt-controller.db"
	}
	if cfg.Status.Listen == "" {
		cfg.Status.Listen = "127.0.0.1:8180"
	}
	if cfg.Automation.ScriptsDir == "" {
		cfg.Automation.ScriptsDir = "scripts"
	}
}

func applyEnvOverrides(cfg *Config) {
	str(&cfg.Serial.Port, "SERIAL")
	num(&cfg.Serial.Baud, "BAUD")
	str(&cfg.MQTT.Host, "MQTT_HOST")
	num(&cfg.MQTT.Port, "MQTT_PORT")
	str(&cfg.MQTT.Username, "MQTT_USER")
	str(&cfg.MQTT.Password, "MQTT_PASSWORD")
	num(&cfg.MQTT.QoS, "QOS")
	str(&cfg.MQTT.TopicRoot, "TOPIC_ROOT")
	str(&cfg.Panel.UniqueID, "PANEL_UNIQUE_ID")
	str(&cfg.Panel.Name, "PANEL_NAME")
	num(&cfg.Panel.MaxZones, "MAX_ZONES")
	str(&cfg.Panel.IgnoredZones, "IGNORED_ZONES")
	str(&cfg.Panel.ZoneDiscoverySpacing, "ZONE_DISCOVERY_SPACING")
	str(&cfg.Panel.Code, "CODE")
	num(&cfg.Panel.User, "USER")
	str(&cfg.Log.Level, "LOG_LEVEL")
	str(&cfg.Log.Format, "LOG_FORMAT")
	str(&cfg.Log.File, "LOG_FILE")
	str(&cfg.Store.Path, "STORE_PATH")
	str(&cfg.Status.Listen, "STATUS_LISTEN")
	str(&cfg.Automation.ScriptsDir, "AUTOMATION_SCRIPTS_DIR")
	if v, ok := os.LookupEnv("AUTOMATION_ENABLED"); ok {
		cfg.Automation.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}

func str(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func num(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// validate aggregates every configuration problem into a single error
// rather than failing on the first, so an operator sees the whole list at
// once.
func (c *Config) validate() error {
	var errs []error

	if c.Serial.Port == "" {
		errs = append(errs, errors.New("serial.port (SERIAL) is required"))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud (BAUD) must be > 0, got %d", c.Serial.Baud))
	}
	if c.MQTT.Host == "" {
		errs = append(errs, errors.New("mqtt.host (MQTT_HOST) is required"))
	}
	if c.MQTT.QoS < 1 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos (QOS) must be 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Panel.MaxZones < 1 || c.Panel.MaxZones > 192 {
		errs = append(errs, fmt.Errorf("panel.max_zones (MAX_ZONES) must be 1-192, got %d", c.Panel.MaxZones))
	}
	if (c.Panel.Code == "") == (c.Panel.User == 0) {
		errs = append(errs, errors.New("exactly one of panel.code (CODE) or panel.user (USER) is required"))
	}
	if _, err := time.ParseDuration(c.Panel.ZoneDiscoverySpacing); err != nil {
		errs = append(errs, fmt.Errorf("panel.zone_discovery_spacing (ZONE_DISCOVERY_SPACING) invalid: %w", err))
	}
	if _, err := parseIgnoredZones(c.Panel.IgnoredZones); err != nil {
		errs = append(errs, fmt.Errorf("panel.ignored_zones (IGNORED_ZONES) invalid: %w", err))
	}

	return errors.Join(errs...)
}

func parseIgnoredZones(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	zones := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", p)
		}
		zones = append(zones, n)
	}
	return zones, nil
}
