// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads command configuration from defaults, a TOML
// configuration file, PPGREC_ environment variables and command line
// flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kortschak/ppgrec/internal/errors"
	"github.com/kortschak/ppgrec/internal/logger"
	"github.com/kortschak/ppgrec/record"
)

// EnvPrefix is the prefix for environment variable configuration.
const EnvPrefix = "PPGREC"

// Sources.
const (
	SourceBLE   = "ble"   // standard heart rate service
	SourcePMD   = "pmd"   // Polar measurement data and heart rate service
	SourceSynth = "synth" // synthetic readings
)

// Transports.
const (
	TransportNone  = "none"
	TransportBLE   = "ble"
	TransportMQTT  = "mqtt"
	TransportRedis = "redis"
)

// Config is the recorder and receiver configuration.
type Config struct {
	Mode      string `mapstructure:"mode"`
	BaseDir   string `mapstructure:"base_dir"`
	Addr      string `mapstructure:"addr"`
	Source    string `mapstructure:"source"`
	Transport string `mapstructure:"transport"`

	MQTT  MQTT  `mapstructure:"mqtt"`
	Redis Redis `mapstructure:"redis"`
	BLE   BLE   `mapstructure:"ble"`

	RelayDepth int           `mapstructure:"relay_depth"`
	HistoryDB  string        `mapstructure:"history_db"`
	BatteryLow int           `mapstructure:"battery_low"`
	LogLevel   string        `mapstructure:"log_level"`
	Headless   bool          `mapstructure:"headless"`
	Duration   time.Duration `mapstructure:"duration"`
}

// MQTT is the MQTT transport configuration.
type MQTT struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Redis is the Redis stream transport configuration.
type Redis struct {
	Addr   string `mapstructure:"addr"`
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len"`
}

// BLE is the Bluetooth peripheral transport configuration.
type BLE struct {
	Name string `mapstructure:"name"`
}

// Load returns the configuration for the named command from args,
// the environment and the configuration file. The file is given by
// the --config flag or PPGREC_CONFIG, or is ppgrec.toml in the user's
// configuration directory if present.
func Load(name string, args []string) (*Config, error) {
	errFactory := errors.NewFactory()

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cfgFile := flags.String("config", "", "configuration file (toml)")
	flags.String("mode", record.PPGSignal.Label(), "capture mode (ppg, hr or rr)")
	flags.String("base_dir", defaultBaseDir(), "log directory")
	flags.String("addr", "", "sensor bluetooth address")
	flags.String("source", SourcePMD, "sensor source (ble, pmd or synth)")
	flags.String("transport", TransportNone, "wireless transport (none, ble, mqtt or redis)")
	flags.String("mqtt.broker", "tcp://localhost:1883", "mqtt broker url")
	flags.String("mqtt.topic", "ppgrec/records", "mqtt topic")
	flags.String("mqtt.client_id", name, "mqtt client id")
	flags.String("mqtt.username", "", "mqtt user name")
	flags.String("mqtt.password", "", "mqtt password")
	flags.String("redis.addr", "localhost:6379", "redis server address")
	flags.String("redis.stream", "ppgrec:records", "redis stream key")
	flags.Int64("redis.max_len", 0, "redis stream length limit (0 for unlimited)")
	flags.String("ble.name", "ppgrec", "advertised bluetooth name")
	flags.Int("relay_depth", 256, "wireless relay queue depth")
	flags.String("history_db", "", "session history database (empty to disable)")
	flags.Int("battery_low", 15, "low battery warning level in percent")
	flags.String("log_level", logger.LevelInfo, "log level (debug, info, warn or error)")
	flags.Bool("headless", false, "run without the user interface")
	flags.Duration("duration", 0, "headless recording duration (0 until interrupted)")
	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := *cfgFile
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ppgrec")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "ppgrec"))
		}
		v.AddConfigPath("/etc/ppgrec")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name != "config" {
			v.BindPFlag(f.Name, f)
		}
	})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultBaseDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "ppgrec"
	}
	return filepath.Join(dir, "ppgrec")
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.NewFactory().WithData(errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if _, err := record.ParseMode(c.Mode); err != nil {
		return invalid("mode %q", c.Mode)
	}
	if c.BaseDir == "" {
		return invalid("empty base_dir")
	}
	switch c.Source {
	case SourceBLE, SourcePMD:
		if c.Addr == "" {
			return invalid("source %s requires addr", c.Source)
		}
	case SourceSynth:
	default:
		return invalid("source %q", c.Source)
	}
	switch c.Transport {
	case TransportNone:
	case TransportBLE:
		if c.BLE.Name == "" {
			return invalid("empty ble.name")
		}
	case TransportMQTT:
		if c.MQTT.Broker == "" || c.MQTT.Topic == "" {
			return invalid("mqtt transport requires mqtt.broker and mqtt.topic")
		}
	case TransportRedis:
		if c.Redis.Addr == "" || c.Redis.Stream == "" {
			return invalid("redis transport requires redis.addr and redis.stream")
		}
	default:
		return invalid("transport %q", c.Transport)
	}
	if c.RelayDepth <= 0 {
		return invalid("relay_depth %d", c.RelayDepth)
	}
	if c.BatteryLow < 0 || c.BatteryLow > 100 {
		return invalid("battery_low %d", c.BatteryLow)
	}
	if c.Duration < 0 {
		return invalid("duration %v", c.Duration)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// CaptureMode returns the configured capture mode.
func (c *Config) CaptureMode() record.Mode {
	m, _ := record.ParseMode(c.Mode)
	return m
}
