// Package config loads simulator settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalidConfig reports a missing or malformed setting.
var ErrInvalidConfig = errors.New("invalid configuration")

// AppConfig holds the configuration for the simulator.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (e.g., development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	LogLevel    string `mapstructure:"LOG_LEVEL" default:"info"`
	LogFormat   string `mapstructure:"LOG_FORMAT" default:"text"`
	// LogBackend selects slog or zap.
	LogBackend string `mapstructure:"LOG_BACKEND" default:"slog"`

	// ScenarioPath is the YAML file describing the network.
	ScenarioPath string `mapstructure:"SCENARIO_PATH" required:"true"`

	Simulation SimulationConfig `mapstructure:",squash"`
	Server     ServerConfig     `mapstructure:",squash"`
	Redis      RedisConfig      `mapstructure:",squash"`
	Tracing    TracingConfig    `mapstructure:",squash"`
}

// SimulationConfig controls how far and how fast the simulation runs.
type SimulationConfig struct {
	UntilHours float64 `mapstructure:"SIM_UNTIL_HOURS" default:"168"`
	TickHours  float64 `mapstructure:"SIM_TICK_HOURS" default:"1"`
	// Mode is "accelerated" or "realtime".
	Mode string `mapstructure:"SIM_MODE" default:"accelerated"`
	// Pace is the wall time per tick in realtime mode.
	Pace time.Duration `mapstructure:"SIM_PACE" default:"1s"`
	// RoutingMethod is "bfs" or "dijkstra".
	RoutingMethod       string  `mapstructure:"ROUTING_METHOD" default:"bfs"`
	SnapshotPeriodHours float64 `mapstructure:"SNAPSHOT_PERIOD_HOURS" default:"24"`
	// Hold keeps the control server up after the horizon until interrupted.
	Hold bool `mapstructure:"SIM_HOLD" default:"false"`
}

// ServerConfig holds listen addresses. An empty address disables the server.
type ServerConfig struct {
	MetricsAddr string `mapstructure:"METRICS_ADDR" default:":9090"`
	GRPCAddr    string `mapstructure:"GRPC_ADDR" default:":50051"`
}

// RedisConfig configures snapshot publishing. Publishing is off without a URL.
type RedisConfig struct {
	URL    string `mapstructure:"REDIS_URL"`
	Prefix string `mapstructure:"REDIS_PREFIX" default:"shipsim"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"SIM_TRACING_ENABLED"`
	Exporter    string  `mapstructure:"SIM_TRACING_EXPORTER" default:"stdout"`
	Endpoint    string  `mapstructure:"SIM_OTLP_ENDPOINT"`
	SampleRatio float64 `mapstructure:"SIM_TRACING_SAMPLE_RATIO" default:"1"`
}

// Load loads configuration from the .env file in dir, if any, and the
// environment. Environment variables win over the file; the file wins over
// defaults.
func Load(dir string) (*AppConfig, error) {
	v := viper.New()
	v.AutomaticEnv()

	values, err := godotenv.Read(filepath.Join(dir, ".env"))
	switch {
	case err == nil:
		file := make(map[string]any, len(values))
		for k, val := range values {
			file[k] = val
		}
		if err := v.MergeConfigMap(file); err != nil {
			return nil, fmt.Errorf("error merging .env file: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	var config AppConfig

	processTags(v, &config)

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// processTags binds every tagged field to its environment variable and
// registers its default.
func processTags(v *viper.Viper, config any) {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			processTags(v, val.Field(i).Addr().Interface())
			continue
		}

		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		_ = v.BindEnv(key)
		if def := field.Tag.Get("default"); def != "" {
			v.SetDefault(key, def)
		}
	}
}

// validateRequired checks that fields marked as required have non-zero values.
func validateRequired(config any) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("required") == "true" && val.Field(i).IsZero() {
			return fmt.Errorf("%w: missing %s", ErrInvalidConfig, field.Tag.Get("mapstructure"))
		}
	}
	return nil
}
