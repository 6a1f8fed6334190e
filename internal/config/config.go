// Package config loads service configuration from an optional YAML file,
// a .env file and RISKSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atlas-desktop/risk-sim/pkg/types"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. RISKSIM_SERVER_PORT.
const EnvPrefix = "RISKSIM"

// Config is the complete service configuration.
type Config struct {
	Server     types.ServerConfig
	Simulation types.SimulationConfig
	Log        LogConfig
}

// LogConfig controls logger level and encoding.
type LogConfig struct {
	Level    string // debug | info | warn | error
	Encoding string // console | json
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")

	v.SetDefault("simulation.batch_size", 20000)
	v.SetDefault("simulation.max_workers", 0)
	v.SetDefault("simulation.reservoir_capacity", 20000)
	v.SetDefault("simulation.chart_samples", 1000)
	v.SetDefault("simulation.max_simulations", 50_000_000)

	v.SetDefault("api.rate_limit", 2.0)
	v.SetDefault("api.rate_burst", 5)
	v.SetDefault("api.run_retention", time.Hour)
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
	}

	cfg := &Config{
		Server: types.ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			WebSocketPath:  v.GetString("server.websocket_path"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			RateLimit:      v.GetFloat64("api.rate_limit"),
			RateBurst:      v.GetInt("api.rate_burst"),
			RunRetention:   v.GetDuration("api.run_retention"),
			MaxSimulations: v.GetInt("simulation.max_simulations"),
		},
		Simulation: types.SimulationConfig{
			BatchSize:         v.GetInt("simulation.batch_size"),
			MaxWorkers:        v.GetInt("simulation.max_workers"),
			ReservoirCapacity: v.GetInt("simulation.reservoir_capacity"),
			ChartSamples:      v.GetInt("simulation.chart_samples"),
		},
		Log: LogConfig{
			Level:    v.GetString("log.level"),
			Encoding: v.GetString("log.encoding"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects sizes the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Simulation.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("simulation.batch_size must be > 0, got %d", c.Simulation.BatchSize))
	}
	if c.Simulation.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("simulation.max_workers must be >= 0, got %d", c.Simulation.MaxWorkers))
	}
	if c.Simulation.ReservoirCapacity <= 0 {
		errs = append(errs, fmt.Errorf("simulation.reservoir_capacity must be > 0, got %d", c.Simulation.ReservoirCapacity))
	}
	if c.Simulation.ChartSamples <= 0 {
		errs = append(errs, fmt.Errorf("simulation.chart_samples must be > 0, got %d", c.Simulation.ChartSamples))
	}
	if c.Server.MaxSimulations <= 0 {
		errs = append(errs, fmt.Errorf("simulation.max_simulations must be > 0, got %d", c.Server.MaxSimulations))
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		errs = append(errs, errors.New("api.rate_limit and api.rate_burst must be > 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
