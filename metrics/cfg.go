package metrics

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lcx/stdmetric/log"
)

// ConfigName is the configuration file name (emitter.yaml) and env prefix (EMITTER_).
const ConfigName = "emitter"

// CollisionPolicy decides what happens when a tag uses a reserved record key.
type CollisionPolicy string

const (
	// CollisionReservedWins drops the colliding tags and emits the record.
	CollisionReservedWins CollisionPolicy = "reserved_wins"
	// CollisionReject drops the whole record and reports it on the log channel.
	CollisionReject CollisionPolicy = "reject"
)

var (
	ErrInvalidPolicy = errors.New("invalid collision policy")
	ErrInvalidOutput = errors.New("invalid output")
)

func (p CollisionPolicy) valid() bool {
	return p == "" || p == CollisionReservedWins || p == CollisionReject
}

// EmitterCfg configures an Emitter.
type EmitterCfg struct {
	// Output selects the destination stream: "stdout" (default) or "stderr".
	// Ignored when Writer is set.
	Output string `mapstructure:"output"`

	// LogLevel is the minimum level of the log channel. The metric channel
	// always emits. Supports hot-reload.
	LogLevel string `mapstructure:"logLevel"`

	// CollisionPolicy handles tags named like reserved keys. Supports hot-reload.
	CollisionPolicy CollisionPolicy `mapstructure:"collisionPolicy"`

	// StatsEnabled registers the emitter's own counters on the prometheus
	// default registerer. Setting Registerer enables stats on that registry instead.
	StatsEnabled bool `mapstructure:"statsEnabled"`

	Writer     io.Writer             `mapstructure:"-"`
	Registry   *log.Registry         `mapstructure:"-"`
	Registerer prometheus.Registerer `mapstructure:"-"`
}

func getDefaultCfg() *EmitterCfg {
	return &EmitterCfg{
		Output:          "stdout",
		LogLevel:        "debug",
		CollisionPolicy: CollisionReservedWins,
	}
}

// GetName implements config.Config.
func (cfg *EmitterCfg) GetName() string {
	return ConfigName
}

// Validate implements config.Config.
func (cfg *EmitterCfg) Validate() error {
	if cfg.Writer == nil {
		switch cfg.Output {
		case "", "stdout", "stderr":
		default:
			return fmt.Errorf("%w: %q", ErrInvalidOutput, cfg.Output)
		}
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if !cfg.CollisionPolicy.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, cfg.CollisionPolicy)
	}
	return nil
}

func (cfg *EmitterCfg) writer() io.Writer {
	if cfg.Writer != nil {
		return cfg.Writer
	}
	if cfg.Output == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

func (cfg *EmitterCfg) registry() *log.Registry {
	if cfg.Registry != nil {
		return cfg.Registry
	}
	return log.DefaultRegistry()
}

func (cfg *EmitterCfg) policy() CollisionPolicy {
	if cfg.CollisionPolicy == "" || !cfg.CollisionPolicy.valid() {
		return CollisionReservedWins
	}
	return cfg.CollisionPolicy
}

func (cfg *EmitterCfg) registerer() prometheus.Registerer {
	if cfg.Registerer != nil {
		return cfg.Registerer
	}
	if cfg.StatsEnabled {
		return prometheus.DefaultRegisterer
	}
	return nil
}
