// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package simulation

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pion/linksim/link"
	"gopkg.in/yaml.v3"
)

const (
	defaultPacketSizeBytes    = 1526
	defaultClients            = 4
	defaultPriorityClients    = 1
	defaultPacketsPerClient   = 10000
	defaultMinSendInterval    = 10 * time.Microsecond
	defaultMaxSendInterval    = 1000 * time.Microsecond
	defaultRunTime            = 10 * time.Second
	defaultLinkSpeedMbps      = 1000
	defaultQueueSize          = 1000000
	defaultDelayThreshold     = time.Millisecond
	defaultOutputDir          = "output"
	defaultChunkSize          = 100000
	defaultStreamingThreshold = 1000000
	defaultProgressPercent    = 10

	// maxSeed keeps the six consecutive seeds of a stream below the modulus
	// of the second generator component.
	maxSeed = 4294944443 - 6
)

// ErrInvalidConfig is returned for configurations that cannot be simulated.
var ErrInvalidConfig = errors.New("simulation: invalid config")

// Config describes a single simulation run.
type Config struct {
	PacketSizeBytes  int `yaml:"packet_size_bytes"`
	Clients          int `yaml:"clients"`
	PriorityClients  int `yaml:"priority_clients"`
	PacketsPerClient int `yaml:"packets_per_client"`

	// Each client waits a random interval in [MinSendInterval,
	// MaxSendInterval] between two packets, drawn in whole microseconds.
	MinSendInterval time.Duration `yaml:"min_send_interval"`
	MaxSendInterval time.Duration `yaml:"max_send_interval"`

	RunTime       time.Duration `yaml:"run_time"`
	LinkSpeedMbps int           `yaml:"link_speed_mbps"`

	// ServiceInterval overrides the interval derived from the packet size
	// and link speed when positive.
	ServiceInterval time.Duration `yaml:"service_interval"`
	QueueSize       int           `yaml:"queue_size"`

	DelayThreshold time.Duration `yaml:"delay_threshold"`

	// Seed sets the master seed of the random streams. Zero keeps the
	// package default.
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns the configuration of a default run.
func DefaultConfig() Config {
	return Config{
		PacketSizeBytes:  defaultPacketSizeBytes,
		Clients:          defaultClients,
		PriorityClients:  defaultPriorityClients,
		PacketsPerClient: defaultPacketsPerClient,
		MinSendInterval:  defaultMinSendInterval,
		MaxSendInterval:  defaultMaxSendInterval,
		RunTime:          defaultRunTime,
		LinkSpeedMbps:    defaultLinkSpeedMbps,
		QueueSize:        defaultQueueSize,
		DelayThreshold:   defaultDelayThreshold,
	}
}

// UnmarshalYAML decodes a run on top of the defaults, so omitted keys keep
// their default value.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	cfg := plain(DefaultConfig())
	if err := value.Decode(&cfg); err != nil {
		return err
	}
	*c = Config(cfg)

	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.PacketSizeBytes <= 0:
		return fmt.Errorf("%w: packet size %d", ErrInvalidConfig, c.PacketSizeBytes)
	case c.Clients <= 0:
		return fmt.Errorf("%w: %d clients", ErrInvalidConfig, c.Clients)
	case c.PriorityClients < 0 || c.PriorityClients > c.Clients:
		return fmt.Errorf("%w: %d priority clients out of %d", ErrInvalidConfig, c.PriorityClients, c.Clients)
	case c.PacketsPerClient < 0:
		return fmt.Errorf("%w: %d packets per client", ErrInvalidConfig, c.PacketsPerClient)
	case c.MinSendInterval < 0 || c.MaxSendInterval < c.MinSendInterval:
		return fmt.Errorf("%w: send interval [%v, %v]", ErrInvalidConfig, c.MinSendInterval, c.MaxSendInterval)
	case c.RunTime <= 0:
		return fmt.Errorf("%w: run time %v", ErrInvalidConfig, c.RunTime)
	case c.ServiceInterval < 0:
		return fmt.Errorf("%w: service interval %v", ErrInvalidConfig, c.ServiceInterval)
	case c.ServiceInterval == 0 && c.LinkSpeedMbps <= 0:
		return fmt.Errorf("%w: link speed %d Mbps", ErrInvalidConfig, c.LinkSpeedMbps)
	case c.QueueSize < 0:
		return fmt.Errorf("%w: queue size %d", ErrInvalidConfig, c.QueueSize)
	case c.DelayThreshold < 0:
		return fmt.Errorf("%w: delay threshold %v", ErrInvalidConfig, c.DelayThreshold)
	case c.Seed > maxSeed:
		return fmt.Errorf("%w: seed %d exceeds %d", ErrInvalidConfig, c.Seed, maxSeed)
	}

	return nil
}

// LinkServiceInterval returns the time the link needs per packet.
func (c Config) LinkServiceInterval() (time.Duration, error) {
	if c.ServiceInterval > 0 {
		return c.ServiceInterval, nil
	}

	return link.ServiceInterval(c.PacketSizeBytes*8, c.LinkSpeedMbps)
}

// Environment is a set of runs executed one after another.
type Environment struct {
	// OutputDir receives one trace file per run, output_<i>.txt.
	OutputDir          string   `yaml:"output_dir"`
	ChunkSize          int      `yaml:"chunk_size"`
	StreamingThreshold int      `yaml:"streaming_threshold"`
	ProgressPercent    int      `yaml:"progress_percent"`
	Runs               []Config `yaml:"runs"`
}

// DefaultEnvironment returns an environment with a single default run.
func DefaultEnvironment() Environment {
	return Environment{
		OutputDir:          defaultOutputDir,
		ChunkSize:          defaultChunkSize,
		StreamingThreshold: defaultStreamingThreshold,
		ProgressPercent:    defaultProgressPercent,
		Runs:               []Config{DefaultConfig()},
	}
}

// UnmarshalYAML decodes an environment on top of the defaults. An
// environment without runs gets a single default run.
func (e *Environment) UnmarshalYAML(value *yaml.Node) error {
	type plain Environment
	env := plain(DefaultEnvironment())
	env.Runs = nil
	if err := value.Decode(&env); err != nil {
		return err
	}
	if len(env.Runs) == 0 {
		env.Runs = []Config{DefaultConfig()}
	}
	*e = Environment(env)

	return nil
}

// Validate checks the environment and every run.
func (e Environment) Validate() error {
	switch {
	case e.OutputDir == "":
		return fmt.Errorf("%w: empty output directory", ErrInvalidConfig)
	case e.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, e.ChunkSize)
	case e.ProgressPercent < 0 || e.ProgressPercent > 100:
		return fmt.Errorf("%w: progress interval %d%%", ErrInvalidConfig, e.ProgressPercent)
	}
	for i, run := range e.Runs {
		if err := run.Validate(); err != nil {
			return fmt.Errorf("run %d: %w", i, err)
		}
	}

	return nil
}

// LoadEnvironment reads an environment from the YAML file at path.
func LoadEnvironment(path string) (Environment, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Environment{}, fmt.Errorf("simulation: read config: %w", err)
	}
	env := DefaultEnvironment()
	if err := yaml.Unmarshal(data, &env); err != nil {
		return Environment{}, fmt.Errorf("simulation: parse config %s: %w", path, err)
	}
	if err := env.Validate(); err != nil {
		return Environment{}, err
	}

	return env, nil
}
