// Package config loads and validates the YAML configuration of a MovieDHT
// process.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Topology protocol names accepted in dht.protocol.
const (
	ProtocolRing   = "ring"
	ProtocolMesh   = "mesh"
	ProtocolModulo = "modulo"
)

// Finger maintenance strategies accepted in dht.finger_maintenance.
const (
	FingersIncremental = "incremental"
	FingersFull        = "full"
)

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	DHT       DHTConfig       `yaml:"dht"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Server    ServerConfig    `yaml:"server"`
}

type LoggerConfig struct {
	Active   bool       `yaml:"active"`
	Level    string     `yaml:"level"`    // debug | info | warn | error
	Encoding string     `yaml:"encoding"` // console | json
	Mode     string     `yaml:"mode"`     // stdout | file
	File     FileConfig `yaml:"file"`
}

type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

type DHTConfig struct {
	Protocol          string          `yaml:"protocol"`
	IDBits            int             `yaml:"id_bits"`
	Hash              string          `yaml:"hash"`
	ReplicationFactor int             `yaml:"replication_factor"`
	FingerMaintenance string          `yaml:"finger_maintenance"`
	LeafSize          int             `yaml:"leaf_size"`
	MigrateOnLeave    bool            `yaml:"migrate_on_leave"`
	ParallelProbes    int             `yaml:"parallel_probes"`
	RouteCacheSize    int             `yaml:"route_cache_size"`
	HotKeys           HotKeyConfig    `yaml:"hot_keys"`
	Bootstrap         BootstrapConfig `yaml:"bootstrap"`
}

// HotKeyConfig tunes the decayed read-rate detector.
type HotKeyConfig struct {
	Threshold float64 `yaml:"threshold"`  // reads/second
	DecayRate float64 `yaml:"decay_rate"` // γ in (0, 1]
}

// BootstrapConfig describes the members created at startup, named
// Prefix0 .. Prefix(Nodes-1).
type BootstrapConfig struct {
	Nodes  int    `yaml:"nodes"`
	Prefix string `yaml:"prefix"`
}

type DatasetConfig struct {
	Path      string `yaml:"path"`
	BatchSize int    `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type ServerConfig struct {
	Enabled  bool `yaml:"enabled"`
	HTTPPort int  `yaml:"http_port"`
}

// DefaultConfig returns the configuration used when a field is absent
// from the YAML file.
func DefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Active:   true,
			Level:    "info",
			Encoding: "console",
			Mode:     "stdout",
			File: FileConfig{
				Path:       "logs/moviedht.log",
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
		DHT: DHTConfig{
			Protocol:          ProtocolRing,
			IDBits:            64,
			Hash:              string(domain.HashXX),
			ReplicationFactor: 3,
			FingerMaintenance: FingersIncremental,
			LeafSize:          4,
			ParallelProbes:    4,
			RouteCacheSize:    0,
			HotKeys: HotKeyConfig{
				Threshold: 50,
				DecayRate: 0.65,
			},
			Bootstrap: BootstrapConfig{
				Nodes:  16,
				Prefix: "node",
			},
		},
		Dataset: DatasetConfig{
			BatchSize: 50000,
			Workers:   4,
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{
				Exporter:    "stdout",
				SampleRatio: 1.0,
			},
		},
		Server: ServerConfig{
			HTTPPort: 8080,
		},
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig.
// Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}
	return cfg, nil
}

// ValidateConfig reports every invalid field at once.
func (c *Config) ValidateConfig() error {
	var errs error
	invalid := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidConfig}, args...)...))
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		invalid("logger.level %q", c.Logger.Level)
	}
	switch c.Logger.Encoding {
	case "console", "json":
	default:
		invalid("logger.encoding %q", c.Logger.Encoding)
	}
	switch c.Logger.Mode {
	case "stdout":
	case "file":
		if c.Logger.File.Path == "" {
			invalid("logger.file.path is required in file mode")
		}
	default:
		invalid("logger.mode %q", c.Logger.Mode)
	}

	switch c.DHT.Protocol {
	case ProtocolRing, ProtocolMesh, ProtocolModulo:
	default:
		invalid("dht.protocol %q", c.DHT.Protocol)
	}
	if c.DHT.IDBits <= 0 || c.DHT.IDBits > 64 {
		invalid("dht.id_bits %d (must be in [1, 64])", c.DHT.IDBits)
	}
	switch domain.HashFunc(c.DHT.Hash) {
	case domain.HashXX, domain.HashMurmur, domain.HashSHA1:
	default:
		invalid("dht.hash %q", c.DHT.Hash)
	}
	if c.DHT.ReplicationFactor < 0 {
		invalid("dht.replication_factor %d", c.DHT.ReplicationFactor)
	}
	switch c.DHT.FingerMaintenance {
	case FingersIncremental, FingersFull:
	default:
		invalid("dht.finger_maintenance %q", c.DHT.FingerMaintenance)
	}
	if c.DHT.LeafSize <= 0 {
		invalid("dht.leaf_size %d (must be > 0)", c.DHT.LeafSize)
	}
	if c.DHT.ParallelProbes <= 0 {
		invalid("dht.parallel_probes %d (must be > 0)", c.DHT.ParallelProbes)
	}
	if c.DHT.RouteCacheSize < 0 {
		invalid("dht.route_cache_size %d", c.DHT.RouteCacheSize)
	}
	if c.DHT.HotKeys.Threshold <= 0 {
		invalid("dht.hot_keys.threshold %v (must be > 0)", c.DHT.HotKeys.Threshold)
	}
	if c.DHT.HotKeys.DecayRate <= 0 || c.DHT.HotKeys.DecayRate > 1 {
		invalid("dht.hot_keys.decay_rate %v (must be in (0, 1])", c.DHT.HotKeys.DecayRate)
	}
	if c.DHT.Bootstrap.Nodes < 0 {
		invalid("dht.bootstrap.nodes %d", c.DHT.Bootstrap.Nodes)
	}

	if c.Dataset.BatchSize <= 0 {
		invalid("dataset.batch_size %d (must be > 0)", c.Dataset.BatchSize)
	}
	if c.Dataset.Workers <= 0 {
		invalid("dataset.workers %d (must be > 0)", c.Dataset.Workers)
	}

	if c.Telemetry.Tracing.Enabled {
		switch c.Telemetry.Tracing.Exporter {
		case "stdout":
		case "otlp":
			if c.Telemetry.Tracing.Endpoint == "" {
				invalid("telemetry.tracing.endpoint is required for the otlp exporter")
			}
		default:
			invalid("telemetry.tracing.exporter %q", c.Telemetry.Tracing.Exporter)
		}
		if c.Telemetry.Tracing.SampleRatio < 0 || c.Telemetry.Tracing.SampleRatio > 1 {
			invalid("telemetry.tracing.sample_ratio %v", c.Telemetry.Tracing.SampleRatio)
		}
	}

	if c.Server.Enabled && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		invalid("server.http_port %d", c.Server.HTTPPort)
	}
	return errs
}

// LogConfig writes the effective configuration at info level.
func (c *Config) LogConfig(lgr logger.Logger) {
	lgr.Info("configuration loaded",
		logger.F("protocol", c.DHT.Protocol),
		logger.F("id_bits", c.DHT.IDBits),
		logger.F("hash", c.DHT.Hash),
		logger.F("replication_factor", c.DHT.ReplicationFactor),
		logger.F("finger_maintenance", c.DHT.FingerMaintenance),
		logger.F("leaf_size", c.DHT.LeafSize),
		logger.F("migrate_on_leave", c.DHT.MigrateOnLeave),
		logger.F("parallel_probes", c.DHT.ParallelProbes),
		logger.F("route_cache_size", c.DHT.RouteCacheSize),
		logger.F("bootstrap_nodes", c.DHT.Bootstrap.Nodes),
		logger.F("dataset", c.Dataset.Path),
		logger.F("tracing", c.Telemetry.Tracing.Enabled),
		logger.F("http", c.Server.Enabled))
}
