package cfg

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// SinkType selects where committed row changes are published
type SinkType string

const (
	SinkKafka  SinkType = "kafka"
	SinkNats   SinkType = "nats"
	SinkStdout SinkType = "stdout"
)

// SourceConfiguration describes the binlog source
type SourceConfiguration struct {
	URI               string `toml:"uri"`                // mysql://... or file:///...
	ServerID          uint32 `toml:"server_id"`          // Replica id, unique per server
	HeartbeatSeconds  int    `toml:"heartbeat_seconds"`  // 0 disables heartbeats
	ReconnectAttempts int    `toml:"reconnect_attempts"` // Negative disables reconnects
	ReconnectDelayMS  int    `toml:"reconnect_delay_ms"` // Initial delay, doubled per attempt
	DialTimeoutMS     int    `toml:"dial_timeout_ms"`
	TableCacheSize    int    `toml:"table_cache_size"` // Table maps remembered by decoder
	VerifyChecksum    bool   `toml:"verify_checksum"`
}

// FilterConfiguration restricts tables by glob patterns, empty matches all
type FilterConfiguration struct {
	Databases []string `toml:"databases"`
	Tables    []string `toml:"tables"`
}

// KafkaConfiguration for the kafka sink
type KafkaConfiguration struct {
	Brokers    []string `toml:"brokers"`
	BatchSize  int      `toml:"batch_size"`
	BatchBytes int64    `toml:"batch_bytes"`
}

// NatsConfiguration for the nats sink
type NatsConfiguration struct {
	URL                  string `toml:"url"`
	MaxReconnects        int    `toml:"max_reconnects"`
	ReconnectWaitSeconds int    `toml:"reconnect_wait_seconds"`
	StreamMaxAgeHours    int    `toml:"stream_max_age_hours"`
}

// SinkConfiguration controls publishing of row changes
type SinkConfiguration struct {
	Type        SinkType           `toml:"type"`
	TopicPrefix string             `toml:"topic_prefix"` // Topic is prefix.schema.table
	Compress    bool               `toml:"compress"`     // zstd compress records
	Kafka       KafkaConfiguration `toml:"kafka"`
	Nats        NatsConfiguration  `toml:"nats"`
}

// DumpConfiguration for the dump command
type DumpConfiguration struct {
	Dir string `toml:"dir"`
}

// LoggingConfiguration controls logging output
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // console or json
}

// PrometheusConfiguration controls the metrics endpoint
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// Configuration is the main configuration structure
type Configuration struct {
	Source     SourceConfiguration     `toml:"source"`
	Filter     FilterConfiguration     `toml:"filter"`
	Sink       SinkConfiguration       `toml:"sink"`
	Dump       DumpConfiguration       `toml:"dump"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "", "Path to configuration file")
	ServerIDFlag   = flag.Uint("server-id", 0, "Replica server id (overrides config)")
	VerboseFlag    = flag.Bool("verbose", false, "Log debug messages (overrides config)")
)

// Default returns the default configuration
func Default() *Configuration {
	return &Configuration{
		Source: SourceConfiguration{
			ServerID:          1 << 30,
			HeartbeatSeconds:  30,
			ReconnectAttempts: 5,
			ReconnectDelayMS:  1000,
			DialTimeoutMS:     10000,
			TableCacheSize:    1024,
			VerifyChecksum:    true,
		},
		Sink: SinkConfiguration{
			Type:        SinkStdout,
			TopicPrefix: "binlog",
			Kafka: KafkaConfiguration{
				BatchSize:  100,
				BatchBytes: 1 << 20,
			},
			Nats: NatsConfiguration{
				MaxReconnects:        -1,
				ReconnectWaitSeconds: 1,
				StreamMaxAgeHours:    24,
			},
		},
		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},
		Prometheus: PrometheusConfiguration{
			Enabled: false,
			Address: "0.0.0.0",
			Port:    9090,
		},
	}
}

// Config is the active configuration
var Config = Default()

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file %s: %w", configPath, err)
		}
		log.Debug().Str("path", configPath).Msg("Loading configuration")
		if _, err := toml.DecodeFile(configPath, Config); err != nil {
			return fmt.Errorf("failed to decode config: %w", err)
		}
	}

	if *ServerIDFlag != 0 {
		Config.Source.ServerID = uint32(*ServerIDFlag)
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}
	return nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Source.ServerID == 0 {
		return fmt.Errorf("server_id must be non-zero")
	}
	if Config.Source.HeartbeatSeconds < 0 {
		return fmt.Errorf("invalid heartbeat_seconds: %d", Config.Source.HeartbeatSeconds)
	}
	if Config.Source.TableCacheSize < 1 {
		return fmt.Errorf("table_cache_size must be >= 1")
	}

	switch Config.Sink.Type {
	case SinkStdout:
	case SinkKafka:
		if len(Config.Sink.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka sink requires at least one broker")
		}
	case SinkNats:
		if Config.Sink.Nats.URL == "" {
			return fmt.Errorf("nats sink requires url")
		}
	default:
		return fmt.Errorf("unknown sink type %q", Config.Sink.Type)
	}

	switch Config.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format %q", Config.Logging.Format)
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}
	return nil
}

func (c SourceConfiguration) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

func (c SourceConfiguration) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

func (c SourceConfiguration) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMS) * time.Millisecond
}

// MetricsAddress returns host:port of the metrics endpoint
func (c PrometheusConfiguration) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}
