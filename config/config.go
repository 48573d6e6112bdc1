package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/quietpush/enclavecore/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

// Config is the coordinator's top-level configuration. It also carries the
// values an enclave process needs, since cmd/enclave and cmd/coordinator
// share the same YAML file in local and test deployments.
type Config struct {
	// See zap.Config
	Log *zap.Config `yaml:"log"`
	// Address the relay server listens on for peer export_keys brokering
	RelayAddr string `yaml:"relayAddr"`
	// Address the control-plane HTTP server listens on
	ControlListenAddr string `yaml:"controlListenAddr"`
	// Configuration for the Redis-backed coordination store
	Redis RedisConfig `yaml:"redis"`
	// Push-provider outbound rate limits
	Limit RateLimitConfig `yaml:"limit"`
	// Genesis election / join protocol configuration
	Genesis GenesisConfig `yaml:"genesis"`
	// Peer dial retry configuration used while joining
	Peer PeerConfig `yaml:"peer"`
	// Attestation document verification configuration
	Attestation AttestationConfig `yaml:"attestation"`
	// Host-to-enclave socket address
	Socket SocketConfig `yaml:"socket"`
	// Push provider transport configuration
	Push PushConfig `yaml:"push"`
	// The track name this host serves
	Track string `yaml:"track"`
	// Address to reach a datadog compatible statsd
	DatadogAgentHost string `yaml:"datadogAgentHost"`
	// TTL of initial coordination-store peer registry entry
	InitialPeerTTL time.Duration `yaml:"initialPeerTTL"`
	// TTL of recurring coordination-store peer registry entry refreshes
	RecurringPeerTTL time.Duration `yaml:"recurringPeerTTL"`
	// timeout applied to a single peer RPC call (join, export_keys relay)
	PeerRPCTimeout time.Duration `yaml:"peerRPCTimeout"`
	// timeout applied to a single push-provider delivery attempt
	PushTimeout time.Duration `yaml:"pushTimeout"`
	// Periodicity/timeout for local enclave liveness checks
	LocalLivenessCheckPeriod  time.Duration `yaml:"localLivenessCheckPeriod"`
	LocalLivenessCheckTimeout time.Duration `yaml:"localLivenessCheckTimeout"`
}

// validate returns a list of validation errors, or empty if there are no errors.
type validator interface{ validate() []string }

func (c *Config) validate() error {
	validators := []validator{&c.Genesis, &c.Redis, &c.Limit, &c.Peer, &c.Attestation, &c.Socket, &c.Push}
	var errs []string
	for _, validator := range validators {
		errs = append(errs, validator.validate()...)
	}
	if len(errs) != 0 {
		return fmt.Errorf("invalid config: %v", strings.Join(errs, ","))
	}
	return nil
}

// Read parses the yaml file at the provided path into a Config
func Read(path string) (*Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	withenv := []byte(os.ExpandEnv(string(bs)))
	c, err := unmarshal(withenv)
	if err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func unmarshal(bs []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(bs, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default provides reasonable default parameters that may be overridden by a config file
func Default() *Config {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.DebugLevel),
		Development:       true,
		Encoding:          "console",
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	return &Config{
		Log:               &logConfig,
		RelayAddr:         "localhost:9000",
		ControlListenAddr: "localhost:8081",
		Redis: RedisConfig{
			Name:             "test",
			MinSleepDuration: time.Second,
			MaxSleepDuration: time.Second * 30,
			Addrs:            []string{"localhost:6379"},
		},
		Limit: RateLimitConfig{
			BucketSize:       10,
			LeakRateScalar:   10,
			LeakRateDuration: time.Minute,
		},
		Genesis: GenesisConfig{
			LeaseDuration:              time.Second * 30,
			MaxJoinAttempts:            5,
			JoinRetryMinSleep:          time.Millisecond * 10,
			JoinRetryMaxSleep:          time.Minute,
			RefreshStatusDuration:      time.Minute,
			RefreshAttestationDuration: time.Minute * 10,
			EnclaveConcurrency:         util.Min(runtime.NumCPU(), 64),
		},
		Peer: PeerConfig{
			MinSleepDuration: time.Millisecond * 10,
			MaxSleepDuration: time.Minute,
			AbandonDuration:  time.Minute * 10,
		},
		Attestation: AttestationConfig{
			PCRIndices:             []int{0, 1, 2},
			FreshnessWindowSeconds: 300,
		},
		Socket: SocketConfig{
			Host: "localhost",
			Port: 7000,
		},
		Push: PushConfig{
			Timeout: time.Second * 15,
		},
		Track:                     "default",
		InitialPeerTTL:            time.Minute * 120,
		RecurringPeerTTL:          time.Minute * 5,
		PeerRPCTimeout:            time.Second * 10,
		PushTimeout:               time.Second * 15,
		LocalLivenessCheckPeriod:  time.Minute,
		LocalLivenessCheckTimeout: time.Minute,
	}
}
