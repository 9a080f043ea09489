package worker

import (
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-command-worker/codec"
)

const ErrCodeInvalidConfig = "INVALID_CONFIG"

const (
	LogBackendGlog = "glog"
	LogBackendZap  = "zap"
)

// Config is the static worker configuration. JSON files are read as YAML.
type Config struct {
	TaskQueue string `yaml:"task_queue" json:"task_queue"`
	Namespace string `yaml:"namespace" json:"namespace"`
	// Identity defaults to a random uuid.
	Identity string `yaml:"identity" json:"identity"`
	Codec    string `yaml:"codec" json:"codec"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogBackend selects go-logger ("glog") or zap ("zap").
	LogBackend string `yaml:"log_backend" json:"log_backend"`

	// ActivityTimeout caps activities whose info carries no deadline. Zero
	// means no cap.
	ActivityTimeout time.Duration `yaml:"activity_timeout" json:"activity_timeout"`
	ActivityRetries int           `yaml:"activity_retries" json:"activity_retries"`

	Relay RelayConfig `yaml:"relay" json:"relay"`
}

// RelayConfig controls how Run backs off after transient relay failures.
type RelayConfig struct {
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	RetryBase  time.Duration `yaml:"retry_base" json:"retry_base"`
	RetryMax   time.Duration `yaml:"retry_max" json:"retry_max"`
}

func DefaultConfig() Config {
	return Config{
		TaskQueue:  "default",
		Namespace:  "default",
		Codec:      codec.NameJSON,
		LogLevel:   "info",
		LogBackend: LogBackendGlog,
		Relay: RelayConfig{
			MaxRetries: 5,
			RetryBase:  100 * time.Millisecond,
			RetryMax:   5 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.TaskQueue, validation.Required),
		validation.Field(&c.Namespace, validation.Required),
		validation.Field(&c.Codec, validation.Required, validation.In(codec.NameJSON, codec.NameMsgpack)),
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "error", "fatal")),
		validation.Field(&c.LogBackend, validation.In(LogBackendGlog, LogBackendZap)),
		validation.Field(&c.ActivityTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ActivityRetries, validation.Min(0)),
		validation.Field(&c.Relay),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid worker config").
			WithTextCode(ErrCodeInvalidConfig)
	}
	return nil
}

func (r RelayConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxRetries, validation.Min(0)),
		validation.Field(&r.RetryBase, validation.Min(time.Duration(0))),
		validation.Field(&r.RetryMax, validation.Min(time.Duration(0))),
	)
}

// ParseConfig reads data over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryBadInput, "parse worker config").
			WithTextCode(ErrCodeInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryNotFound, "read worker config").
			WithTextCode(ErrCodeInvalidConfig).
			WithMetadata(map[string]any{"path": path})
	}
	return ParseConfig(data)
}
