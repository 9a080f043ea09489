package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	command "github.com/goliatone/go-command-worker"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name:  "defaults",
			input: ``,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},
		{
			name: "yaml overrides",
			input: `
task_queue: billing
codec: msgpack
activity_timeout: 30s
activity_retries: 2
relay:
  max_retries: 1
  retry_base: 50ms
`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "billing", cfg.TaskQueue)
				assert.Equal(t, "default", cfg.Namespace)
				assert.Equal(t, "msgpack", cfg.Codec)
				assert.Equal(t, 30*time.Second, cfg.ActivityTimeout)
				assert.Equal(t, 2, cfg.ActivityRetries)
				assert.Equal(t, 1, cfg.Relay.MaxRetries)
				assert.Equal(t, 50*time.Millisecond, cfg.Relay.RetryBase)
				assert.Equal(t, 5*time.Second, cfg.Relay.RetryMax)
			},
		},
		{
			name:  "json document",
			input: `{"task_queue": "emails", "log_level": "debug"}`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "emails", cfg.TaskQueue)
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
		{name: "unknown codec", input: `codec: xml`, wantErr: true},
		{name: "empty task queue", input: `task_queue: ""`, wantErr: true},
		{name: "negative retries", input: `relay: {max_retries: -1}`, wantErr: true},
		{name: "not yaml", input: `task_queue: [`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, command.HasCode(err, ErrCodeInvalidConfig))
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("task_queue: reports\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "reports", cfg.TaskQueue)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, command.HasCode(err, ErrCodeInvalidConfig))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Codec = "xml"
	_, err := New(WithConfig(cfg), WithLogger(command.NopLogger{}))
	assert.True(t, command.HasCode(err, ErrCodeInvalidConfig))

	w, err := New(WithLogger(command.NopLogger{}))
	require.NoError(t, err)
	assert.NotEmpty(t, w.Config().Identity)

	cfg = DefaultConfig()
	cfg.LogBackend = LogBackendZap
	cfg.LogLevel = "trace"
	_, err = New(WithConfig(cfg))
	require.NoError(t, err)

	cfg.LogBackend = "syslog"
	_, err = New(WithConfig(cfg))
	assert.True(t, command.HasCode(err, ErrCodeInvalidConfig))
}
