package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			setup: func() {
				viper.Reset()
				viper.Set("server.root", root)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultHost, cfg.Server.Host)
				assert.Equal(t, DefaultPort, cfg.Server.Port)
				assert.Equal(t, DefaultWorkers, cfg.Server.Workers)
				assert.Equal(t, DefaultBacklog, cfg.Server.Backlog)
				assert.Equal(t, time.Second, cfg.Server.ReadyTimeout)
				assert.Equal(t, 2*time.Second, cfg.Server.JoinTimeout)
				assert.Equal(t, 65536, cfg.Server.MaxRequestBytes)
				assert.Equal(t, "index.html", cfg.Server.Index)
				assert.Equal(t, "OTUServer", cfg.Server.Name)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.Equal(t, "text", cfg.Log.Format)
				assert.False(t, cfg.Templates.Cache)
			},
		},
		{
			name: "explicit port zero is kept",
			setup: func() {
				viper.Reset()
				viper.Set("server.root", root)
				viper.Set("server.port", 0)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0, cfg.Server.Port)
			},
		},
		{
			name: "durations from strings",
			setup: func() {
				viper.Reset()
				viper.Set("server.root", root)
				viper.Set("server.ready_timeout", "250ms")
				viper.Set("server.join_timeout", "3s")
				viper.Set("server.workers", 2)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 250*time.Millisecond, cfg.Server.ReadyTimeout)
				assert.Equal(t, 3*time.Second, cfg.Server.JoinTimeout)
				assert.Equal(t, 2, cfg.Server.Workers)
			},
		},
		{
			name: "invalid port type",
			setup: func() {
				viper.Reset()
				viper.Set("server.root", root)
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "missing root",
			setup: func() {
				viper.Reset()
				viper.Set("server.root", filepath.Join(root, "does-not-exist"))
			},
			expectError: true,
		},
		{
			name: "negative workers",
			setup: func() {
				viper.Reset()
				viper.Set("server.root", root)
				viper.Set("server.workers", -1)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			cfg, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	root := t.TempDir()
	configFile := filepath.Join(t.TempDir(), ".otuserver.yml")
	content := "server:\n" +
		"  host: 127.0.0.1\n" +
		"  port: 8080\n" +
		"  workers: 3\n" +
		"  root: " + root + "\n" +
		"templates:\n" +
		"  cache: true\n" +
		"log:\n" +
		"  level: debug\n" +
		"  format: json\n"
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o644))

	viper.SetConfigFile(configFile)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Server.Workers)
	assert.Equal(t, root, cfg.Server.Root)
	assert.True(t, cfg.Templates.Cache)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestAddress(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "localhost:80", cfg.Address())

	cfg.Server.Host = "::1"
	cfg.Server.Port = 8080
	assert.Equal(t, "[::1]:8080", cfg.Address())
}

func TestValidateServerConfig(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name   string
		mutate func(cfg *Config)
		field  string
	}{
		{"port too high", func(c *Config) { c.Server.Port = 65536 }, "server.port"},
		{"port negative", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"host injection", func(c *Config) { c.Server.Host = "localhost; rm -rf /" }, "server.host"},
		{"host backtick", func(c *Config) { c.Server.Host = "`id`" }, "server.host"},
		{"zero workers", func(c *Config) { c.Server.Workers = 0 }, "server.workers"},
		{"zero backlog", func(c *Config) { c.Server.Backlog = 0 }, "server.backlog"},
		{"zero ready timeout", func(c *Config) { c.Server.ReadyTimeout = 0 }, "server.ready_timeout"},
		{"sub-millisecond ready timeout", func(c *Config) { c.Server.ReadyTimeout = 500 * time.Microsecond }, "server.ready_timeout"},
		{"negative join timeout", func(c *Config) { c.Server.JoinTimeout = -time.Second }, "server.join_timeout"},
		{"tiny request limit", func(c *Config) { c.Server.MaxRequestBytes = 10 }, "server.max_request_bytes"},
		{"root is file", func(c *Config) { c.Server.Root = file }, "server.root"},
		{"root missing", func(c *Config) { c.Server.Root = filepath.Join(root, "nope") }, "server.root"},
		{"index with separator", func(c *Config) { c.Server.Index = "sub/index.html" }, "server.index"},
		{"index parent", func(c *Config) { c.Server.Index = ".." }, "server.index"},
		{"name with newline", func(c *Config) { c.Server.Name = "a\r\nX-Injected: 1" }, "server.name"},
		{"templates dir missing", func(c *Config) { c.Templates.Dir = filepath.Join(root, "nope") }, "templates.dir"},
		{"bad otlp endpoint", func(c *Config) { c.Metrics.OTLPEndpoint = "collector" }, "metrics.otlp_endpoint"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.Root = root
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			result := ValidateConfigWithDetails(cfg)

			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.field, result.Errors[0].Field)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidationWarnings(t *testing.T) {
	cfg := Default()
	cfg.Server.Root = t.TempDir()
	cfg.Templates.Dir = t.TempDir()

	result := ValidateConfigWithDetails(cfg)

	assert.True(t, result.Valid)
	assert.True(t, result.HasWarnings())

	fields := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.Contains(t, fields, "server.port")
	assert.Contains(t, fields, "templates.cache")
	assert.Contains(t, result.String(), "Validation Warnings")
}

func TestValidHosts(t *testing.T) {
	for _, host := range []string{"localhost", "0.0.0.0", "127.0.0.1", "::1", "example.com", "my-host.local"} {
		assert.NoError(t, validateHostname(host), host)
	}
}

func TestDump(t *testing.T) {
	cfg := Default()
	cfg.Server.ReadyTimeout = 1500 * time.Millisecond

	out, err := Dump(cfg)
	require.NoError(t, err)

	var doc map[string]map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "1.5s", doc["server"]["ready_timeout"])
	assert.Equal(t, "2s", doc["server"]["join_timeout"])
	assert.Equal(t, 80, doc["server"]["port"])
	assert.Equal(t, "info", doc["log"]["level"])
	assert.True(t, strings.HasPrefix(string(out), "server:"))

	js, err := DumpJSON(cfg)
	require.NoError(t, err)
	var jsDoc map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(js, &jsDoc))
	assert.Equal(t, "OTUServer", jsDoc["server"]["name"])
}

func TestDumpRoundTripsThroughLoad(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg := Default()
	cfg.Server.Root = t.TempDir()
	cfg.Server.Port = 9090
	cfg.Server.JoinTimeout = 5 * time.Second

	out, err := Dump(cfg)
	require.NoError(t, err)

	configFile := filepath.Join(t.TempDir(), "dump.yml")
	require.NoError(t, os.WriteFile(configFile, out, 0o644))
	viper.SetConfigFile(configFile)
	require.NoError(t, viper.ReadInConfig())

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestResolveDoesNotValidate(t *testing.T) {
	v := viper.New()
	v.Set("server.root", filepath.Join(t.TempDir(), "missing"))
	v.Set("server.port", 8081)

	cfg, err := Resolve(v)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, DefaultWorkers, cfg.Server.Workers)
	assert.Error(t, cfg.Validate())
}

func TestResolveReadsEnvironment(t *testing.T) {
	tests := []struct {
		env   string
		value string
		check func(t *testing.T, cfg *Config)
	}{
		{"OTUSERVER_SERVER_MAX_REQUEST_BYTES", "1024", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 1024, cfg.Server.MaxRequestBytes)
		}},
		{"OTUSERVER_SERVER_NAME", "edge", func(t *testing.T, cfg *Config) {
			assert.Equal(t, "edge", cfg.Server.Name)
		}},
		{"OTUSERVER_SERVER_BACKLOG", "16", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 16, cfg.Server.Backlog)
		}},
		{"OTUSERVER_SERVER_PORT", "0", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 0, cfg.Server.Port)
		}},
		{"OTUSERVER_SERVER_READY_TIMEOUT", "250ms", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 250*time.Millisecond, cfg.Server.ReadyTimeout)
		}},
		{"OTUSERVER_TEMPLATES_CACHE", "true", func(t *testing.T, cfg *Config) {
			assert.True(t, cfg.Templates.Cache)
		}},
		{"OTUSERVER_TEMPLATES_DIR", "/srv/errors", func(t *testing.T, cfg *Config) {
			assert.Equal(t, "/srv/errors", cfg.Templates.Dir)
		}},
		{"OTUSERVER_METRICS_OTLP_ENDPOINT", "collector:4317", func(t *testing.T, cfg *Config) {
			assert.Equal(t, "collector:4317", cfg.Metrics.OTLPEndpoint)
		}},
		{"OTUSERVER_METRICS_INTERVAL", "30s", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 30*time.Second, cfg.Metrics.Interval)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			v := viper.New()
			v.SetEnvPrefix("OTUSERVER")
			v.AutomaticEnv()
			v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

			cfg, err := Resolve(v)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
