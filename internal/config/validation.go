package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/conneroisu/otuserver/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("❌ Validation Errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("⚠️  Validation Warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// validateConfig returns the first validation error, if any.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		return &result.Errors[0]
	}
	return nil
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateTemplatesConfigDetails(&config.Templates, result)
	validateMetricsConfigDetails(&config.Metrics, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: "port below 1024 requires elevated privileges",
			Suggestions: []string{
				"Use --port 8080 when running unprivileged",
			},
		})
	}

	if err := validateHostname(config.Host); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.host",
			Value:   config.Host,
			Message: err.Error(),
			Suggestions: []string{
				"Use 'localhost' to accept local connections only",
				"Use '0.0.0.0' to bind to all interfaces",
			},
		})
	}

	if config.Workers < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.workers",
			Value:   config.Workers,
			Message: "at least one worker is required",
		})
	} else if config.Workers > 64*runtime.NumCPU() {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.workers",
			Value:   config.Workers,
			Message: fmt.Sprintf("%d workers on %d CPUs", config.Workers, runtime.NumCPU()),
			Suggestions: []string{
				"Each worker blocks on its own poller; a few per CPU is usually enough",
			},
		})
	}

	if config.Backlog < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.backlog",
			Value:   config.Backlog,
			Message: "listen backlog must be positive",
		})
	}

	if config.ReadyTimeout < time.Millisecond {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.ready_timeout",
			Value:   config.ReadyTimeout,
			Message: "ready timeout must be at least 1ms",
			Suggestions: []string{
				"Shutdown is noticed once per ready timeout; 1s is a good default",
			},
		})
	}

	if config.JoinTimeout <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.join_timeout",
			Value:   config.JoinTimeout,
			Message: "join timeout must be positive",
		})
	}

	if config.MaxRequestBytes < 64 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.max_request_bytes",
			Value:   config.MaxRequestBytes,
			Message: "request limit must be at least 64 bytes",
		})
	}

	if err := validateRoot(config.Root); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.root",
			Value:   config.Root,
			Message: err.Error(),
			Suggestions: []string{
				"Create the directory before starting the server",
				"Pass --root with an existing directory",
			},
		})
	}

	if err := validateIndex(config.Index); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.index",
			Value:   config.Index,
			Message: err.Error(),
			Suggestions: []string{
				"Use a bare file name such as 'index.html'",
			},
		})
	}

	if strings.ContainsAny(config.Name, "\r\n") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.name",
			Value:   config.Name,
			Message: "server name must fit on one header line",
		})
	}
}

func validateTemplatesConfigDetails(config *TemplatesConfig, result *ValidationResult) {
	if config.Dir == "" {
		return
	}

	info, err := os.Stat(config.Dir)
	if err != nil || !info.IsDir() {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "templates.dir",
			Value:   config.Dir,
			Message: "template directory does not exist",
			Suggestions: []string{
				"Leave templates.dir empty to use the built-in error pages",
			},
		})
		return
	}

	if !config.Cache {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "templates.cache",
			Value:   config.Cache,
			Message: "error pages are read from disk on every error response",
			Suggestions: []string{
				"Set templates.cache: true to load them once and reload on change",
			},
		})
	}
}

func validateMetricsConfigDetails(config *MetricsConfig, result *ValidationResult) {
	if config.OTLPEndpoint == "" {
		return
	}
	if _, _, err := net.SplitHostPort(config.OTLPEndpoint); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "metrics.otlp_endpoint",
			Value:   config.OTLPEndpoint,
			Message: "endpoint must be host:port",
			Suggestions: []string{
				"The OTLP gRPC collector usually listens on localhost:4317",
			},
		})
	}
	if config.Interval <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "metrics.interval",
			Value:   config.Interval,
			Message: "export interval must be positive",
		})
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.level",
			Value:   config.Level,
			Message: err.Error(),
			Suggestions: []string{
				"Available levels: debug, info, warn, error",
			},
		})
	}
	if config.Format != "text" && config.Format != "json" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.format",
			Value:   config.Format,
			Message: fmt.Sprintf("unknown log format '%s'", config.Format),
			Suggestions: []string{
				"Available formats: text, json",
			},
		})
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func validateRoot(root string) error {
	if root == "" {
		return fmt.Errorf("root directory is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root directory is not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root is not a directory")
	}
	return nil
}

func validateIndex(index string) error {
	if index == "" {
		return fmt.Errorf("index file name cannot be empty")
	}
	if index == "." || index == ".." || filepath.Base(index) != index || strings.ContainsAny(index, `/\`) {
		return fmt.Errorf("index must be a bare file name")
	}
	return nil
}
