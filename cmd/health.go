package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/otuserver/internal/config"
	"github.com/conneroisu/otuserver/internal/templates"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Overall   bool             `json:"overall"`
}

// Check represents an individual health check result.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Healthy bool   `json:"healthy"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of a running server",
	Long: `Performs health checks against the configured server:
- The server answers a HEAD request with an HTTP status line
- The document root is a readable directory
- Every error page template can be loaded

This command is used by container health checks and readiness probes.`,
	RunE: runHealthCheck,
}

var (
	healthPort    int
	healthHost    string
	healthTimeout time.Duration
	healthVerbose bool
)

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().IntVarP(&healthPort, "port", "p", config.DefaultPort, "Port to check (default from configuration)")
	healthCmd.Flags().StringVarP(&healthHost, "host", "H", config.DefaultHost, "Host to check (default from configuration)")
	healthCmd.Flags().DurationVarP(&healthTimeout, "timeout", "t", 3*time.Second, "Timeout for health checks")
	healthCmd.Flags().BoolVarP(&healthVerbose, "verbose", "v", false, "Verbose health check output")
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = healthHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = healthPort
	}

	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]Check),
		Overall:   true,
	}

	checkHTTPServer(status, cfg.Address(), healthTimeout)
	checkDocumentRoot(status, cfg.Server.Root)
	checkTemplates(status, cfg.Templates.Dir)

	if !status.Overall {
		status.Status = "unhealthy"
	}

	out := cmd.OutOrStdout()
	if healthVerbose {
		output, _ := json.MarshalIndent(status, "", "  ")
		fmt.Fprintln(out, string(output))
	} else if status.Overall {
		fmt.Fprintln(out, "✅ All health checks passed")
	} else {
		fmt.Fprintln(out, "❌ Health checks failed")
		names := make([]string, 0, len(status.Checks))
		for name := range status.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if check := status.Checks[name]; !check.Healthy {
				fmt.Fprintf(out, "  - %s: %s\n", name, check.Message)
			}
		}
	}

	if !status.Overall {
		return errors.New("health checks failed")
	}

	return nil
}

func (s *HealthStatus) fail(name, message string) {
	s.Checks[name] = Check{Status: "unhealthy", Message: message, Healthy: false}
	s.Overall = false
}

func (s *HealthStatus) pass(name, message string) {
	s.Checks[name] = Check{Status: "healthy", Message: message, Healthy: true}
}

// checkHTTPServer sends HEAD / and accepts any HTTP status line: a 403 or 404
// still proves the workers are answering.
func checkHTTPServer(status *HealthStatus, address string, timeout time.Duration) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		status.fail("http_server", fmt.Sprintf("Failed to connect to server: %v", err))
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := io.WriteString(conn, "HEAD / HTTP/1.1\r\nHost: "+address+"\r\n\r\n"); err != nil {
		status.fail("http_server", fmt.Sprintf("Failed to send request: %v", err))
		return
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		status.fail("http_server", fmt.Sprintf("No response from server: %v", err))
		return
	}

	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/1.") {
		status.fail("http_server", fmt.Sprintf("Unexpected response: %q", strings.TrimSpace(line)))
		return
	}
	if _, err := strconv.Atoi(fields[1]); err != nil {
		status.fail("http_server", fmt.Sprintf("Unexpected status: %q", fields[1]))
		return
	}

	status.pass("http_server", "Server responded with "+strings.Join(fields[1:], " "))
}

func checkDocumentRoot(status *HealthStatus, root string) {
	info, err := os.Stat(root)
	if err != nil {
		status.fail("document_root", fmt.Sprintf("Cannot access %s: %v", root, err))
		return
	}
	if !info.IsDir() {
		status.fail("document_root", fmt.Sprintf("%s is not a directory", root))
		return
	}
	if _, err := os.ReadDir(root); err != nil {
		status.fail("document_root", fmt.Sprintf("Cannot list %s: %v", root, err))
		return
	}

	status.pass("document_root", "Document root readable")
}

func checkTemplates(status *HealthStatus, dir string) {
	store, err := templates.New(templates.Options{Dir: dir})
	if err != nil {
		status.fail("templates", err.Error())
		return
	}
	if err := store.Verify(); err != nil {
		status.fail("templates", err.Error())
		return
	}

	source := "built-in"
	if dir != "" {
		source = dir
	}
	status.pass("templates", "Error pages loaded from "+source)
}
