// Package cmd provides the command-line interface for OTUServer.
//
// Configuration System:
//
//	Values are resolved with the following precedence:
//	1. Command-line flags (--port, --root, etc.) - highest priority
//	2. Individual environment variables (OTUSERVER_SERVER_PORT, etc.)
//	3. The file named by --config or OTUSERVER_CONFIG_FILE
//	4. .otuserver.yml in the current directory - lowest priority
//
// Environment Variables:
//
//	OTUSERVER_CONFIG_FILE: Path to custom configuration file
//	OTUSERVER_SERVER_PORT: Override server port
//	OTUSERVER_SERVER_ROOT: Override document root
//	And the rest following the OTUSERVER_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/conneroisu/otuserver/internal/config"
	"github.com/conneroisu/otuserver/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "otuserver",
	Short: "A small concurrent static file server",
	Long: `OTUServer serves files from a document root over HTTP/1.x.

A fixed pool of workers shares one listening socket. Each worker runs its own
non-blocking event loop, answers GET and HEAD, and closes the connection after
every response.

Quick Start:
  otuserver serve --root ./doc_root --port 8080
  otuserver config show
  otuserver health --port 8080`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .otuserver.yml, can also use OTUSERVER_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points Viper at the configuration file and enables
// OTUSERVER_ environment overrides. A missing file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("OTUSERVER_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".otuserver")
	}

	viper.SetEnvPrefix("OTUSERVER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the resolved log settings.
func newLogger(cfg *config.Config) (*logging.ServerLogger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	}), nil
}
