// Package cmd provides the command-line interface for routefs.
//
// Configuration is layered through Viper with clear precedence:
//
//  1. Command-line flags (--port, --root, ...) - highest priority
//  2. ROUTEFS_CONFIG_FILE environment variable - custom config file path
//  3. Individual environment variables (ROUTEFS_SERVER_PORT, ...)
//  4. Configuration file (.routefs.yml) - lowest priority
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "routefs",
	Short: "Serve a directory tree as HTTP routes",
	Long: `Routefs maps a content directory onto HTTP routes: static files are
streamed, templates are rendered, and JavaScript files handle requests
dynamically. The route mapping follows the directory structure and stays
current while files change.

Quick Start:
  routefs serve --root ./site     Serve a content directory
  routefs routes --root ./site    Print the route mapping
  routefs version                 Show version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .routefs.yml, can also use ROUTEFS_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig wires the configuration sources in precedence order.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ROUTEFS_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".routefs")
	}

	viper.SetEnvPrefix("ROUTEFS")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; flags, env vars, and defaults cover
	// everything.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
