// Package cmd provides the command-line interface for the directory
// migration tool.
//
// This package implements a cobra-based CLI with commands for:
//   - migrate: Run records from a stream file into the target directory
//   - rules: Display the effective transformation rule set
//   - version: Display version and build information
//
// The CLI supports configuration via:
//   - Command-line flags
//   - Configuration files (YAML format)
//   - Environment variables prefixed with LDAPMIGRATE_
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// cfgFile holds the path to the configuration file
	cfgFile string
	// logLevel controls the verbosity of structured log output
	logLevel string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "ldapmigrate",
		Short: "Migrate legacy directory entries into a standards-compliant LDAP directory",
		Long: `ldapmigrate moves entries out of a legacy Oracle-style directory and into
a standards-compliant LDAP directory.

Each record is classified, rewritten by an ordered transformation rule
set (object class conversion, attribute renaming, ACL conversion, DN
restructuring), validated against the target schema, and written with an
add-or-modify decision. Parent entries are ordered before their children
and failed records get one retry pass at the end of the run.

Use "ldapmigrate migrate" to run a migration, or add --dry-run to see
what would be written without touching the directory.`,
	}
)

// Execute executes the root command and returns any error that occurs.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ldapmigrate.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in the config file and environment variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ldapmigrate")
	}

	viper.SetEnvPrefix("ldapmigrate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		rootCmd.Printf("Using config file: %s\n", viper.ConfigFileUsed())
	}
}
