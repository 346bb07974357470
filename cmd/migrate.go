package cmd

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ldapmigrate/ldapmigrate/internal/ldap"
	"github.com/ldapmigrate/ldapmigrate/internal/logging"
	"github.com/ldapmigrate/ldapmigrate/internal/migrate"
)

var (
	// stream names the record stream being migrated (users, groups,
	// organizational_units, or generic)
	stream string
	// inputPath is the newline-delimited JSON record file; "-" reads stdin
	inputPath string
	// dryRun simulates every write without touching the directory
	dryRun bool
	// skipTLSVerify disables certificate verification for ldaps/StartTLS
	skipTLSVerify bool

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Run a record stream through the migration pipeline",
		Long: `Read newline-delimited JSON records from a file (or stdin with
--input -), transform them for the target directory, and write them.

Each line is one record. A record's target DN comes from its "dn" field,
the configured DN template for the stream, or the stream's RDN attribute
under the base DN. Records carrying a non-empty _sdc_deleted_at field
delete the entry instead of writing it.

Examples:
  # Migrate user records
  ldapmigrate migrate --stream users --input users.ndjson

  # Preview a group migration without writing
  cat groups.ndjson | ldapmigrate migrate --stream groups --input - --dry-run`,
		RunE: runMigrate,
	}
)

func init() {
	migrateCmd.Flags().StringVar(&stream, "stream", "generic", "record stream name (users, groups, organizational_units, generic)")
	migrateCmd.Flags().StringVar(&inputPath, "input", "-", "newline-delimited JSON record file, or - for stdin")
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate writes without contacting the directory")
	migrateCmd.Flags().BoolVar(&skipTLSVerify, "tls-skip-verify", false, "skip TLS certificate verification")

	migrateCmd.Flags().String("url", "", "directory URL (ldap:// or ldaps://)")
	migrateCmd.Flags().String("base-dn", "", "base DN for derived entry placement")
	migrateCmd.Flags().String("bind-dn", "", "bind DN for directory authentication")
	migrateCmd.Flags().String("password", "", "bind password")
	migrateCmd.Flags().Int("batch-size", 0, "records per processing batch")
	migrateCmd.Flags().Int("max-errors", 0, "abort after this many failed records")

	_ = viper.BindPFlag("connection.url", migrateCmd.Flags().Lookup("url"))
	_ = viper.BindPFlag("base_dn", migrateCmd.Flags().Lookup("base-dn"))
	_ = viper.BindPFlag("connection.bind_dn", migrateCmd.Flags().Lookup("bind-dn"))
	_ = viper.BindPFlag("connection.password", migrateCmd.Flags().Lookup("password"))
	_ = viper.BindPFlag("batch_size", migrateCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("max_errors", migrateCmd.Flags().Lookup("max-errors"))

	rootCmd.AddCommand(migrateCmd)
}

// loadConfig builds the pipeline configuration from defaults, the config
// file, environment variables, and flags, in that order of precedence.
func loadConfig() (*migrate.Config, error) {
	cfg := migrate.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying configuration defaults: %w", err)
	}
	if dryRun {
		cfg.DryRunMode = true
	}
	if skipTLSVerify {
		cfg.Connection.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.BaseDN == "" {
		cfg.BaseDN = cfg.Connection.BaseDN
	}
	return cfg, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New("ldapmigrate", viper.GetString("log_level"))

	var client ldap.Client
	if !cfg.DryRunMode {
		client = ldap.NewClient(&cfg.Connection, logger)
	}

	sink, err := migrate.NewSink(stream, cfg, client, logger)
	if err != nil {
		return err
	}

	records, err := readRecords(inputPath)
	if err != nil {
		return err
	}
	logger.Info("Loaded records", map[string]any{
		"stream": stream,
		"count":  len(records),
	})

	ctx := cmd.Context()
	processErr := sink.ProcessBatch(ctx, records)
	closeErr := sink.Close(ctx)

	for _, failure := range sink.FailedRecords() {
		logger.Error("Record could not be migrated", map[string]any{
			"stream": stream,
			"error":  failure.Err.Error(),
		})
	}

	if err := printStats(cmd.OutOrStdout(), sink.Stats()); err != nil {
		return err
	}

	return errors.Join(processErr, closeErr)
}

// readRecords decodes newline-delimited JSON records. Blank lines are
// skipped; a malformed line aborts the run before anything is written.
func readRecords(path string) ([]migrate.Record, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		reader = f
	}

	var records []migrate.Record
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var record migrate.Record
		if err := json.Unmarshal(text, &record); err != nil {
			return nil, fmt.Errorf("input line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return records, nil
}

func printStats(w io.Writer, stats migrate.SinkStats) error {
	summary := map[string]any{
		"records_processed":   stats.RecordsProcessed,
		"records_successful":  stats.RecordsSuccessful,
		"records_failed":      stats.RecordsFailed,
		"records_skipped":     stats.RecordsSkipped,
		"records_deleted":     stats.RecordsDeleted,
		"entries_transformed": stats.EntriesTransformed,
		"entries_validated":   stats.EntriesValidated,
		"validation_failures": stats.ValidationFailures,
		"entries_added":       stats.EntriesAdded,
		"entries_modified":    stats.EntriesModified,
		"dry_run_simulated":   stats.DryRunSimulated,
		"batches_processed":   stats.BatchesProcessed,
		"retries_attempted":   stats.RetriesAttempted,
		"retries_succeeded":   stats.RetriesSucceeded,
	}
	out, err := yaml.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, string(out))
	return err
}
