package migrate

import (
	"fmt"

	"github.com/creasty/defaults"

	"github.com/ldapmigrate/ldapmigrate/internal/ldap"
)

// Config controls the migration pipeline. Zero values are filled in by
// DefaultConfig or ApplyDefaults; boolean switches that default to on are
// set explicitly in DefaultConfig because a decoded false is
// indistinguishable from absent.
type Config struct {
	Connection ldap.ConnectionConfig `mapstructure:"connection" yaml:"connection"`

	BaseDN string `mapstructure:"base_dn" yaml:"base_dn"`

	EnableTransformation       bool       `mapstructure:"enable_transformation" yaml:"enable_transformation"`
	TransformationRules        []RuleSpec `mapstructure:"transformation_rules" yaml:"transformation_rules"`
	IgnoreTransformationErrors bool       `mapstructure:"ignore_transformation_errors" yaml:"ignore_transformation_errors"`
	PreserveOriginalAttributes bool       `mapstructure:"preserve_original_attributes" yaml:"preserve_original_attributes"`

	EnableValidation     bool `mapstructure:"enable_validation" yaml:"enable_validation"`
	ValidationStrictMode bool `mapstructure:"validation_strict_mode" yaml:"validation_strict_mode"`

	DryRunMode           bool `mapstructure:"dry_run_mode" yaml:"dry_run_mode"`
	DependencyResolution bool `mapstructure:"dependency_resolution" yaml:"dependency_resolution"`

	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" default:"100"`
	MaxErrors int `mapstructure:"max_errors" yaml:"max_errors" default:"10"`

	// DN rewriting for the built-in structure rule. Both patterns must be
	// set for the rule to activate.
	DNRewriteSourcePattern string `mapstructure:"dn_rewrite_source_pattern" yaml:"dn_rewrite_source_pattern"`
	DNRewriteTargetPattern string `mapstructure:"dn_rewrite_target_pattern" yaml:"dn_rewrite_target_pattern"`

	// DNTemplates maps a stream name to a DN template with {attribute}
	// placeholders, e.g. "uid={uid},ou=users,{base_dn}". Overrides the
	// stream profile's derivation for that stream.
	DNTemplates map[string]string `mapstructure:"dn_templates" yaml:"dn_templates"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{
		EnableTransformation:       true,
		IgnoreTransformationErrors: true,
		EnableValidation:           true,
		DependencyResolution:       true,
	}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("applying config defaults: %v", err))
	}
	return cfg
}

// ApplyDefaults fills zero-valued numeric and duration fields. Boolean
// defaults are not touched; callers decoding user input should start from
// DefaultConfig instead.
func (c *Config) ApplyDefaults() error {
	return defaults.Set(c)
}

// Validate reports configuration errors that would otherwise surface
// mid-batch.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxErrors < 0 {
		return fmt.Errorf("max_errors must not be negative, got %d", c.MaxErrors)
	}
	if (c.DNRewriteSourcePattern == "") != (c.DNRewriteTargetPattern == "") {
		return fmt.Errorf("dn_rewrite_source_pattern and dn_rewrite_target_pattern must be set together")
	}
	if !c.DryRunMode && c.Connection.URL == "" {
		return fmt.Errorf("connection.url is required unless dry_run_mode is enabled")
	}
	return nil
}
