package ldap

import (
	"context"
	"crypto/tls"
	"time"
)

// ConnectionConfig holds configuration for the directory connection.
type ConnectionConfig struct {
	// Connection settings
	URL     string        `mapstructure:"url" yaml:"url"`         // ldap:// or ldaps:// URL
	BaseDN  string        `mapstructure:"base_dn" yaml:"base_dn"` // Base DN for entry placement
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" default:"30s"`

	// Authentication settings
	BindDN   string `mapstructure:"bind_dn" yaml:"bind_dn"`
	Password string `mapstructure:"password" yaml:"password"`

	// TLS settings
	TLSConfig *tls.Config `mapstructure:"-" yaml:"-"`
	StartTLS  bool        `mapstructure:"start_tls" yaml:"start_tls"`

	// Retry settings
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries" default:"3"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff" default:"500ms"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" default:"30s"`
	BackoffFactor  float64       `mapstructure:"backoff_factor" yaml:"backoff_factor" default:"2.0"`
}

// WriteOperation identifies which directory operation an upsert performed.
type WriteOperation string

const (
	OperationAdd    WriteOperation = "add"
	OperationModify WriteOperation = "modify"
	OperationDelete WriteOperation = "delete"
	OperationNone   WriteOperation = "none"
)

// Client provides the directory operations consumed by the batch sink.
type Client interface {
	// Connection management
	Connect(ctx context.Context) error
	Close() error

	// Upsert writes the entry, deciding between add and modify based on
	// whether the DN already exists.
	Upsert(ctx context.Context, dn string, objectClasses []string, attributes map[string][]string) (WriteOperation, error)

	// Delete removes the entry at dn.
	Delete(ctx context.Context, dn string) error

	// Exists reports whether an entry exists at dn.
	Exists(ctx context.Context, dn string) (bool, error)
}

// RetryableError indicates an error that can be retried.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool {
	return e.retryable
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}
