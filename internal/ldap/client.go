package ldap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/ldapmigrate/ldapmigrate/internal/logging"
)

// rawConn is the subset of *ldap.Conn used by the client. Narrowed to an
// interface so tests can substitute a fake connection.
type rawConn interface {
	Bind(username, password string) error
	Add(req *ldap.AddRequest) error
	Modify(req *ldap.ModifyRequest) error
	Del(req *ldap.DelRequest) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// client implements the Client interface over a single directory connection.
// The migration pipeline writes entries strictly sequentially, so no
// connection pooling is needed.
type client struct {
	config *ConnectionConfig
	logger logging.Logger
	conn   rawConn

	// dial is replaceable in tests.
	dial func(config *ConnectionConfig) (rawConn, error)
}

// NewClient creates a new directory client.
func NewClient(config *ConnectionConfig, logger logging.Logger) Client {
	return &client{
		config: config,
		logger: logger.Named("ldap"),
		dial:   dialLDAP,
	}
}

// dialLDAP establishes the underlying go-ldap connection.
func dialLDAP(config *ConnectionConfig) (rawConn, error) {
	var opts []ldap.DialOpt
	if config.TLSConfig != nil {
		opts = append(opts, ldap.DialWithTLSConfig(config.TLSConfig))
	}

	conn, err := ldap.DialURL(config.URL, opts...)
	if err != nil {
		return nil, err
	}

	conn.SetTimeout(config.Timeout)

	if config.StartTLS {
		if err := conn.StartTLS(config.TLSConfig); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("StartTLS failed: %w", err)
		}
	}

	return conn, nil
}

// Connect dials the directory server and binds with the configured identity.
func (c *client) Connect(ctx context.Context) error {
	return logging.LogOperation(c.logger, "connect", map[string]any{
		"url":     c.config.URL,
		"bind_dn": c.config.BindDN,
	}, func() error {
		conn, err := c.dial(c.config)
		if err != nil {
			return NewConnectionError("failed to connect to directory", true, err)
		}
		c.conn = conn

		if c.config.BindDN == "" {
			c.logger.Debug("No bind DN configured, proceeding unauthenticated", nil)
			return nil
		}

		return c.withRetry(ctx, "bind", func() error {
			return c.conn.Bind(c.config.BindDN, c.config.Password)
		})
	})
}

// Close closes the directory connection.
func (c *client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Exists reports whether an entry exists at dn.
func (c *client) Exists(ctx context.Context, dn string) (bool, error) {
	if err := c.ensureConnected(); err != nil {
		return false, err
	}

	searchReq := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, int(c.config.Timeout.Seconds()), false,
		"(objectClass=*)",
		[]string{"1.1"}, // No attributes, presence check only
		nil,
	)

	var result *ldap.SearchResult
	err := c.withRetry(ctx, "exists", func() error {
		var searchErr error
		result, searchErr = c.conn.Search(searchReq)
		return searchErr
	})

	if err != nil {
		if IsNotFoundError(err) {
			return false, nil
		}
		return false, NewDirectoryError("exists", dn, err)
	}

	return len(result.Entries) > 0, nil
}

// Upsert writes an entry, adding it if absent and replacing its attributes
// if present. The objectClass attribute is always carried alongside the
// entry attributes.
func (c *client) Upsert(ctx context.Context, dn string, objectClasses []string, attributes map[string][]string) (WriteOperation, error) {
	if err := c.ensureConnected(); err != nil {
		return OperationNone, err
	}

	if err := ValidateDNSyntax(dn); err != nil {
		return OperationNone, NewDirectoryError("upsert", dn, err)
	}

	exists, err := c.Exists(ctx, dn)
	if err != nil {
		return OperationNone, err
	}

	fields := map[string]any{
		"dn":              dn,
		"attribute_count": len(attributes),
		"object_classes":  objectClasses,
	}

	if exists {
		c.logger.Debug("Entry exists, modifying", fields)
		if err := c.modify(ctx, dn, objectClasses, attributes); err != nil {
			return OperationNone, err
		}
		return OperationModify, nil
	}

	c.logger.Debug("Entry absent, adding", fields)
	if err := c.add(ctx, dn, objectClasses, attributes); err != nil {
		return OperationNone, err
	}
	return OperationAdd, nil
}

func (c *client) add(ctx context.Context, dn string, objectClasses []string, attributes map[string][]string) error {
	req := ldap.NewAddRequest(dn, nil)

	if len(objectClasses) > 0 {
		req.Attribute("objectClass", objectClasses)
	}
	for attr, values := range attributes {
		if attr == "objectClass" || len(values) == 0 {
			continue
		}
		req.Attribute(attr, values)
	}

	err := c.withRetry(ctx, "add", func() error {
		return c.conn.Add(req)
	})
	if err != nil {
		return NewDirectoryError("add", dn, err)
	}
	return nil
}

func (c *client) modify(ctx context.Context, dn string, objectClasses []string, attributes map[string][]string) error {
	req := ldap.NewModifyRequest(dn, nil)

	if len(objectClasses) > 0 {
		req.Replace("objectClass", objectClasses)
	}
	for attr, values := range attributes {
		if attr == "objectClass" || len(values) == 0 {
			continue
		}
		req.Replace(attr, values)
	}

	err := c.withRetry(ctx, "modify", func() error {
		return c.conn.Modify(req)
	})
	if err != nil {
		return NewDirectoryError("modify", dn, err)
	}
	return nil
}

// Delete removes the entry at dn.
func (c *client) Delete(ctx context.Context, dn string) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}

	req := ldap.NewDelRequest(dn, nil)

	err := c.withRetry(ctx, "delete", func() error {
		return c.conn.Del(req)
	})
	if err != nil {
		return NewDirectoryError("delete", dn, err)
	}
	return nil
}

func (c *client) ensureConnected() error {
	if c.conn == nil {
		return NewConnectionError("client is not connected", false, nil)
	}
	return nil
}

// withRetry executes an operation with exponential backoff.
func (c *client) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying operation", map[string]any{
				"operation":  operation,
				"attempt":    attempt,
				"max_retry":  c.config.MaxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Operation succeeded after retries", map[string]any{
					"operation":      operation,
					"total_attempts": attempt + 1,
				})
			}
			return nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return err
		}

		if attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			c.logger.Warn("Operation cancelled during retry", map[string]any{
				"operation":     operation,
				"context_error": ctx.Err().Error(),
			})
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	c.logger.Error("Operation failed after all retries exhausted", map[string]any{
		"operation":      operation,
		"total_attempts": c.config.MaxRetries + 1,
		"final_error":    lastErr.Error(),
	})

	return NewConnectionError("operation failed after retries", false, lastErr)
}
