// Package ldap provides the directory client used by the migration pipeline.
//
// The client wraps go-ldap with typed requests, retry with exponential
// backoff, and upsert semantics (exists check followed by add or modify).
// DN utilities for parsing, escaping, and depth computation live here as
// well, shared by the transformation core and the batch resolver.
package ldap
