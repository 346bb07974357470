// Package main provides the entry point for the ldapmigrate tool.
//
// ldapmigrate migrates directory entries from legacy Oracle-style LDAP
// deployments into standards-compliant LDAP directories: it classifies
// each entry, rewrites vendor-specific object classes, attributes, ACLs
// and DN structures, validates the result against the target schema, and
// writes entries in dependency order with an add-or-modify decision per
// DN.
//
// Usage:
//
//	ldapmigrate migrate --stream users --input users.ndjson
//	ldapmigrate migrate --stream groups --input - --dry-run
//	ldapmigrate rules
package main

import (
	"os"

	"github.com/ldapmigrate/ldapmigrate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
