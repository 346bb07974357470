// Package migrate implements the migration transformation core: a
// classifier that assigns each directory entry a type and confidence, an
// ordered rule engine that rewrites DNs, object classes, attributes, and
// access-control metadata, a validator that enforces schema invariants
// after transformation, and a batch sink that orders entries parents-first
// and writes them through the directory client with an error budget,
// dry-run simulation, and failure retry.
package migrate
