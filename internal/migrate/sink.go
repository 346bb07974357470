package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ldapmigrate/ldapmigrate/internal/ldap"
	"github.com/ldapmigrate/ldapmigrate/internal/logging"
)

// ErrMaxErrorsExceeded aborts a batch once the error budget is spent. No
// further records are submitted after it is returned.
var ErrMaxErrorsExceeded = errors.New("maximum error count exceeded")

// sinkState tracks the sink's lifecycle. Transitions only move forward
// except processing→draining→processing across Close.
type sinkState int

const (
	stateIdle sinkState = iota
	stateConnecting
	stateProcessing
	stateDraining
	stateClosed
)

func (s sinkState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateProcessing:
		return "processing"
	case stateDraining:
		return "draining"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("sinkState(%d)", int(s))
	}
}

// SinkStats are the sink's cumulative counters for one stream.
type SinkStats struct {
	RecordsProcessed   int64
	RecordsSuccessful  int64
	RecordsFailed      int64
	RecordsSkipped     int64
	RecordsDeleted     int64
	EntriesTransformed int64
	EntriesValidated   int64
	ValidationFailures int64
	DryRunSimulated    int64
	EntriesAdded       int64
	EntriesModified    int64
	BatchesProcessed   int64
	DependencyOrdered  int64
	RetriesAttempted   int64
	RetriesSucceeded   int64
}

// Sink drives records from a stream through classification,
// transformation, validation, and finally the directory write. One sink
// serves one stream and is not safe for concurrent use.
type Sink struct {
	stream    string
	config    *Config
	client    ldap.Client
	profile   *StreamProfile
	engine    *Engine
	validator *Validator
	resolver  *DependencyResolver
	logger    logging.Logger

	state      sinkState
	errorCount int
	failed     []FailedRecord
	stats      SinkStats
	dnTemplate string
}

// FailedRecord pairs a record with the error that kept it out of the
// directory, so the retry pass and final reporting both see the cause.
type FailedRecord struct {
	Record Record
	Err    error
}

// NewSink wires a sink for one stream. The client may be nil only in dry
// run mode.
func NewSink(stream string, cfg *Config, client ldap.Client, logger logging.Logger) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sink configuration: %w", err)
	}
	if client == nil && !cfg.DryRunMode {
		return nil, errors.New("a directory client is required unless dry_run_mode is enabled")
	}

	profile := ProfileForStream(stream)
	template := cfg.DNTemplates[stream]
	sinkLogger := logger.Named("sink").With(map[string]any{"stream": stream})

	rules := NewRuleSet()
	if err := rules.LoadRules(cfg, cfg.TransformationRules); err != nil {
		return nil, fmt.Errorf("loading transformation rules: %w", err)
	}

	return &Sink{
		stream:     stream,
		config:     cfg,
		client:     client,
		profile:    profile,
		engine:     NewEngine(NewClassifier(), rules, sinkLogger, nil),
		validator:  NewValidator(cfg.ValidationStrictMode, sinkLogger),
		resolver:   NewDependencyResolver(profile, template, cfg.BaseDN, sinkLogger),
		logger:     sinkLogger,
		state:      stateIdle,
		dnTemplate: template,
	}, nil
}

// ProcessBatch runs a slice of records through the pipeline in
// configured-size chunks. It returns ErrMaxErrorsExceeded as soon as the
// error budget is spent; records after that point are not submitted.
func (s *Sink) ProcessBatch(ctx context.Context, records []Record) error {
	if s.state == stateClosed {
		return errors.New("sink is closed")
	}
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	s.state = stateProcessing

	if s.config.DependencyResolution {
		var resolved int
		records, resolved = s.resolver.Order(records)
		s.stats.DependencyOrdered += int64(resolved)
	}

	batchSize := s.config.BatchSize
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		s.stats.BatchesProcessed++

		for _, record := range records[start:end] {
			if s.config.MaxErrors > 0 && s.errorCount >= s.config.MaxErrors {
				s.logger.Error("Error budget exhausted, aborting batch", map[string]any{
					"errors":     s.errorCount,
					"max_errors": s.config.MaxErrors,
				})
				return ErrMaxErrorsExceeded
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			s.stats.RecordsProcessed++
			if err := s.processRecord(ctx, record); err != nil {
				s.recordFailure(record, err)
			} else {
				s.stats.RecordsSuccessful++
			}
		}
	}
	return nil
}

func (s *Sink) ensureConnected(ctx context.Context) error {
	if s.config.DryRunMode || s.client == nil || s.state != stateIdle {
		return nil
	}
	s.state = stateConnecting
	if err := s.client.Connect(ctx); err != nil {
		s.state = stateIdle
		return fmt.Errorf("connecting to target directory: %w", err)
	}
	return nil
}

func (s *Sink) recordFailure(record Record, err error) {
	s.stats.RecordsFailed++
	s.errorCount++
	s.failed = append(s.failed, FailedRecord{Record: record, Err: err})
	s.logger.Warn("Record failed, queued for retry", map[string]any{
		"error":       err.Error(),
		"error_count": s.errorCount,
	})
}

// processRecord runs exactly one record through the full pipeline.
func (s *Sink) processRecord(ctx context.Context, record Record) error {
	if record.IsDeletion() {
		return s.deleteRecord(ctx, record)
	}

	entry, err := s.profile.BuildEntry(record, s.dnTemplate, s.config.BaseDN)
	if err != nil {
		return err
	}

	classification := s.engine.classifier.Classify(entry.DN, entry.Attributes)
	if classification.SkipMigration() {
		s.stats.RecordsSkipped++
		s.logger.Debug("Skipping non-migratable entry", map[string]any{
			"dn":         entry.DN,
			"entry_type": string(classification.EntryType),
		})
		return nil
	}

	if s.config.EnableTransformation {
		result := s.engine.Transform(entry)
		if !result.Success && !s.config.IgnoreTransformationErrors {
			return fmt.Errorf("transformation failed for %s: %s", entry.DN, strings.Join(result.Errors, "; "))
		}
		if len(result.AppliedRules) > 0 {
			s.stats.EntriesTransformed++
		}
		entry = result.Transformed
	}

	if s.config.EnableValidation {
		validation := s.validator.Validate(entry)
		s.stats.EntriesValidated++
		if !validation.Valid {
			s.stats.ValidationFailures++
			if s.config.ValidationStrictMode {
				return fmt.Errorf("validation failed for %s: %s", entry.DN, strings.Join(validation.Errors, "; "))
			}
			// Advisory outside strict mode: the entry is still written.
			s.logger.Warn("Entry failed validation, writing anyway", map[string]any{
				"dn":     entry.DN,
				"errors": validation.Errors,
			})
		}
	}

	return s.writeEntry(ctx, entry)
}

func (s *Sink) deleteRecord(ctx context.Context, record Record) error {
	dn, err := s.profile.DeriveDN(record, s.dnTemplate, s.config.BaseDN)
	if err != nil {
		return fmt.Errorf("resolving DN for deletion: %w", err)
	}
	if s.config.DryRunMode {
		s.stats.DryRunSimulated++
		s.logger.Info("Dry run: would delete entry", map[string]any{"dn": dn})
		return nil
	}
	if err := s.client.Delete(ctx, dn); err != nil {
		if ldap.IsNotFoundError(err) {
			s.logger.Debug("Entry already absent, treating delete as success", map[string]any{"dn": dn})
			s.stats.RecordsDeleted++
			return nil
		}
		return err
	}
	s.stats.RecordsDeleted++
	return nil
}

func (s *Sink) writeEntry(ctx context.Context, entry *Entry) error {
	if s.config.DryRunMode {
		s.stats.DryRunSimulated++
		s.logger.Info("Dry run: would upsert entry", map[string]any{
			"dn":             entry.DN,
			"object_classes": entry.ObjectClasses(),
		})
		return nil
	}

	attrs := make(map[string][]string, len(entry.Attributes))
	for name, values := range entry.Attributes {
		if strings.EqualFold(name, "objectClass") {
			continue
		}
		attrs[name] = values
	}

	op, err := s.client.Upsert(ctx, entry.DN, entry.ObjectClasses(), attrs)
	if err != nil {
		return err
	}
	switch op {
	case ldap.OperationAdd:
		s.stats.EntriesAdded++
	case ldap.OperationModify:
		s.stats.EntriesModified++
	}
	return nil
}

// Close drains the failed-record queue with one retry pass each, then
// closes the directory connection. The sink cannot be reused afterwards.
func (s *Sink) Close(ctx context.Context) error {
	if s.state == stateClosed {
		return nil
	}
	s.state = stateDraining

	var retryErr error
	if len(s.failed) > 0 {
		s.logger.Info("Retrying failed records before close", map[string]any{
			"count": len(s.failed),
		})
		queue := s.failed
		s.failed = nil
		for _, failure := range queue {
			s.stats.RetriesAttempted++
			if err := s.processRecord(ctx, failure.Record); err != nil {
				s.failed = append(s.failed, FailedRecord{Record: failure.Record, Err: err})
				retryErr = errors.Join(retryErr, err)
				continue
			}
			s.stats.RetriesSucceeded++
			s.stats.RecordsFailed--
			s.stats.RecordsSuccessful++
		}
	}

	s.state = stateClosed
	if s.client != nil && !s.config.DryRunMode {
		if err := s.client.Close(); err != nil {
			retryErr = errors.Join(retryErr, err)
		}
	}

	s.logSummary()
	return retryErr
}

func (s *Sink) logSummary() {
	s.logger.Info("Stream processing summary", map[string]any{
		"records_processed":   s.stats.RecordsProcessed,
		"records_successful":  s.stats.RecordsSuccessful,
		"records_failed":      s.stats.RecordsFailed,
		"records_skipped":     s.stats.RecordsSkipped,
		"records_deleted":     s.stats.RecordsDeleted,
		"entries_transformed": s.stats.EntriesTransformed,
		"entries_validated":   s.stats.EntriesValidated,
		"validation_failures": s.stats.ValidationFailures,
		"dry_run_simulated":   s.stats.DryRunSimulated,
		"entries_added":       s.stats.EntriesAdded,
		"entries_modified":    s.stats.EntriesModified,
		"batches_processed":   s.stats.BatchesProcessed,
	})
}

// Stats returns a snapshot of the sink's counters.
func (s *Sink) Stats() SinkStats {
	return s.stats
}

// FailedRecords returns a copy of the failure queue: records that have not
// been written, each paired with the most recent error.
func (s *Sink) FailedRecords() []FailedRecord {
	out := make([]FailedRecord, len(s.failed))
	copy(out, s.failed)
	return out
}

// EngineStats returns the rule engine's counters, including the per-rule
// application histogram.
func (s *Sink) EngineStats() EngineStats {
	return s.engine.Stats()
}

// ValidationStats returns the validator's cumulative pass and fail counts.
func (s *Sink) ValidationStats() (passed, failed int64) {
	return s.validator.Stats()
}

// ResetStats clears the sink's counters and the error budget. The retry
// queue is preserved.
func (s *Sink) ResetStats() {
	s.stats = SinkStats{}
	s.errorCount = 0
	s.engine.ResetStats()
	s.validator.ResetStats()
}
