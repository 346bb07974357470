package migrate

import (
	"time"

	"github.com/google/uuid"

	"github.com/ldapmigrate/ldapmigrate/internal/logging"
)

// TransformationResult is the per-entry outcome of running the rule
// engine: the untouched original, the working copy mutated by successive
// rule applications, and what happened along the way. Created fresh per
// entry, never shared.
type TransformationResult struct {
	Success        bool
	Original       *Entry
	Transformed    *Entry
	Classification ClassificationResult
	AppliedRules   []string
	Warnings       []string
	Errors         []string
	Metadata       map[string]any
}

// NewTransformationResult captures the original entry and prepares the
// working copy.
func NewTransformationResult(entry *Entry) *TransformationResult {
	return &TransformationResult{
		Success:     true,
		Original:    entry.Clone(),
		Transformed: entry.Clone(),
		Metadata:    make(map[string]any),
	}
}

// Annotate records a free-form metadata annotation written by a rule action.
func (r *TransformationResult) Annotate(key string, value any) {
	r.Metadata[key] = value
}

// AddWarning records a non-blocking problem.
func (r *TransformationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError records a blocking problem and clears the success flag.
func (r *TransformationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Success = false
}

// AuditEvent records one entry's transformation for audit trails.
type AuditEvent struct {
	ID           uuid.UUID
	Timestamp    time.Time
	DN           string
	AppliedRules []string
	Before       *Entry
	After        *Entry
}

// AuditRecorder consumes audit events emitted by the engine.
type AuditRecorder interface {
	Record(event AuditEvent)
}

// logAuditRecorder writes audit events to the structured log.
type logAuditRecorder struct {
	logger logging.Logger
}

func (r *logAuditRecorder) Record(event AuditEvent) {
	r.logger.Info("Entry transformed", map[string]any{
		"audit_id":      event.ID.String(),
		"dn":            event.DN,
		"applied_rules": event.AppliedRules,
		"original_dn":   event.Before.DN,
	})
}

// EngineStats are the engine's cumulative counters. RuleApplications is a
// per-rule-name histogram.
type EngineStats struct {
	EntriesProcessed   int64
	EntriesTransformed int64
	RuleFailures       int64
	ConditionFailures  int64
	RuleApplications   map[string]int64
}

// Engine applies the classifier and the priority-ordered rule set to
// entries. One engine instance serves one stream; it is not safe for
// concurrent use.
type Engine struct {
	classifier *Classifier
	rules      []*Rule
	logger     logging.Logger
	recorder   AuditRecorder

	stats EngineStats
}

// NewEngine creates a transformation engine over the enabled rules of the
// given rule set.
func NewEngine(classifier *Classifier, rules *RuleSet, logger logging.Logger, recorder AuditRecorder) *Engine {
	engineLogger := logger.Named("engine")
	if recorder == nil {
		recorder = &logAuditRecorder{logger: engineLogger}
	}
	return &Engine{
		classifier: classifier,
		rules:      rules.EnabledRules(),
		logger:     engineLogger,
		recorder:   recorder,
		stats: EngineStats{
			RuleApplications: make(map[string]int64),
		},
	}
}

// Transform classifies the entry and applies every enabled rule whose
// condition holds, in priority order. Rule failures are isolated: a
// failing condition skips the rule with a warning, a failing action
// records an error and the remaining rules still run.
func (e *Engine) Transform(entry *Entry) *TransformationResult {
	e.stats.EntriesProcessed++

	result := NewTransformationResult(entry)
	result.Classification = e.classifier.Classify(entry.DN, entry.Attributes)

	ctx := &RuleContext{
		Entry:          result.Transformed,
		Classification: result.Classification,
	}

	for _, rule := range e.rules {
		matched, err := rule.condition(ctx)
		if err != nil {
			e.stats.ConditionFailures++
			result.AddWarning("condition for rule " + rule.Name + " failed: " + err.Error())
			e.logger.Warn("Rule condition evaluation failed, skipping rule", map[string]any{
				"rule":  rule.Name,
				"dn":    entry.DN,
				"error": err.Error(),
			})
			continue
		}
		if !matched {
			continue
		}

		changed, err := rule.action(result.Transformed, result)
		if err != nil {
			e.stats.RuleFailures++
			result.AddWarning("rule " + rule.Name + " failed: " + err.Error())
			result.Errors = append(result.Errors, "rule "+rule.Name+": "+err.Error())
			e.logger.Warn("Rule application failed, continuing with remaining rules", map[string]any{
				"rule":  rule.Name,
				"dn":    entry.DN,
				"error": err.Error(),
			})
			continue
		}
		if changed {
			result.AppliedRules = append(result.AppliedRules, rule.Name)
			e.stats.RuleApplications[rule.Name]++
		}
	}

	if len(result.Errors) > 0 {
		result.Success = false
	}

	if len(result.AppliedRules) > 0 {
		e.stats.EntriesTransformed++
		now := time.Now().UTC()
		result.Annotate("transformed_at", now.Format(time.RFC3339))
		e.recorder.Record(AuditEvent{
			ID:           uuid.New(),
			Timestamp:    now,
			DN:           result.Transformed.DN,
			AppliedRules: result.AppliedRules,
			Before:       result.Original,
			After:        result.Transformed,
		})
	}

	return result
}

// Stats returns a snapshot of the engine's cumulative statistics.
func (e *Engine) Stats() EngineStats {
	snapshot := e.stats
	snapshot.RuleApplications = make(map[string]int64, len(e.stats.RuleApplications))
	for k, v := range e.stats.RuleApplications {
		snapshot.RuleApplications[k] = v
	}
	return snapshot
}

// ResetStats clears the engine's cumulative statistics.
func (e *Engine) ResetStats() {
	e.stats = EngineStats{RuleApplications: make(map[string]int64)}
}
