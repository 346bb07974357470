package migrate

import (
	"fmt"
	"sort"
)

// Rule is a compiled transformation rule: a predicate plus an action,
// applied in priority order (lower first). The compiled rule list is
// immutable for the lifetime of a processing run.
type Rule struct {
	Name        string
	Description string
	ActionName  string
	Priority    int
	Enabled     bool

	condition Condition
	action    ActionFunc
}

// RuleSpec is the declarative form of a rule, decodable from caller
// configuration and used for the built-in set.
type RuleSpec struct {
	Name        string         `mapstructure:"name" yaml:"name"`
	Description string         `mapstructure:"description" yaml:"description,omitempty"`
	Action      string         `mapstructure:"action" yaml:"action"`
	Priority    int            `mapstructure:"priority" yaml:"priority"`
	Enabled     *bool          `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Condition   ConditionSpec  `mapstructure:"condition" yaml:"condition"`
	Params      map[string]any `mapstructure:"params" yaml:"params,omitempty"`
}

// builtinRuleSpecs returns the built-in Oracle migration rule set,
// parameterized by configuration. The DN rewrite rule is only present
// when a source pattern is configured.
func builtinRuleSpecs(cfg *Config) []RuleSpec {
	specs := make([]RuleSpec, 0, 5)

	if cfg.DNRewriteSourcePattern != "" {
		specs = append(specs, RuleSpec{
			Name:        "oracle-dn-structure",
			Description: "Rewrite legacy DN suffixes to the target namespace",
			Action:      ActionRewriteDNStructure,
			Priority:    10,
			Condition: ConditionSpec{
				DNMatches: cfg.DNRewriteSourcePattern,
			},
			Params: map[string]any{
				"source_pattern": cfg.DNRewriteSourcePattern,
				"target_pattern": cfg.DNRewriteTargetPattern,
			},
		})
	}

	specs = append(specs,
		RuleSpec{
			Name:        "oracle-objectclass-conversion",
			Description: "Append standard object classes for legacy vendor classes",
			Action:      ActionConvertObjectClasses,
			Priority:    20,
			Condition: ConditionSpec{
				ObjectClassPrefix: legacyClassPrefix,
			},
		},
		RuleSpec{
			Name:        "oracle-attribute-mapping",
			Description: "Rename legacy vendor attributes to standard names",
			Action:      ActionMapLegacyAttributes,
			Priority:    30,
			Condition: ConditionSpec{
				Any: []ConditionSpec{
					{HasAttribute: "orclPassword"},
					{HasAttribute: "orclGUID"},
					{HasAttribute: "orclMailQuota"},
				},
			},
		},
		RuleSpec{
			Name:        "oracle-acl-conversion",
			Description: "Convert legacy access-control strings to the target privilege representation",
			Action:      ActionConvertACLFormat,
			Priority:    40,
			Condition: ConditionSpec{
				Any: []ConditionSpec{
					{HasAttribute: "orclaci"},
					{HasAttribute: "orclentrylevelaci"},
				},
			},
			Params: map[string]any{
				"preserve_original": cfg.PreserveOriginalAttributes,
			},
		},
		RuleSpec{
			Name:        "remove-empty-attributes",
			Description: "Strip attributes whose values are all empty",
			Action:      ActionRemoveEmptyAttributes,
			Priority:    90,
			Condition: ConditionSpec{
				Not: &ConditionSpec{EntryType: string(EntryTypeInternalMetadata)},
			},
		},
	)

	return specs
}

// RuleSet holds the compiled, priority-sorted rules for one run.
type RuleSet struct {
	rules    []*Rule
	registry *actionRegistry
}

// NewRuleSet creates an empty rule set with the built-in actions
// registered. Extension actions must be registered before LoadRules.
func NewRuleSet() *RuleSet {
	return &RuleSet{registry: newActionRegistry()}
}

// RegisterAction adds an extension action available to loaded rules.
func (rs *RuleSet) RegisterAction(name string, factory ActionFactory) error {
	return rs.registry.register(name, factory)
}

// LoadRules compiles the built-in rules for the configuration, merges the
// caller-supplied specs, and sorts by priority. Compilation failures
// (unknown actions, malformed conditions or parameters) abort the load.
func (rs *RuleSet) LoadRules(cfg *Config, callerSpecs []RuleSpec) error {
	specs := append(builtinRuleSpecs(cfg), callerSpecs...)

	seen := make(map[string]bool, len(specs))
	rules := make([]*Rule, 0, len(specs))

	for _, spec := range specs {
		if spec.Name == "" {
			return fmt.Errorf("rule with action %q has no name", spec.Action)
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate rule name %q", spec.Name)
		}
		seen[spec.Name] = true

		rule, err := rs.compile(spec)
		if err != nil {
			return fmt.Errorf("rule %q: %w", spec.Name, err)
		}
		rules = append(rules, rule)
	}

	// Stable sort keeps definition order for equal priorities.
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	rs.rules = rules
	return nil
}

func (rs *RuleSet) compile(spec RuleSpec) (*Rule, error) {
	condition, err := spec.Condition.Compile()
	if err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}

	action, err := rs.registry.resolve(spec.Action, spec.Params)
	if err != nil {
		return nil, err
	}

	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}

	return &Rule{
		Name:        spec.Name,
		Description: spec.Description,
		ActionName:  spec.Action,
		Priority:    spec.Priority,
		Enabled:     enabled,
		condition:   condition,
		action:      action,
	}, nil
}

// Rules returns the compiled rules in priority order.
func (rs *RuleSet) Rules() []*Rule {
	return rs.rules
}

// EnabledRules returns only the enabled rules, in priority order.
func (rs *RuleSet) EnabledRules() []*Rule {
	out := make([]*Rule, 0, len(rs.rules))
	for _, rule := range rs.rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out
}
