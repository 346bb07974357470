package migrate

import (
	"fmt"
	"regexp"
	"strings"
)

// RuleContext is the fixed evaluation context a rule condition sees: the
// working entry, its classification, and convenience views of its DN and
// attributes.
type RuleContext struct {
	Entry          *Entry
	Classification ClassificationResult
}

// Condition is a compiled predicate over a RuleContext. Evaluation errors
// are reported to the caller, which treats them as "condition false".
type Condition func(ctx *RuleContext) (bool, error)

// ConditionSpec is the declarative form of a condition, decodable from
// YAML rule definitions. Multiple leaf fields set in one spec are
// conjoined; All/Any/Not provide explicit combinators.
type ConditionSpec struct {
	All []ConditionSpec `mapstructure:"all" yaml:"all,omitempty"`
	Any []ConditionSpec `mapstructure:"any" yaml:"any,omitempty"`
	Not *ConditionSpec  `mapstructure:"not" yaml:"not,omitempty"`

	DNContains        string `mapstructure:"dn_contains" yaml:"dn_contains,omitempty"`
	DNMatches         string `mapstructure:"dn_matches" yaml:"dn_matches,omitempty"`
	HasObjectClass    string `mapstructure:"has_object_class" yaml:"has_object_class,omitempty"`
	ObjectClassPrefix string `mapstructure:"object_class_prefix" yaml:"object_class_prefix,omitempty"`
	HasAttribute      string `mapstructure:"has_attribute" yaml:"has_attribute,omitempty"`
	EntryType         string `mapstructure:"entry_type" yaml:"entry_type,omitempty"`
	MetadataFlag      string `mapstructure:"metadata_flag" yaml:"metadata_flag,omitempty"`

	AttributeEquals *AttributeEqualsSpec `mapstructure:"attribute_equals" yaml:"attribute_equals,omitempty"`
}

// AttributeEqualsSpec matches when the named attribute carries the value.
type AttributeEqualsSpec struct {
	Attribute string `mapstructure:"attribute" yaml:"attribute"`
	Value     string `mapstructure:"value" yaml:"value"`
}

// knownEntryTypes guards entry_type specs against typos at compile time.
var knownEntryTypes = map[EntryType]bool{
	EntryTypeInternalMetadata: true,
	EntryTypeSchemaObject:     true,
	EntryTypeACLObject:        true,
	EntryTypeLegacyUser:       true,
	EntryTypeLegacyData:       true,
	EntryTypeBusinessData:     true,
	EntryTypeUser:             true,
	EntryTypeGroup:            true,
	EntryTypeOrgUnit:          true,
	EntryTypeUnknown:          true,
}

// Compile translates the declarative spec into an executable predicate.
// All structural problems (unknown entry types, malformed regular
// expressions, empty specs) surface here, at rule-load time.
func (s ConditionSpec) Compile() (Condition, error) {
	var conditions []Condition

	for i, sub := range s.All {
		compiled, err := sub.Compile()
		if err != nil {
			return nil, fmt.Errorf("all[%d]: %w", i, err)
		}
		conditions = append(conditions, compiled)
	}

	if len(s.Any) > 0 {
		var members []Condition
		for i, sub := range s.Any {
			compiled, err := sub.Compile()
			if err != nil {
				return nil, fmt.Errorf("any[%d]: %w", i, err)
			}
			members = append(members, compiled)
		}
		conditions = append(conditions, anyOf(members))
	}

	if s.Not != nil {
		inner, err := s.Not.Compile()
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		conditions = append(conditions, negate(inner))
	}

	if s.DNContains != "" {
		conditions = append(conditions, dnContains(s.DNContains))
	}

	if s.DNMatches != "" {
		pattern, err := regexp.Compile(s.DNMatches)
		if err != nil {
			return nil, fmt.Errorf("dn_matches: invalid pattern %q: %w", s.DNMatches, err)
		}
		conditions = append(conditions, dnMatches(pattern))
	}

	if s.HasObjectClass != "" {
		conditions = append(conditions, hasObjectClass(s.HasObjectClass))
	}

	if s.ObjectClassPrefix != "" {
		conditions = append(conditions, objectClassPrefix(s.ObjectClassPrefix))
	}

	if s.HasAttribute != "" {
		conditions = append(conditions, hasAttribute(s.HasAttribute))
	}

	if s.AttributeEquals != nil {
		if s.AttributeEquals.Attribute == "" {
			return nil, fmt.Errorf("attribute_equals: attribute name is required")
		}
		conditions = append(conditions, attributeEquals(s.AttributeEquals.Attribute, s.AttributeEquals.Value))
	}

	if s.EntryType != "" {
		entryType := EntryType(s.EntryType)
		if !knownEntryTypes[entryType] {
			return nil, fmt.Errorf("entry_type: unknown entry type %q", s.EntryType)
		}
		conditions = append(conditions, entryTypeIs(entryType))
	}

	if s.MetadataFlag != "" {
		conditions = append(conditions, metadataFlag(s.MetadataFlag))
	}

	if len(conditions) == 0 {
		return nil, fmt.Errorf("condition spec is empty")
	}
	if len(conditions) == 1 {
		return conditions[0], nil
	}
	return allOf(conditions), nil
}

// Combinators.

func allOf(members []Condition) Condition {
	return func(ctx *RuleContext) (bool, error) {
		for _, member := range members {
			ok, err := member(ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

func anyOf(members []Condition) Condition {
	return func(ctx *RuleContext) (bool, error) {
		for _, member := range members {
			ok, err := member(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

func negate(inner Condition) Condition {
	return func(ctx *RuleContext) (bool, error) {
		ok, err := inner(ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// Leaf predicates. All string comparisons are case-insensitive, matching
// directory semantics.

func dnContains(substr string) Condition {
	lower := strings.ToLower(substr)
	return func(ctx *RuleContext) (bool, error) {
		if ctx.Entry == nil {
			return false, fmt.Errorf("no entry in rule context")
		}
		return strings.Contains(strings.ToLower(ctx.Entry.DN), lower), nil
	}
}

func dnMatches(pattern *regexp.Regexp) Condition {
	return func(ctx *RuleContext) (bool, error) {
		if ctx.Entry == nil {
			return false, fmt.Errorf("no entry in rule context")
		}
		return pattern.MatchString(ctx.Entry.DN), nil
	}
}

func hasObjectClass(name string) Condition {
	return func(ctx *RuleContext) (bool, error) {
		if ctx.Entry == nil {
			return false, fmt.Errorf("no entry in rule context")
		}
		return ctx.Entry.HasObjectClass(name), nil
	}
}

func objectClassPrefix(prefix string) Condition {
	lower := strings.ToLower(prefix)
	return func(ctx *RuleContext) (bool, error) {
		if ctx.Entry == nil {
			return false, fmt.Errorf("no entry in rule context")
		}
		for _, oc := range ctx.Entry.ObjectClasses() {
			if strings.HasPrefix(strings.ToLower(oc), lower) {
				return true, nil
			}
		}
		return false, nil
	}
}

func hasAttribute(name string) Condition {
	return func(ctx *RuleContext) (bool, error) {
		if ctx.Entry == nil {
			return false, fmt.Errorf("no entry in rule context")
		}
		return ctx.Entry.Attributes.Has(name), nil
	}
}

func attributeEquals(name, value string) Condition {
	lower := strings.ToLower(value)
	return func(ctx *RuleContext) (bool, error) {
		if ctx.Entry == nil {
			return false, fmt.Errorf("no entry in rule context")
		}
		for _, v := range ctx.Entry.Attributes.Get(name) {
			if strings.ToLower(v) == lower {
				return true, nil
			}
		}
		return false, nil
	}
}

func entryTypeIs(entryType EntryType) Condition {
	return func(ctx *RuleContext) (bool, error) {
		return ctx.Classification.EntryType == entryType, nil
	}
}

func metadataFlag(key string) Condition {
	return func(ctx *RuleContext) (bool, error) {
		return ctx.Classification.Metadata[key], nil
	}
}
