package migrate

import (
	"fmt"
	"regexp"
	"strings"
)

// Built-in action names. Rule definitions reference actions by name;
// unknown names fail at rule-load time.
const (
	ActionRewriteDNStructure    = "rewrite-dn-structure"
	ActionConvertObjectClasses  = "convert-legacy-object-classes"
	ActionMapLegacyAttributes   = "map-legacy-attributes"
	ActionConvertACLFormat      = "convert-acl-format"
	ActionRemoveEmptyAttributes = "remove-empty-attributes"
)

// ActionFunc mutates the working entry and annotates the transformation
// result. It reports whether the entry actually changed, so re-running an
// already-transformed entry records no further rule applications.
// Returned errors are recorded against the entry without stopping the
// remaining rules.
type ActionFunc func(entry *Entry, result *TransformationResult) (bool, error)

// ActionFactory compiles action parameters into an executable action.
// Parameter problems surface at rule-load time, not during processing.
type ActionFactory func(params map[string]any) (ActionFunc, error)

// actionRegistry maps action names to factories. Built-ins are registered
// here; callers may add extension actions before rules are loaded.
type actionRegistry struct {
	factories map[string]ActionFactory
}

func newActionRegistry() *actionRegistry {
	r := &actionRegistry{factories: make(map[string]ActionFactory)}
	r.factories[ActionRewriteDNStructure] = newRewriteDNAction
	r.factories[ActionConvertObjectClasses] = newConvertObjectClassesAction
	r.factories[ActionMapLegacyAttributes] = newMapAttributesAction
	r.factories[ActionConvertACLFormat] = newConvertACLAction
	r.factories[ActionRemoveEmptyAttributes] = newRemoveEmptyAttributesAction
	return r
}

// register adds an extension action. Registering over a built-in name is
// rejected.
func (r *actionRegistry) register(name string, factory ActionFactory) error {
	if name == "" {
		return fmt.Errorf("action name cannot be empty")
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("action %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// resolve compiles the named action with its parameters.
func (r *actionRegistry) resolve(name string, params map[string]any) (ActionFunc, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", name)
	}
	action, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", name, err)
	}
	return action, nil
}

// newRewriteDNAction builds a DN rewrite from a source/target pattern pair.
//
// Parameters: source_pattern (regular expression), target_pattern
// (replacement, may reference capture groups).
func newRewriteDNAction(params map[string]any) (ActionFunc, error) {
	source, err := paramString(params, "source_pattern", true)
	if err != nil {
		return nil, err
	}
	target, err := paramString(params, "target_pattern", false)
	if err != nil {
		return nil, err
	}

	pattern, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("invalid source_pattern %q: %w", source, err)
	}

	return func(entry *Entry, result *TransformationResult) (bool, error) {
		from := entry.DN
		to := pattern.ReplaceAllString(from, target)
		if to == from {
			return false, nil
		}
		if strings.TrimSpace(to) == "" {
			return false, fmt.Errorf("DN rewrite produced an empty DN from %q", from)
		}
		entry.DN = to
		result.Annotate("dn_transformed", map[string]string{"from": from, "to": to})
		return true, nil
	}, nil
}

// defaultObjectClassMappings converts the legacy Oracle classes to their
// standards-compliant equivalents.
var defaultObjectClassMappings = map[string][]string{
	"orcluser":           {"inetOrgPerson", "person"},
	"orcluserv2":         {"inetOrgPerson", "person"},
	"orclgroup":          {"groupOfNames"},
	"orclprivilegegroup": {"groupOfNames"},
	"orclcontainer":      {"organizationalUnit"},
}

// newConvertObjectClassesAction appends mapped standard object classes for
// each legacy class present, retaining the originals and deduplicating
// while preserving order.
//
// Parameters: mappings (legacy class → list of standard classes; defaults
// to the built-in Oracle table).
func newConvertObjectClassesAction(params map[string]any) (ActionFunc, error) {
	mappings, err := paramStringSliceMap(params, "mappings")
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		mappings = defaultObjectClassMappings
	}

	lowered := make(map[string][]string, len(mappings))
	for legacy, standard := range mappings {
		lowered[strings.ToLower(legacy)] = standard
	}

	return func(entry *Entry, result *TransformationResult) (bool, error) {
		current := entry.ObjectClasses()
		if len(current) == 0 {
			return false, nil
		}

		converted := make([]string, 0, len(current)+2)
		seen := make(map[string]bool, len(current)+2)
		appendClass := func(oc string) {
			key := strings.ToLower(oc)
			if !seen[key] {
				seen[key] = true
				converted = append(converted, oc)
			}
		}

		var mapped []string
		for _, oc := range current {
			appendClass(oc)
			for _, standard := range lowered[strings.ToLower(oc)] {
				appendClass(standard)
				mapped = append(mapped, oc+"→"+standard)
			}
		}

		if len(converted) == len(current) {
			return false, nil
		}

		entry.Attributes.Set("objectClass", converted)
		result.Annotate("object_classes_converted", mapped)
		return true, nil
	}, nil
}

// defaultAttributeMappings renames legacy Oracle attributes to their
// standard counterparts.
var defaultAttributeMappings = map[string]string{
	"orclpassword":  "userPassword",
	"orclguid":      "entryUUID",
	"orclmailquota": "mailQuota",
}

// newMapAttributesAction renames attribute keys per the configured table,
// moving (not copying) values. Existing values under the new name win.
//
// Parameters: mappings (old attribute name → new attribute name; defaults
// to the built-in Oracle table).
func newMapAttributesAction(params map[string]any) (ActionFunc, error) {
	mappings, err := paramStringMap(params, "mappings")
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		mappings = defaultAttributeMappings
	}

	return func(entry *Entry, result *TransformationResult) (bool, error) {
		changed := false
		var renamed []string
		for oldName, newName := range mappings {
			values := entry.Attributes.Get(oldName)
			if len(values) == 0 {
				continue
			}
			if entry.Attributes.Has(newName) {
				result.AddWarning(fmt.Sprintf("attribute %s already present, dropping legacy %s", newName, oldName))
				entry.Attributes.Delete(oldName)
				changed = true
				continue
			}
			entry.Attributes.Delete(oldName)
			entry.Attributes.Set(newName, values)
			renamed = append(renamed, oldName+"→"+newName)
			changed = true
		}
		if len(renamed) > 0 {
			result.Annotate("attributes_mapped", renamed)
		}
		return changed, nil
	}, nil
}

// newConvertACLAction converts legacy access-control strings into the
// target privilege representation. The conversion is best-effort and
// lossy; unconvertible values pass through with a warning.
//
// Parameters: source_attributes (defaults to orclaci and
// orclentrylevelaci), target_attribute (defaults to aci),
// preserve_original (keep the legacy attribute alongside the converted
// one).
func newConvertACLAction(params map[string]any) (ActionFunc, error) {
	sources, err := paramStringSlice(params, "source_attributes")
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		sources = []string{"orclaci", "orclentrylevelaci"}
	}

	target, err := paramString(params, "target_attribute", false)
	if err != nil {
		return nil, err
	}
	if target == "" {
		target = "aci"
	}

	preserve, err := paramBool(params, "preserve_original")
	if err != nil {
		return nil, err
	}

	return func(entry *Entry, result *TransformationResult) (bool, error) {
		var converted []string
		var sourcesSeen []string

		for _, source := range sources {
			values := entry.Attributes.Get(source)
			if len(values) == 0 {
				continue
			}
			sourcesSeen = append(sourcesSeen, source)
			for _, value := range values {
				aci, exact := convertLegacyACL(value)
				if !exact {
					result.AddWarning(fmt.Sprintf("lossy ACL conversion for %s value %q", source, value))
				}
				converted = append(converted, aci)
			}
			if !preserve {
				entry.Attributes.Delete(source)
			}
		}

		if len(converted) == 0 {
			return false, nil
		}

		existing := entry.Attributes.Get(target)
		entry.Attributes.Set(target, append(existing, converted...))
		result.Annotate("acl_converted", map[string]any{
			"sources": sourcesSeen,
			"target":  target,
			"count":   len(converted),
		})
		return true, nil
	}, nil
}

// Legacy ACL grammar fragments, matched leniently.
var (
	aclAttrPattern    = regexp.MustCompile(`(?i)access\s+to\s+attr\s*=\s*\(([^)]*)\)`)
	aclSubjectPattern = regexp.MustCompile(`(?i)by\s+(group\s*=\s*"([^"]+)"|dn\s*=\s*"([^"]+)"|self|\*)\s*\(([^)]*)\)`)
)

// convertLegacyACL translates one legacy access-control string to the
// target "aci" syntax. Returns the converted value and whether the
// conversion captured the whole source semantics.
func convertLegacyACL(value string) (string, bool) {
	subjects := aclSubjectPattern.FindAllStringSubmatch(value, -1)
	if len(subjects) == 0 {
		// Nothing recognizable; wrap the raw value so nothing is silently lost.
		return fmt.Sprintf(`(version 3.0; acl "migrated-unparsed"; # %s)`, value), false
	}

	targetAttr := "*"
	if m := aclAttrPattern.FindStringSubmatch(value); m != nil {
		attrs := strings.Split(m[1], ",")
		for i := range attrs {
			attrs[i] = strings.TrimSpace(attrs[i])
		}
		targetAttr = strings.Join(attrs, " || ")
	}

	exact := true
	var clauses []string
	for _, m := range subjects {
		privileges := normalizeACLPrivileges(m[4], &exact)
		subject := ""
		switch {
		case m[2] != "": // group="..."
			subject = fmt.Sprintf(`groupdn="ldap:///%s"`, m[2])
		case m[3] != "": // dn="..."
			subject = fmt.Sprintf(`userdn="ldap:///%s"`, m[3])
		case strings.EqualFold(strings.TrimSpace(m[1]), "self"):
			subject = `userdn="ldap:///self"`
		default: // *
			subject = `userdn="ldap:///anyone"`
		}
		clauses = append(clauses, fmt.Sprintf("allow (%s) %s;", privileges, subject))
	}

	return fmt.Sprintf(`(targetattr = "%s")(version 3.0; acl "migrated"; %s)`, targetAttr, strings.Join(clauses, " ")), exact
}

// legacyPrivilegeMap translates legacy privilege keywords; anything not in
// the table passes through and marks the conversion lossy.
var legacyPrivilegeMap = map[string]string{
	"browse":           "read",
	"read":             "read",
	"search":           "search",
	"write":            "write",
	"selfwrite":        "selfwrite",
	"add":              "add",
	"delete":           "delete",
	"compare":          "compare",
	"proxy":            "proxy",
	"nomatchingfilter": "",
}

func normalizeACLPrivileges(raw string, exact *bool) string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		privilege := strings.ToLower(strings.TrimSpace(part))
		if privilege == "" {
			continue
		}
		mapped, known := legacyPrivilegeMap[privilege]
		if !known {
			*exact = false
			out = append(out, privilege)
			continue
		}
		if mapped == "" {
			// Keyword has no equivalent in the target representation.
			*exact = false
			continue
		}
		out = append(out, mapped)
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, ",")
}

// newRemoveEmptyAttributesAction strips attributes whose values are all
// empty, except for a protected set.
//
// Parameters: protected (attribute names never removed; objectClass and
// the DN-bearing attributes are always protected).
func newRemoveEmptyAttributesAction(params map[string]any) (ActionFunc, error) {
	extra, err := paramStringSlice(params, "protected")
	if err != nil {
		return nil, err
	}

	protected := map[string]bool{
		"objectclass": true,
		"cn":          true,
		"uid":         true,
		"ou":          true,
	}
	for _, name := range extra {
		protected[strings.ToLower(name)] = true
	}

	return func(entry *Entry, result *TransformationResult) (bool, error) {
		var removed []string
		for _, name := range entry.Attributes.Names() {
			if protected[strings.ToLower(name)] {
				continue
			}
			if !entry.Attributes.Has(name) {
				entry.Attributes.Delete(name)
				removed = append(removed, name)
			}
		}
		if len(removed) == 0 {
			return false, nil
		}
		result.Annotate("empty_attributes_removed", removed)
		return true, nil
	}, nil
}

// Parameter decoding helpers. Rule parameters arrive as decoded YAML, so
// values are loosely typed.

func paramString(params map[string]any, key string, required bool) (string, error) {
	v, ok := params[key]
	if !ok {
		if required {
			return "", fmt.Errorf("parameter %q is required", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	if required && s == "" {
		return "", fmt.Errorf("parameter %q cannot be empty", key)
	}
	return s, nil
}

func paramBool(params map[string]any, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be a boolean", key)
	}
	return b, nil
}

func paramStringSlice(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, nil
	}
	switch value := v.(type) {
	case []string:
		return value, nil
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %q must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %q must be a list of strings", key)
	}
}

func paramStringMap(params map[string]any, key string) (map[string]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, nil
	}
	switch value := v.(type) {
	case map[string]string:
		return value, nil
	case map[string]any:
		out := make(map[string]string, len(value))
		for k, item := range value {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %q must map strings to strings", key)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %q must map strings to strings", key)
	}
}

func paramStringSliceMap(params map[string]any, key string) (map[string][]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, nil
	}
	switch value := v.(type) {
	case map[string][]string:
		return value, nil
	case map[string]any:
		out := make(map[string][]string, len(value))
		for k, item := range value {
			list, err := paramStringSlice(map[string]any{key: item}, key)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: entry %q must be a list of strings", key, k)
			}
			out[k] = list
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %q must map strings to string lists", key)
	}
}
