package migrate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ldapmigrate/ldapmigrate/internal/ldap"
	"github.com/ldapmigrate/ldapmigrate/internal/logging"
)

// ValidationResult is the outcome of checking one entry against the
// target directory's schema expectations.
type ValidationResult struct {
	Valid           bool
	Errors          []string
	Warnings        []string
	ChecksPerformed []string
}

func (r *ValidationResult) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

func (r *ValidationResult) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// requiredAttributesByClass lists the attributes an entry must carry for
// each structural or membership class the validator knows about. Keys are
// lowercase.
var requiredAttributesByClass = map[string][]string{
	"person":               {"cn", "sn"},
	"organizationalperson": {"cn", "sn"},
	"inetorgperson":        {"cn", "sn"},
	"groupofnames":         {"cn", "member"},
	"groupofuniquenames":   {"cn", "uniquemember"},
	"organizationalunit":   {"ou"},
}

// structuralClasses are object classes the validator accepts as giving an
// entry a concrete structural identity. The abstract root class top counts:
// every entry carries it, and for generic-stream entries it is the only class
// present. Lowercase.
var structuralClasses = map[string]bool{
	"top":                  true,
	"person":               true,
	"organizationalperson": true,
	"inetorgperson":        true,
	"groupofnames":         true,
	"groupofuniquenames":   true,
	"organizationalunit":   true,
	"organization":         true,
	"domain":               true,
	"dcobject":             true,
	"device":               true,
	"applicationprocess":   true,
	"country":              true,
	"locality":             true,
	"posixaccount":         true,
	"posixgroup":           true,
}

// dnReferenceAttributes hold DNs pointing at other entries; dangling or
// malformed values are warnings, not errors, because referential targets
// may arrive later in the batch.
var dnReferenceAttributes = []string{"member", "uniquemember", "memberof", "manager", "owner", "seealso"}

var mailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validator checks transformed entries before they are written to the
// target directory.
type Validator struct {
	strict bool
	logger logging.Logger

	passed int64
	failed int64
}

// NewValidator creates a validator. In strict mode, warnings are promoted
// to errors.
func NewValidator(strict bool, logger logging.Logger) *Validator {
	return &Validator{
		strict: strict,
		logger: logger.Named("validator"),
	}
}

// Validate runs every applicable check against the entry. The result's
// ChecksPerformed lists the checks that ran, in order.
func (v *Validator) Validate(entry *Entry) *ValidationResult {
	result := &ValidationResult{Valid: true}

	v.checkDNSyntax(entry, result)
	v.checkObjectClasses(entry, result)
	v.checkRequiredAttributes(entry, result)
	v.checkMailSyntax(entry, result)
	v.checkDNReferences(entry, result)

	if v.strict && len(result.Warnings) > 0 {
		for _, w := range result.Warnings {
			result.Errors = append(result.Errors, "strict: "+w)
		}
		result.Warnings = nil
		result.Valid = false
	}

	if result.Valid {
		v.passed++
	} else {
		v.failed++
		v.logger.Debug("Entry failed validation", map[string]any{
			"dn":     entry.DN,
			"errors": result.Errors,
		})
	}

	return result
}

func (v *Validator) checkDNSyntax(entry *Entry, result *ValidationResult) {
	result.ChecksPerformed = append(result.ChecksPerformed, "dn_syntax")
	if entry.DN == "" {
		result.addError("entry has no DN")
		return
	}
	if err := ldap.ValidateDNSyntax(entry.DN); err != nil {
		result.addError(fmt.Sprintf("invalid DN %q: %v", entry.DN, err))
	}
}

func (v *Validator) checkObjectClasses(entry *Entry, result *ValidationResult) {
	result.ChecksPerformed = append(result.ChecksPerformed, "object_class_presence")
	classes := entry.ObjectClasses()
	if len(classes) == 0 {
		result.addError("entry has no objectClass values")
		return
	}
	for _, class := range classes {
		if structuralClasses[strings.ToLower(class)] {
			return
		}
	}
	result.addWarning("no recognized structural object class among " + strings.Join(classes, ", "))
}

func (v *Validator) checkRequiredAttributes(entry *Entry, result *ValidationResult) {
	result.ChecksPerformed = append(result.ChecksPerformed, "required_attributes")
	seen := make(map[string]bool)
	for _, class := range entry.ObjectClasses() {
		for _, attr := range requiredAttributesByClass[strings.ToLower(class)] {
			if seen[attr] {
				continue
			}
			seen[attr] = true
			if !entry.Attributes.Has(attr) {
				result.addError(fmt.Sprintf("object class %s requires attribute %s", class, attr))
			}
		}
	}
}

func (v *Validator) checkMailSyntax(entry *Entry, result *ValidationResult) {
	values := entry.Attributes.Get("mail")
	if len(values) == 0 {
		return
	}
	result.ChecksPerformed = append(result.ChecksPerformed, "mail_syntax")
	for _, value := range values {
		if !mailPattern.MatchString(value) {
			result.addWarning(fmt.Sprintf("mail value %q is not a valid address", value))
		}
	}
}

func (v *Validator) checkDNReferences(entry *Entry, result *ValidationResult) {
	checked := false
	for _, attr := range dnReferenceAttributes {
		values := entry.Attributes.Get(attr)
		if len(values) == 0 {
			continue
		}
		if !checked {
			result.ChecksPerformed = append(result.ChecksPerformed, "dn_references")
			checked = true
		}
		for _, value := range values {
			if err := ldap.ValidateDNSyntax(value); err != nil {
				result.addWarning(fmt.Sprintf("%s value %q is not a valid DN: %v", attr, value, err))
			}
		}
	}
}

// Stats returns the validator's cumulative pass and fail counts.
func (v *Validator) Stats() (passed, failed int64) {
	return v.passed, v.failed
}

// ResetStats clears the validator's counters.
func (v *Validator) ResetStats() {
	v.passed, v.failed = 0, 0
}
