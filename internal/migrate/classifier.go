package migrate

import (
	"regexp"
	"strings"
)

// EntryType categorizes a directory entry for migration routing.
type EntryType string

const (
	EntryTypeInternalMetadata EntryType = "internal-directory-metadata"
	EntryTypeSchemaObject     EntryType = "directory-schema-object"
	EntryTypeACLObject        EntryType = "directory-acl-object"
	EntryTypeLegacyUser       EntryType = "legacy-user"
	EntryTypeLegacyData       EntryType = "legacy-data"
	EntryTypeBusinessData     EntryType = "business-data"
	EntryTypeUser             EntryType = "user"
	EntryTypeGroup            EntryType = "group"
	EntryTypeOrgUnit          EntryType = "organizational-unit"
	EntryTypeUnknown          EntryType = "unknown"
)

// Classification metadata keys consumed by the rule engine and sink.
const (
	MetaSkipMigration          = "skip_migration"
	MetaRequiresTransformation = "requires_transformation"
)

// Confidence constants per pattern family. These are explainability
// signals only, never control-flow thresholds.
const (
	confidenceInternal   = 0.95
	confidenceSchema     = 0.90
	confidenceACL        = 0.90
	confidenceLegacyUser = 0.85
	confidenceLegacyData = 0.80
	confidenceBusiness   = 0.75
	confidenceStandard   = 0.70
	confidenceUnknown    = 0.10
)

// ClassificationResult is the immutable outcome of classifying one entry.
type ClassificationResult struct {
	EntryType        EntryType
	Confidence       float64
	Reasons          []string
	SourceIndicators []string
	Metadata         map[string]bool
}

// SkipMigration reports whether the entry should bypass migration entirely.
func (c ClassificationResult) SkipMigration() bool {
	return c.Metadata[MetaSkipMigration]
}

// RequiresTransformation reports whether the entry carries legacy markers
// the rule engine is expected to rewrite.
func (c ClassificationResult) RequiresTransformation() bool {
	return c.Metadata[MetaRequiresTransformation]
}

// legacyClassPrefix is the vendor prefix identifying Oracle directory classes.
const legacyClassPrefix = "orcl"

// Compiled pattern sets, constructed once. DN substrings are matched
// case-insensitively against the whole DN.
var (
	internalDNPatterns = []string{
		"cn=subschemasubentry",
		"cn=catalogs",
		"cn=changelog",
		"cn=changestatus",
		"cn=oracleschemaversion",
		"cn=oraclecontext",
	}

	schemaDNPatterns = []string{
		"cn=schema",
		"cn=subschema",
	}

	schemaAttributeNames = []string{
		"attributetypes",
		"objectclasses",
		"matchingrules",
		"ldapsyntaxes",
	}

	aclAttributeNames = []string{
		"orclaci",
		"orclentrylevelaci",
	}

	legacyUserClasses = []string{
		"orcluser",
		"orcluserv2",
	}

	businessDNPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)ou=applications?,`),
		regexp.MustCompile(`(?i)ou=services?,`),
		regexp.MustCompile(`(?i)cn=products?,`),
	}

	groupClasses = []string{
		"groupofnames",
		"groupofuniquenames",
		"posixgroup",
	}

	personClasses = []string{
		"person",
		"organizationalperson",
		"inetorgperson",
	}
)

// Classifier assigns entry types by evaluating fixed pattern families in
// priority order, most specific first. Classification is deterministic and
// side-effect-free; it always produces a result.
type Classifier struct{}

// NewClassifier creates a classifier with the built-in pattern sets.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps a DN and attribute set to a classification. The first
// matching pattern family wins.
func (c *Classifier) Classify(dn string, attrs Attributes) ClassificationResult {
	lowerDN := strings.ToLower(dn)
	objectClasses := lowerObjectClasses(attrs)

	if reason, indicator, ok := c.matchInternal(lowerDN); ok {
		return ClassificationResult{
			EntryType:        EntryTypeInternalMetadata,
			Confidence:       confidenceInternal,
			Reasons:          []string{reason},
			SourceIndicators: []string{indicator},
			Metadata:         map[string]bool{MetaSkipMigration: true},
		}
	}

	if reason, indicator, ok := c.matchSchema(lowerDN, attrs); ok {
		return ClassificationResult{
			EntryType:        EntryTypeSchemaObject,
			Confidence:       confidenceSchema,
			Reasons:          []string{reason},
			SourceIndicators: []string{indicator},
			Metadata:         map[string]bool{MetaSkipMigration: true},
		}
	}

	if reason, indicator, ok := c.matchACL(attrs, objectClasses); ok {
		return ClassificationResult{
			EntryType:        EntryTypeACLObject,
			Confidence:       confidenceACL,
			Reasons:          []string{reason},
			SourceIndicators: []string{indicator},
			Metadata:         map[string]bool{MetaRequiresTransformation: true},
		}
	}

	if reason, ok := c.matchLegacyUser(objectClasses); ok {
		return ClassificationResult{
			EntryType:        EntryTypeLegacyUser,
			Confidence:       confidenceLegacyUser,
			Reasons:          []string{reason},
			SourceIndicators: []string{"vendor-object-class"},
			Metadata:         map[string]bool{MetaRequiresTransformation: true},
		}
	}

	if reason, ok := c.matchLegacyData(objectClasses); ok {
		return ClassificationResult{
			EntryType:        EntryTypeLegacyData,
			Confidence:       confidenceLegacyData,
			Reasons:          []string{reason},
			SourceIndicators: []string{"vendor-object-class"},
			Metadata:         map[string]bool{MetaRequiresTransformation: true},
		}
	}

	if reason, ok := c.matchBusiness(dn); ok {
		return ClassificationResult{
			EntryType:        EntryTypeBusinessData,
			Confidence:       confidenceBusiness,
			Reasons:          []string{reason},
			SourceIndicators: []string{"business-dn"},
			Metadata:         map[string]bool{},
		}
	}

	if entryType, reason, ok := c.matchStandard(objectClasses); ok {
		return ClassificationResult{
			EntryType:        entryType,
			Confidence:       confidenceStandard,
			Reasons:          []string{reason},
			SourceIndicators: []string{"standard-object-class"},
			Metadata:         map[string]bool{},
		}
	}

	return ClassificationResult{
		EntryType:        EntryTypeUnknown,
		Confidence:       confidenceUnknown,
		Reasons:          []string{"no pattern family matched"},
		SourceIndicators: nil,
		Metadata:         map[string]bool{},
	}
}

func (c *Classifier) matchInternal(lowerDN string) (reason, indicator string, ok bool) {
	for _, pattern := range internalDNPatterns {
		if strings.Contains(lowerDN, pattern) {
			return "DN contains internal directory container " + pattern, "internal-dn", true
		}
	}
	return "", "", false
}

func (c *Classifier) matchSchema(lowerDN string, attrs Attributes) (reason, indicator string, ok bool) {
	for _, pattern := range schemaDNPatterns {
		if strings.Contains(lowerDN, pattern) {
			return "DN addresses the directory schema subtree", "schema-dn", true
		}
	}
	for _, name := range schemaAttributeNames {
		if attrs.Has(name) {
			return "entry carries schema definition attribute " + name, "schema-attribute", true
		}
	}
	return "", "", false
}

func (c *Classifier) matchACL(attrs Attributes, objectClasses []string) (reason, indicator string, ok bool) {
	for _, name := range aclAttributeNames {
		if attrs.Has(name) {
			return "entry carries legacy access-control attribute " + name, "acl-attribute", true
		}
	}
	for _, oc := range objectClasses {
		if strings.Contains(oc, "acl") && strings.HasPrefix(oc, legacyClassPrefix) {
			return "entry has legacy access-control object class " + oc, "acl-object-class", true
		}
	}
	return "", "", false
}

func (c *Classifier) matchLegacyUser(objectClasses []string) (string, bool) {
	for _, oc := range objectClasses {
		for _, legacy := range legacyUserClasses {
			if oc == legacy {
				return "entry has legacy user object class " + oc, true
			}
		}
	}
	return "", false
}

func (c *Classifier) matchLegacyData(objectClasses []string) (string, bool) {
	for _, oc := range objectClasses {
		if strings.HasPrefix(oc, legacyClassPrefix) {
			return "entry has vendor-prefixed object class " + oc, true
		}
	}
	return "", false
}

func (c *Classifier) matchBusiness(dn string) (string, bool) {
	for _, pattern := range businessDNPatterns {
		if pattern.MatchString(dn) {
			return "DN matches business data convention " + pattern.String(), true
		}
	}
	return "", false
}

func (c *Classifier) matchStandard(objectClasses []string) (EntryType, string, bool) {
	for _, oc := range objectClasses {
		for _, group := range groupClasses {
			if oc == group {
				return EntryTypeGroup, "entry has group object class " + oc, true
			}
		}
	}
	for _, oc := range objectClasses {
		if oc == "organizationalunit" {
			return EntryTypeOrgUnit, "entry has organizationalUnit object class", true
		}
	}
	for _, oc := range objectClasses {
		for _, person := range personClasses {
			if oc == person {
				return EntryTypeUser, "entry has person object class " + oc, true
			}
		}
	}
	return EntryTypeUnknown, "", false
}

func lowerObjectClasses(attrs Attributes) []string {
	raw := attrs.Get("objectClass")
	out := make([]string, len(raw))
	for i, oc := range raw {
		out[i] = strings.ToLower(oc)
	}
	return out
}
