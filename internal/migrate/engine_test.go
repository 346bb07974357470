package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapmigrate/ldapmigrate/internal/logging"
)

// capturingRecorder collects audit events for assertions.
type capturingRecorder struct {
	events []AuditEvent
}

func (r *capturingRecorder) Record(event AuditEvent) {
	r.events = append(r.events, event)
}

func testEngine(t *testing.T, cfg *Config, specs []RuleSpec) (*Engine, *capturingRecorder) {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rs := NewRuleSet()
	require.NoError(t, rs.LoadRules(cfg, specs))
	recorder := &capturingRecorder{}
	return NewEngine(NewClassifier(), rs, logging.Discard(), recorder), recorder
}

func legacyUserEntry() *Entry {
	return &Entry{
		DN: "cn=jdoe,cn=users,dc=legacy,dc=org",
		Attributes: Attributes{
			"objectClass":  {"orclUser", "top"},
			"cn":           {"jdoe"},
			"sn":           {"Doe"},
			"orclPassword": {"{SSHA}secret"},
			"orclGUID":     {"a1b2c3d4"},
		},
	}
}

func TestEngineTransformLegacyUser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DNRewriteSourcePattern = `cn=users,dc=legacy,dc=org$`
	cfg.DNRewriteTargetPattern = "ou=people,dc=example,dc=com"

	engine, recorder := testEngine(t, cfg, nil)
	result := engine.Transform(legacyUserEntry())

	require.True(t, result.Success)
	assert.Equal(t, EntryTypeLegacyUser, result.Classification.EntryType)

	// DN rewrite runs before the class and attribute rules.
	assert.Equal(t, "cn=jdoe,ou=people,dc=example,dc=com", result.Transformed.DN)
	assert.Equal(t, []string{
		"oracle-dn-structure",
		"oracle-objectclass-conversion",
		"oracle-attribute-mapping",
	}, result.AppliedRules)

	assert.True(t, result.Transformed.HasObjectClass("inetOrgPerson"))
	assert.True(t, result.Transformed.HasObjectClass("orclUser"), "legacy class retained")
	assert.Equal(t, []string{"{SSHA}secret"}, result.Transformed.Attributes.Get("userPassword"))
	assert.Equal(t, []string{"a1b2c3d4"}, result.Transformed.Attributes.Get("entryUUID"))

	// The original is untouched.
	assert.Equal(t, "cn=jdoe,cn=users,dc=legacy,dc=org", result.Original.DN)
	assert.True(t, result.Original.Attributes.Has("orclPassword"))

	require.Len(t, recorder.events, 1)
	event := recorder.events[0]
	assert.Equal(t, result.Transformed.DN, event.DN)
	assert.Equal(t, result.AppliedRules, event.AppliedRules)
	assert.NotEqual(t, event.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Contains(t, result.Metadata, "transformed_at")
}

func TestEngineTransformIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DNRewriteSourcePattern = `cn=users,dc=legacy,dc=org$`
	cfg.DNRewriteTargetPattern = "ou=people,dc=example,dc=com"

	engine, _ := testEngine(t, cfg, nil)

	first := engine.Transform(legacyUserEntry())
	require.True(t, first.Success)
	require.NotEmpty(t, first.AppliedRules)

	second := engine.Transform(first.Transformed)
	assert.True(t, second.Success)
	assert.Empty(t, second.AppliedRules, "a second pass records no further rule applications")
	assert.Equal(t, first.Transformed.DN, second.Transformed.DN)
	assert.Equal(t, first.Transformed.ObjectClasses(), second.Transformed.ObjectClasses())
}

func TestEngineUntouchedEntry(t *testing.T) {
	engine, recorder := testEngine(t, nil, nil)
	entry := &Entry{
		DN: "uid=jdoe,ou=people,dc=example,dc=com",
		Attributes: Attributes{
			"objectClass": {"inetOrgPerson", "top"},
			"uid":         {"jdoe"},
			"cn":          {"John Doe"},
			"sn":          {"Doe"},
		},
	}

	result := engine.Transform(entry)
	assert.True(t, result.Success)
	assert.Empty(t, result.AppliedRules)
	assert.Empty(t, recorder.events, "no audit event without a transformation")
	assert.Equal(t, EntryTypeUser, result.Classification.EntryType)
}

func TestEngineIsolatesActionFailures(t *testing.T) {
	cfg := DefaultConfig()
	// A DN rewrite that erases the whole DN makes the first rule fail.
	cfg.DNRewriteSourcePattern = ".*"
	cfg.DNRewriteTargetPattern = ""

	engine, _ := testEngine(t, cfg, nil)
	result := engine.Transform(legacyUserEntry())

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
	// The remaining rules still ran.
	assert.Contains(t, result.AppliedRules, "oracle-objectclass-conversion")
	assert.Contains(t, result.AppliedRules, "oracle-attribute-mapping")

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.RuleFailures)
}

func TestEngineStats(t *testing.T) {
	engine, _ := testEngine(t, nil, nil)

	engine.Transform(legacyUserEntry())
	engine.Transform(&Entry{
		DN:         "uid=clean,ou=people,dc=org",
		Attributes: Attributes{"objectClass": {"inetOrgPerson"}, "uid": {"clean"}},
	})

	stats := engine.Stats()
	assert.Equal(t, int64(2), stats.EntriesProcessed)
	assert.Equal(t, int64(1), stats.EntriesTransformed)
	assert.Equal(t, int64(1), stats.RuleApplications["oracle-objectclass-conversion"])
	assert.Equal(t, int64(1), stats.RuleApplications["oracle-attribute-mapping"])

	// The snapshot is detached from the live counters.
	stats.RuleApplications["oracle-attribute-mapping"] = 99
	assert.Equal(t, int64(1), engine.Stats().RuleApplications["oracle-attribute-mapping"])

	engine.ResetStats()
	fresh := engine.Stats()
	assert.Zero(t, fresh.EntriesProcessed)
	assert.Empty(t, fresh.RuleApplications)
}
