package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRuleContext(dn string, attrs Attributes, entryType EntryType) *RuleContext {
	return &RuleContext{
		Entry: &Entry{DN: dn, Attributes: attrs},
		Classification: ClassificationResult{
			EntryType: entryType,
			Metadata:  map[string]bool{MetaRequiresTransformation: true},
		},
	}
}

func TestConditionSpecLeaves(t *testing.T) {
	ctx := testRuleContext("cn=jdoe,ou=People,dc=example,dc=org", Attributes{
		"objectClass": {"orclUser", "top"},
		"mail":        {"jdoe@example.org"},
	}, EntryTypeLegacyUser)

	tests := []struct {
		name string
		spec ConditionSpec
		want bool
	}{
		{"dn_contains match is case-insensitive", ConditionSpec{DNContains: "ou=people"}, true},
		{"dn_contains miss", ConditionSpec{DNContains: "ou=groups"}, false},
		{"dn_matches", ConditionSpec{DNMatches: `^cn=[a-z]+,`}, true},
		{"has_object_class case-insensitive", ConditionSpec{HasObjectClass: "ORCLUSER"}, true},
		{"has_object_class miss", ConditionSpec{HasObjectClass: "groupOfNames"}, false},
		{"object_class_prefix", ConditionSpec{ObjectClassPrefix: "orcl"}, true},
		{"has_attribute", ConditionSpec{HasAttribute: "mail"}, true},
		{"has_attribute miss", ConditionSpec{HasAttribute: "telephoneNumber"}, false},
		{"attribute_equals", ConditionSpec{AttributeEquals: &AttributeEqualsSpec{Attribute: "mail", Value: "JDOE@example.org"}}, true},
		{"entry_type", ConditionSpec{EntryType: string(EntryTypeLegacyUser)}, true},
		{"entry_type miss", ConditionSpec{EntryType: string(EntryTypeGroup)}, false},
		{"metadata_flag", ConditionSpec{MetadataFlag: MetaRequiresTransformation}, true},
		{"metadata_flag miss", ConditionSpec{MetadataFlag: MetaSkipMigration}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := tt.spec.Compile()
			require.NoError(t, err)
			got, err := cond(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionSpecCombinators(t *testing.T) {
	ctx := testRuleContext("cn=admins,ou=groups,dc=org", Attributes{
		"objectClass": {"groupOfNames"},
	}, EntryTypeGroup)

	tests := []struct {
		name string
		spec ConditionSpec
		want bool
	}{
		{
			name: "all true",
			spec: ConditionSpec{All: []ConditionSpec{
				{DNContains: "ou=groups"},
				{HasObjectClass: "groupOfNames"},
			}},
			want: true,
		},
		{
			name: "all with one false",
			spec: ConditionSpec{All: []ConditionSpec{
				{DNContains: "ou=groups"},
				{HasObjectClass: "person"},
			}},
			want: false,
		},
		{
			name: "any with one true",
			spec: ConditionSpec{Any: []ConditionSpec{
				{HasObjectClass: "person"},
				{HasObjectClass: "groupOfNames"},
			}},
			want: true,
		},
		{
			name: "any with none true",
			spec: ConditionSpec{Any: []ConditionSpec{
				{HasObjectClass: "person"},
				{HasObjectClass: "device"},
			}},
			want: false,
		},
		{
			name: "not",
			spec: ConditionSpec{Not: &ConditionSpec{HasObjectClass: "person"}},
			want: true,
		},
		{
			name: "leaf fields conjoined",
			spec: ConditionSpec{DNContains: "ou=groups", HasObjectClass: "groupOfNames"},
			want: true,
		},
		{
			name: "leaf fields conjoined with miss",
			spec: ConditionSpec{DNContains: "ou=groups", HasObjectClass: "person"},
			want: false,
		},
		{
			name: "nested",
			spec: ConditionSpec{All: []ConditionSpec{
				{Not: &ConditionSpec{EntryType: string(EntryTypeUser)}},
				{Any: []ConditionSpec{
					{DNContains: "ou=groups"},
					{DNContains: "ou=roles"},
				}},
			}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := tt.spec.Compile()
			require.NoError(t, err)
			got, err := cond(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionSpecCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		spec ConditionSpec
	}{
		{"empty spec", ConditionSpec{}},
		{"bad regexp", ConditionSpec{DNMatches: "["}},
		{"unknown entry type", ConditionSpec{EntryType: "no-such-type"}},
		{"attribute_equals without attribute", ConditionSpec{AttributeEquals: &AttributeEqualsSpec{Value: "x"}}},
		{"error nested in all", ConditionSpec{All: []ConditionSpec{{DNMatches: "["}}}},
		{"error nested in any", ConditionSpec{Any: []ConditionSpec{{EntryType: "bogus"}}}},
		{"error nested in not", ConditionSpec{Not: &ConditionSpec{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Compile()
			assert.Error(t, err)
		})
	}
}

func TestConditionNilEntry(t *testing.T) {
	cond, err := ConditionSpec{DNContains: "dc=org"}.Compile()
	require.NoError(t, err)

	_, err = cond(&RuleContext{})
	assert.Error(t, err)
}
