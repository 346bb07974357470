package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapmigrate/ldapmigrate/internal/logging"
)

func validPerson() *Entry {
	return &Entry{
		DN: "uid=jdoe,ou=people,dc=example,dc=org",
		Attributes: Attributes{
			"objectClass": {"inetOrgPerson", "organizationalPerson", "person", "top"},
			"uid":         {"jdoe"},
			"cn":          {"John Doe"},
			"sn":          {"Doe"},
			"mail":        {"jdoe@example.org"},
		},
	}
}

func TestValidateWellFormedEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry *Entry
	}{
		{"person", validPerson()},
		{
			"group",
			&Entry{
				DN: "cn=admins,ou=groups,dc=example,dc=org",
				Attributes: Attributes{
					"objectClass": {"groupOfNames", "top"},
					"cn":          {"admins"},
					"member":      {"uid=jdoe,ou=people,dc=example,dc=org"},
				},
			},
		},
		{
			"organizational unit",
			&Entry{
				DN: "ou=people,dc=example,dc=org",
				Attributes: Attributes{
					"objectClass": {"organizationalUnit", "top"},
					"ou":          {"people"},
				},
			},
		},
	}

	v := NewValidator(false, logging.Discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.entry)
			assert.True(t, result.Valid, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
			assert.Contains(t, result.ChecksPerformed, "dn_syntax")
			assert.Contains(t, result.ChecksPerformed, "object_class_presence")
			assert.Contains(t, result.ChecksPerformed, "required_attributes")
		})
	}
}

func TestValidateMissingRequiredAttributes(t *testing.T) {
	tests := []struct {
		name    string
		entry   *Entry
		wantErr string
	}{
		{
			name: "person without sn",
			entry: &Entry{
				DN: "uid=jdoe,ou=people,dc=org",
				Attributes: Attributes{
					"objectClass": {"person"},
					"cn":          {"jdoe"},
				},
			},
			wantErr: "requires attribute sn",
		},
		{
			name: "groupOfNames without member",
			entry: &Entry{
				DN: "cn=empty,ou=groups,dc=org",
				Attributes: Attributes{
					"objectClass": {"groupOfNames"},
					"cn":          {"empty"},
				},
			},
			wantErr: "requires attribute member",
		},
		{
			name: "groupOfUniqueNames without uniqueMember",
			entry: &Entry{
				DN: "cn=empty,ou=groups,dc=org",
				Attributes: Attributes{
					"objectClass": {"groupOfUniqueNames"},
					"cn":          {"empty"},
				},
			},
			wantErr: "requires attribute uniquemember",
		},
		{
			name: "organizationalUnit without ou",
			entry: &Entry{
				DN: "ou=things,dc=org",
				Attributes: Attributes{
					"objectClass": {"organizationalUnit"},
				},
			},
			wantErr: "requires attribute ou",
		},
	}

	v := NewValidator(false, logging.Discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.entry)
			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, strings.Join(result.Errors, "; "), tt.wantErr)
		})
	}
}

func TestValidateDNAndObjectClassErrors(t *testing.T) {
	v := NewValidator(false, logging.Discard())

	t.Run("missing dn", func(t *testing.T) {
		result := v.Validate(&Entry{Attributes: Attributes{"objectClass": {"person"}, "cn": {"x"}, "sn": {"y"}}})
		assert.False(t, result.Valid)
	})

	t.Run("malformed dn", func(t *testing.T) {
		result := v.Validate(&Entry{DN: "===", Attributes: Attributes{"objectClass": {"person"}, "cn": {"x"}, "sn": {"y"}}})
		assert.False(t, result.Valid)
	})

	t.Run("no object classes", func(t *testing.T) {
		result := v.Validate(&Entry{DN: "cn=x,dc=org", Attributes: Attributes{"cn": {"x"}}})
		assert.False(t, result.Valid)
	})

	t.Run("no structural class warns", func(t *testing.T) {
		result := v.Validate(&Entry{DN: "cn=x,dc=org", Attributes: Attributes{
			"objectClass": {"extensibleObject"},
			"cn":          {"x"},
		}})
		assert.True(t, result.Valid)
		assert.NotEmpty(t, result.Warnings)
	})
}

func TestValidateRootClassOnly(t *testing.T) {
	entry := &Entry{DN: "cn=generic,dc=example,dc=org", Attributes: Attributes{
		"objectClass": {"top"},
		"cn":          {"generic"},
	}}

	t.Run("lenient", func(t *testing.T) {
		result := NewValidator(false, logging.Discard()).Validate(entry)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Warnings)
	})

	t.Run("strict", func(t *testing.T) {
		result := NewValidator(true, logging.Discard()).Validate(entry)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})
}

func TestValidateMailSyntax(t *testing.T) {
	v := NewValidator(false, logging.Discard())

	entry := validPerson()
	entry.Attributes.Set("mail", []string{"not-an-address"})

	result := v.Validate(entry)
	assert.True(t, result.Valid, "bad mail is a warning, not an error")
	assert.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.ChecksPerformed, "mail_syntax")
}

func TestValidateDNReferences(t *testing.T) {
	v := NewValidator(false, logging.Discard())

	entry := &Entry{
		DN: "cn=admins,ou=groups,dc=org",
		Attributes: Attributes{
			"objectClass": {"groupOfNames"},
			"cn":          {"admins"},
			"member":      {"uid=jdoe,ou=people,dc=org", "not a dn"},
		},
	}

	result := v.Validate(entry)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.ChecksPerformed, "dn_references")
}

func TestValidateStrictModePromotesWarnings(t *testing.T) {
	strict := NewValidator(true, logging.Discard())

	entry := validPerson()
	entry.Attributes.Set("mail", []string{"not-an-address"})

	result := strict.Validate(entry)
	assert.False(t, result.Valid)
	assert.Empty(t, result.Warnings)
	assert.NotEmpty(t, result.Errors)
}

func TestValidatorStats(t *testing.T) {
	v := NewValidator(false, logging.Discard())

	v.Validate(validPerson())
	v.Validate(&Entry{DN: "cn=x,dc=org", Attributes: Attributes{}})

	passed, failed := v.Stats()
	assert.Equal(t, int64(1), passed)
	assert.Equal(t, int64(1), failed)

	v.ResetStats()
	passed, failed = v.Stats()
	assert.Zero(t, passed)
	assert.Zero(t, failed)
}
