package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAction(t *testing.T, factory ActionFactory, params map[string]any, entry *Entry) (bool, *TransformationResult) {
	t.Helper()
	action, err := factory(params)
	require.NoError(t, err)
	result := NewTransformationResult(entry)
	changed, err := action(entry, result)
	require.NoError(t, err)
	return changed, result
}

func TestRewriteDNAction(t *testing.T) {
	entry := &Entry{DN: "cn=jdoe,cn=users,dc=legacy,dc=org", Attributes: Attributes{}}
	params := map[string]any{
		"source_pattern": `dc=legacy,dc=org$`,
		"target_pattern": "dc=example,dc=com",
	}

	changed, result := runAction(t, newRewriteDNAction, params, entry)
	assert.True(t, changed)
	assert.Equal(t, "cn=jdoe,cn=users,dc=example,dc=com", entry.DN)
	assert.Contains(t, result.Metadata, "dn_transformed")

	// Re-running on the rewritten DN must be a no-op.
	changed, _ = runAction(t, newRewriteDNAction, params, entry)
	assert.False(t, changed)
}

func TestRewriteDNActionCaptureGroups(t *testing.T) {
	entry := &Entry{DN: "cn=jdoe,cn=users,dc=legacy,dc=org", Attributes: Attributes{}}
	params := map[string]any{
		"source_pattern": `^cn=([^,]+),cn=users,`,
		"target_pattern": "uid=$1,ou=people,",
	}

	changed, _ := runAction(t, newRewriteDNAction, params, entry)
	assert.True(t, changed)
	assert.Equal(t, "uid=jdoe,ou=people,dc=legacy,dc=org", entry.DN)
}

func TestRewriteDNActionRejectsEmptyResult(t *testing.T) {
	action, err := newRewriteDNAction(map[string]any{
		"source_pattern": ".*",
		"target_pattern": "",
	})
	require.NoError(t, err)

	entry := &Entry{DN: "cn=x,dc=org", Attributes: Attributes{}}
	_, err = action(entry, NewTransformationResult(entry))
	assert.Error(t, err)
	assert.Equal(t, "cn=x,dc=org", entry.DN)
}

func TestRewriteDNActionParamErrors(t *testing.T) {
	_, err := newRewriteDNAction(map[string]any{"target_pattern": "x"})
	assert.Error(t, err, "source_pattern is required")

	_, err = newRewriteDNAction(map[string]any{"source_pattern": "["})
	assert.Error(t, err, "source_pattern must compile")
}

func TestConvertObjectClassesAction(t *testing.T) {
	entry := &Entry{
		DN: "cn=jdoe,cn=users,dc=org",
		Attributes: Attributes{
			"objectClass": {"orclUser", "orclUserV2", "top"},
		},
	}

	changed, result := runAction(t, newConvertObjectClassesAction, nil, entry)
	assert.True(t, changed)
	assert.Equal(t, []string{"orclUser", "inetOrgPerson", "person", "orclUserV2", "top"},
		entry.ObjectClasses())
	assert.Contains(t, result.Metadata, "object_classes_converted")

	// Second run appends nothing new.
	changed, _ = runAction(t, newConvertObjectClassesAction, nil, entry)
	assert.False(t, changed)
}

func TestConvertObjectClassesActionContainer(t *testing.T) {
	entry := &Entry{
		DN:         "cn=groups,dc=org",
		Attributes: Attributes{"objectClass": {"orclContainer", "top"}},
	}

	changed, _ := runAction(t, newConvertObjectClassesAction, nil, entry)
	assert.True(t, changed)
	assert.True(t, entry.HasObjectClass("organizationalUnit"))
	assert.True(t, entry.HasObjectClass("orclContainer"), "original class is retained")
}

func TestConvertObjectClassesActionCustomMappings(t *testing.T) {
	entry := &Entry{
		DN:         "cn=x,dc=org",
		Attributes: Attributes{"objectClass": {"legacyThing"}},
	}

	changed, _ := runAction(t, newConvertObjectClassesAction, map[string]any{
		"mappings": map[string]any{
			"legacything": []any{"device"},
		},
	}, entry)
	assert.True(t, changed)
	assert.Equal(t, []string{"legacyThing", "device"}, entry.ObjectClasses())
}

func TestConvertObjectClassesActionNoLegacyClasses(t *testing.T) {
	entry := &Entry{
		DN:         "cn=x,dc=org",
		Attributes: Attributes{"objectClass": {"inetOrgPerson", "top"}},
	}

	changed, _ := runAction(t, newConvertObjectClassesAction, nil, entry)
	assert.False(t, changed)
}

func TestMapAttributesAction(t *testing.T) {
	entry := &Entry{
		DN: "cn=jdoe,dc=org",
		Attributes: Attributes{
			"orclPassword":  {"{SSHA}secret"},
			"orclGUID":      {"a1b2c3"},
			"orclMailQuota": {"100M"},
			"cn":            {"jdoe"},
		},
	}

	changed, result := runAction(t, newMapAttributesAction, nil, entry)
	assert.True(t, changed)
	assert.Equal(t, []string{"{SSHA}secret"}, entry.Attributes.Get("userPassword"))
	assert.Equal(t, []string{"a1b2c3"}, entry.Attributes.Get("entryUUID"))
	assert.Equal(t, []string{"100M"}, entry.Attributes.Get("mailQuota"))
	assert.False(t, entry.Attributes.Has("orclPassword"))
	assert.False(t, entry.Attributes.Has("orclGUID"))
	assert.Contains(t, result.Metadata, "attributes_mapped")

	changed, _ = runAction(t, newMapAttributesAction, nil, entry)
	assert.False(t, changed)
}

func TestMapAttributesActionExistingTargetWins(t *testing.T) {
	entry := &Entry{
		DN: "cn=jdoe,dc=org",
		Attributes: Attributes{
			"orclPassword": {"{SSHA}old"},
			"userPassword": {"{SSHA}new"},
		},
	}

	changed, result := runAction(t, newMapAttributesAction, nil, entry)
	assert.True(t, changed)
	assert.Equal(t, []string{"{SSHA}new"}, entry.Attributes.Get("userPassword"))
	assert.False(t, entry.Attributes.Has("orclPassword"))
	assert.NotEmpty(t, result.Warnings)
}

func TestConvertACLAction(t *testing.T) {
	entry := &Entry{
		DN: "cn=acl-holder,dc=org",
		Attributes: Attributes{
			"orclaci": {`access to entry by group="cn=admins,dc=org" (browse,add,delete)`},
		},
	}

	changed, result := runAction(t, newConvertACLAction, nil, entry)
	assert.True(t, changed)
	assert.False(t, entry.Attributes.Has("orclaci"))

	acis := entry.Attributes.Get("aci")
	require.Len(t, acis, 1)
	assert.Contains(t, acis[0], `groupdn="ldap:///cn=admins,dc=org"`)
	assert.Contains(t, acis[0], "read")
	assert.Contains(t, acis[0], "add")
	assert.Contains(t, acis[0], "delete")
	assert.Contains(t, result.Metadata, "acl_converted")
}

func TestConvertACLActionSubjects(t *testing.T) {
	tests := []struct {
		name string
		aci  string
		want string
	}{
		{"group subject", `access to entry by group="cn=admins,dc=org" (read)`, `groupdn="ldap:///cn=admins,dc=org"`},
		{"dn subject", `access to entry by dn="cn=svc,dc=org" (read)`, `userdn="ldap:///cn=svc,dc=org"`},
		{"self subject", `access to entry by self (write)`, `userdn="ldap:///self"`},
		{"anyone subject", `access to entry by * (read)`, `userdn="ldap:///anyone"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{
				DN:         "cn=x,dc=org",
				Attributes: Attributes{"orclaci": {tt.aci}},
			}
			changed, _ := runAction(t, newConvertACLAction, nil, entry)
			assert.True(t, changed)
			require.NotEmpty(t, entry.Attributes.Get("aci"))
			assert.Contains(t, entry.Attributes.First("aci"), tt.want)
		})
	}
}

func TestConvertACLActionTargetAttributes(t *testing.T) {
	entry := &Entry{
		DN: "cn=x,dc=org",
		Attributes: Attributes{
			"orclaci": {`access to attr=(userPassword, mail) by self (read, write)`},
		},
	}

	changed, _ := runAction(t, newConvertACLAction, nil, entry)
	assert.True(t, changed)
	assert.Contains(t, entry.Attributes.First("aci"), `(targetattr = "userPassword || mail")`)
}

func TestConvertACLActionUnparsedValue(t *testing.T) {
	entry := &Entry{
		DN:         "cn=x,dc=org",
		Attributes: Attributes{"orclaci": {"completely opaque directive"}},
	}

	changed, result := runAction(t, newConvertACLAction, nil, entry)
	assert.True(t, changed)
	assert.NotEmpty(t, result.Warnings, "lossy conversion warns")
	assert.Contains(t, entry.Attributes.First("aci"), "migrated-unparsed")
}

func TestConvertACLActionPreserveOriginal(t *testing.T) {
	entry := &Entry{
		DN: "cn=x,dc=org",
		Attributes: Attributes{
			"orclaci": {`access to entry by self (read)`},
		},
	}

	changed, _ := runAction(t, newConvertACLAction, map[string]any{"preserve_original": true}, entry)
	assert.True(t, changed)
	assert.True(t, entry.Attributes.Has("orclaci"))
	assert.True(t, entry.Attributes.Has("aci"))
}

func TestRemoveEmptyAttributesAction(t *testing.T) {
	entry := &Entry{
		DN: "cn=jdoe,dc=org",
		Attributes: Attributes{
			"objectClass": {"person"},
			"cn":          {"jdoe"},
			"description": {""},
			"title":       {},
			"mail":        {"jdoe@example.org"},
		},
	}

	changed, result := runAction(t, newRemoveEmptyAttributesAction, nil, entry)
	assert.True(t, changed)
	assert.False(t, entry.Attributes.Has("description"))
	_, titlePresent := entry.Attributes["title"]
	assert.False(t, titlePresent)
	assert.True(t, entry.Attributes.Has("mail"))
	assert.Contains(t, result.Metadata, "empty_attributes_removed")

	changed, _ = runAction(t, newRemoveEmptyAttributesAction, nil, entry)
	assert.False(t, changed)
}

func TestRemoveEmptyAttributesActionProtected(t *testing.T) {
	entry := &Entry{
		DN: "cn=jdoe,dc=org",
		Attributes: Attributes{
			"objectClass": {},
			"cn":          {""},
			"custom":      {""},
		},
	}

	changed, _ := runAction(t, newRemoveEmptyAttributesAction, map[string]any{
		"protected": []any{"custom"},
	}, entry)
	assert.False(t, changed, "all empty attributes were protected")
	_, ok := entry.Attributes["objectClass"]
	assert.True(t, ok)
	_, ok = entry.Attributes["cn"]
	assert.True(t, ok)
	_, ok = entry.Attributes["custom"]
	assert.True(t, ok)
}

func TestActionRegistry(t *testing.T) {
	registry := newActionRegistry()

	t.Run("built-ins resolve", func(t *testing.T) {
		for _, name := range []string{
			ActionConvertObjectClasses,
			ActionMapLegacyAttributes,
			ActionConvertACLFormat,
			ActionRemoveEmptyAttributes,
		} {
			action, err := registry.resolve(name, nil)
			require.NoError(t, err, name)
			assert.NotNil(t, action)
		}
	})

	t.Run("unknown action fails fast", func(t *testing.T) {
		_, err := registry.resolve("no-such-action", nil)
		assert.ErrorContains(t, err, "unknown action")
	})

	t.Run("extension registration", func(t *testing.T) {
		err := registry.register("custom-action", func(params map[string]any) (ActionFunc, error) {
			return func(entry *Entry, result *TransformationResult) (bool, error) {
				return false, nil
			}, nil
		})
		require.NoError(t, err)

		_, err = registry.resolve("custom-action", nil)
		assert.NoError(t, err)
	})

	t.Run("duplicate registration rejected", func(t *testing.T) {
		err := registry.register(ActionConvertACLFormat, nil)
		assert.Error(t, err)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		err := registry.register("", nil)
		assert.Error(t, err)
	})
}
